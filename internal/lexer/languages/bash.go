package languages

import (
	"codesig/internal/lexer"

	"github.com/smacker/go-tree-sitter/bash"
)

func RegisterBash(r *lexer.Registry) {
	r.Register("bash", &lexer.LanguageSpec{
		Language:   bash.GetLanguage(),
		Extensions: []string{"sh", "bash"},
		Aliases:    []string{"shell", "sh"},
	})
}

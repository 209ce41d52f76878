package languages

import (
	"codesig/internal/lexer"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *lexer.Registry) {
	r.Register("go", &lexer.LanguageSpec{
		Language:   golang.GetLanguage(),
		Extensions: []string{"go"},
		Aliases:    []string{"golang"},
	})
}

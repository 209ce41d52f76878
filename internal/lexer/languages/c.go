package languages

import (
	"codesig/internal/lexer"

	"github.com/smacker/go-tree-sitter/c"
)

func RegisterC(r *lexer.Registry) {
	r.Register("c", &lexer.LanguageSpec{
		Language:   c.GetLanguage(),
		Extensions: []string{"c", "h"},
	})
}

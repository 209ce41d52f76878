package languages

import (
	"codesig/internal/lexer"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *lexer.Registry) {
	r.Register("typescript", &lexer.LanguageSpec{
		Language:   typescript.GetLanguage(),
		Extensions: []string{"ts", "tsx"},
	})
}

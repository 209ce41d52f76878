package languages

import (
	"codesig/internal/lexer"

	"github.com/smacker/go-tree-sitter/javascript"
)

func RegisterJavaScript(r *lexer.Registry) {
	r.Register("javascript", &lexer.LanguageSpec{
		Language:   javascript.GetLanguage(),
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		Aliases:    []string{"js"},
	})
}

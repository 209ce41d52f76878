package languages

import (
	"codesig/internal/lexer"

	"github.com/smacker/go-tree-sitter/python"
)

func RegisterPython(r *lexer.Registry) {
	r.Register("python", &lexer.LanguageSpec{
		Language:   python.GetLanguage(),
		Extensions: []string{"py", "pyi", "pyw"},
		Aliases:    []string{"python 3", "python3"},
	})
}

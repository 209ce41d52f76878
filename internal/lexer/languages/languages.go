// Package languages registers the tree-sitter grammars codesig tokenizes.
package languages

import "codesig/internal/lexer"

// Default returns a registry with every bundled grammar.
func Default() *lexer.Registry {
	r := lexer.NewRegistry()
	RegisterGo(r)
	RegisterPython(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterC(r)
	RegisterBash(r)
	return r
}

// Package lexer splits source text into tokens. Registered languages are
// tokenized with their tree-sitter grammar (one token per leaf node); any
// other text falls back to a word/punctuation scanner.
package lexer

import (
	"context"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
)

// Token is a half-open byte range [Start, End) of the source text.
type Token struct {
	Start int
	End   int
	Kind  string
}

// Text returns the token's slice of src.
func (t Token) Text(src string) string {
	return src[t.Start:t.End]
}

var fallbackPattern = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*|\p{N}+(?:\.\p{N}+)?|[^\s\p{L}\p{N}_]`)

// Tokenizer produces tokens for named source files.
type Tokenizer struct {
	registry *Registry
}

// New creates a tokenizer backed by the given registry. A nil registry
// tokenizes everything with the fallback scanner.
func New(r *Registry) *Tokenizer {
	if r == nil {
		r = NewRegistry()
	}
	return &Tokenizer{registry: r}
}

// Tokenize returns the tokens of text in document order. The grammar is
// chosen by the extension of name, then by treating name as a language
// name.
func (t *Tokenizer) Tokenize(name, text string) []Token {
	spec, _ := t.registry.Lookup(name)
	if spec == nil {
		spec, _ = t.registry.ByName(name)
	}
	if spec != nil {
		if toks, ok := treeTokens(spec.Language, text); ok {
			return toks
		}
	}
	return scanTokens(text)
}

func treeTokens(lang *sitter.Language, text string) ([]Token, bool) {
	src := []byte(text)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil, false
	}
	defer tree.Close()

	var toks []Token
	collectLeaves(tree.RootNode(), &toks)
	return toks, len(toks) > 0 || len(text) == 0
}

func collectLeaves(n *sitter.Node, out *[]Token) {
	if n == nil {
		return
	}
	count := int(n.ChildCount())
	if count == 0 {
		start, end := int(n.StartByte()), int(n.EndByte())
		// Missing nodes inserted by error recovery have zero width.
		if end > start {
			*out = append(*out, Token{Start: start, End: end, Kind: n.Type()})
		}
		return
	}
	for i := 0; i < count; i++ {
		collectLeaves(n.Child(i), out)
	}
}

func scanTokens(text string) []Token {
	locs := fallbackPattern.FindAllStringIndex(text, -1)
	toks := make([]Token, 0, len(locs))
	for _, loc := range locs {
		toks = append(toks, Token{Start: loc[0], End: loc[1], Kind: "word"})
	}
	return toks
}

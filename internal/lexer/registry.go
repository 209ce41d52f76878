package lexer

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec ties a tree-sitter grammar to its file extensions.
type LanguageSpec struct {
	Language   *sitter.Language
	Extensions []string
	// Aliases are other names the language is known by, e.g. the names a
	// language detector reports ("Python 3", "JavaScript").
	Aliases []string
}

// Registry maps file extensions and language names to grammars.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec // extension (without dot) → spec
	langs map[string]*LanguageSpec // lower-cased name or alias → spec
	names map[*LanguageSpec]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		langs: make(map[string]*LanguageSpec),
		names: make(map[*LanguageSpec]string),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[strings.ToLower(name)] = spec
	for _, alias := range spec.Aliases {
		r.langs[strings.ToLower(alias)] = spec
	}
	r.names[spec] = name
	for _, ext := range spec.Extensions {
		r.specs[ext] = spec
	}
}

// Lookup returns the spec for a file path based on its extension, or nil.
func (r *Registry) Lookup(path string) (spec *LanguageSpec, lang string) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[ext]
	if !ok {
		return nil, ""
	}
	return s, r.names[s]
}

// ByName returns the spec registered under name or one of its aliases.
func (r *Registry) ByName(name string) (spec *LanguageSpec, lang string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.langs[strings.ToLower(name)]
	if !ok {
		return nil, ""
	}
	return s, r.names[s]
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.specs))
	for ext := range r.specs {
		exts[ext] = true
	}
	return exts
}

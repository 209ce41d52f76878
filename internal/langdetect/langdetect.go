// Package langdetect guesses the programming language of a file. Content
// signals (modelines, shebangs, chroma analysers) win over the filename;
// a Bayesian classifier over a fixed candidate list is the last resort.
package langdetect

import (
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/go-enry/go-enry/v2"
)

// DefaultCandidates are the languages the content classifier chooses
// between when nothing else decides.
var DefaultCandidates = []string{
	"Python", "JavaScript", "TypeScript", "Go", "Shell",
	"C", "Java", "Ruby", "PHP", "PowerShell",
}

// Detector identifies source languages.
type Detector struct {
	// UseFilename enables the filename fallback when content analysis is
	// inconclusive.
	UseFilename bool
	// Candidates feed the content classifier. Empty disables it.
	Candidates []string
}

// New returns a detector with the filename fallback and the default
// classifier candidates.
func New() *Detector {
	return &Detector{UseFilename: true, Candidates: DefaultCandidates}
}

// Detect returns the language name for text (e.g. "Python", "Go"). ok is
// false when the language is indeterminate.
func (d *Detector) Detect(name, text string) (lang string, ok bool) {
	if text == "" {
		return d.byName(name, nil)
	}
	content := []byte(text)
	if enry.IsBinary(content) {
		return "", false
	}

	if lang, ok := enry.GetLanguageByModeline(content); ok {
		return lang, true
	}
	if lang, ok := enry.GetLanguageByShebang(content); ok {
		return lang, true
	}
	if lexer := lexers.Analyse(text); lexer != nil {
		return lexer.Config().Name, true
	}
	if lang, ok := d.byName(name, content); ok {
		return lang, true
	}

	if len(d.Candidates) == 0 {
		return "", false
	}
	// safe is only true for a single candidate, so any answer counts.
	lang, _ = enry.GetLanguageByClassifier(content, d.Candidates)
	return lang, lang != ""
}

func (d *Detector) byName(name string, content []byte) (string, bool) {
	if !d.UseFilename || name == "" {
		return "", false
	}
	if lang := enry.GetLanguage(name, content); lang != "" && lang != enry.OtherLanguage {
		return lang, true
	}
	lexer := lexers.Match(name)
	if lexer == nil {
		return "", false
	}
	return lexer.Config().Name, true
}

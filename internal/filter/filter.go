// Package filter decides which file units are worth embedding.
package filter

import (
	"strings"

	"codesig/internal/logging"
	"codesig/internal/source"

	"go.uber.org/zap"
)

// LanguageDetector identifies the language of a file. ok is false when
// the language cannot be determined.
type LanguageDetector interface {
	Detect(name, text string) (lang string, ok bool)
}

// Rejection reasons.
const (
	ReasonTooShort      = "too_short"
	ReasonTooLarge      = "too_large"
	ReasonLanguage      = "language_mismatch"
	ReasonIndeterminate = "language_indeterminate"
)

// Decision is the outcome of Accept. Reason is empty when accepted.
type Decision struct {
	Accepted bool
	Reason   string
	Language string
}

// Filter rejects degenerate, oversized and wrong-language units.
type Filter struct {
	// MinLength is the minimum trimmed content length in bytes.
	MinLength int
	// MaxSize is the maximum content size in bytes; 0 disables the bound.
	MaxSize int
	// Language is the expected language name. Empty disables the gate.
	Language string
	Detector LanguageDetector
	Logger   *zap.Logger
}

// Allow is Accept reduced to a boolean.
func (f *Filter) Allow(u source.FileUnit) bool {
	return f.Accept(u).Accepted
}

// Accept evaluates u. It has no side effects other than logging.
func (f *Filter) Accept(u source.FileUnit) Decision {
	log := logging.OrNop(f.Logger).With(zap.String("file", u.Key()))

	if n := len(strings.TrimSpace(u.Content)); n < f.MinLength {
		log.Debug("rejected: too short", zap.Int("length", n), zap.Int("min", f.MinLength))
		return Decision{Reason: ReasonTooShort}
	}
	if f.MaxSize > 0 && len(u.Content) > f.MaxSize {
		log.Info("rejected: too large", zap.Int("size", len(u.Content)), zap.Int("max", f.MaxSize))
		return Decision{Reason: ReasonTooLarge}
	}
	if f.Language == "" || f.Detector == nil {
		return Decision{Accepted: true}
	}

	lang, ok := f.Detector.Detect(u.Name, u.Content)
	if !ok {
		log.Debug("rejected: language could not be determined")
		return Decision{Reason: ReasonIndeterminate}
	}
	if !sameLanguage(lang, f.Language) {
		log.Info("rejected: unsupported language", zap.String("language", lang), zap.String("want", f.Language))
		return Decision{Reason: ReasonLanguage, Language: lang}
	}
	return Decision{Accepted: true, Language: lang}
}

// sameLanguage matches case-insensitively and accepts versioned variants,
// so "Python 3" satisfies "Python".
func sameLanguage(got, want string) bool {
	if strings.EqualFold(got, want) {
		return true
	}
	return len(got) > len(want) && strings.EqualFold(got[:len(want)], want) && got[len(want)] == ' '
}

//go:build !cgo

package embedder

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned by binaries built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without cgo, use the ollama or openai provider)")

// FastEmbedder is a stub for non-cgo builds.
type FastEmbedder struct{}

// NewFastEmbedder always fails without cgo.
func NewFastEmbedder(_, _ string) (*FastEmbedder, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Model returns "" since no model is loaded.
func (e *FastEmbedder) Model() string { return "" }

// EmbedChunk always fails with ErrFastEmbedNotAvailable.
func (e *FastEmbedder) EmbedChunk(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Close is a no-op.
func (e *FastEmbedder) Close() error { return nil }

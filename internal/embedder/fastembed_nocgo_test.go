//go:build !cgo

package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastEmbedderStub(t *testing.T) {
	_, err := NewFastEmbedder("", "")
	require.ErrorIs(t, err, ErrFastEmbedNotAvailable)

	var e FastEmbedder
	assert.Empty(t, e.Model())
	_, err = e.EmbedChunk(context.Background(), "x = 1")
	assert.ErrorIs(t, err, ErrFastEmbedNotAvailable)
	assert.NoError(t, e.Close())
}

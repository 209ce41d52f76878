//go:build cgo

package embedder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbedder runs a local ONNX embedding model.
type FastEmbedder struct {
	mu    sync.Mutex
	model *fastembed.FlagEmbedding
	name  string
}

// NewFastEmbedder loads model into cacheDir, downloading it on first use.
func NewFastEmbedder(model, cacheDir string) (*FastEmbedder, error) {
	if model == "" {
		model = "BAAI/bge-small-en-v1.5"
	}
	m, ok := fastembedModels[model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrConfig, model)
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}

	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                m,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &FastEmbedder{model: flag, name: model}, nil
}

// Model returns the configured model name.
func (e *FastEmbedder) Model() string { return e.name }

// EmbedChunk embeds text as a passage.
func (e *FastEmbedder) EmbedChunk(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The ONNX session is not safe for concurrent use.
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.model.PassageEmbed([]string{text}, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrService)
	}
	return out[0], nil
}

// Close releases the ONNX session.
func (e *FastEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}

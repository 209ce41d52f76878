// Package embedding turns one file's text into a matrix of chunk embeddings.
package embedding

import (
	"context"

	"codesig/internal/lexer"
	"codesig/internal/logging"

	"go.uber.org/zap"
)

// DefaultMaxTokens is the default chunk window.
const DefaultMaxTokens = 64

// minChunkTokens is the smallest window worth embedding.
const minChunkTokens = 2

// Service embeds a single chunk of text.
type Service interface {
	EmbedChunk(ctx context.Context, text string) ([]float32, error)
}

// Tokenizer splits source text into tokens with byte offsets.
type Tokenizer interface {
	Tokenize(name, text string) []lexer.Token
}

// Matrix is a list of embedding rows of equal dimension. A matrix with no
// rows means the file produced no usable signal.
type Matrix [][]float32

// Rows returns the number of rows.
func (m Matrix) Rows() int { return len(m) }

// Dim returns the row dimension, or 0 for an empty matrix.
func (m Matrix) Dim() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Chunk describes the source span behind one matrix row.
type Chunk struct {
	// Index is the window's position among all windows of the file,
	// including skipped ones.
	Index  int
	Start  int
	End    int
	Tokens int
	Text   string
}

// Output pairs a matrix with its chunks; Chunks[i] describes Matrix[i].
type Output struct {
	Matrix Matrix
	Chunks []Chunk
}

// Empty reports whether the output carries no rows.
func (o Output) Empty() bool { return len(o.Matrix) == 0 }

// Stage chunks text by token windows and embeds each chunk.
type Stage struct {
	svc       Service
	tokenizer Tokenizer
	maxTokens int
	logger    *zap.Logger
}

// NewStage creates a stage. maxTokens <= 0 selects DefaultMaxTokens.
func NewStage(svc Service, tokenizer Tokenizer, maxTokens int, logger *zap.Logger) *Stage {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Stage{
		svc:       svc,
		tokenizer: tokenizer,
		maxTokens: maxTokens,
		logger:    logging.OrNop(logger).Named("embedding"),
	}
}

// MaxTokens returns the chunk window size.
func (s *Stage) MaxTokens() int { return s.maxTokens }

// Windows splits text into contiguous windows of at most MaxTokens tokens,
// in document order. Windows shorter than two tokens are dropped.
func (s *Stage) Windows(name, text string) []Chunk {
	toks := s.tokenizer.Tokenize(name, text)
	var chunks []Chunk
	for i, idx := 0, 0; i < len(toks); i, idx = i+s.maxTokens, idx+1 {
		end := min(i+s.maxTokens, len(toks))
		window := toks[i:end]
		if len(window) < minChunkTokens {
			continue
		}
		start, stop := window[0].Start, window[len(window)-1].End
		chunks = append(chunks, Chunk{
			Index:  idx,
			Start:  start,
			End:    stop,
			Tokens: len(window),
			Text:   text[start:stop],
		})
	}
	return chunks
}

// Embed embeds every window of text. Chunks whose embedding fails, or
// whose dimension differs from the first successful row, are logged and
// left out. When nothing succeeds the output is empty.
func (s *Stage) Embed(ctx context.Context, name, text string) Output {
	log := s.logger.With(zap.String("file", name))

	var out Output
	dim := 0
	for _, c := range s.Windows(name, text) {
		if ctx.Err() != nil {
			return Output{}
		}
		vec, err := s.svc.EmbedChunk(ctx, c.Text)
		if err != nil {
			log.Warn("embedding chunk failed", zap.Int("chunk", c.Index), zap.Error(err))
			continue
		}
		if len(vec) == 0 {
			log.Warn("embedding chunk returned no values", zap.Int("chunk", c.Index))
			continue
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			log.Warn("embedding dimension mismatch", zap.Int("chunk", c.Index), zap.Int("got", len(vec)), zap.Int("want", dim))
			continue
		}
		out.Matrix = append(out.Matrix, vec)
		out.Chunks = append(out.Chunks, c)
	}

	if out.Empty() {
		log.Debug("no embeddable chunks")
	}
	return out
}

// Package cluster partitions a file's embedding matrix and emits its
// cluster table.
package cluster

import (
	"errors"
	"fmt"

	"codesig/internal/embedding"
	"codesig/internal/logging"
	"codesig/internal/signature"

	"go.uber.org/zap"
)

// ErrIDCount means the id list does not match the matrix rows.
var ErrIDCount = errors.New("cluster: id count does not match matrix rows")

// Options controls k selection and k-means.
type Options struct {
	// K is the requested cluster count; it caps the elbow choice.
	K int
	// MaxK bounds the elbow scan.
	MaxK int
	// ForceK skips the elbow scan and uses K directly.
	ForceK    bool
	Seed      uint64
	MaxIter   int
	Tolerance float64
}

// DefaultOptions returns K 5, MaxK 10, seed 0, 300 iterations, tol 1e-4.
func DefaultOptions() Options {
	return Options{K: 5, MaxK: 10, MaxIter: 300, Tolerance: 1e-4}
}

// Outcome is the result of clustering one matrix.
type Outcome struct {
	Table signature.Table
	// K is the number of clusters used, 0 when the table is empty.
	K int
	// Inertias holds the elbow scan, empty when ForceK was set.
	Inertias []float64
}

// Engine clusters embedding matrices.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if opts.K <= 0 {
		opts.K = DefaultOptions().K
	}
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultOptions().MaxK
	}
	return &Engine{opts: opts, logger: logging.OrNop(logger).Named("cluster")}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Cluster labels each row of m. ids[i] names row i. Fewer than two rows
// give an empty outcome.
func (e *Engine) Cluster(ids []string, m embedding.Matrix) (Outcome, error) {
	if len(ids) != m.Rows() {
		return Outcome{}, fmt.Errorf("%w: %d ids, %d rows", ErrIDCount, len(ids), m.Rows())
	}
	if m.Rows() < 2 {
		e.logger.Debug("not enough embeddings to cluster", zap.Int("rows", m.Rows()))
		return Outcome{}, nil
	}

	rows := m.Rows()
	upper := max(1, min(e.opts.K, rows))

	var out Outcome
	k := upper
	if !e.opts.ForceK {
		out.Inertias = Inertias(m, e.opts.MaxK, e.opts.Seed, e.opts.MaxIter, e.opts.Tolerance)
		k = min(ElbowK(out.Inertias, rows), upper)
	}

	fit := KMeans(m, k, e.opts.Seed, e.opts.MaxIter, e.opts.Tolerance)
	out.K = k
	out.Table.Rows = make([]signature.Row, rows)
	for i, label := range fit.Labels {
		out.Table.Rows[i] = signature.Row{ID: ids[i], Cluster: label}
	}

	e.logger.Debug("clustered",
		zap.Int("rows", rows),
		zap.Int("k", k),
		zap.Float64("inertia", fit.Inertia),
		zap.Int("iterations", fit.Iter),
	)
	return out, nil
}

// Package scan runs the full pipeline: walk repositories, filter, embed,
// cluster, then either build a reference signature or classify every file
// against one.
package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"codesig/internal/classify"
	"codesig/internal/cluster"
	"codesig/internal/embedding"
	"codesig/internal/filter"
	"codesig/internal/hashdb"
	"codesig/internal/logging"
	"codesig/internal/signature"
	"codesig/internal/similarity"
	"codesig/internal/source"
	"codesig/internal/walker"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoData means a reference build produced no cluster rows at all.
var ErrNoData = errors.New("scan: no clusterable files")

// Progress phases.
const (
	PhaseWalk    = "Walking repositories..."
	PhaseAnalyze = "Analyzing files..."
)

// ProgressFunc is called as work completes. total may grow during the
// walk phase.
type ProgressFunc func(phase string, done, total int)

// Stats reports what a run did with the files it saw.
type Stats struct {
	Repos    int
	Units    int
	Accepted int
	Rejected int
	// NoSignal counts accepted files that produced an empty table.
	NoSignal int
	Failures int
}

// Status is the outcome of one file.
type Status int

const (
	StatusRejected Status = iota
	StatusNoSignal
	StatusClustered
)

// FileResult is the analysis of one file unit.
type FileResult struct {
	Unit   source.FileUnit
	Status Status
	// Reason is the filter's rejection reason.
	Reason  string
	Output  embedding.Output
	Outcome cluster.Outcome
	// Verdict is set for clustered files when scanning.
	Verdict classify.Verdict
}

// Run is the result of Scan. Files holds the clustered files, in the same
// order as Summary.Details.
type Run struct {
	ID      string
	Summary classify.Summary
	Stats   Stats
	Files   []FileResult
}

// Options tunes a scanner.
type Options struct {
	Workers   int
	Threshold float64
	// SaveClusters, when set, receives one CSV table per clustered file.
	SaveClusters string
}

// Scanner wires the pipeline stages together.
type Scanner struct {
	walker   *walker.Walker
	filter   *filter.Filter
	stage    *embedding.Stage
	engine   *cluster.Engine
	hashes   *hashdb.DB
	opts     Options
	logger   *zap.Logger
	progress ProgressFunc
}

// New creates a scanner. hashes may be nil.
func New(w *walker.Walker, f *filter.Filter, stage *embedding.Stage, engine *cluster.Engine, hashes *hashdb.DB, opts Options, logger *zap.Logger) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Scanner{
		walker: w,
		filter: f,
		stage:  stage,
		engine: engine,
		hashes: hashes,
		opts:   opts,
		logger: logging.OrNop(logger).Named("scan"),
	}
}

// OnProgress registers a progress callback. It must be set before a run.
func (s *Scanner) OnProgress(fn ProgressFunc) { s.progress = fn }

func (s *Scanner) report(phase string, done, total int) {
	if s.progress != nil {
		s.progress(phase, done, total)
	}
}

// collect walks every repository in order.
func (s *Scanner) collect(ctx context.Context, repos []source.RepoRef, stats *Stats) ([]source.FileUnit, error) {
	var units []source.FileUnit
	for i, r := range repos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := s.walker.Walk(ctx, r.Owner, r.Name, r.Path)
		s.logger.Info("repository walked",
			zap.String("repo", r.String()),
			zap.Int("units", len(res.Units)),
			zap.Int("failures", len(res.Failures)),
		)
		units = append(units, res.Units...)
		stats.Repos++
		stats.Failures += len(res.Failures)
		s.report(PhaseWalk, i+1, len(repos))
	}
	stats.Units = len(units)
	return units, nil
}

// analyzeAll runs Analyze over units on the worker pool, preserving order.
func (s *Scanner) analyzeAll(ctx context.Context, units []source.FileUnit, stats *Stats) ([]FileResult, error) {
	results := make([]FileResult, len(units))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.Analyze(gctx, u)
			s.report(PhaseAnalyze, int(done.Add(1)), len(units))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range results {
		switch r.Status {
		case StatusRejected:
			stats.Rejected++
		case StatusNoSignal:
			stats.Accepted++
			stats.NoSignal++
		case StatusClustered:
			stats.Accepted++
		}
	}
	return results, nil
}

// Analyze filters, embeds and clusters one unit. Row ids are
// "<owner>/<repo>/<name>#<chunk>".
func (s *Scanner) Analyze(ctx context.Context, u source.FileUnit) FileResult {
	res := FileResult{Unit: u}

	if d := s.filter.Accept(u); !d.Accepted {
		res.Status = StatusRejected
		res.Reason = d.Reason
		return res
	}

	res.Status = StatusNoSignal
	res.Output = s.stage.Embed(ctx, u.Name, u.Content)
	if res.Output.Empty() {
		return res
	}

	key := u.Key()
	ids := make([]string, len(res.Output.Chunks))
	for i, c := range res.Output.Chunks {
		ids[i] = fmt.Sprintf("%s#%d", key, c.Index)
	}
	out, err := s.engine.Cluster(ids, res.Output.Matrix)
	if err != nil {
		s.logger.Error("clustering failed", zap.String("file", key), zap.Error(err))
		return res
	}
	for i := range out.Table.Rows {
		out.Table.Rows[i].Source = key
	}
	res.Outcome = out
	if !out.Table.Empty() {
		res.Status = StatusClustered
	}
	return res
}

// BuildReference clusters every file of repos independently and
// concatenates the per-file tables. Rows keep their embeddings.
func (s *Scanner) BuildReference(ctx context.Context, repos []source.RepoRef) (signature.Table, Stats, error) {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run", runID))
	log.Info("building reference", zap.Int("repos", len(repos)))

	var stats Stats
	units, err := s.collect(ctx, repos, &stats)
	if err != nil {
		return signature.Table{}, stats, err
	}
	results, err := s.analyzeAll(ctx, units, &stats)
	if err != nil {
		return signature.Table{}, stats, err
	}

	var tables []signature.Table
	for _, r := range results {
		if r.Status != StatusClustered {
			continue
		}
		t := r.Outcome.Table
		for i := range t.Rows {
			t.Rows[i].Vector = r.Output.Matrix[i]
		}
		tables = append(tables, t)
		s.saveClusters(r)
	}
	ref := signature.Concat(tables...)
	if ref.Empty() {
		return signature.Table{}, stats, ErrNoData
	}

	log.Info("reference built",
		zap.Int("files", len(tables)),
		zap.Int("rows", ref.Len()),
		zap.Ints("clusters", ref.ClusterIDs()),
	)
	return ref, stats, nil
}

// Scan classifies every file of repos against reference. Files that are
// rejected or yield no clusters are counted in Stats only.
func (s *Scanner) Scan(ctx context.Context, repos []source.RepoRef, reference signature.Table) (*Run, error) {
	run := &Run{ID: uuid.NewString()}
	log := s.logger.With(zap.String("run", run.ID))
	log.Info("scan started", zap.Int("repos", len(repos)), zap.Float64("threshold", s.opts.Threshold))

	units, err := s.collect(ctx, repos, &run.Stats)
	if err != nil {
		return nil, err
	}
	results, err := s.analyzeAll(ctx, units, &run.Stats)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Status != StatusClustered {
			continue
		}
		r.Verdict = s.judge(r, reference)
		run.Summary.Add(r.Verdict)
		run.Files = append(run.Files, r)
		s.saveClusters(r)
	}

	log.Info("scan finished",
		zap.Int("files", run.Summary.Total),
		zap.Int("flagged", run.Summary.Flagged),
		zap.Int("rejected", run.Stats.Rejected),
		zap.Int("no_signal", run.Stats.NoSignal),
		zap.Int("failures", run.Stats.Failures),
	)
	return run, nil
}

// CheckText analyses a single file outside any repository walk.
func (s *Scanner) CheckText(ctx context.Context, name, text string, reference signature.Table) FileResult {
	r := s.Analyze(ctx, source.FileUnit{Owner: "local", Repo: "file", Name: name, Content: text})
	if r.Status == StatusClustered {
		r.Verdict = s.judge(r, reference)
	}
	return r
}

func (s *Scanner) judge(r FileResult, reference signature.Table) classify.Verdict {
	key := r.Unit.Key()
	v := classify.Verdict{FileName: key, Shared: []int{}}

	cmp, err := similarity.Compare(r.Outcome.Table, reference)
	if err != nil {
		s.logger.Error("comparison failed, scoring 0", zap.String("file", key), zap.Error(err))
	} else {
		v.Score = cmp.Score
		v.Shared = cmp.Shared
	}
	v.Flagged = classify.Flag(v.Score, s.opts.Threshold)
	v.HashMatches = s.hashes.Lookup([]byte(r.Unit.Content))

	s.logger.Debug("file classified",
		zap.String("file", key),
		zap.Float64("score", v.Score),
		zap.Ints("shared", v.Shared),
		zap.Bool("flagged", v.Flagged),
	)
	return v
}

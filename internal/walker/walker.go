// Package walker traverses a repository through a source.Provider and
// returns every decodable file unit, expanding archives on the way.
//
// Failures are scoped: a listing error drops one subtree, a fetch error
// drops one file, a broken archive drops its members. Walk itself never
// fails; it returns whatever could be collected plus the failure list.
package walker

import (
	"context"
	"errors"
	"runtime"
	"slices"

	"codesig/internal/archive"
	"codesig/internal/logging"
	"codesig/internal/source"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Failure scopes.
const (
	ScopeList    = "list"
	ScopeFetch   = "fetch"
	ScopeArchive = "archive"
	ScopeEntry   = "entry"
)

// Failure records one thing the walk had to give up on.
type Failure struct {
	Scope string
	Path  string
	Err   error
}

func (f Failure) Error() string {
	return f.Scope + " " + f.Path + ": " + f.Err.Error()
}

// Result is the best-effort outcome of a walk. Units are in discovery
// order: depth-first, each directory in provider listing order.
type Result struct {
	Units    []source.FileUnit
	Failures []Failure
}

// Options tunes a walker.
type Options struct {
	// Workers bounds concurrent fetches; <= 0 means runtime.NumCPU().
	Workers int
	Archive archive.Options
}

// Walker walks repositories served by one provider.
type Walker struct {
	provider source.Provider
	opts     Options
	logger   *zap.Logger
}

// New creates a walker.
func New(p source.Provider, opts Options, logger *zap.Logger) *Walker {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Walker{provider: p, opts: opts, logger: logging.OrNop(logger).Named("walker")}
}

// fileResult is filled in by the fetch worker for one discovered file.
type fileResult struct {
	units    []source.FileUnit
	failures []Failure
}

// Walk collects the file units under path ("" for the repository root).
func (w *Walker) Walk(ctx context.Context, owner, repo, path string) Result {
	log := w.logger.With(zap.String("repo", owner+"/"+repo))

	var (
		res   Result
		files []*fileResult
		g     errgroup.Group
	)
	g.SetLimit(w.opts.Workers)

	stack := []source.Entry{{Path: path, Type: source.TypeDir}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			for _, e := range stack {
				res.Failures = append(res.Failures, Failure{Scope: scopeFor(e), Path: e.Path, Err: err})
			}
			break
		}

		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.Type == source.TypeDir {
			children, err := w.provider.List(ctx, owner, repo, e.Path)
			if err != nil {
				log.Warn("listing failed, skipping subtree", zap.String("path", e.Path), zap.Error(err))
				res.Failures = append(res.Failures, Failure{Scope: ScopeList, Path: e.Path, Err: err})
				continue
			}
			for _, c := range slices.Backward(children) {
				if c.Type == source.TypeDir || c.Type == source.TypeFile {
					stack = append(stack, c)
				}
			}
			continue
		}

		slot := &fileResult{}
		files = append(files, slot)
		g.Go(func() error {
			*slot = w.fetch(ctx, log, owner, repo, e)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range files {
		res.Units = append(res.Units, f.units...)
		res.Failures = append(res.Failures, f.failures...)
	}
	log.Debug("walk finished", zap.Int("units", len(res.Units)), zap.Int("failures", len(res.Failures)))
	return res
}

func scopeFor(e source.Entry) string {
	if e.Type == source.TypeDir {
		return ScopeList
	}
	return ScopeFetch
}

// fetch downloads one file and turns it into units.
func (w *Walker) fetch(ctx context.Context, log *zap.Logger, owner, repo string, e source.Entry) fileResult {
	var out fileResult
	if err := ctx.Err(); err != nil {
		out.failures = append(out.failures, Failure{Scope: ScopeFetch, Path: e.Path, Err: err})
		return out
	}

	raw, err := w.provider.Fetch(ctx, e)
	if err != nil {
		log.Warn("fetch failed", zap.String("path", e.Path), zap.Error(err))
		out.failures = append(out.failures, Failure{Scope: ScopeFetch, Path: e.Path, Err: err})
		return out
	}

	format := archive.Detect(e.Path, raw)
	res := archive.Expand(raw, format, owner, repo, e.Path, w.opts.Archive)
	if res.Err != nil {
		log.Warn("archive unusable",
			zap.String("path", e.Path),
			zap.String("format", string(format)),
			zap.String("category", archive.Category(res.Err)),
			zap.Error(res.Err),
		)
		out.failures = append(out.failures, Failure{Scope: ScopeArchive, Path: e.Path, Err: res.Err})
	}
	for _, s := range res.Skipped {
		log.Info("entry skipped",
			zap.String("path", e.Path),
			zap.String("entry", s.Name),
			zap.String("reason", s.Category),
			zap.Error(s.Err),
		)
		out.failures = append(out.failures, Failure{Scope: ScopeEntry, Path: s.Name, Err: s.Err})
	}
	if format.IsArchive() && res.Err == nil {
		log.Debug("archive expanded", zap.String("path", e.Path), zap.Int("units", len(res.Units)))
	}
	out.units = res.Units
	return out
}

// IsArchiveFailure reports whether err is one of the archive sentinels.
func IsArchiveFailure(err error) bool {
	return errors.Is(err, archive.ErrCorrupt) || errors.Is(err, archive.ErrEncrypted) || errors.Is(err, archive.ErrUnsupported)
}

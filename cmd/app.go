package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"codesig/internal/archive"
	"codesig/internal/cluster"
	"codesig/internal/config"
	"codesig/internal/embedder"
	"codesig/internal/embedding"
	"codesig/internal/filter"
	"codesig/internal/hashdb"
	"codesig/internal/langdetect"
	"codesig/internal/lexer"
	"codesig/internal/lexer/languages"
	"codesig/internal/provider/github"
	"codesig/internal/provider/gitrepo"
	"codesig/internal/provider/local"
	"codesig/internal/repolist"
	"codesig/internal/scan"
	"codesig/internal/signature"
	"codesig/internal/source"
	"codesig/internal/walker"

	"go.uber.org/zap"
)

// errNoRepos is returned when a command is given nothing to walk.
var errNoRepos = errors.New("no repositories given: pass owner/repo arguments or --repos-file")

func newProvider(ctx context.Context, c *config.Config) (source.Provider, error) {
	switch c.Provider {
	case "github":
		return github.New(ctx, github.Options{
			Token:             c.GitHub.Token.Value(),
			BaseURL:           c.GitHub.BaseURL,
			RequestsPerSecond: c.GitHub.RequestsPerSecond,
			Burst:             c.GitHub.Burst,
		}, logger)
	case "git":
		return gitrepo.New(gitrepo.Options{
			URLTemplate: c.Git.URLTemplate,
			Depth:       c.Git.Depth,
			Token:       c.GitHub.Token.Value(),
		}, logger), nil
	case "local":
		return local.New(c.Local.Root)
	}
	return nil, fmt.Errorf("unknown provider %q", c.Provider)
}

// pipeline bundles a scanner with the embedder it owns.
type pipeline struct {
	scanner  *scan.Scanner
	embedder embedder.Embedder
}

func (p *pipeline) Close() error {
	return p.embedder.Close()
}

type scanSettings struct {
	threshold    float64
	saveClusters string
	useHashes    bool
}

func newPipeline(ctx context.Context, c *config.Config, s scanSettings) (*pipeline, error) {
	prov, err := newProvider(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	emb, err := embedder.New(c.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	var hashes *hashdb.DB
	if s.useHashes && c.HashDB.Path != "" {
		hashes, err = hashdb.Load(c.HashDB.Path, logger)
		if err != nil {
			emb.Close()
			return nil, err
		}
	}

	w := walker.New(prov, walker.Options{
		Workers: c.Workers,
		Archive: archive.Options{MaxEntrySize: c.Archive.MaxEntrySize},
	}, logger)
	f := &filter.Filter{
		MinLength: c.Filter.MinLength,
		MaxSize:   c.Filter.MaxSize,
		Language:  c.Filter.Language,
		Detector:  langdetect.New(),
		Logger:    logger,
	}
	stage := embedding.NewStage(emb, lexer.New(languages.Default()), c.Embedding.ChunkTokens, logger)
	engine := cluster.NewEngine(cluster.Options{
		K:         c.Cluster.K,
		MaxK:      c.Cluster.MaxK,
		ForceK:    c.Cluster.ForceK,
		Seed:      c.Cluster.Seed,
		MaxIter:   c.Cluster.MaxIter,
		Tolerance: c.Cluster.Tolerance,
	}, logger)

	sc := scan.New(w, f, stage, engine, hashes, scan.Options{
		Workers:      c.Workers,
		Threshold:    s.threshold,
		SaveClusters: s.saveClusters,
	}, logger)
	return &pipeline{scanner: sc, embedder: emb}, nil
}

// resolveRepos merges positional owner/repo arguments with a list file.
func resolveRepos(args []string, reposFile string) ([]source.RepoRef, error) {
	var repos []source.RepoRef
	if reposFile != "" {
		loaded, err := repolist.Load(reposFile)
		if err != nil {
			return nil, err
		}
		repos = loaded
	}
	for _, a := range args {
		ref, err := source.ParseRepoRef(a)
		if err != nil {
			return nil, err
		}
		repos = repolist.Merge(repos, ref)
	}
	if len(repos) == 0 {
		return nil, errNoRepos
	}
	return repos, nil
}

// loadReference reads the reference table and checks that it was built
// with the embedding settings in use.
func loadReference(c *config.Config) (*signature.Store, signature.Table, error) {
	st, err := signature.OpenExisting(c.Reference.Path)
	if err != nil {
		return nil, signature.Table{}, err
	}
	ref, err := st.Load()
	if err != nil {
		st.Close()
		return nil, signature.Table{}, err
	}
	if ref.HasMissingCluster() {
		logger.Warn("reference has rows without a cluster id; comparisons will score 0",
			zap.String("path", c.Reference.Path))
	}

	checkMeta(st, signature.MetaEmbeddingModel, c.Embedding.Model)
	checkMeta(st, signature.MetaChunkTokens, strconv.Itoa(c.Embedding.ChunkTokens))

	logger.Info("reference loaded",
		zap.String("path", c.Reference.Path),
		zap.Int("rows", ref.Len()),
		zap.Int("clusters", len(ref.ClusterIDs())),
	)
	return st, ref, nil
}

func checkMeta(st *signature.Store, key, want string) {
	got, err := st.Meta(key)
	if err != nil {
		logger.Warn("cannot read reference metadata", zap.String("key", key), zap.Error(err))
		return
	}
	if got != "" && got != want {
		logger.Warn("reference was built with different settings",
			zap.String("key", key),
			zap.String("reference", got),
			zap.String("current", want),
		)
	}
}

// Package gitrepo serves repository contents from an in-memory git clone.
// It needs one clone per repository instead of one API call per directory.
package gitrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"codesig/internal/logging"
	"codesig/internal/source"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"
)

// maxFileSize bounds a single file read from the worktree.
const maxFileSize = 64 << 20

// CloneFunc produces the worktree of a repository.
type CloneFunc func(ctx context.Context, url string) (billy.Filesystem, error)

// Options configures the provider.
type Options struct {
	// URLTemplate is formatted with owner and repo.
	URLTemplate string
	// Depth limits history; 0 clones everything.
	Depth int
	Token string
	// Clone overrides the go-git clone.
	Clone CloneFunc
}

// Provider implements source.Provider over cloned worktrees.
type Provider struct {
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	trees map[string]*tree
}

// tree is one clone, made at most once.
type tree struct {
	once sync.Once
	fs   billy.Filesystem
	err  error
}

// New creates a provider.
func New(opts Options, logger *zap.Logger) *Provider {
	if opts.URLTemplate == "" {
		opts.URLTemplate = "https://github.com/%s/%s.git"
	}
	p := &Provider{opts: opts, logger: logging.OrNop(logger).Named("gitrepo"), trees: make(map[string]*tree)}
	if p.opts.Clone == nil {
		p.opts.Clone = p.clone
	}
	return p
}

func (p *Provider) clone(ctx context.Context, url string) (billy.Filesystem, error) {
	fs := memfs.New()
	co := &git.CloneOptions{
		URL:          url,
		Depth:        p.opts.Depth,
		SingleBranch: true,
	}
	if p.opts.Token != "" {
		co.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: p.opts.Token}
	}
	if _, err := git.CloneContext(ctx, memory.NewStorage(), fs, co); err != nil {
		return nil, err
	}
	return fs, nil
}

func (p *Provider) worktree(ctx context.Context, owner, repo string) (billy.Filesystem, error) {
	key := owner + "/" + repo

	p.mu.Lock()
	t, ok := p.trees[key]
	if !ok {
		t = &tree{}
		p.trees[key] = t
	}
	p.mu.Unlock()

	t.once.Do(func() {
		url := fmt.Sprintf(p.opts.URLTemplate, owner, repo)
		p.logger.Info("cloning", zap.String("repo", key), zap.String("url", url))
		t.fs, t.err = p.opts.Clone(ctx, url)
		if t.err != nil {
			t.err = fmt.Errorf("clone %s: %w", key, t.err)
		}
	})
	return t.fs, t.err
}

// List returns the entries of one worktree directory in name order.
// Symlinks and the .git directory are left out.
func (p *Provider) List(ctx context.Context, owner, repo, dir string) ([]source.Entry, error) {
	fs, err := p.worktree(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "/"
	}
	infos, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	ref := owner + "/" + repo
	entries := make([]source.Entry, 0, len(infos))
	for _, fi := range infos {
		if fi.Name() == ".git" || fi.Mode()&os.ModeSymlink != 0 {
			continue
		}
		e := source.Entry{
			Name: fi.Name(),
			Path: path.Join(path.Clean("/" + dir)[1:], fi.Name()),
			Ref:  ref,
			Size: fi.Size(),
			Type: source.TypeFile,
		}
		if fi.IsDir() {
			e.Type = source.TypeDir
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Fetch reads a file from the clone named by e.Ref.
func (p *Provider) Fetch(ctx context.Context, e source.Entry) ([]byte, error) {
	owner, repo, ok := cutRef(e.Ref)
	if !ok {
		return nil, fmt.Errorf("entry %s has no repository ref", e.Path)
	}
	fs, err := p.worktree(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(e.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.Path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", e.Path, maxFileSize)
	}
	return data, nil
}

func cutRef(ref string) (owner, repo string, ok bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:], i > 0 && i < len(ref)-1
		}
	}
	return "", "", false
}

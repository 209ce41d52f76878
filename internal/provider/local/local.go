// Package local serves repositories from a directory tree laid out as
// <root>/<owner>/<repo>.
package local

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"codesig/internal/source"
)

// IgnoreFile is read from each repository root when present.
const IgnoreFile = ".codesigignore"

// maxFileSize bounds a single file read.
const maxFileSize = 64 << 20

// defaultIgnores are used when a repository has no ignore file.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
}

// Provider implements source.Provider over the local filesystem.
type Provider struct {
	root string
}

// New creates a provider rooted at root.
func New(root string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("local root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", abs)
	}
	return &Provider{root: abs}, nil
}

func (p *Provider) repoDir(owner, repo string) (string, error) {
	if !filepath.IsLocal(owner) || !filepath.IsLocal(repo) {
		return "", fmt.Errorf("invalid repository %s/%s", owner, repo)
	}
	return filepath.Join(p.root, owner, repo), nil
}

// List returns the entries of one directory in name order, skipping
// symlinks and ignored directories.
func (p *Provider) List(_ context.Context, owner, repo, dir string) ([]source.Entry, error) {
	base, err := p.repoDir(owner, repo)
	if err != nil {
		return nil, err
	}
	rel := path.Clean("/" + dir)[1:]
	if rel != "" && !filepath.IsLocal(filepath.FromSlash(rel)) {
		return nil, fmt.Errorf("invalid path %q", dir)
	}

	des, err := os.ReadDir(filepath.Join(base, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	ignores := loadIgnorePatterns(base)

	entries := make([]source.Entry, 0, len(des))
	for _, d := range des {
		if d.Type()&fs.ModeSymlink != 0 {
			continue
		}
		relPath := path.Join(rel, d.Name())
		if d.IsDir() {
			if matchesIgnore(d.Name(), relPath, ignores) {
				continue
			}
			entries = append(entries, source.Entry{Name: d.Name(), Path: relPath, Type: source.TypeDir})
			continue
		}
		if !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, source.Entry{
			Name: d.Name(),
			Path: relPath,
			Type: source.TypeFile,
			Ref:  filepath.Join(base, filepath.FromSlash(relPath)),
			Size: info.Size(),
		})
	}
	return entries, nil
}

// Fetch reads the file at e.Ref.
func (p *Provider) Fetch(_ context.Context, e source.Entry) ([]byte, error) {
	if e.Ref == "" || !strings.HasPrefix(e.Ref, p.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("entry %s is outside %s", e.Path, p.root)
	}
	f, err := os.Open(e.Ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", e.Path, maxFileSize)
	}
	return data, nil
}

// Repositories lists every <owner>/<repo> pair under the root.
func (p *Provider) Repositories() ([]source.RepoRef, error) {
	owners, err := os.ReadDir(p.root)
	if err != nil {
		return nil, err
	}
	var refs []source.RepoRef
	for _, o := range owners {
		if !o.IsDir() || strings.HasPrefix(o.Name(), ".") {
			continue
		}
		repos, err := os.ReadDir(filepath.Join(p.root, o.Name()))
		if err != nil {
			return nil, err
		}
		for _, r := range repos {
			if r.IsDir() && !strings.HasPrefix(r.Name(), ".") {
				refs = append(refs, source.RepoRef{Owner: o.Name(), Name: r.Name()})
			}
		}
	}
	return refs, nil
}

// loadIgnorePatterns reads the repository's ignore file, falling back to
// the defaults when it is missing or empty.
func loadIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return defaultIgnores
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if len(patterns) == 0 {
		return defaultIgnores
	}
	return patterns
}

// matchesIgnore checks if a directory name or relative path matches any ignore pattern.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if matched, _ := path.Match(p, relPath); matched {
			return true
		}
		if matched, _ := path.Match(p, name); matched {
			return true
		}
	}
	return false
}

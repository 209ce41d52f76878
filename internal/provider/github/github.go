// Package github serves repository contents through the GitHub REST API
// and searches for repositories to scan.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"codesig/internal/logging"
	"codesig/internal/source"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	searchPerPage = 100
	// maxDownload bounds a single raw file download.
	maxDownload = 64 << 20
)

// ErrNoDownloadURL means a listed entry cannot be fetched directly.
var ErrNoDownloadURL = errors.New("github: entry has no download url")

// Options configures the provider.
type Options struct {
	Token string
	// BaseURL is the REST API root; empty means api.github.com.
	BaseURL string
	// RequestsPerSecond throttles API calls; <= 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the transport. It is used as-is, without
	// token authentication.
	HTTPClient *http.Client
}

// Provider implements source.Provider over the contents API.
type Provider struct {
	client  *github.Client
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a provider.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Provider, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
		if opts.Token != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
			httpClient = oauth2.NewClient(ctx, ts)
		}
	}

	client := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		client.BaseURL = u
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := max(opts.Burst, 1)

	return &Provider{
		client:  client,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.OrNop(logger).Named("github"),
	}, nil
}

// List returns the entries of one directory. Symlinks and submodules are
// left out.
func (p *Provider) List(ctx context.Context, owner, repo, path string) ([]source.Entry, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	file, dir, _, err := p.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s/%s: %w", owner, repo, path, err)
	}
	if file != nil {
		return []source.Entry{toEntry(file)}, nil
	}

	entries := make([]source.Entry, 0, len(dir))
	for _, c := range dir {
		switch c.GetType() {
		case "file", "dir":
			entries = append(entries, toEntry(c))
		default:
			p.logger.Debug("skipping entry", zap.String("path", c.GetPath()), zap.String("type", c.GetType()))
		}
	}
	return entries, nil
}

func toEntry(c *github.RepositoryContent) source.Entry {
	return source.Entry{
		Name: c.GetName(),
		Path: c.GetPath(),
		Type: source.EntryType(c.GetType()),
		Ref:  c.GetDownloadURL(),
		Size: int64(c.GetSize()),
	}
}

// Fetch downloads the raw bytes of a file entry.
func (p *Provider) Fetch(ctx context.Context, e source.Entry) ([]byte, error) {
	if e.Ref == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDownloadURL, e.Path)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.Ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", e.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s returned %d", e.Path, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("download %s exceeds %d bytes", e.Path, maxDownload)
	}
	return data, nil
}

// SearchRepositories pages through the repository search API, 100 results
// per page, stopping early on an empty page. On error it returns the
// repositories found so far together with the error.
func (p *Provider) SearchRepositories(ctx context.Context, query string, pages int) ([]source.RepoRef, error) {
	var repos []source.RepoRef
	for page := 1; page <= pages; page++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return repos, fmt.Errorf("rate limiter: %w", err)
		}

		p.logger.Info("searching repositories", zap.String("query", query), zap.Int("page", page), zap.Int("pages", pages))
		res, _, err := p.client.Search.Repositories(ctx, query, &github.SearchOptions{
			ListOptions: github.ListOptions{Page: page, PerPage: searchPerPage},
		})
		if err != nil {
			return repos, fmt.Errorf("search page %d: %w", page, err)
		}
		if len(res.Repositories) == 0 {
			break
		}
		for _, r := range res.Repositories {
			repos = append(repos, source.RepoRef{Owner: r.GetOwner().GetLogin(), Name: r.GetName()})
		}
	}
	return repos, nil
}

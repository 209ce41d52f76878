// Package source defines the units of code the pipeline works on and the
// provider interface used to fetch them from a repository.
package source

import (
	"context"
	"fmt"
	"strings"
)

// FileUnit is one decoded source file. Identity is (Owner, Repo, Name).
// Content is always valid text; undecodable entries never become units.
type FileUnit struct {
	Owner   string
	Repo    string
	Name    string
	Content string
}

// Key returns the unit identity as "owner/repo/name".
func (u FileUnit) Key() string {
	return u.Owner + "/" + u.Repo + "/" + u.Name
}

// EntryType distinguishes files from directories in a listing.
type EntryType string

const (
	TypeFile EntryType = "file"
	TypeDir  EntryType = "dir"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Path string
	Type EntryType
	// Ref is provider-specific: a download URL, a blob path, ...
	Ref  string
	Size int64
}

// Provider lists repository directories and fetches file contents.
// Authentication and rate limiting are the provider's concern.
type Provider interface {
	List(ctx context.Context, owner, repo, path string) ([]Entry, error)
	Fetch(ctx context.Context, e Entry) ([]byte, error)
}

// RepoRef names a repository and an optional starting path.
type RepoRef struct {
	Owner string `json:"owner" toml:"owner"`
	Name  string `json:"name" toml:"name"`
	Path  string `json:"path,omitempty" toml:"path,omitempty"`
}

func (r RepoRef) String() string {
	if r.Path == "" {
		return r.Owner + "/" + r.Name
	}
	return r.Owner + "/" + r.Name + "/" + r.Path
}

// ParseRepoRef parses "owner/repo" or "owner/repo/sub/dir".
func ParseRepoRef(s string) (RepoRef, error) {
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("invalid repository %q: want owner/repo[/path]", s)
	}
	ref := RepoRef{Owner: parts[0], Name: parts[1]}
	if len(parts) == 3 {
		ref.Path = parts[2]
	}
	return ref, nil
}

// Package repolist reads and writes repository lists. The format follows
// the file extension: .toml, .json, or one owner/repo[/path] per line.
package repolist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codesig/internal/source"

	"github.com/pelletier/go-toml/v2"
)

// ErrEmpty means a list names no repositories.
var ErrEmpty = errors.New("repolist: no repositories")

type document struct {
	Repositories []source.RepoRef `json:"repositories" toml:"repositories"`
}

// Load reads a repository list file.
func Load(path string) ([]source.RepoRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read repository list: %w", err)
	}

	var repos []source.RepoRef
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var doc document
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		repos = doc.Repositories
	case ".json":
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		repos = doc.Repositories
	default:
		repos, err = parseLines(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	for i, r := range repos {
		if r.Owner == "" || r.Name == "" {
			return nil, fmt.Errorf("parse %s: entry %d has no owner or name", path, i)
		}
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmpty, path)
	}
	return repos, nil
}

func parseLines(data []byte) ([]source.RepoRef, error) {
	var repos []source.RepoRef
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ref, err := source.ParseRepoRef(line)
		if err != nil {
			return nil, err
		}
		repos = append(repos, ref)
	}
	return repos, sc.Err()
}

// Save writes repos to path in the format its extension selects.
func Save(path string, repos []source.RepoRef) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		data, err = toml.Marshal(document{Repositories: repos})
	case ".json":
		data, err = json.MarshalIndent(document{Repositories: repos}, "", "  ")
		data = append(data, '\n')
	default:
		var b strings.Builder
		for _, r := range repos {
			b.WriteString(r.String())
			b.WriteByte('\n')
		}
		data = []byte(b.String())
	}
	if err != nil {
		return fmt.Errorf("encode repository list: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write repository list: %w", err)
	}
	return nil
}

// Merge appends extra to repos, dropping duplicates while keeping first
// occurrence order.
func Merge(repos []source.RepoRef, extra ...source.RepoRef) []source.RepoRef {
	seen := make(map[source.RepoRef]bool, len(repos)+len(extra))
	var out []source.RepoRef
	for _, r := range append(append([]source.RepoRef(nil), repos...), extra...) {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

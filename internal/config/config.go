// Package config loads codesig configuration.
//
// Precedence, highest first:
//  1. command-line flags (applied by cmd/)
//  2. CODESIG_* environment variables
//  3. the YAML config file
//  4. compiled defaults
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"codesig/internal/logging"
)

// Secret wraps strings that must not be printed.
type Secret string

// String always returns a redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the actual secret value.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool { return s != "" }

// Config is the full application configuration.
type Config struct {
	Provider  string          `koanf:"provider"`
	Workers   int             `koanf:"workers"`
	GitHub    GitHubConfig    `koanf:"github"`
	Git       GitConfig       `koanf:"git"`
	Local     LocalConfig     `koanf:"local"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Filter    FilterConfig    `koanf:"filter"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Cluster   ClusterConfig   `koanf:"cluster"`
	Classify  ClassifyConfig  `koanf:"classify"`
	Reference ReferenceConfig `koanf:"reference"`
	HashDB    HashDBConfig    `koanf:"hashdb"`
	Log       logging.Config  `koanf:"log"`
}

// GitHubConfig configures the GitHub contents API provider.
type GitHubConfig struct {
	Token             Secret  `koanf:"token"`
	BaseURL           string  `koanf:"base_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// GitConfig configures the clone-based provider.
type GitConfig struct {
	URLTemplate string `koanf:"url_template"`
	Depth       int    `koanf:"depth"`
}

// LocalConfig configures the local directory provider. Root contains one
// directory per owner, each holding one directory per repository.
type LocalConfig struct {
	Root string `koanf:"root"`
}

// EmbeddingConfig selects and configures the embedding service.
type EmbeddingConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	OllamaURL   string        `koanf:"ollama_url"`
	APIKey      Secret        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	CacheDir    string        `koanf:"cache_dir"`
	ChunkTokens int           `koanf:"chunk_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

// FilterConfig bounds accepted source files.
type FilterConfig struct {
	MinLength int    `koanf:"min_length"`
	MaxSize   int    `koanf:"max_size"`
	Language  string `koanf:"language"`
}

// ArchiveConfig limits archive expansion.
type ArchiveConfig struct {
	MaxEntrySize int64 `koanf:"max_entry_size"`
}

// ClusterConfig controls k selection and k-means.
type ClusterConfig struct {
	K         int     `koanf:"k"`
	MaxK      int     `koanf:"max_k"`
	ForceK    bool    `koanf:"force_k"`
	Seed      uint64  `koanf:"seed"`
	MaxIter   int     `koanf:"max_iter"`
	Tolerance float64 `koanf:"tolerance"`
}

// ClassifyConfig holds the verdict threshold.
type ClassifyConfig struct {
	Threshold float64 `koanf:"threshold"`
}

// ReferenceConfig locates the reference signature database.
type ReferenceConfig struct {
	Path string `koanf:"path"`
}

// HashDBConfig locates the optional malware hash dataset.
type HashDBConfig struct {
	Path string `koanf:"path"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		Provider: "github",
		Workers:  runtime.NumCPU(),
		GitHub: GitHubConfig{
			BaseURL:           "https://api.github.com/",
			RequestsPerSecond: 1.2,
			Burst:             10,
		},
		Git: GitConfig{
			URLTemplate: "https://github.com/%s/%s.git",
			Depth:       1,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			OllamaURL:   "http://localhost:11434",
			ChunkTokens: 64,
			Timeout:     2 * time.Minute,
		},
		Filter: FilterConfig{
			MinLength: 32,
			MaxSize:   1 << 20,
			Language:  "Python",
		},
		Archive: ArchiveConfig{MaxEntrySize: 8 << 20},
		Cluster: ClusterConfig{
			K:         5,
			MaxK:      10,
			MaxIter:   300,
			Tolerance: 1e-4,
		},
		Classify:  ClassifyConfig{Threshold: 0.5},
		Reference: ReferenceConfig{Path: "reference_clusters.db"},
		Log:       logging.DefaultConfig(),
	}
}

var (
	validProviders      = map[string]bool{"github": true, "git": true, "local": true}
	validEmbedProviders = map[string]bool{"ollama": true, "openai": true, "fastembed": true}
)

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if !validProviders[c.Provider] {
		errs = append(errs, fmt.Errorf("provider %q: want github, git or local", c.Provider))
	}
	if c.Provider == "local" && c.Local.Root == "" {
		errs = append(errs, errors.New("local.root is required for the local provider"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if !validEmbedProviders[c.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("embedding.provider %q: want ollama, openai or fastembed", c.Embedding.Provider))
	}
	if c.Embedding.ChunkTokens < 2 {
		errs = append(errs, fmt.Errorf("embedding.chunk_tokens must be >= 2, got %d", c.Embedding.ChunkTokens))
	}
	if c.Filter.MinLength < 0 || c.Filter.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("filter bounds invalid: min_length=%d max_size=%d", c.Filter.MinLength, c.Filter.MaxSize))
	}
	if c.Cluster.K < 1 || c.Cluster.MaxK < 1 {
		errs = append(errs, fmt.Errorf("cluster.k and cluster.max_k must be >= 1"))
	}
	if c.Cluster.MaxIter < 1 {
		errs = append(errs, fmt.Errorf("cluster.max_iter must be >= 1"))
	}
	if c.Classify.Threshold < 0 || c.Classify.Threshold > 1 {
		errs = append(errs, fmt.Errorf("classify.threshold must be in [0,1], got %g", c.Classify.Threshold))
	}
	return errors.Join(errs...)
}

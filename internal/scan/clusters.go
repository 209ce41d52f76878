package scan

import (
	"os"
	"path/filepath"
	"strings"

	"codesig/internal/signature"

	"go.uber.org/zap"
)

// saveClusters writes the file's table as CSV when SaveClusters is set.
// Failures are logged only.
func (s *Scanner) saveClusters(r FileResult) {
	if s.opts.SaveClusters == "" {
		return
	}
	if err := os.MkdirAll(s.opts.SaveClusters, 0o755); err != nil {
		s.logger.Warn("cannot create cluster directory", zap.String("dir", s.opts.SaveClusters), zap.Error(err))
		return
	}

	path := filepath.Join(s.opts.SaveClusters, ClusterFileName(r.Unit.Key()))
	f, err := os.Create(path)
	if err != nil {
		s.logger.Warn("cannot save clusters", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if err := signature.WriteCSV(f, r.Outcome.Table); err != nil {
		s.logger.Warn("cannot save clusters", zap.String("path", path), zap.Error(err))
	}
}

// ClusterFileName maps a unit key to a flat file name.
func ClusterFileName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	return name + ".csv"
}

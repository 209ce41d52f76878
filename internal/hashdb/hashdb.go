// Package hashdb looks up file hashes in a MalwareBazaar-style CSV export.
package hashdb

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"codesig/internal/logging"

	"go.uber.org/zap"
)

// Hash algorithms, in lookup order.
const (
	SHA256 = "sha256"
	MD5    = "md5"
	SHA1   = "sha1"
)

var algorithms = []string{SHA256, MD5, SHA1}

// ErrNoHashColumns means the header names none of the hash columns.
var ErrNoHashColumns = errors.New("hashdb: dataset has no sha256_hash, md5_hash or sha1_hash column")

// Record is one known sample.
type Record struct {
	SHA256    string
	MD5       string
	SHA1      string
	Signature string
	FileName  string
}

// Match is a dataset hit for one algorithm.
type Match struct {
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
	Signature string `json:"signature,omitempty"`
	FileName  string `json:"file_name,omitempty"`
}

// DB indexes records by each hash.
type DB struct {
	index map[string]map[string]Record
	size  int
}

// Len returns the number of records loaded.
func (db *DB) Len() int { return db.size }

// Load reads the dataset at path.
func Load(path string, logger *zap.Logger) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hash dataset: %w", err)
	}
	defer f.Close()
	return Read(f, logger)
}

// Read parses a dataset. Lines starting with '#' are comments, except a
// commented header line. Malformed lines are logged and skipped.
func Read(r io.Reader, logger *zap.Logger) (*DB, error) {
	log := logging.OrNop(logger).Named("hashdb")

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	db := &DB{index: map[string]map[string]Record{
		SHA256: {}, MD5: {}, SHA1: {},
	}}

	var cols map[string]int
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if cols == nil {
			candidate := strings.TrimSpace(strings.TrimPrefix(text, "#"))
			if !strings.Contains(candidate, "_hash") {
				continue
			}
			fields, err := parseLine(candidate)
			if err != nil {
				return nil, fmt.Errorf("line %d: header: %w", line, err)
			}
			cols = columns(fields)
			if cols == nil {
				return nil, ErrNoHashColumns
			}
			continue
		}
		if strings.HasPrefix(text, "#") {
			continue
		}

		fields, err := parseLine(text)
		if err != nil {
			log.Warn("skipping malformed line", zap.Int("line", line), zap.Error(err))
			continue
		}
		db.add(Record{
			SHA256:    field(fields, cols, "sha256_hash"),
			MD5:       field(fields, cols, "md5_hash"),
			SHA1:      field(fields, cols, "sha1_hash"),
			Signature: field(fields, cols, "signature"),
			FileName:  field(fields, cols, "file_name"),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read hash dataset: %w", err)
	}
	if cols == nil {
		return nil, ErrNoHashColumns
	}
	log.Info("hash dataset loaded", zap.Int("records", db.size))
	return db, nil
}

func parseLine(s string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.TrimLeadingSpace = true
	return r.Read()
}

// columns maps lower-cased header names to their index, or returns nil
// when no hash column is present.
func columns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, a := range algorithms {
		if _, ok := cols[a+"_hash"]; ok {
			return cols
		}
	}
	return nil
}

func field(fields []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func (db *DB) add(rec Record) {
	added := false
	for alg, h := range map[string]string{SHA256: rec.SHA256, MD5: rec.MD5, SHA1: rec.SHA1} {
		if h == "" || h == "n/a" {
			continue
		}
		db.index[alg][strings.ToLower(h)] = rec
		added = true
	}
	if added {
		db.size++
	}
}

// Hashes returns the hex digests of content for every algorithm.
func Hashes(content []byte) map[string]string {
	s256 := sha256.Sum256(content)
	m5 := md5.Sum(content)
	s1 := sha1.Sum(content)
	return map[string]string{
		SHA256: hex.EncodeToString(s256[:]),
		MD5:    hex.EncodeToString(m5[:]),
		SHA1:   hex.EncodeToString(s1[:]),
	}
}

// Lookup hashes content and returns every dataset hit, sha256 first.
func (db *DB) Lookup(content []byte) []Match {
	if db == nil {
		return nil
	}
	sums := Hashes(content)
	var out []Match
	for _, alg := range algorithms {
		rec, ok := db.index[alg][sums[alg]]
		if !ok {
			continue
		}
		out = append(out, Match{
			Algorithm: alg,
			Hash:      sums[alg],
			Signature: rec.Signature,
			FileName:  rec.FileName,
		})
	}
	return out
}

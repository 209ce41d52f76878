package signature

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Meta keys written by the reference builder.
const (
	MetaEmbeddingModel = "embedding_model"
	MetaChunkTokens    = "chunk_tokens"
	MetaBuiltAt        = "built_at"
	MetaSourceRepos    = "source_repos"
)

var (
	// ErrNotFound means the signature database does not exist.
	ErrNotFound = errors.New("signature: reference database not found")
	// ErrCorrupt means the file is not a readable signature database.
	ErrCorrupt = errors.New("signature: reference database is corrupt")
	// ErrNoVectors means the stored table carries no embeddings.
	ErrNoVectors = errors.New("signature: reference has no stored vectors")
)

// Store persists one signature table plus metadata in SQLite.
type Store struct {
	db *sql.DB
}

// Neighbor is a stored row close to a query vector.
type Neighbor struct {
	Row      Row
	Distance float64
}

// Open creates or opens a signature database for writing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenExisting opens an existing signature database without creating any
// schema. It fails with ErrNotFound or ErrCorrupt.
func OpenExisting(path string) (*Store, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrCorrupt, path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	var n int
	err = db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('signature_rows', 'meta')",
	).Scan(&n)
	if err != nil || n != 2 {
		db.Close()
		if err == nil {
			err = errors.New("missing signature tables")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &Store{db: db}, nil
}

// Save replaces the stored table in a single transaction. When rows carry
// vectors they must all share one dimension.
func (s *Store) Save(t Table) error {
	dim, err := vectorDim(t)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM signature_rows"); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}
	if _, err := tx.Exec("DROP TABLE IF EXISTS " + vecTable); err != nil {
		return fmt.Errorf("drop vectors: %w", err)
	}
	if dim > 0 {
		if _, err := tx.Exec(vecDDL(dim)); err != nil {
			return fmt.Errorf("create vectors: %w", err)
		}
	}

	stmt, err := tx.Prepare("INSERT INTO signature_rows (row_id, cluster, source) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	var vecStmt *sql.Stmt
	if dim > 0 {
		vecStmt, err = tx.Prepare("INSERT INTO " + vecTable + " (row_id, embedding) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer vecStmt.Close()
	}

	for _, r := range t.Rows {
		res, err := stmt.Exec(r.ID, r.Cluster, r.Source)
		if err != nil {
			return fmt.Errorf("insert row %s: %w", r.ID, err)
		}
		if vecStmt == nil || len(r.Vector) == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		blob, err := sqlite_vec.SerializeFloat32(r.Vector)
		if err != nil {
			return fmt.Errorf("serialize vector for %s: %w", r.ID, err)
		}
		if _, err := vecStmt.Exec(id, blob); err != nil {
			return fmt.Errorf("insert vector for %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func vectorDim(t Table) (int, error) {
	dim := 0
	for _, r := range t.Rows {
		if len(r.Vector) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(r.Vector)
			continue
		}
		if len(r.Vector) != dim {
			return 0, fmt.Errorf("row %s has %d dimensions, want %d", r.ID, len(r.Vector), dim)
		}
	}
	return dim, nil
}

// Load returns the stored table in insertion order, without vectors.
func (s *Store) Load() (Table, error) {
	rows, err := s.db.Query("SELECT row_id, cluster, source FROM signature_rows ORDER BY id")
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	var t Table
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Cluster, &r.Source); err != nil {
			return Table{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		t.Rows = append(t.Rows, r)
	}
	return t, rows.Err()
}

// Nearest returns the k stored rows closest to vec.
func (s *Store) Nearest(vec []float32, k int) ([]Neighbor, error) {
	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE name = ?", vecTable).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoVectors
	}
	if err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}
	rows, err := s.db.Query(`
		SELECT r.row_id, r.cluster, r.source, v.distance
		FROM `+vecTable+` v
		JOIN signature_rows r ON r.id = v.row_id
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Row.ID, &n.Row.Cluster, &n.Row.Source, &n.Distance); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Meta returns a metadata value by key, or "" if not set.
func (s *Store) Meta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetMeta sets a metadata key-value pair.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// AllMeta returns every metadata pair.
func (s *Store) AllMeta() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM meta ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

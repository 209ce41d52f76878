package signature

import (
	"database/sql"
	"fmt"
)

const ddl = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS signature_rows (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    row_id  TEXT NOT NULL,
    cluster INTEGER NOT NULL,
    source  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// vecTable is created per save because its dimension follows the vectors.
const vecTable = "vec_rows"

func vecDDL(dim int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING vec0(
    row_id INTEGER PRIMARY KEY,
    embedding float[%d]
)`, vecTable, dim)
}

// Init creates the schema tables if they don't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}

package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/keyvaldb/keyval/lib/backend"
)

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// Schema owned by the keyval engine. The FTS virtual tables are created on
// demand by the index manager and are deliberately absent here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_entries (
		key          BLOB PRIMARY KEY,
		value        BLOB NOT NULL,
		versionstamp TEXT NOT NULL,
		expires_at   INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS kv_indexes (
		prefix     BLOB PRIMARY KEY,
		fields     TEXT NOT NULL,
		tokenize   TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kv_metrics (
		id          TEXT PRIMARY KEY,
		operation   TEXT NOT NULL,
		count       INTEGER NOT NULL DEFAULT 0,
		errors      INTEGER NOT NULL DEFAULT 0,
		latency_sum REAL NOT NULL DEFAULT 0,
		updated_at  INTEGER NOT NULL
	)`,
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

type sqliteBackend struct {
	db *sql.DB

	// fts5 records whether the linked SQLite library was compiled with the
	// FTS5 extension. go-sqlite3 only includes it behind the sqlite_fts5
	// build tag.
	fts5 bool
}

// New opens (and if necessary creates) a SQLite database at the given path
// and bootstraps the keyval schema. Use ":memory:" for an ephemeral database.
//
// Thread-safety: the returned backend is safe for concurrent use; writes are
// serialized through a single connection.
func New(path string) (backend.Backend, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// A single connection avoids SQLITE_BUSY between the pool's writers and
	// keeps ":memory:" databases from silently becoming one-per-connection.
	db.SetMaxOpenConns(1)

	b := &sqliteBackend{db: db}
	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: bootstrap schema: %w", err)
		}
	}

	var n int
	if err := db.QueryRow(
		`SELECT count(*) FROM pragma_module_list WHERE name = 'fts5'`).Scan(&n); err == nil {
		b.fts5 = n > 0
	}
	return b, nil
}

// SupportsFTS5 reports whether the FTS5 extension is compiled into the
// linked SQLite library.
func (b *sqliteBackend) SupportsFTS5() bool {
	return b.fts5
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (b *sqliteBackend) Execute(query string, args ...any) ([]backend.Row, error) {
	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: execute: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlite: execute: %w", err)
	}

	var out []backend.Row
	for rows.Next() {
		row := make(backend.Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: execute: %w", err)
	}
	return out, nil
}

func (b *sqliteBackend) ExecuteOne(query string, args ...any) (backend.Row, bool, error) {
	rows, err := b.Execute(query, args...)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (b *sqliteBackend) Batch(stmts []backend.Statement) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin batch: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt.Query, stmt.Args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: batch statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit batch: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

// Package sqlite implements the backend.Backend contract on SQLite via
// database/sql and mattn/go-sqlite3.
//
// The connection is opened in WAL mode with a busy timeout and a
// single-writer connection pool, which keeps SQLite's write serialization
// out of the engine's way while still allowing the engine to treat Batch as
// an atomic unit (one transaction per call).
//
// Full-text search requires a go-sqlite3 build with the sqlite_fts5 build tag.
package sqlite

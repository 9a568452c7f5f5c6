package testing

import (
	"testing"

	"github.com/keyvaldb/keyval/lib/backend"
)

// Factory is a function that creates a fresh, empty backend instance.
type Factory func() backend.Backend

// RunBackendTests runs the conformance suite for a backend.Backend
// implementation. Every implementation used with the keyval engine should
// pass this suite.
func RunBackendTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("ExecuteRoundTrip", func(t *testing.T) {
			testExecuteRoundTrip(t, factory())
		})
		t.Run("ExecuteOne", func(t *testing.T) {
			testExecuteOne(t, factory())
		})
		t.Run("BatchAppliesAll", func(t *testing.T) {
			testBatchAppliesAll(t, factory())
		})
		t.Run("BatchAtomicity", func(t *testing.T) {
			testBatchAtomicity(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testExecuteRoundTrip(t *testing.T, b backend.Backend) {
	defer b.Close()

	if _, err := b.Execute(`CREATE TABLE scratch (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := b.Execute(`INSERT INTO scratch (id, name) VALUES (?, ?)`, 1, "one"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := b.Execute(`SELECT id, name FROM scratch ORDER BY id`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	id, err := rows[0].Int64(0)
	if err != nil || id != 1 {
		t.Errorf("expected id 1, got %v (%v)", id, err)
	}
	name, err := rows[0].String(1)
	if err != nil || name != "one" {
		t.Errorf("expected name %q, got %q (%v)", "one", name, err)
	}
}

func testExecuteOne(t *testing.T, b backend.Backend) {
	defer b.Close()

	if _, err := b.Execute(`CREATE TABLE scratch (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	_, found, err := b.ExecuteOne(`SELECT id FROM scratch`)
	if err != nil {
		t.Fatalf("execute one: %v", err)
	}
	if found {
		t.Errorf("expected no row on empty table")
	}

	if _, err := b.Execute(`INSERT INTO scratch (id) VALUES (7)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	row, found, err := b.ExecuteOne(`SELECT id FROM scratch`)
	if err != nil {
		t.Fatalf("execute one: %v", err)
	}
	if !found {
		t.Fatalf("expected a row")
	}
	if id, _ := row.Int64(0); id != 7 {
		t.Errorf("expected id 7, got %d", id)
	}
}

func testBatchAppliesAll(t *testing.T, b backend.Backend) {
	defer b.Close()

	if _, err := b.Execute(`CREATE TABLE scratch (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := b.Batch([]backend.Statement{
		{Query: `INSERT INTO scratch (id) VALUES (?)`, Args: []any{1}},
		{Query: `INSERT INTO scratch (id) VALUES (?)`, Args: []any{2}},
		{Query: `INSERT INTO scratch (id) VALUES (?)`, Args: []any{3}},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	row, _, err := b.ExecuteOne(`SELECT COUNT(*) FROM scratch`)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n, _ := row.Int64(0); n != 3 {
		t.Errorf("expected 3 rows after batch, got %d", n)
	}
}

func testBatchAtomicity(t *testing.T, b backend.Backend) {
	defer b.Close()

	if _, err := b.Execute(`CREATE TABLE scratch (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	// The second statement violates the primary key, the whole batch must
	// roll back.
	err := b.Batch([]backend.Statement{
		{Query: `INSERT INTO scratch (id) VALUES (?)`, Args: []any{1}},
		{Query: `INSERT INTO scratch (id) VALUES (?)`, Args: []any{1}},
	})
	if err == nil {
		t.Fatalf("expected batch to fail on duplicate key")
	}

	row, _, err := b.ExecuteOne(`SELECT COUNT(*) FROM scratch`)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n, _ := row.Int64(0); n != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", n)
	}
}

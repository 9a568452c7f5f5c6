package fts

import (
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keyvaldb/keyval/lib/backend"
	"github.com/keyvaldb/keyval/lib/backend/sqlite"
	backendtesting "github.com/keyvaldb/keyval/lib/backend/testing"
	"github.com/keyvaldb/keyval/lib/codec"
	"github.com/keyvaldb/keyval/lib/kv"
)

// newScriptedManager creates a manager over a scripted spy. The store runs on
// a real SQLite database so the hydration path exercises actual SQL.
func newScriptedManager(t *testing.T) (*Manager, *backendtesting.Spy, *kv.Store) {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := kv.NewStore(db)

	spy := backendtesting.NewSpy(nil)
	return NewManager(spy, store), spy, store
}

// TestCreateIndex tests index registration and its persisted form
func TestCreateIndex(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	idx, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title", "meta.author"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	if !strings.HasPrefix(idx.TableName, "kv_fts_") {
		t.Errorf("table name = %s, want kv_fts_ prefix", idx.TableName)
	}
	if idx.Tokenize != DefaultTokenize {
		t.Errorf("tokenize = %s, want default %s", idx.Tokenize, DefaultTokenize)
	}

	calls := spy.CallsMatching("CREATE VIRTUAL TABLE")
	if len(calls) != 1 {
		t.Fatalf("expected one DDL batch, got %d", len(calls))
	}
	ddl := calls[0].Stmts[0].Query
	if !strings.Contains(ddl, "fts5") || !strings.Contains(ddl, `"meta.author"`) {
		t.Errorf("unexpected DDL: %s", ddl)
	}
	if !strings.Contains(ddl, "doc_key UNINDEXED") {
		t.Errorf("DDL missing unindexed doc_key column: %s", ddl)
	}
	meta := calls[0].Stmts[1]
	if !strings.Contains(meta.Query, "kv_indexes") {
		t.Errorf("second batch statement should upsert metadata: %s", meta.Query)
	}

	// identical prefixes always derive the identical table name
	again, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}})
	if err != nil {
		t.Fatalf("recreate index failed: %v", err)
	}
	if again.TableName != idx.TableName {
		t.Errorf("table name changed across recreation: %s vs %s", again.TableName, idx.TableName)
	}
}

// TestCreateIndexValidation tests rejection of bad index options
func TestCreateIndexValidation(t *testing.T) {
	m, _, _ := newScriptedManager(t)

	if _, err := m.CreateIndex(codec.Key{"a"}, IndexOptions{}); !errors.Is(err, ErrNoFields) {
		t.Errorf("expected ErrNoFields, got %v", err)
	}

	for _, field := range []string{"", "1bad", "a..b", `x"; DROP TABLE y`, "a-b"} {
		_, err := m.CreateIndex(codec.Key{"a"}, IndexOptions{Fields: []string{field}})
		if !errors.Is(err, ErrBadField) {
			t.Errorf("field %q: expected ErrBadField, got %v", field, err)
		}
	}
}

// TestIndexDocumentLongestPrefix tests that the most specific index wins
func TestIndexDocumentLongestPrefix(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	broad, err := m.CreateIndex(codec.Key{"users"}, IndexOptions{Fields: []string{"name"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	narrow, err := m.CreateIndex(codec.Key{"users", "admins"}, IndexOptions{Fields: []string{"name"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	spy.Reset()

	if err := m.IndexDocument(codec.Key{"users", "admins", "root"}, map[string]any{"name": "root"}); err != nil {
		t.Fatalf("index document failed: %v", err)
	}

	if calls := spy.CallsMatching(narrow.TableName); len(calls) != 1 {
		t.Errorf("expected one write to the narrow index, got %d", len(calls))
	}
	if calls := spy.CallsMatching("INSERT INTO " + broad.TableName); len(calls) != 0 {
		t.Error("document must not be written to the broader index")
	}

	// a key outside every prefix is a no-op
	spy.Reset()
	if err := m.IndexDocument(codec.Key{"orders", "1"}, "x"); err != nil {
		t.Fatalf("index document failed: %v", err)
	}
	if calls := spy.CallsMatching("kv_fts_"); len(calls) != 0 {
		t.Errorf("unmatched document caused %d index writes", len(calls))
	}
}

// TestIndexDocumentUpsert tests the delete-then-insert replace in one batch
func TestIndexDocumentUpsert(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	idx, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	spy.Reset()

	docKey := codec.Key{"articles", int64(1)}
	if err := m.IndexDocument(docKey, map[string]any{"title": "hello"}); err != nil {
		t.Fatalf("index document failed: %v", err)
	}

	calls := spy.Calls()
	if len(calls) != 1 || calls[0].Kind != "batch" || len(calls[0].Stmts) != 2 {
		t.Fatalf("expected one two-statement batch, got %+v", calls)
	}
	if !strings.HasPrefix(calls[0].Stmts[0].Query, "DELETE FROM "+idx.TableName) {
		t.Errorf("first statement should delete the old row: %s", calls[0].Stmts[0].Query)
	}
	if !strings.HasPrefix(calls[0].Stmts[1].Query, "INSERT INTO "+idx.TableName) {
		t.Errorf("second statement should insert the new row: %s", calls[0].Stmts[1].Query)
	}

	wantDocID := hex.EncodeToString(codec.MustEncodeKey(docKey))
	if calls[0].Stmts[1].Args[0] != wantDocID {
		t.Errorf("doc_key = %v, want %s", calls[0].Stmts[1].Args[0], wantDocID)
	}
	if calls[0].Stmts[1].Args[1] != "hello" {
		t.Errorf("extracted field = %v, want hello", calls[0].Stmts[1].Args[1])
	}
}

// TestRemoveDocument tests index row removal on delete events
func TestRemoveDocument(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	idx, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	spy.Reset()

	if err := m.RemoveDocument(codec.Key{"articles", int64(1)}); err != nil {
		t.Fatalf("remove document failed: %v", err)
	}
	if calls := spy.CallsMatching("DELETE FROM " + idx.TableName); len(calls) != 1 {
		t.Errorf("expected one index delete, got %d", len(calls))
	}
}

// TestRemoveIndex tests dropping table, metadata and cache entry together
func TestRemoveIndex(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	idx, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	spy.Reset()

	if err := m.RemoveIndex(codec.Key{"articles"}); err != nil {
		t.Fatalf("remove index failed: %v", err)
	}

	calls := spy.Calls()
	if len(calls) != 1 || calls[0].Kind != "batch" {
		t.Fatalf("expected one batch, got %+v", calls)
	}
	if !strings.Contains(calls[0].Stmts[0].Query, "DROP TABLE IF EXISTS "+idx.TableName) {
		t.Errorf("first statement should drop the FTS table: %s", calls[0].Stmts[0].Query)
	}
	if !strings.Contains(calls[0].Stmts[1].Query, "DELETE FROM kv_indexes") {
		t.Errorf("second statement should delete metadata: %s", calls[0].Stmts[1].Query)
	}

	// the index is gone for search
	if _, err := m.Search(codec.Key{"articles"}, "x", SearchOptions{}); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex after removal, got %v", err)
	}

	// removing again is a no-op, not an error
	if err := m.RemoveIndex(codec.Key{"articles"}); err != nil {
		t.Errorf("idempotent removal failed: %v", err)
	}
}

// TestSearchNoIndex tests the exact-prefix requirement of search
func TestSearchNoIndex(t *testing.T) {
	m, _, _ := newScriptedManager(t)

	if _, err := m.CreateIndex(codec.Key{"users"}, IndexOptions{Fields: []string{"name"}}); err != nil {
		t.Fatalf("create index failed: %v", err)
	}

	// search requires the exact prefix, not a sub-prefix
	if _, err := m.Search(codec.Key{"users", "admins"}, "x", SearchOptions{}); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex for sub-prefix, got %v", err)
	}
}

// TestSearchNoHits tests that an empty full-text result skips hydration
func TestSearchNoHits(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	if _, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}}); err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	spy.Reset()

	entries, err := m.Search(codec.Key{"articles"}, "nothing", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("search should yield an empty list, got %v", entries)
	}

	// only the MATCH query ran, no primary-store hydration
	if calls := spy.CallsMatching("kv_entries"); len(calls) != 0 {
		t.Errorf("empty search touched the primary table %d times", len(calls))
	}
}

// TestSearchHydratesHits tests the full search path including hydration
func TestSearchHydratesHits(t *testing.T) {
	m, spy, store := newScriptedManager(t)

	// a live entry in the primary store
	docKey := codec.Key{"articles", int64(1)}
	result, err := store.Atomic().Set(docKey, map[string]any{"title": "hello world"}).Commit()
	if err != nil || !result.OK {
		t.Fatalf("seed commit failed: %v", err)
	}

	if _, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}}); err != nil {
		t.Fatalf("create index failed: %v", err)
	}

	// warm the index cache so the scripted result below feeds the MATCH query
	if _, err := m.Search(codec.Key{"articles"}, "warmup", SearchOptions{}); err != nil {
		t.Fatalf("warmup search failed: %v", err)
	}
	spy.Reset()

	// script the full-text hit; hydration then runs against the real store
	spy.QueueResult([]backend.Row{
		{hex.EncodeToString(codec.MustEncodeKey(docKey))},
		{hex.EncodeToString(codec.MustEncodeKey(codec.Key{"articles", int64(99)}))}, // stale hit, no entry
	})

	entries, err := m.Search(codec.Key{"articles"}, "hello", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("search returned %d entries, want 1", len(entries))
	}
	if !entries[0].Key.Equal(docKey) {
		t.Errorf("hydrated key = %v, want %v", entries[0].Key, docKey)
	}
	if entries[0].Versionstamp != result.Versionstamp {
		t.Errorf("hydrated versionstamp = %s, want %s", entries[0].Versionstamp, result.Versionstamp)
	}

	// the MATCH query neutralizes the caller's input as a phrase
	matches := spy.CallsMatching("MATCH")
	if len(matches) != 1 {
		t.Fatalf("expected one MATCH query, got %d", len(matches))
	}
	if q := matches[0].Args[0].(string); !strings.Contains(q, `"hello"`) {
		t.Errorf("match query = %q, want phrase form", q)
	}
}

// TestListIndexes tests decoding of persisted index metadata
func TestListIndexes(t *testing.T) {
	m, spy, _ := newScriptedManager(t)

	encodedPrefix := codec.MustEncodeKey(codec.Key{"articles"})
	spy.QueueResult([]backend.Row{
		{encodedPrefix, `["title","body"]`, "porter"},
	})

	indexes, err := m.ListIndexes()
	if err != nil {
		t.Fatalf("list indexes failed: %v", err)
	}
	if len(indexes) != 1 {
		t.Fatalf("list returned %d indexes, want 1", len(indexes))
	}
	idx := indexes[0]
	if !idx.Prefix.Equal(codec.Key{"articles"}) {
		t.Errorf("prefix = %v", idx.Prefix)
	}
	if len(idx.Fields) != 2 || idx.Fields[0] != "title" {
		t.Errorf("fields = %v", idx.Fields)
	}
	if idx.Tokenize != "porter" {
		t.Errorf("tokenize = %s", idx.Tokenize)
	}
	if idx.TableName == "" {
		t.Error("table name should be reconstructed from the prefix")
	}
}

// TestBind tests that store commits drive index maintenance
func TestBind(t *testing.T) {
	m, spy, store := newScriptedManager(t)

	idx, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}})
	if err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	unsubscribe := m.Bind(store)
	spy.Reset()

	docKey := codec.Key{"articles", int64(1)}
	if result, err := store.Atomic().Set(docKey, map[string]any{"title": "hi"}).Commit(); err != nil || !result.OK {
		t.Fatalf("commit failed: %v", err)
	}
	if calls := spy.CallsMatching("INSERT INTO " + idx.TableName); len(calls) != 1 {
		t.Errorf("set commit should upsert the index row, got %d writes", len(calls))
	}

	spy.Reset()
	if result, err := store.Atomic().Delete(docKey).Commit(); err != nil || !result.OK {
		t.Fatalf("commit failed: %v", err)
	}
	if calls := spy.CallsMatching("DELETE FROM " + idx.TableName); len(calls) != 1 {
		t.Errorf("delete commit should remove the index row, got %d deletes", len(calls))
	}

	// after unbinding, commits no longer touch the index
	unsubscribe()
	spy.Reset()
	if result, err := store.Atomic().Set(docKey, "x").Commit(); err != nil || !result.OK {
		t.Fatalf("commit failed: %v", err)
	}
	if calls := spy.CallsMatching(idx.TableName); len(calls) != 0 {
		t.Errorf("unbound manager still received %d index writes", len(calls))
	}
}

// noFTS5Backend wraps a backend and reports a SQLite build without FTS5.
type noFTS5Backend struct {
	backend.Backend
}

func (noFTS5Backend) SupportsFTS5() bool { return false }

// TestCreateIndexWithoutFTS5 tests that a backend without FTS5 is rejected
// before any DDL reaches it
func TestCreateIndexWithoutFTS5(t *testing.T) {
	spy := backendtesting.NewSpy(nil)
	m := NewManager(noFTS5Backend{spy}, nil)

	if m.FTS5Available() {
		t.Fatal("manager should report FTS5 as unavailable")
	}
	_, err := m.CreateIndex(codec.Key{"articles"}, IndexOptions{Fields: []string{"title"}})
	if !errors.Is(err, ErrFTS5Unavailable) {
		t.Fatalf("err = %v, want ErrFTS5Unavailable", err)
	}
	if calls := spy.CallsMatching("CREATE"); len(calls) != 0 {
		t.Errorf("no DDL should reach the backend, got %d calls", len(calls))
	}
}

// TestFTS5AssumedAvailable tests that backends without capability reporting
// are assumed capable
func TestFTS5AssumedAvailable(t *testing.T) {
	m, _, _ := newScriptedManager(t)
	if !m.FTS5Available() {
		t.Error("spy backend without capability reporting should be assumed capable")
	}
}

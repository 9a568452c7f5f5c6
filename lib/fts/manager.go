package fts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/keyvaldb/keyval/lib/backend"
	"github.com/keyvaldb/keyval/lib/codec"
	"github.com/keyvaldb/keyval/lib/kv"
	"github.com/keyvaldb/keyval/lib/metrics"
)

// --------------------------------------------------------------------------
// Types and Errors
// --------------------------------------------------------------------------

// DefaultTokenize is the FTS5 tokenizer used when none is specified.
const DefaultTokenize = "unicode61"

// DefaultSearchLimit bounds a search when the caller does not.
const DefaultSearchLimit = 100

// Index describes one registered full-text index.
type Index struct {
	Prefix    codec.Key `json:"prefix"`
	Fields    []string  `json:"fields"`
	Tokenize  string    `json:"tokenize"`
	TableName string    `json:"table_name"`

	encodedPrefix []byte
}

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	// Fields are the dotted JSON paths extracted from each document. At
	// least one is required.
	Fields []string
	// Tokenize selects the FTS5 tokenizer, DefaultTokenize when empty.
	Tokenize string
}

// SearchOptions configures Search.
type SearchOptions struct {
	// Limit bounds the number of full-text hits, DefaultSearchLimit when
	// zero or negative.
	Limit int
	// Where is an optional SQL predicate over kv_entries applied while
	// hydrating hits from the primary store, with its bind arguments. The
	// fragment comes from a trusted query translator, never from user input.
	Where     string
	WhereArgs []any
}

var (
	// ErrNoIndex is returned by Search when no index is registered for the
	// exact prefix.
	ErrNoIndex = errors.New("fts: no index registered for prefix")
	// ErrNoFields is returned by CreateIndex when no fields are given.
	ErrNoFields = errors.New("fts: index requires at least one field")
	// ErrBadField is returned when a field path cannot be used as an FTS
	// column name.
	ErrBadField = errors.New("fts: invalid field path")
	// ErrFTS5Unavailable is returned by CreateIndex when the storage backend
	// reports that its SQLite library lacks the FTS5 extension. Rebuild the
	// binary with -tags sqlite_fts5.
	ErrFTS5Unavailable = errors.New("fts: backend lacks FTS5 support, rebuild with -tags sqlite_fts5")
)

// Field paths double as column names in FTS table DDL, where they cannot be
// bound as parameters. Restricting their shape keeps identifier quoting safe.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager owns the full-text index lifecycle and the search path.
//
// Thread-safety: all methods are safe for concurrent use. The index cache is
// loaded lazily from storage on first use and updated in place by
// CreateIndex/RemoveIndex.
type Manager struct {
	backend backend.Backend
	store   *kv.Store
	logger  zerolog.Logger

	cache  *xsync.MapOf[string, *Index] // keyed by hex(encoded prefix)
	loadMu sync.Mutex
	loaded bool
	fts5OK bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for swallowed index-maintenance failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an index manager. The store is used to hydrate search
// hits from the primary table.
func NewManager(b backend.Backend, store *kv.Store, opts ...Option) *Manager {
	m := &Manager{
		backend: b,
		store:   store,
		logger:  zerolog.Nop(),
		cache:   xsync.NewMapOf[string, *Index](),
		fts5OK:  true,
	}
	// Backends that know their FTS5 capability report it up front. Anything
	// else is assumed capable and fails at DDL time instead.
	if c, ok := b.(interface{ SupportsFTS5() bool }); ok {
		m.fts5OK = c.SupportsFTS5()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FTS5Available reports whether the backend can create FTS5 tables. When it
// returns false, CreateIndex fails with ErrFTS5Unavailable.
func (m *Manager) FTS5Available() bool {
	return m.fts5OK
}

// Init idempotently creates the index-metadata table. Backends that
// bootstrap the schema themselves make this a no-op.
func (m *Manager) Init() error {
	_, err := m.backend.Execute(
		`CREATE TABLE IF NOT EXISTS kv_indexes (
			prefix     BLOB PRIMARY KEY,
			fields     TEXT NOT NULL,
			tokenize   TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("fts: init: %w", err)
	}
	return nil
}

// Bind subscribes the manager to a store's change notifications so commits
// keep the indexes current. Maintenance failures are logged and swallowed;
// the index is eventually consistent, never a reason to fail a write.
func (m *Manager) Bind(store *kv.Store) (unsubscribe func()) {
	return store.Subscribe(func(event kv.Event) {
		var err error
		switch event.Type {
		case kv.EventDelete:
			err = m.RemoveDocument(event.Key)
		default:
			err = m.IndexDocument(event.Key, event.Value)
		}
		if err != nil {
			m.logger.Warn().Err(err).
				Str("key", event.Key.String()).
				Msg("fts: index maintenance failed, index may lag the store")
		}
	})
}

// --------------------------------------------------------------------------
// Index Lifecycle
// --------------------------------------------------------------------------

// CreateIndex registers a full-text index over all keys starting with
// prefix, creating its FTS table if absent.
func (m *Manager) CreateIndex(prefix codec.Key, opts IndexOptions) (*Index, error) {
	if len(opts.Fields) == 0 {
		return nil, ErrNoFields
	}
	for _, field := range opts.Fields {
		if !fieldPattern.MatchString(field) {
			return nil, fmt.Errorf("%w: %q", ErrBadField, field)
		}
	}
	if !m.fts5OK {
		return nil, ErrFTS5Unavailable
	}
	tokenize := opts.Tokenize
	if tokenize == "" {
		tokenize = DefaultTokenize
	}

	encodedPrefix, err := codec.EncodeKey(prefix)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		Prefix:        prefix,
		Fields:        append([]string(nil), opts.Fields...),
		Tokenize:      tokenize,
		TableName:     tableName(encodedPrefix),
		encodedPrefix: encodedPrefix,
	}

	cols := make([]string, 0, len(idx.Fields)+1)
	cols = append(cols, "doc_key UNINDEXED")
	for _, field := range idx.Fields {
		cols = append(cols, quoteIdent(field))
	}
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, tokenize = '%s')`,
		idx.TableName, strings.Join(cols, ", "), tokenize)

	fieldsJSON, err := json.Marshal(idx.Fields)
	if err != nil {
		return nil, err
	}
	err = m.backend.Batch([]backend.Statement{
		{Query: ddl},
		{Query: `INSERT INTO kv_indexes (prefix, fields, tokenize, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(prefix) DO UPDATE SET
			  fields   = excluded.fields,
			  tokenize = excluded.tokenize`,
			Args: []any{encodedPrefix, string(fieldsJSON), tokenize, time.Now().Unix()}},
	})
	if err != nil {
		return nil, fmt.Errorf("fts: create index: %w", err)
	}

	m.cache.Store(hex.EncodeToString(encodedPrefix), idx)
	return idx, nil
}

// RemoveIndex drops the index registered for prefix, its FTS table and its
// metadata. Removing an unregistered prefix is a no-op.
func (m *Manager) RemoveIndex(prefix codec.Key) error {
	encodedPrefix, err := codec.EncodeKey(prefix)
	if err != nil {
		return err
	}
	err = m.backend.Batch([]backend.Statement{
		{Query: fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(encodedPrefix))},
		{Query: `DELETE FROM kv_indexes WHERE prefix = ?`, Args: []any{encodedPrefix}},
	})
	if err != nil {
		return fmt.Errorf("fts: remove index: %w", err)
	}
	m.cache.Delete(hex.EncodeToString(encodedPrefix))
	return nil
}

// ListIndexes returns all persisted indexes, table names reconstructed
// deterministically from their prefixes.
func (m *Manager) ListIndexes() ([]Index, error) {
	rows, err := m.backend.Execute(
		`SELECT prefix, fields, tokenize FROM kv_indexes ORDER BY prefix`)
	if err != nil {
		return nil, fmt.Errorf("fts: list indexes: %w", err)
	}
	indexes := make([]Index, 0, len(rows))
	for _, row := range rows {
		idx, err := decodeIndexRow(row)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, *idx)
	}
	return indexes, nil
}

// --------------------------------------------------------------------------
// Document Maintenance
// --------------------------------------------------------------------------

// IndexDocument upserts the document's extracted fields into the index whose
// prefix matches docKey. Without a matching index this is a no-op.
func (m *Manager) IndexDocument(docKey codec.Key, value any) error {
	idx, err := m.matchIndex(docKey)
	if err != nil || idx == nil {
		return err
	}
	encodedKey, err := codec.EncodeKey(docKey)
	if err != nil {
		return err
	}
	docID := hex.EncodeToString(encodedKey)

	cols := []string{"doc_key"}
	placeholders := []string{"?"}
	args := []any{docID}
	for _, field := range idx.Fields {
		cols = append(cols, quoteIdent(field))
		placeholders = append(placeholders, "?")
		args = append(args, extractField(value, field))
	}

	// FTS5 has no native upsert, so replace is delete-then-insert in one
	// atomic batch.
	return m.backend.Batch([]backend.Statement{
		{Query: fmt.Sprintf(`DELETE FROM %s WHERE doc_key = ?`, idx.TableName), Args: []any{docID}},
		{Query: fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			idx.TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), Args: args},
	})
}

// RemoveDocument deletes the document's row from the index whose prefix
// matches docKey. Without a matching index this is a no-op.
func (m *Manager) RemoveDocument(docKey codec.Key) error {
	idx, err := m.matchIndex(docKey)
	if err != nil || idx == nil {
		return err
	}
	encodedKey, err := codec.EncodeKey(docKey)
	if err != nil {
		return err
	}
	_, err = m.backend.Execute(
		fmt.Sprintf(`DELETE FROM %s WHERE doc_key = ?`, idx.TableName),
		hex.EncodeToString(encodedKey))
	return err
}

// --------------------------------------------------------------------------
// Search
// --------------------------------------------------------------------------

// Search runs a full-text query against the index registered for exactly
// prefix and hydrates the hits from the primary store, excluding expired
// entries. It returns an empty list without touching the primary store when
// the full-text query has no hits, and ErrNoIndex when prefix has no index.
func (m *Manager) Search(prefix codec.Key, query string, opts SearchOptions) (entries []kv.Entry, err error) {
	start := time.Now()
	defer func() {
		m.store.Metrics().RecordOperation(metrics.OpSearch, time.Since(start), err != nil)
	}()

	encodedPrefix, err := codec.EncodeKey(prefix)
	if err != nil {
		return nil, err
	}
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	idx, ok := m.cache.Load(hex.EncodeToString(encodedPrefix))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, prefix)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := m.backend.Execute(
		fmt.Sprintf(`SELECT doc_key FROM %s WHERE %s MATCH ? LIMIT ?`, idx.TableName, idx.TableName),
		matchQuery(idx.Fields, query), limit)
	if err != nil {
		return nil, fmt.Errorf("fts: search: %w", err)
	}
	if len(rows) == 0 {
		return []kv.Entry{}, nil
	}

	encodedKeys := make([][]byte, 0, len(rows))
	for _, row := range rows {
		docID, err := row.String(0)
		if err != nil {
			return nil, err
		}
		encodedKey, err := hex.DecodeString(docID)
		if err != nil {
			return nil, fmt.Errorf("fts: corrupt doc_key %q: %w", docID, err)
		}
		encodedKeys = append(encodedKeys, encodedKey)
	}
	return m.store.EntriesByEncodedKeys(encodedKeys, opts.Where, opts.WhereArgs)
}

// matchQuery OR-combines the caller's query as a phrase across every indexed
// field. FTS5 phrase syntax neutralizes the caller's query operators.
func matchQuery(fields []string, query string) string {
	escaped := strings.ReplaceAll(query, `"`, `""`)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = fmt.Sprintf(`%s : "%s"`, quoteIdent(field), escaped)
	}
	return strings.Join(parts, " OR ")
}

// --------------------------------------------------------------------------
// Cache
// --------------------------------------------------------------------------

// matchIndex returns the registered index with the longest prefix matching
// docKey, or nil when none matches.
func (m *Manager) matchIndex(docKey codec.Key) (*Index, error) {
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	var best *Index
	m.cache.Range(func(_ string, idx *Index) bool {
		if docKey.HasPrefix(idx.Prefix) {
			if best == nil || len(idx.Prefix) > len(best.Prefix) {
				best = idx
			}
		}
		return true
	})
	return best, nil
}

// ensureLoaded populates the cache from storage on first use.
func (m *Manager) ensureLoaded() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.loaded {
		return nil
	}
	rows, err := m.backend.Execute(`SELECT prefix, fields, tokenize FROM kv_indexes`)
	if err != nil {
		return fmt.Errorf("fts: load index cache: %w", err)
	}
	for _, row := range rows {
		idx, err := decodeIndexRow(row)
		if err != nil {
			return err
		}
		m.cache.LoadOrStore(hex.EncodeToString(idx.encodedPrefix), idx)
	}
	m.loaded = true
	return nil
}

func decodeIndexRow(row backend.Row) (*Index, error) {
	encodedPrefix, err := row.Bytes(0)
	if err != nil {
		return nil, err
	}
	prefix, err := codec.DecodeKey(encodedPrefix)
	if err != nil {
		return nil, fmt.Errorf("fts: corrupt index prefix: %w", err)
	}
	fieldsJSON, err := row.String(1)
	if err != nil {
		return nil, err
	}
	var fields []string
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("fts: corrupt index fields: %w", err)
	}
	tokenize, err := row.String(2)
	if err != nil {
		return nil, err
	}
	return &Index{
		Prefix:        prefix,
		Fields:        fields,
		Tokenize:      tokenize,
		TableName:     tableName(encodedPrefix),
		encodedPrefix: encodedPrefix,
	}, nil
}

// tableName derives the stable FTS table name for an encoded prefix.
func tableName(encodedPrefix []byte) string {
	sum := sha256.Sum256(encodedPrefix)
	return "kv_fts_" + hex.EncodeToString(sum[:8])
}

// quoteIdent quotes a field path for use as a column name.
func quoteIdent(field string) string {
	return `"` + field + `"`
}

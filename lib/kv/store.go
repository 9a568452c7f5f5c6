package kv

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keyvaldb/keyval/lib/backend"
	"github.com/keyvaldb/keyval/lib/codec"
	"github.com/keyvaldb/keyval/lib/metrics"
)

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is the engine's entry point. It owns no connections and no
// goroutines; all I/O goes through the backend, all timing through the
// metrics collector.
type Store struct {
	backend  backend.Backend
	codec    codec.ValueCodec
	compiler mutationCompiler
	metrics  *metrics.Collector
	logger   zerolog.Logger
	minter   stampMinter
	notifier *notifier
}

// Option configures a Store.
type Option func(*Store)

// WithValueCodec overrides the default canonical JSON value codec. The
// SQLite mutation compiler assumes JSON-compatible stored bytes; replacing
// the codec only makes sense together with a matching compiler.
func WithValueCodec(c codec.ValueCodec) Option {
	return func(s *Store) { s.codec = c }
}

// WithMetrics sets the collector that receives operation samples.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger used for isolated subscriber failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a store on top of the given backend.
func NewStore(b backend.Backend, opts ...Option) *Store {
	s := &Store{
		backend:  b,
		codec:    codec.NewJSONValueCodec(),
		logger:   zerolog.Nop(),
		notifier: newNotifier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.compiler = sqliteCompiler{codec: s.codec}
	return s
}

// Metrics returns the store's metrics collector.
func (s *Store) Metrics() *metrics.Collector {
	return s.metrics
}

// Subscribe registers a change-notification subscriber and returns a
// function that removes it again.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	return s.notifier.subscribe(fn)
}

// emit delivers one event to every subscriber, isolating panics so a failing
// subscriber never surfaces as a failed commit.
func (s *Store) emit(event Event) {
	for _, fn := range s.notifier.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn().
						Str("event", event.Type.String()).
						Str("key", event.Key.String()).
						Interface("panic", r).
						Msg("kv: change subscriber panicked, write is unaffected")
				}
			}()
			fn(event)
		}()
	}
}

// --------------------------------------------------------------------------
// Read Path
// --------------------------------------------------------------------------

// Get returns the entry for key, or nil if the key is absent or expired.
func (s *Store) Get(key codec.Key) (entry *Entry, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(metrics.OpGet, time.Since(start), err != nil)
	}()

	encodedKey, err := codec.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	row, found, err := s.backend.ExecuteOne(
		`SELECT key, value, versionstamp FROM kv_entries
		 WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		encodedKey, start.Unix())
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	if !found {
		return nil, nil
	}
	return s.decodeEntry(row)
}

// GetMany returns the entries for the given keys in request order. Absent or
// expired keys yield a nil slot.
func (s *Store) GetMany(keys []codec.Key) ([]*Entry, error) {
	out := make([]*Entry, len(keys))
	for i, key := range keys {
		entry, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		out[i] = entry
	}
	return out, nil
}

// List returns up to limit entries whose keys start with prefix, in key
// order. A limit <= 0 means no limit.
func (s *Store) List(prefix codec.Key, limit int) (entries []Entry, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(metrics.OpList, time.Since(start), err != nil)
	}()

	lower, err := codec.EncodeKey(prefix)
	if err != nil {
		return nil, err
	}
	// Every key extending the prefix shares its encoded bytes and continues
	// with a type tag < 0xff, so appending 0xff forms an exclusive upper
	// bound for the whole subtree.
	upper := append(append([]byte(nil), lower...), 0xff)

	query := `SELECT key, value, versionstamp FROM kv_entries
		 WHERE key >= ? AND key < ? AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY key`
	args := []any{lower, upper, start.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.backend.Execute(query, args...)
	if err != nil {
		return nil, fmt.Errorf("kv: list: %w", err)
	}
	entries = make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := s.decodeEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// EntriesByEncodedKeys fetches live entries for already-encoded keys in one
// query, excluding expired entries. The optional where fragment (with its
// bind arguments) narrows the result further; it comes from a trusted query
// translator, never from user input. Used by the search path to hydrate
// full-text hits.
func (s *Store) EntriesByEncodedKeys(encodedKeys [][]byte, where string, whereArgs []any) ([]Entry, error) {
	if len(encodedKeys) == 0 {
		return []Entry{}, nil
	}

	placeholders := strings.Repeat("?, ", len(encodedKeys)-1) + "?"
	query := `SELECT key, value, versionstamp FROM kv_entries
		 WHERE key IN (` + placeholders + `) AND (expires_at IS NULL OR expires_at > ?)`
	args := make([]any, 0, len(encodedKeys)+1+len(whereArgs))
	for _, encodedKey := range encodedKeys {
		args = append(args, encodedKey)
	}
	args = append(args, time.Now().Unix())
	if where != "" {
		query += ` AND (` + where + `)`
		args = append(args, whereArgs...)
	}

	rows, err := s.backend.Execute(query, args...)
	if err != nil {
		return nil, fmt.Errorf("kv: fetch by encoded keys: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := s.decodeEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *Store) decodeEntry(row backend.Row) (*Entry, error) {
	rawKey, err := row.Bytes(0)
	if err != nil {
		return nil, err
	}
	key, err := codec.DecodeKey(rawKey)
	if err != nil {
		return nil, err
	}
	rawValue, err := row.Bytes(1)
	if err != nil {
		return nil, err
	}
	value, err := s.codec.DecodeValue(rawValue)
	if err != nil {
		return nil, err
	}
	versionstamp, err := row.String(2)
	if err != nil {
		return nil, err
	}
	return &Entry{Key: key, Value: value, Versionstamp: versionstamp}, nil
}

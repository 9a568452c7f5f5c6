// Package fts manages the secondary full-text-search indexes of the keyval
// engine: one SQLite FTS5 virtual table per registered key prefix, each
// holding one column per extracted document field plus the document key.
//
// Indexes are kept loosely in sync with the primary store: Bind subscribes
// the manager to a store's change notifications and applies them after each
// commit returns. Search therefore observes a window during which primary
// reads reflect a write but full-text search does not; the index is
// eventually consistent and never transactionally coupled to the store.
//
// A document belongs to at most one index. When several registered prefixes
// match a key, the longest one wins deterministically.
package fts

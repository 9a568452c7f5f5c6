package kv

import (
	"testing"

	"github.com/keyvaldb/keyval/lib/codec"
)

// TestList tests prefix listing, key order and the limit
func TestList(t *testing.T) {
	s := newTestStore(t)

	mustCommit(t, s.Atomic().
		Set(codec.Key{"users", "bob"}, 2).
		Set(codec.Key{"users", "alice"}, 1).
		Set(codec.Key{"users", "carol"}, 3).
		Set(codec.Key{"groups", "admins"}, 0))

	entries, err := s.List(codec.Key{"users"}, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("list returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if entries[i].Key[1] != want {
			t.Errorf("entry %d key = %v, want users/%s", i, entries[i].Key, want)
		}
	}

	// limit truncates in key order
	entries, err = s.List(codec.Key{"users"}, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Key[1] != "bob" {
		t.Errorf("limited list = %v", entries)
	}

	// no matches yields an empty slice, not an error
	entries, err = s.List(codec.Key{"nothing"}, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("list of absent prefix returned %d entries", len(entries))
	}
}

// TestListPrefixBoundary tests that listing never leaks sibling prefixes
func TestListPrefixBoundary(t *testing.T) {
	s := newTestStore(t)

	// "user" vs "users": byte-adjacent top-level parts
	mustCommit(t, s.Atomic().
		Set(codec.Key{"user"}, 1).
		Set(codec.Key{"user", "x"}, 2).
		Set(codec.Key{"users"}, 3))

	entries, err := s.List(codec.Key{"user"}, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("list returned %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Key[0] != "user" {
			t.Errorf("sibling prefix leaked into listing: %v", e.Key)
		}
	}
}

// TestGetMany tests batched point reads with absent slots
func TestGetMany(t *testing.T) {
	s := newTestStore(t)

	mustCommit(t, s.Atomic().
		Set(codec.Key{"a"}, 1).
		Set(codec.Key{"c"}, 3))

	entries, err := s.GetMany([]codec.Key{{"a"}, {"b"}, {"c"}})
	if err != nil {
		t.Fatalf("getmany failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("getmany returned %d slots, want 3", len(entries))
	}
	if entries[0] == nil || !entries[0].Key.Equal(codec.Key{"a"}) {
		t.Errorf("slot 0 = %v, want entry for a", entries[0])
	}
	if entries[1] != nil {
		t.Errorf("slot 1 should be nil for the absent key, got %v", entries[1])
	}
	if entries[2] == nil || !entries[2].Key.Equal(codec.Key{"c"}) {
		t.Errorf("slot 2 = %v, want entry for c", entries[2])
	}
}

// TestEntriesByEncodedKeys tests the hydration path used by search
func TestEntriesByEncodedKeys(t *testing.T) {
	s := newTestStore(t)

	mustCommit(t, s.Atomic().
		Set(codec.Key{"a"}, 1).
		Set(codec.Key{"b"}, 2))

	entries, err := s.EntriesByEncodedKeys([][]byte{
		codec.MustEncodeKey(codec.Key{"a"}),
		codec.MustEncodeKey(codec.Key{"b"}),
		codec.MustEncodeKey(codec.Key{"missing"}),
	}, "", nil)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("fetch returned %d entries, want 2", len(entries))
	}

	// empty input short-circuits without touching the backend
	entries, err = s.EntriesByEncodedKeys(nil, "", nil)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("empty input should yield an empty slice, got %v", entries)
	}

	// an extra predicate narrows the result
	entries, err = s.EntriesByEncodedKeys([][]byte{
		codec.MustEncodeKey(codec.Key{"a"}),
		codec.MustEncodeKey(codec.Key{"b"}),
	}, "key = ?", []any{codec.MustEncodeKey(codec.Key{"a"})})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].Key.Equal(codec.Key{"a"}) {
		t.Errorf("narrowed fetch = %v, want only a", entries)
	}
}

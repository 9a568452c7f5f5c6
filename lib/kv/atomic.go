package kv

import (
	"fmt"
	"time"

	"github.com/keyvaldb/keyval/lib/backend"
	"github.com/keyvaldb/keyval/lib/codec"
	"github.com/keyvaldb/keyval/lib/metrics"
)

// --------------------------------------------------------------------------
// Atomic Operation Builder
// --------------------------------------------------------------------------

// AtomicOperation accumulates checks and mutations for one commit. Builder
// methods perform no I/O; everything happens in Commit. An AtomicOperation is
// single-use and must not be mutated concurrently.
type AtomicOperation struct {
	store     *Store
	checks    []Check
	mutations []mutation
	committed bool
}

// Atomic starts a new atomic operation against the store.
func (s *Store) Atomic() *AtomicOperation {
	return &AtomicOperation{store: s}
}

// Check adds optimistic-concurrency preconditions. All checks must pass for
// the commit to apply.
func (op *AtomicOperation) Check(checks ...Check) *AtomicOperation {
	op.checks = append(op.checks, checks...)
	return op
}

// Set stages an upsert of key to value.
func (op *AtomicOperation) Set(key codec.Key, value any) *AtomicOperation {
	return op.add(mutation{kind: mutSet, key: key, value: value})
}

// SetE stages an upsert of key to value that expires expireIn from commit
// time. A non-positive expireIn behaves like Set.
func (op *AtomicOperation) SetE(key codec.Key, value any, expireIn time.Duration) *AtomicOperation {
	return op.add(mutation{kind: mutSet, key: key, value: value, expireIn: expireIn})
}

// Delete stages removal of key.
func (op *AtomicOperation) Delete(key codec.Key) *AtomicOperation {
	return op.add(mutation{kind: mutDelete, key: key})
}

// Sum stages an atomic addition. An absent key is seeded at n.
func (op *AtomicOperation) Sum(key codec.Key, n int64) *AtomicOperation {
	return op.add(mutation{kind: mutSum, key: key, value: n})
}

// Max stages an atomic maximum. An absent key is seeded at n.
func (op *AtomicOperation) Max(key codec.Key, n int64) *AtomicOperation {
	return op.add(mutation{kind: mutMax, key: key, value: n})
}

// Min stages an atomic minimum. An absent key is seeded at n.
func (op *AtomicOperation) Min(key codec.Key, n int64) *AtomicOperation {
	return op.add(mutation{kind: mutMin, key: key, value: n})
}

// Append stages an atomic array concatenation, old elements first. An absent
// key is treated as an empty array.
func (op *AtomicOperation) Append(key codec.Key, values []any) *AtomicOperation {
	return op.add(mutation{kind: mutAppend, key: key, value: values})
}

// Prepend stages an atomic array concatenation, new elements first. An absent
// key is treated as an empty array.
func (op *AtomicOperation) Prepend(key codec.Key, values []any) *AtomicOperation {
	return op.add(mutation{kind: mutPrepend, key: key, value: values})
}

func (op *AtomicOperation) add(m mutation) *AtomicOperation {
	op.mutations = append(op.mutations, m)
	return op
}

// --------------------------------------------------------------------------
// Commit
// --------------------------------------------------------------------------

// Commit validates all checks against current state and, if they pass,
// applies every mutation atomically under one freshly minted versionstamp.
//
// A failed check yields CommitResult{OK: false} and a nil error; backend and
// compilation failures yield an error and apply nothing. A commit with no
// checks and no mutations succeeds immediately with a fresh versionstamp
// without touching storage.
func (op *AtomicOperation) Commit() (result CommitResult, err error) {
	start := time.Now()
	defer func() {
		op.store.metrics.RecordOperation(metrics.OpAtomicCommit, time.Since(start), err != nil)
	}()

	if op.committed {
		return CommitResult{}, ErrCommitted
	}
	op.committed = true

	s := op.store

	if len(op.checks) == 0 && len(op.mutations) == 0 {
		return CommitResult{OK: true, Versionstamp: s.minter.mint()}, nil
	}

	// Check phase: every precondition is evaluated against pre-commit state.
	// The first failure aborts the whole commit.
	for _, check := range op.checks {
		ok, err := s.evaluateCheck(check, start)
		if err != nil {
			return CommitResult{}, err
		}
		if !ok {
			return CommitResult{OK: false}, nil
		}
	}

	versionstamp := s.minter.mint()

	// Compile phase: every statement is computed before anything executes,
	// so a compilation failure aborts with no partial writes.
	stmts := make([]backend.Statement, len(op.mutations))
	resolved := make([]codec.Key, len(op.mutations))
	for i, m := range op.mutations {
		key := m.key.Resolve(versionstamp)
		resolved[i] = key
		encodedKey, err := codec.EncodeKey(key)
		if err != nil {
			return CommitResult{}, err
		}
		stmt, err := s.compiler.compile(m, encodedKey, versionstamp, start)
		if err != nil {
			return CommitResult{}, err
		}
		stmts[i] = stmt
	}

	if err := s.backend.Batch(stmts); err != nil {
		return CommitResult{}, fmt.Errorf("kv: commit batch: %w", err)
	}

	// The write is durable from here on. Notifications run isolated so a
	// misbehaving subscriber cannot make the commit look failed.
	for i, m := range op.mutations {
		event := Event{
			Type:         EventSet,
			Key:          resolved[i],
			Value:        m.value,
			Versionstamp: versionstamp,
		}
		if m.kind == mutDelete {
			event.Type = EventDelete
			event.Value = nil
		}
		s.emit(event)
	}

	return CommitResult{OK: true, Versionstamp: versionstamp}, nil
}

// evaluateCheck reads the key's current versionstamp and compares it against
// the check. Expired entries count as absent.
func (s *Store) evaluateCheck(check Check, now time.Time) (bool, error) {
	encodedKey, err := codec.EncodeKey(check.Key)
	if err != nil {
		return false, err
	}
	row, found, err := s.backend.ExecuteOne(
		`SELECT versionstamp FROM kv_entries
		 WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		encodedKey, now.Unix())
	if err != nil {
		return false, fmt.Errorf("kv: check read: %w", err)
	}

	if check.Versionstamp == "" {
		return !found, nil
	}
	if !found {
		return false, nil
	}
	current, err := row.String(0)
	if err != nil {
		return false, err
	}
	return current == check.Versionstamp, nil
}

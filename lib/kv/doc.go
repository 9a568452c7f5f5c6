// Package kv implements the optimistic-concurrency-controlled transactional
// key-value engine at the heart of keyval.
//
// A caller builds an AtomicOperation (checks plus mutations), then commits it.
// Commit validates every check against the current state, mints exactly one
// versionstamp for the whole commit, compiles every mutation into one SQL
// statement, and executes all statements as one atomic batch. A failed check
// is an expected outcome (CommitResult.OK == false), meant to be retried by
// the caller; backend and compilation failures are returned as errors.
//
// Concurrency control is purely optimistic: the check phase and the mutate
// phase are two separate round trips to the backend. Two commits can both
// pass their checks against the same pre-state before either writes. Closing
// that residual window requires backend-level serializable transactions; this
// engine accepts it as a known limitation.
//
// After a successful batch, one change notification is emitted per mutation,
// sequentially in mutation order. Subscriber panics are isolated and logged;
// they never turn a successful commit into a failure.
package kv

package kv

import (
	"errors"
	"time"

	"github.com/keyvaldb/keyval/lib/codec"
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// Entry is one stored key-value pair. Versionstamp identifies the commit that
// last wrote the entry.
type Entry struct {
	Key          codec.Key `json:"key"`
	Value        any       `json:"value"`
	Versionstamp string    `json:"versionstamp"`
}

// Check is an optimistic-concurrency precondition. An empty Versionstamp
// asserts that the key does not currently exist; otherwise the key's current
// versionstamp must equal Versionstamp exactly (a missing key fails such a
// check).
type Check struct {
	Key          codec.Key
	Versionstamp string
}

// CommitResult is the outcome of a commit. OK is false when one of the
// checks failed; the commit applied nothing in that case.
type CommitResult struct {
	OK           bool   `json:"ok"`
	Versionstamp string `json:"versionstamp,omitempty"`
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

type mutationKind int

const (
	mutSet mutationKind = iota
	mutDelete
	mutSum
	mutMax
	mutMin
	mutAppend
	mutPrepend
)

func (k mutationKind) String() string {
	switch k {
	case mutSet:
		return "set"
	case mutDelete:
		return "delete"
	case mutSum:
		return "sum"
	case mutMax:
		return "max"
	case mutMin:
		return "min"
	case mutAppend:
		return "append"
	case mutPrepend:
		return "prepend"
	default:
		return "unknown"
	}
}

// mutation is one pending write inside an AtomicOperation.
type mutation struct {
	kind     mutationKind
	key      codec.Key
	value    any           // document for set, int64 for sum/max/min, []any for append/prepend
	expireIn time.Duration // only meaningful for set
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrCommitted is returned when a single-use AtomicOperation is committed
	// twice.
	ErrCommitted = errors.New("kv: atomic operation already committed")
	// ErrUnsafeOperand is returned when a numeric operand's magnitude cannot
	// survive the backend's numeric representation.
	ErrUnsafeOperand = errors.New("kv: numeric operand outside safe integer range")
	// ErrUnknownMutation guards against an unhandled mutation kind reaching
	// the compiler.
	ErrUnknownMutation = errors.New("kv: unknown mutation kind")
)

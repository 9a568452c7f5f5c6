package kv

import (
	"fmt"
	"time"

	"github.com/keyvaldb/keyval/lib/backend"
	"github.com/keyvaldb/keyval/lib/codec"
)

// --------------------------------------------------------------------------
// Mutation Compiler
// --------------------------------------------------------------------------

// maxSafeInt is the largest integer magnitude whose value survives a float64
// round trip. Operands beyond it could silently lose precision once the
// stored JSON number is consumed by a float-based client, so compilation
// rejects them up front.
const maxSafeInt = int64(1)<<53 - 1

// mutationCompiler turns one mutation into one SQL statement. Isolating this
// behind an interface keeps the sum/max/min/append/prepend contract stable if
// the backend dialect changes: a backend without upsert arithmetic can supply
// a compiler with compare-and-swap semantics instead.
type mutationCompiler interface {
	compile(m mutation, encodedKey []byte, versionstamp string, now time.Time) (backend.Statement, error)
}

// sqliteCompiler compiles mutations into SQLite upserts. Numeric and array
// arithmetic runs inside the database over the stored JSON text, so each
// mutation stays one statement and the whole commit stays one batch.
type sqliteCompiler struct {
	codec codec.ValueCodec
}

func (c sqliteCompiler) compile(m mutation, encodedKey []byte, versionstamp string, now time.Time) (backend.Statement, error) {
	switch m.kind {
	case mutSet:
		return c.compileSet(m, encodedKey, versionstamp, now)
	case mutDelete:
		return backend.Statement{
			Query: `DELETE FROM kv_entries WHERE key = ?`,
			Args:  []any{encodedKey},
		}, nil
	case mutSum, mutMax, mutMin:
		return c.compileNumeric(m, encodedKey, versionstamp)
	case mutAppend, mutPrepend:
		return c.compileArray(m, encodedKey, versionstamp)
	default:
		return backend.Statement{}, fmt.Errorf("%w: %d", ErrUnknownMutation, m.kind)
	}
}

func (c sqliteCompiler) compileSet(m mutation, encodedKey []byte, versionstamp string, now time.Time) (backend.Statement, error) {
	value, err := c.codec.EncodeValue(m.value)
	if err != nil {
		return backend.Statement{}, err
	}
	var expiresAt any
	if m.expireIn > 0 {
		expiresAt = now.Add(m.expireIn).Unix()
	}
	return backend.Statement{
		Query: `INSERT INTO kv_entries (key, value, versionstamp, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
			  value        = excluded.value,
			  versionstamp = excluded.versionstamp,
			  expires_at   = excluded.expires_at`,
		Args: []any{encodedKey, value, versionstamp, expiresAt},
	}, nil
}

func (c sqliteCompiler) compileNumeric(m mutation, encodedKey []byte, versionstamp string) (backend.Statement, error) {
	operand, ok := m.value.(int64)
	if !ok {
		return backend.Statement{}, fmt.Errorf("kv: %s operand must be int64, got %T", m.kind, m.value)
	}
	if operand > maxSafeInt || operand < -maxSafeInt {
		return backend.Statement{}, fmt.Errorf("%w: %s %d", ErrUnsafeOperand, m.kind, operand)
	}
	value, err := c.codec.EncodeValue(operand)
	if err != nil {
		return backend.Statement{}, err
	}

	var expr string
	switch m.kind {
	case mutSum:
		expr = `CAST(CAST(kv_entries.value AS NUMERIC) + CAST(excluded.value AS NUMERIC) AS TEXT)`
	case mutMax:
		expr = `CAST(max(CAST(kv_entries.value AS NUMERIC), CAST(excluded.value AS NUMERIC)) AS TEXT)`
	case mutMin:
		expr = `CAST(min(CAST(kv_entries.value AS NUMERIC), CAST(excluded.value AS NUMERIC)) AS TEXT)`
	}

	// The insert path seeds an absent key at the operand itself.
	return backend.Statement{
		Query: `INSERT INTO kv_entries (key, value, versionstamp, expires_at) VALUES (?, ?, ?, NULL)
			ON CONFLICT(key) DO UPDATE SET
			  value        = ` + expr + `,
			  versionstamp = excluded.versionstamp,
			  expires_at   = kv_entries.expires_at`,
		Args: []any{encodedKey, value, versionstamp},
	}, nil
}

func (c sqliteCompiler) compileArray(m mutation, encodedKey []byte, versionstamp string) (backend.Statement, error) {
	values, ok := m.value.([]any)
	if !ok {
		return backend.Statement{}, fmt.Errorf("kv: %s operand must be a slice, got %T", m.kind, m.value)
	}
	if values == nil {
		values = []any{}
	}
	value, err := c.codec.EncodeValue(values)
	if err != nil {
		return backend.Statement{}, err
	}

	// concat(a, b) over JSON array text: strip a's closing bracket, strip b's
	// opening bracket, join with a comma. Empty arrays short-circuit.
	head, tail := "kv_entries.value", "excluded.value"
	if m.kind == mutPrepend {
		head, tail = tail, head
	}
	concat := fmt.Sprintf(
		`CASE
		   WHEN CAST(%[1]s AS TEXT) = '[]' THEN %[2]s
		   WHEN CAST(%[2]s AS TEXT) = '[]' THEN %[1]s
		   ELSE CAST(substr(CAST(%[1]s AS TEXT), 1, length(CAST(%[1]s AS TEXT)) - 1)
		        || ',' || substr(CAST(%[2]s AS TEXT), 2) AS BLOB)
		 END`, head, tail)

	// The insert path seeds an absent key at the operand itself (old array
	// treated as empty).
	return backend.Statement{
		Query: `INSERT INTO kv_entries (key, value, versionstamp, expires_at) VALUES (?, ?, ?, NULL)
			ON CONFLICT(key) DO UPDATE SET
			  value        = ` + concat + `,
			  versionstamp = excluded.versionstamp,
			  expires_at   = kv_entries.expires_at`,
		Args: []any{encodedKey, value, versionstamp},
	}, nil
}

package backend

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Statement is one parameterized SQL statement.
type Statement struct {
	Query string
	Args  []any
}

// Row is one result row with positional column values. Implementations
// return database-native types: nil, int64, float64, string or []byte.
type Row []any

// Backend is the contract between the keyval engine and the relational
// database it runs on.
type Backend interface {
	// Execute runs one statement and returns all result rows.
	Execute(query string, args ...any) ([]Row, error)
	// ExecuteOne runs one statement and returns the first result row.
	// The boolean return value indicates whether a row was found.
	ExecuteOne(query string, args ...any) (Row, bool, error)
	// Batch runs all statements as one atomic unit. Either every statement
	// is applied or none is.
	Batch(stmts []Statement) error
	// Close releases the underlying connection(s).
	Close() error
}

// --------------------------------------------------------------------------
// Row Accessors
// --------------------------------------------------------------------------

// Relational drivers are loose about column affinity, so the accessors below
// normalize the handful of cross-type cases the engine actually encounters.

// String returns the column at index i as a string.
func (r Row) String(i int) (string, error) {
	switch v := r[i].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("backend: column %d: expected text, got %T", i, r[i])
}

// Bytes returns the column at index i as a byte slice.
func (r Row) Bytes(i int) ([]byte, error) {
	switch v := r[i].(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("backend: column %d: expected blob, got %T", i, r[i])
}

// Int64 returns the column at index i as an int64. A NULL column yields zero.
func (r Row) Int64(i int) (int64, error) {
	switch v := r[i].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("backend: column %d: expected integer, got %T", i, r[i])
}

// Float64 returns the column at index i as a float64. A NULL column yields zero.
func (r Row) Float64(i int) (float64, error) {
	switch v := r[i].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("backend: column %d: expected real, got %T", i, r[i])
}

// IsNull reports whether the column at index i is NULL.
func (r Row) IsNull(i int) bool {
	return r[i] == nil
}

package testing

import (
	"strings"
	"sync"

	"github.com/keyvaldb/keyval/lib/backend"
)

// --------------------------------------------------------------------------
// Spy Backend
// --------------------------------------------------------------------------

// Call records one invocation of a backend method.
type Call struct {
	// Kind is "execute", "execute_one" or "batch".
	Kind  string
	Query string
	Args  []any
	Stmts []backend.Statement
}

// Spy is a backend.Backend that records every call. With a non-nil inner
// backend it forwards calls and records them; without one it serves queued
// results, which lets unit tests script read traffic without a database.
type Spy struct {
	inner backend.Backend

	mu      sync.Mutex
	calls   []Call
	results [][]backend.Row
	errs    []error
}

// NewSpy creates a spy wrapping inner. inner may be nil for a scripted spy.
func NewSpy(inner backend.Backend) *Spy {
	return &Spy{inner: inner}
}

// QueueResult appends one result set to be served by the next scripted
// Execute/ExecuteOne call.
func (s *Spy) QueueResult(rows []backend.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, rows)
	s.errs = append(s.errs, nil)
}

// QueueError appends one failing result for the next scripted call.
func (s *Spy) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, nil)
	s.errs = append(s.errs, err)
}

// Calls returns a copy of all recorded calls.
func (s *Spy) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsMatching returns all recorded calls whose query contains substr.
func (s *Spy) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if strings.Contains(c.Query, substr) {
			out = append(out, c)
		}
		for _, stmt := range c.Stmts {
			if strings.Contains(stmt.Query, substr) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Reset clears recorded calls and any unserved scripted results.
func (s *Spy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.results = nil
	s.errs = nil
}

func (s *Spy) record(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *Spy) nextScripted() ([]backend.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil, nil
	}
	rows, err := s.results[0], s.errs[0]
	s.results, s.errs = s.results[1:], s.errs[1:]
	return rows, err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (s *Spy) Execute(query string, args ...any) ([]backend.Row, error) {
	s.record(Call{Kind: "execute", Query: query, Args: args})
	if s.inner != nil {
		return s.inner.Execute(query, args...)
	}
	return s.nextScripted()
}

func (s *Spy) ExecuteOne(query string, args ...any) (backend.Row, bool, error) {
	s.record(Call{Kind: "execute_one", Query: query, Args: args})
	if s.inner != nil {
		return s.inner.ExecuteOne(query, args...)
	}
	rows, err := s.nextScripted()
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

func (s *Spy) Batch(stmts []backend.Statement) error {
	s.record(Call{Kind: "batch", Stmts: stmts})
	if s.inner != nil {
		return s.inner.Batch(stmts)
	}
	_, err := s.nextScripted()
	return err
}

func (s *Spy) Close() error {
	if s.inner != nil {
		return s.inner.Close()
	}
	return nil
}

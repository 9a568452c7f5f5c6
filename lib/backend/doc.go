// Package backend defines the relational adapter contract consumed by the
// keyval engine. The engine itself never opens connections or manages
// transactions; it hands fully-formed SQL statements to a Backend and relies
// on two guarantees: Execute/ExecuteOne run a single statement, and Batch runs
// all of its statements atomically (all applied or none).
//
// The reference implementation lives in the sqlite subpackage. The testing
// subpackage provides a conformance suite for new implementations and a
// recording spy backend for unit tests of the engine's SQL surface.
package backend

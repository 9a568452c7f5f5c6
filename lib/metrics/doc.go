// Package metrics implements the in-memory operation metrics collector of the
// keyval engine: per-operation counters, error counters, latency sums and a
// fixed-boundary cumulative latency histogram.
//
// Persistence is optional and strictly best-effort. When a collector is
// constructed with a backend, prior cumulative totals are loaded on startup
// and pending deltas are flushed on a timer via an additive upsert into
// kv_metrics. Load and flush failures are swallowed (logged at debug level
// only) and never affect the data path.
package metrics

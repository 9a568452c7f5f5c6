package metrics

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/keyvaldb/keyval/lib/backend"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Well-known operation names recorded by the engine.
const (
	OpAtomicCommit = "atomic_commit"
	OpGet          = "get"
	OpList         = "list"
	OpSearch       = "search"
)

// DefaultFlushInterval is the default period of the persistence timer.
const DefaultFlushInterval = 30 * time.Second

// bucketBoundaries are the upper bounds (milliseconds) of the latency
// histogram. A final unbounded bucket sits above the last boundary.
var bucketBoundaries = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

const numBuckets = 12 // 11 boundaries + unbounded top bucket

// --------------------------------------------------------------------------
// Series
// --------------------------------------------------------------------------

// series holds cumulative in-memory state and the pending persistence delta
// for one operation type.
type series struct {
	mu         sync.Mutex
	count      int64
	errors     int64
	latencySum float64           // milliseconds
	buckets    [numBuckets]int64 // cumulative: buckets[i] counts samples <= boundary i

	pendingCount   int64
	pendingErrors  int64
	pendingLatency float64
}

func (s *series) record(ms float64, failed bool, persist bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if failed {
		s.errors++
	}
	s.latencySum += ms
	for i, bound := range bucketBoundaries {
		if ms <= bound {
			s.buckets[i]++
		}
	}
	s.buckets[numBuckets-1]++ // unbounded bucket counts every sample

	if persist {
		s.pendingCount++
		if failed {
			s.pendingErrors++
		}
		s.pendingLatency += ms
	}
}

// takePending returns and clears the pending delta.
func (s *series) takePending() (count, errors int64, latency float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, errors, latency = s.pendingCount, s.pendingErrors, s.pendingLatency
	s.pendingCount, s.pendingErrors, s.pendingLatency = 0, 0, 0
	return
}

// restorePending re-adds a delta that failed to flush so the next tick
// retries it.
func (s *series) restorePending(count, errors int64, latency float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCount += count
	s.pendingErrors += errors
	s.pendingLatency += latency
}

// --------------------------------------------------------------------------
// Collector
// --------------------------------------------------------------------------

// Collector accumulates operation metrics in memory and optionally persists
// cumulative totals through a backend.
//
// Thread-safety: all methods are safe for concurrent use.
type Collector struct {
	series  *xsync.MapOf[string, *series]
	backend backend.Backend
	logger  zerolog.Logger

	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// Option configures a Collector.
type Option func(*Collector)

// WithBackend enables persistence of cumulative totals through b.
func WithBackend(b backend.Backend) Option {
	return func(c *Collector) { c.backend = b }
}

// WithFlushInterval overrides the persistence timer period.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Collector) { c.flushInterval = d }
}

// WithLogger sets the logger used for swallowed persistence failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// New creates a collector. Without WithBackend the collector is purely
// in-memory. With a backend, prior totals are loaded asynchronously (best
// effort) and a flush timer starts immediately.
func New(opts ...Option) *Collector {
	c := &Collector{
		series:        xsync.NewMapOf[string, *series](),
		logger:        zerolog.Nop(),
		flushInterval: DefaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.backend != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.loadPersisted()
			c.runFlushLoop()
		}()
	}
	return c
}

// RecordOperation records one sample for the given operation type.
func (c *Collector) RecordOperation(op string, duration time.Duration, failed bool) {
	s, _ := c.series.LoadOrCompute(op, func() *series { return &series{} })
	s.record(float64(duration.Nanoseconds())/1e6, failed, c.backend != nil)
}

// Reset clears all in-memory state. Persisted rows are not touched.
func (c *Collector) Reset() {
	c.series.Clear()
}

// Close stops the flush timer and performs one final flush. It is safe to
// call Close on a collector without persistence.
func (c *Collector) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	if c.backend != nil {
		c.flush()
	}
	return nil
}

// --------------------------------------------------------------------------
// Persistence (best effort)
// --------------------------------------------------------------------------

// loadPersisted merges previously persisted totals into the in-memory state.
// Failures are swallowed: the collector simply starts from zero.
func (c *Collector) loadPersisted() {
	rows, err := c.backend.Execute(
		`SELECT operation, count, errors, latency_sum FROM kv_metrics`)
	if err != nil {
		c.logger.Debug().Err(err).Msg("metrics: load of persisted totals failed, starting from zero")
		return
	}
	for _, row := range rows {
		op, err := row.String(0)
		if err != nil {
			continue
		}
		count, _ := row.Int64(1)
		errors, _ := row.Int64(2)
		latency, _ := row.Float64(3)

		s, _ := c.series.LoadOrCompute(op, func() *series { return &series{} })
		s.mu.Lock()
		s.count += count
		s.errors += errors
		s.latencySum += latency
		s.mu.Unlock()
	}
}

func (c *Collector) runFlushLoop() {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.done:
			return
		}
	}
}

// flush writes all pending deltas via an additive upsert and clears them.
// A failed flush restores the delta so the next tick retries it.
func (c *Collector) flush() {
	now := time.Now().Unix()
	c.series.Range(func(op string, s *series) bool {
		count, errors, latency := s.takePending()
		if count == 0 && errors == 0 && latency == 0 {
			return true
		}
		_, err := c.backend.Execute(
			`INSERT INTO kv_metrics (id, operation, count, errors, latency_sum, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   count       = kv_metrics.count + excluded.count,
			   errors      = kv_metrics.errors + excluded.errors,
			   latency_sum = kv_metrics.latency_sum + excluded.latency_sum,
			   updated_at  = excluded.updated_at`,
			op, op, count, errors, latency, now)
		if err != nil {
			s.restorePending(count, errors, latency)
			c.logger.Debug().Err(err).Str("operation", op).Msg("metrics: flush failed, will retry")
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Rendering
// --------------------------------------------------------------------------

// OperationStats is the externally visible state of one operation series.
type OperationStats struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	LatencySumMs float64 `json:"latency_sum_ms"`
	Buckets      []int64 `json:"buckets"`
}

// Snapshot is a point-in-time copy of all series.
type Snapshot struct {
	Operations map[string]OperationStats `json:"operations"`
}

// Snapshot returns a consistent copy of the current in-memory state.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{Operations: make(map[string]OperationStats)}
	c.series.Range(func(op string, s *series) bool {
		s.mu.Lock()
		stats := OperationStats{
			Count:        s.count,
			Errors:       s.errors,
			LatencySumMs: s.latencySum,
			Buckets:      append([]int64(nil), s.buckets[:]...),
		}
		s.mu.Unlock()
		if stats.Count > 0 {
			stats.AvgLatencyMs = stats.LatencySumMs / float64(stats.Count)
		}
		snap.Operations[op] = stats
		return true
	})
	return snap
}

// WritePrometheus renders the current state in Prometheus exposition format.
// All metric names are prefixed with the given prefix.
func (c *Collector) WritePrometheus(w io.Writer, prefix string) {
	snap := c.Snapshot()
	for op, stats := range snap.Operations {
		fmt.Fprintf(w, "%s_operations_total{operation=%q} %d\n", prefix, op, stats.Count)
		fmt.Fprintf(w, "%s_operation_errors_total{operation=%q} %d\n", prefix, op, stats.Errors)
		for i, bound := range bucketBoundaries {
			fmt.Fprintf(w, "%s_operation_duration_ms_bucket{operation=%q,le=%q} %d\n",
				prefix, op, strconv.FormatFloat(bound, 'f', -1, 64), stats.Buckets[i])
		}
		fmt.Fprintf(w, "%s_operation_duration_ms_bucket{operation=%q,le=\"+Inf\"} %d\n",
			prefix, op, stats.Buckets[numBuckets-1])
		fmt.Fprintf(w, "%s_operation_duration_ms_sum{operation=%q} %g\n", prefix, op, stats.LatencySumMs)
		fmt.Fprintf(w, "%s_operation_duration_ms_count{operation=%q} %d\n", prefix, op, stats.Count)
	}
}

package browser

import (
	"sync"
	"time"
)

// methodStats accumulates per-method telemetry: success count, failure
// count, and mean execution time. These numbers are queryable only;
// nothing in the pipeline reads them back, and the ladder order is fixed.
type methodStats struct {
	successes int64
	failures  int64
	totalTime time.Duration
	calls     int64
}

// Telemetry tracks per-method call statistics keyed by an arbitrary label
// (e.g. "playwright.tier1", "rod.fallback_driver", "search_fallback").
type Telemetry struct {
	mu    sync.Mutex
	stats map[string]*methodStats
}

// NewTelemetry creates an empty telemetry tracker.
func NewTelemetry() *Telemetry {
	return &Telemetry{stats: make(map[string]*methodStats)}
}

// Record logs one call's outcome and duration under method.
func (t *Telemetry) Record(method string, success bool, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[method]
	if !ok {
		s = &methodStats{}
		t.stats[method] = s
	}
	s.calls++
	s.totalTime += d
	if success {
		s.successes++
	} else {
		s.failures++
	}
}

// MethodSnapshot is a point-in-time read of one method's stats.
type MethodSnapshot struct {
	Method       string
	Successes    int64
	Failures     int64
	MeanExecTime time.Duration
}

// Snapshot returns a stable copy of all tracked methods' stats.
func (t *Telemetry) Snapshot() []MethodSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]MethodSnapshot, 0, len(t.stats))
	for method, s := range t.stats {
		mean := time.Duration(0)
		if s.calls > 0 {
			mean = s.totalTime / time.Duration(s.calls)
		}
		out = append(out, MethodSnapshot{
			Method:       method,
			Successes:    s.successes,
			Failures:     s.failures,
			MeanExecTime: mean,
		})
	}
	return out
}

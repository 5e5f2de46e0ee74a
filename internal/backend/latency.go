package backend

import (
	"sort"
	"sync"
	"time"
)

// DefaultLatencyWindow is the number of recent samples kept per backend.
const DefaultLatencyWindow = 256

// LatencyTracker keeps a rolling window of observed search latencies.
// Adapters feed it on every call; the verification service reads p50/p99
// for the published BackendHealth records.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

// NewLatencyTracker creates a tracker over the given window size.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &LatencyTracker{samples: make([]time.Duration, window)}
}

// Observe records one latency sample, evicting the oldest when full.
func (t *LatencyTracker) Observe(d time.Duration) {
	t.mu.Lock()
	t.samples[t.next] = d
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.filled = true
	}
	t.mu.Unlock()
}

// Quantile returns the q-th latency quantile over the window (q in [0,1]).
// Returns 0 when no samples have been observed.
func (t *LatencyTracker) Quantile(q float64) time.Duration {
	t.mu.Lock()
	n := t.next
	if t.filled {
		n = len(t.samples)
	}
	window := make([]time.Duration, n)
	copy(window, t.samples[:n])
	t.mu.Unlock()

	if n == 0 {
		return 0
	}
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	idx := int(q * float64(n-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return window[idx]
}

// P50 returns the median latency over the window.
func (t *LatencyTracker) P50() time.Duration { return t.Quantile(0.50) }

// P99 returns the tail latency over the window.
func (t *LatencyTracker) P99() time.Duration { return t.Quantile(0.99) }

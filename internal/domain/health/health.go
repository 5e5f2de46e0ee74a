// Package health holds per-backend health state shared between the
// verification service (writer) and the query planner (reader).
package health

import (
	"sync"
	"time"
)

// Status is the backend health classification.
type Status string

// Health state machine: Unknown -> Probing -> {Healthy, Degraded, Unreachable}.
const (
	Unknown     Status = "unknown"
	Probing     Status = "probing"
	Healthy     Status = "healthy"
	Degraded    Status = "degraded"
	Unreachable Status = "unreachable"
)

// IsValid checks if the status is one of the supported values.
func (s Status) IsValid() bool {
	switch s {
	case Unknown, Probing, Healthy, Degraded, Unreachable:
		return true
	}
	return false
}

// Backend is one backend's health record, produced by the verification service.
type Backend struct {
	backendID string
	status    Status
	lastProbe time.Time
	p50       time.Duration
	p99       time.Duration
}

// NewBackend creates a health record.
func NewBackend(backendID string, status Status, lastProbe time.Time, p50, p99 time.Duration) Backend {
	return Backend{backendID: backendID, status: status, lastProbe: lastProbe, p50: p50, p99: p99}
}

// BackendID returns the backend identifier.
func (b *Backend) BackendID() string { return b.backendID }

// Status returns the health classification.
func (b *Backend) Status() Status { return b.status }

// LastProbe returns when the backend was last probed.
func (b *Backend) LastProbe() time.Time { return b.lastProbe }

// LatencyP50 returns the median observed search latency.
func (b *Backend) LatencyP50() time.Duration { return b.p50 }

// LatencyP99 returns the tail observed search latency.
func (b *Backend) LatencyP99() time.Duration { return b.p99 }

// Snapshot is a point-in-time copy of all backend health records.
type Snapshot map[string]Backend

// StatusOf returns the recorded status, or Unknown for an unprobed backend.
func (s Snapshot) StatusOf(backendID string) Status {
	if b, ok := s[backendID]; ok {
		return b.Status()
	}
	return Unknown
}

// Board is the injected process-wide health holder. The verification
// service is the only writer; query-time readers take a snapshot and never
// block on probe completion. Last-write-wins per backend is acceptable:
// staleness only shifts routing preference, never correctness.
type Board struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewBoard creates an empty health board.
func NewBoard() *Board {
	return &Board{backends: make(map[string]Backend)}
}

// Update replaces one backend's record.
func (b *Board) Update(record Backend) {
	b.mu.Lock()
	b.backends[record.BackendID()] = record
	b.mu.Unlock()
}

// Snapshot copies the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := make(Snapshot, len(b.backends))
	for id, record := range b.backends {
		snap[id] = record
	}
	return snap
}

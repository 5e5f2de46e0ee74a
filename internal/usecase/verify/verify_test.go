package verify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

type stubAdapter struct {
	id    string
	cands []candidate.Candidate
	err   error
	calls atomic.Int64
}

func (s *stubAdapter) ID() string                         { return s.id }
func (s *stubAdapter) Capabilities() backend.Capabilities { return backend.Capabilities{} }

func (s *stubAdapter) Search(context.Context, subquery.SubQuery) ([]candidate.Candidate, error) {
	s.calls.Add(1)
	return s.cands, s.err
}

func cand(id string) candidate.Candidate {
	return candidate.New(id, domain.ContentDocument, "t", "e", 0.5, "stub", nil, nil)
}

func mustRegistry(t *testing.T, adapters ...backend.Adapter) *backend.Registry {
	t.Helper()
	reg, err := backend.NewRegistry(adapters...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func TestRunOnceClassifiesHealthy(t *testing.T) {
	a := &stubAdapter{id: "keyword", cands: []candidate.Candidate{cand("doc-1"), cand("doc-2")}}
	board := health.NewBoard()

	svc := New(mustRegistry(t, a), board, nil, Config{
		Probes: []Probe{{BackendID: "keyword", Query: "caching", MinResults: 1}},
	})
	svc.RunOnce(context.Background())

	snap := board.Snapshot()
	if got := snap.StatusOf("keyword"); got != health.Healthy {
		t.Fatalf("status = %s, want healthy", got)
	}
	rec := snap["keyword"]
	if rec.LastProbe().IsZero() {
		t.Error("LastProbe not recorded")
	}
}

func TestRunOnceClassifiesUnreachable(t *testing.T) {
	a := &stubAdapter{id: "vector", err: domain.ErrBackendUnavailable}
	board := health.NewBoard()

	svc := New(mustRegistry(t, a), board, nil, Config{
		Probes: []Probe{{BackendID: "vector", Query: "caching"}},
	})
	svc.RunOnce(context.Background())

	if got := board.Snapshot().StatusOf("vector"); got != health.Unreachable {
		t.Fatalf("status = %s, want unreachable", got)
	}
}

func TestRunOnceDegradedOnTooFewResults(t *testing.T) {
	a := &stubAdapter{id: "keyword", cands: []candidate.Candidate{cand("doc-1")}}
	board := health.NewBoard()

	svc := New(mustRegistry(t, a), board, nil, Config{
		Probes: []Probe{{BackendID: "keyword", Query: "caching", MinResults: 3}},
	})
	svc.RunOnce(context.Background())

	if got := board.Snapshot().StatusOf("keyword"); got != health.Degraded {
		t.Fatalf("status = %s, want degraded", got)
	}
}

func TestRunOnceDegradedOnMissingExpectedContent(t *testing.T) {
	a := &stubAdapter{id: "keyword", cands: []candidate.Candidate{cand("doc-1")}}
	board := health.NewBoard()

	svc := New(mustRegistry(t, a), board, nil, Config{
		Probes: []Probe{{BackendID: "keyword", Query: "caching", ExpectContentID: "doc-42"}},
	})
	svc.RunOnce(context.Background())

	if got := board.Snapshot().StatusOf("keyword"); got != health.Degraded {
		t.Fatalf("status = %s, want degraded", got)
	}
}

func TestRunOnceDegradedOnLatencyBudget(t *testing.T) {
	a := &stubAdapter{id: "keyword", cands: []candidate.Candidate{cand("doc-1")}}
	board := health.NewBoard()

	tracker := backend.NewLatencyTracker(8)
	for range 8 {
		tracker.Observe(3 * time.Second)
	}
	trackers := map[string]*backend.LatencyTracker{"keyword": tracker}

	svc := New(mustRegistry(t, a), board, trackers, Config{
		LatencyBudget: time.Second,
		Probes:        []Probe{{BackendID: "keyword", Query: "caching"}},
	})
	svc.RunOnce(context.Background())

	snap := board.Snapshot()
	if got := snap.StatusOf("keyword"); got != health.Degraded {
		t.Fatalf("status = %s, want degraded", got)
	}
	rec := snap["keyword"]
	if rec.LatencyP99() != 3*time.Second {
		t.Errorf("p99 = %s, want 3s", rec.LatencyP99())
	}
}

func TestRunOnceSkipsUnprobedBackends(t *testing.T) {
	probed := &stubAdapter{id: "keyword", cands: []candidate.Candidate{cand("doc-1")}}
	unprobed := &stubAdapter{id: "graph"}
	board := health.NewBoard()

	svc := New(mustRegistry(t, probed, unprobed), board, nil, Config{
		Probes: []Probe{{BackendID: "keyword", Query: "caching"}},
	})
	svc.RunOnce(context.Background())

	if unprobed.calls.Load() != 0 {
		t.Error("unprobed backend was searched")
	}
	if got := board.Snapshot().StatusOf("graph"); got != health.Unknown {
		t.Errorf("unprobed status = %s, want unknown", got)
	}
}

func TestStartStopCycles(t *testing.T) {
	a := &stubAdapter{id: "keyword", cands: []candidate.Candidate{cand("doc-1")}}
	board := health.NewBoard()

	svc := New(mustRegistry(t, a), board, nil, Config{
		Interval: 10 * time.Millisecond,
		Probes:   []Probe{{BackendID: "keyword", Query: "caching"}},
	})

	svc.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	if calls := a.calls.Load(); calls < 2 {
		t.Errorf("probe ran %d times over 5 intervals, want at least 2", calls)
	}

	after := a.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if a.calls.Load() != after {
		t.Error("probe loop kept running after Stop")
	}
}

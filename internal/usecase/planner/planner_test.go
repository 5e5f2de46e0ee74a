package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

type stubAdapter struct {
	id   string
	caps backend.Capabilities
}

func (s *stubAdapter) ID() string                        { return s.id }
func (s *stubAdapter) Capabilities() backend.Capabilities { return s.caps }
func (s *stubAdapter) Search(context.Context, subquery.SubQuery) ([]candidate.Candidate, error) {
	return nil, nil
}

func allTypesCaps() backend.Capabilities {
	return backend.Capabilities{
		ContentTypes:     domain.AllContentTypes(),
		NativeTags:       true,
		NativeCategories: true,
		NativeSources:    true,
		NativeDates:      true,
	}
}

func mustRegistry(t *testing.T, adapters ...backend.Adapter) *backend.Registry {
	t.Helper()
	reg, err := backend.NewRegistry(adapters...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func mustQuery(t *testing.T, types []domain.ContentType, filters query.Filters) query.Query {
	t.Helper()
	q, err := query.New("caching strategies", types, filters, 0, 10, "en")
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}
	return q
}

func TestPlanFansOutToAllHealthyBackends(t *testing.T) {
	reg := mustRegistry(t,
		&stubAdapter{id: "vector", caps: allTypesCaps()},
		&stubAdapter{id: "keyword", caps: allTypesCaps()},
		&stubAdapter{id: "graph", caps: allTypesCaps()},
	)
	p := New(reg, Config{TopK: 30})

	subs, err := p.Plan(context.Background(), mustQuery(t, nil, query.Filters{}), health.Snapshot{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("Plan() produced %d sub-queries, want 3", len(subs))
	}

	// Registry order is ID-sorted, so plans are deterministic.
	wantOrder := []string{"graph", "keyword", "vector"}
	for i, sq := range subs {
		if sq.BackendID() != wantOrder[i] {
			t.Errorf("subs[%d].BackendID() = %q, want %q", i, sq.BackendID(), wantOrder[i])
		}
		if sq.TopK() != 30 {
			t.Errorf("subs[%d].TopK() = %d, want 30", i, sq.TopK())
		}
		if sq.LowPriority() {
			t.Errorf("subs[%d] marked low priority for a healthy backend", i)
		}
	}
}

func TestPlanWidensTopKToMaxResults(t *testing.T) {
	reg := mustRegistry(t, &stubAdapter{id: "keyword", caps: allTypesCaps()})
	p := New(reg, Config{TopK: 10})

	q, err := query.New("caching", nil, query.Filters{}, 0, 50, "en")
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}

	subs, err := p.Plan(context.Background(), q, health.Snapshot{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if subs[0].TopK() != 50 {
		t.Errorf("TopK() = %d, want 50", subs[0].TopK())
	}
}

func TestPlanSkipsBackendsWithoutRequestedTypes(t *testing.T) {
	reg := mustRegistry(t,
		&stubAdapter{id: "vector", caps: allTypesCaps()},
		&stubAdapter{id: "graph", caps: backend.Capabilities{
			ContentTypes: []domain.ContentType{domain.ContentEntity},
		}},
	)
	p := New(reg, Config{})

	q := mustQuery(t, []domain.ContentType{domain.ContentDocument}, query.Filters{})
	subs, err := p.Plan(context.Background(), q, health.Snapshot{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("Plan() produced %d sub-queries, want 1", len(subs))
	}
	if subs[0].BackendID() != "vector" {
		t.Errorf("BackendID() = %q, want %q", subs[0].BackendID(), "vector")
	}
}

func TestPlanExcludesUnreachableBackend(t *testing.T) {
	reg := mustRegistry(t,
		&stubAdapter{id: "vector", caps: allTypesCaps()},
		&stubAdapter{id: "keyword", caps: allTypesCaps()},
	)
	p := New(reg, Config{})

	snap := health.Snapshot{
		"vector": health.NewBackend("vector", health.Unreachable, time.Now(), 0, 0),
	}
	subs, err := p.Plan(context.Background(), mustQuery(t, nil, query.Filters{}), snap)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("Plan() produced %d sub-queries, want 1", len(subs))
	}
	if subs[0].BackendID() != "keyword" {
		t.Errorf("BackendID() = %q, want %q", subs[0].BackendID(), "keyword")
	}
}

func TestPlanKeepsUnreachableSoleProviderLowPriority(t *testing.T) {
	reg := mustRegistry(t,
		&stubAdapter{id: "keyword", caps: backend.Capabilities{
			ContentTypes: []domain.ContentType{domain.ContentDocument, domain.ContentArticle},
		}},
		&stubAdapter{id: "graph", caps: backend.Capabilities{
			ContentTypes: []domain.ContentType{domain.ContentEntity},
		}},
	)
	p := New(reg, Config{})

	snap := health.Snapshot{
		"graph": health.NewBackend("graph", health.Unreachable, time.Now(), 0, 0),
	}
	q := mustQuery(t, []domain.ContentType{domain.ContentDocument, domain.ContentEntity}, query.Filters{})

	subs, err := p.Plan(context.Background(), q, snap)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("Plan() produced %d sub-queries, want 2", len(subs))
	}

	byID := make(map[string]subquery.SubQuery, len(subs))
	for _, sq := range subs {
		byID[sq.BackendID()] = sq
	}
	graphSub, ok := byID["graph"]
	if !ok {
		t.Fatal("sole entity provider was dropped from the plan")
	}
	if !graphSub.LowPriority() {
		t.Error("unreachable sole provider not marked low priority")
	}
	keywordSub := byID["keyword"]
	if keywordSub.LowPriority() {
		t.Error("healthy backend marked low priority")
	}
}

func TestPlanNoEligibleBackends(t *testing.T) {
	reg := mustRegistry(t, &stubAdapter{id: "graph", caps: backend.Capabilities{
		ContentTypes: []domain.ContentType{domain.ContentEntity},
	}})
	p := New(reg, Config{})

	q := mustQuery(t, []domain.ContentType{domain.ContentReport}, query.Filters{})
	_, err := p.Plan(context.Background(), q, health.Snapshot{})
	if !errors.Is(err, domain.ErrNoEligibleBackends) {
		t.Fatalf("Plan() error = %v, want ErrNoEligibleBackends", err)
	}
}

func TestPlanAllBackendsUnreachable(t *testing.T) {
	reg := mustRegistry(t,
		&stubAdapter{id: "vector", caps: allTypesCaps()},
		&stubAdapter{id: "keyword", caps: allTypesCaps()},
	)
	p := New(reg, Config{})

	snap := health.Snapshot{
		"vector":  health.NewBackend("vector", health.Unreachable, time.Now(), 0, 0),
		"keyword": health.NewBackend("keyword", health.Unreachable, time.Now(), 0, 0),
	}

	// Both serve every type, so neither is a sole provider and both drop out.
	_, err := p.Plan(context.Background(), mustQuery(t, nil, query.Filters{}), snap)
	if !errors.Is(err, domain.ErrNoEligibleBackends) {
		t.Fatalf("Plan() error = %v, want ErrNoEligibleBackends", err)
	}
}

func TestPlanSplitsFiltersByCapability(t *testing.T) {
	caps := backend.Capabilities{
		ContentTypes:  domain.AllContentTypes(),
		NativeTags:    false,
		NativeSources: true,
		NativeDates:   true,
	}
	reg := mustRegistry(t, &stubAdapter{id: "graph", caps: caps})
	p := New(reg, Config{})

	dates, err := query.NewDateRange(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("NewDateRange() error = %v", err)
	}
	filters := query.NewFilters(dates, []string{"caching"}, []string{"infra"}, []string{"docs"})

	subs, err := p.Plan(context.Background(), mustQuery(t, nil, filters), health.Snapshot{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	pd := subs[0].Pushdown()
	hints := subs[0].Hints()

	if pd.Dates().IsZero() {
		t.Error("native date filter not pushed down")
	}
	if len(pd.Sources()) != 1 {
		t.Errorf("pushdown sources = %v, want [docs]", pd.Sources())
	}
	if len(pd.Tags()) != 0 {
		t.Errorf("pushdown tags = %v, want none", pd.Tags())
	}
	if len(hints.Tags()) != 1 {
		t.Errorf("hint tags = %v, want [caching]", hints.Tags())
	}
	if len(hints.Categories()) != 1 {
		t.Errorf("hint categories = %v, want [infra]", hints.Categories())
	}
	if !hints.Dates().IsZero() {
		t.Error("native date filter leaked into hints")
	}
}

func TestPlanAppliesTimeoutsAndEmbeddingModel(t *testing.T) {
	reg := mustRegistry(t,
		&stubAdapter{id: "vector", caps: allTypesCaps()},
		&stubAdapter{id: "keyword", caps: allTypesCaps()},
	)
	p := New(reg, Config{
		Timeouts:        map[string]time.Duration{"vector": 750 * time.Millisecond},
		DefaultTimeout:  2 * time.Second,
		EmbeddingModels: map[string]string{"vector": "text-embedding-3-small"},
	})

	subs, err := p.Plan(context.Background(), mustQuery(t, nil, query.Filters{}), health.Snapshot{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	byID := make(map[string]subquery.SubQuery, len(subs))
	for _, sq := range subs {
		byID[sq.BackendID()] = sq
	}
	vectorSub := byID["vector"]
	keywordSub := byID["keyword"]
	if got := vectorSub.Timeout(); got != 750*time.Millisecond {
		t.Errorf("vector timeout = %s, want 750ms", got)
	}
	if got := keywordSub.Timeout(); got != 2*time.Second {
		t.Errorf("keyword timeout = %s, want 2s", got)
	}
	if got := vectorSub.EmbeddingModel(); got != "text-embedding-3-small" {
		t.Errorf("vector embedding model = %q", got)
	}
	if got := keywordSub.EmbeddingModel(); got != "" {
		t.Errorf("keyword embedding model = %q, want empty", got)
	}
}

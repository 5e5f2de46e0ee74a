package keyword

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/meta"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

func seededAdapter(t *testing.T) *Adapter {
	t.Helper()

	a, err := NewMem()
	if err != nil {
		t.Fatalf("NewMem() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	docs := []Document{
		{
			ID:        "doc-caching",
			Type:      domain.ContentDocument,
			Title:     "Caching strategies",
			Body:      "A survey of caching strategies for distributed systems.",
			Source:    "eng-blog",
			Category:  "infrastructure",
			Tags:      []string{"caching", "performance"},
			Published: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "doc-queues",
			Type:      domain.ContentArticle,
			Title:     "Queueing basics",
			Body:      "Message queues decouple producers from consumers.",
			Source:    "docs",
			Category:  "messaging",
			Tags:      []string{"queues"},
			Published: time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "rep-caching",
			Type:      domain.ContentReport,
			Title:     "Cache hit rates Q1",
			Body:      "Quarterly report on caching effectiveness across services.",
			Source:    "analytics",
			Category:  "infrastructure",
			Tags:      []string{"caching", "report"},
			Published: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, d := range docs {
		if err := a.Index(d); err != nil {
			t.Fatalf("Index(%s) error = %v", d.ID, err)
		}
	}
	return a
}

func mustSubQuery(t *testing.T, text string, types []domain.ContentType, pushdown query.Filters) subquery.SubQuery {
	t.Helper()
	sq, err := subquery.New(BackendID, text, 10, types, pushdown, query.Filters{}, false, time.Second)
	if err != nil {
		t.Fatalf("subquery.New() error = %v", err)
	}
	return sq
}

func TestSearchMatchesText(t *testing.T) {
	a := seededAdapter(t)

	sq := mustSubQuery(t, "caching", nil, query.Filters{})
	cands, err := a.Search(context.Background(), sq)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("Search() returned %d candidates, want 2", len(cands))
	}
	for _, c := range cands {
		if c.BackendID() != BackendID {
			t.Errorf("candidate %s backend = %q, want %q", c.ContentID(), c.BackendID(), BackendID)
		}
		if c.RawScore() <= 0 {
			t.Errorf("candidate %s raw score = %v, want > 0", c.ContentID(), c.RawScore())
		}
	}
}

func TestSearchFiltersByContentType(t *testing.T) {
	a := seededAdapter(t)

	sq := mustSubQuery(t, "caching", []domain.ContentType{domain.ContentReport}, query.Filters{})
	cands, err := a.Search(context.Background(), sq)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("Search() returned %d candidates, want 1", len(cands))
	}
	if got := cands[0].ContentID(); got != "rep-caching" {
		t.Errorf("ContentID() = %q, want %q", got, "rep-caching")
	}
}

func TestSearchFiltersBySourceAndDates(t *testing.T) {
	a := seededAdapter(t)

	dates, err := query.NewDateRange(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("NewDateRange() error = %v", err)
	}
	pushdown := query.NewFilters(dates, nil, nil, []string{"eng-blog"})

	sq := mustSubQuery(t, "caching", nil, pushdown)
	cands, err := a.Search(context.Background(), sq)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("Search() returned %d candidates, want 1", len(cands))
	}
	if got := cands[0].ContentID(); got != "doc-caching" {
		t.Errorf("ContentID() = %q, want %q", got, "doc-caching")
	}
}

func TestSearchNoMatches(t *testing.T) {
	a := seededAdapter(t)

	sq := mustSubQuery(t, "kubernetes", nil, query.Filters{})
	cands, err := a.Search(context.Background(), sq)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("Search() returned %d candidates, want 0", len(cands))
	}
}

func TestSearchPopulatesMetadataAndHighlights(t *testing.T) {
	a := seededAdapter(t)

	sq := mustSubQuery(t, "queues", nil, query.Filters{})
	cands, err := a.Search(context.Background(), sq)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("Search() returned %d candidates, want 1", len(cands))
	}

	c := cands[0]
	if src, ok := c.Meta(meta.KeySource); !ok {
		t.Error("source metadata missing")
	} else if s, _ := src.Str(); s != "docs" {
		t.Errorf("source = %q, want %q", s, "docs")
	}
	if tags, ok := c.Meta(meta.KeyTags); !ok {
		t.Error("tags metadata missing")
	} else if !tags.Contains("queues") {
		t.Errorf("tags %v do not contain %q", tags, "queues")
	}
	if len(c.Highlights()) == 0 {
		t.Error("expected highlight fragments for a text match")
	}
}

func TestSearchCanceledContext(t *testing.T) {
	a := seededAdapter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sq := mustSubQuery(t, "caching", nil, query.Filters{})
	if _, err := a.Search(ctx, sq); err == nil {
		t.Fatal("Search() with canceled context returned nil error")
	}
}

func TestIndexRejectsEmptyID(t *testing.T) {
	a, err := NewMem()
	if err != nil {
		t.Fatalf("NewMem() error = %v", err)
	}
	defer a.Close()

	if err := a.Index(Document{Title: "no id"}); err == nil {
		t.Fatal("Index() with empty ID returned nil error")
	}
}

func TestExcerptOfCutsOnRuneBoundary(t *testing.T) {
	short := "short body"
	if got := excerptOf(short); got != short {
		t.Errorf("excerptOf() = %q, want unchanged", got)
	}

	// 100 three-byte runes = 300 bytes; 280 falls mid-rune.
	long := strings.Repeat("日", 100)
	got := excerptOf(long)
	if len(got) > maxExcerptLen {
		t.Errorf("excerpt is %d bytes, want <= %d", len(got), maxExcerptLen)
	}
	if !utf8.ValidString(got) {
		t.Errorf("excerpt is not valid UTF-8: %q", got)
	}
	if want := strings.Repeat("日", 93); got != want {
		t.Errorf("excerpt holds %d runes, want 93", utf8.RuneCountInString(got))
	}
}

func TestCandidateFromHitHighlightOrder(t *testing.T) {
	fragments := map[string][]string{
		"title": {"<mark>Caching</mark> strategies"},
		"body":  {"survey of <mark>caching</mark>"},
	}

	for i := 0; i < 10; i++ {
		c := candidateFromHit("doc-caching", 1.0, map[string]any{}, fragments)
		hl := c.Highlights()
		if len(hl) != 2 {
			t.Fatalf("Highlights() returned %d fragments, want 2", len(hl))
		}
		if hl[0] != "survey of <mark>caching</mark>" || hl[1] != "<mark>Caching</mark> strategies" {
			t.Fatalf("Highlights() = %v, want body fragment before title fragment", hl)
		}
	}
}

package query

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateRange bounds candidate publication dates. Zero boundaries are open.
type DateRange struct {
	from time.Time
	to   time.Time
}

// NewDateRange validates and creates a DateRange.
func NewDateRange(from, to time.Time) (DateRange, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return DateRange{}, fmt.Errorf("date range end %s before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return DateRange{from: from, to: to}, nil
}

// From returns the inclusive lower bound (zero = open).
func (d DateRange) From() time.Time { return d.from }

// To returns the inclusive upper bound (zero = open).
func (d DateRange) To() time.Time { return d.to }

// IsZero reports whether both boundaries are open.
func (d DateRange) IsZero() bool { return d.from.IsZero() && d.to.IsZero() }

// Contains reports whether t falls inside the range.
func (d DateRange) Contains(t time.Time) bool {
	if !d.from.IsZero() && t.Before(d.from) {
		return false
	}
	if !d.to.IsZero() && t.After(d.to) {
		return false
	}
	return true
}

// Filters restricts candidates by date, tag, category, and source.
// Values are normalized (trimmed, lowercased, sorted, deduplicated) so that
// identical filter sets hash identically.
type Filters struct {
	dates      DateRange
	tags       []string
	categories []string
	sources    []string
}

// NewFilters creates a normalized filter set.
func NewFilters(dates DateRange, tags, categories, sources []string) Filters {
	return Filters{
		dates:      dates,
		tags:       normalizeTerms(tags),
		categories: normalizeTerms(categories),
		sources:    normalizeTerms(sources),
	}
}

// Dates returns the date range.
func (f Filters) Dates() DateRange { return f.dates }

// Tags returns the tag restrictions.
func (f Filters) Tags() []string { return f.tags }

// Categories returns the category restrictions.
func (f Filters) Categories() []string { return f.categories }

// Sources returns the source restrictions.
func (f Filters) Sources() []string { return f.sources }

// IsEmpty reports whether no restriction is set.
func (f Filters) IsEmpty() bool {
	return f.dates.IsZero() && len(f.tags) == 0 && len(f.categories) == 0 && len(f.sources) == 0
}

func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

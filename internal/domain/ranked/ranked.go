// Package ranked holds fusion output: ordered, deduplicated results and facets.
package ranked

import "github.com/kailas-cloud/retrio/internal/domain"

// Result is a fused, scored search hit. Derived during fusion; the final
// list is immutable once returned.
type Result struct {
	contentID   string
	contentType domain.ContentType
	title       string
	excerpt     string
	score       float64
	backends    []string
	rank        int
	highlights  []string
}

// New creates a ranked result.
func New(
	contentID string,
	contentType domain.ContentType,
	title, excerpt string,
	score float64,
	backends []string,
	rank int,
	highlights []string,
) Result {
	return Result{
		contentID:   contentID,
		contentType: contentType,
		title:       title,
		excerpt:     excerpt,
		score:       score,
		backends:    backends,
		rank:        rank,
		highlights:  highlights,
	}
}

// ContentID returns the content identifier.
func (r *Result) ContentID() string { return r.contentID }

// ContentType returns the content classification.
func (r *Result) ContentType() domain.ContentType { return r.contentType }

// Title returns the display title.
func (r *Result) Title() string { return r.title }

// Excerpt returns the body excerpt.
func (r *Result) Excerpt() string { return r.excerpt }

// Score returns the fused score, normalized to [0,1].
func (r *Result) Score() float64 { return r.score }

// Backends returns every backend that found this content (traceability
// for tooltips and source attribution).
func (r *Result) Backends() []string { return r.backends }

// Rank returns the 1-based position in the final ordering.
func (r *Result) Rank() int { return r.rank }

// Highlights returns merged matched-fragment snippets.
func (r *Result) Highlights() []string { return r.highlights }

// Facets aggregates counts over the full pre-truncation matching set,
// so filtering UIs see the matching population rather than one page.
type Facets struct {
	Types      map[string]int
	Sources    map[string]int
	Tags       map[string]int
	Categories map[string]int
	Dates      map[string]int // coarse "2006-01" month buckets
}

// NewFacets creates an empty facet aggregate.
func NewFacets() Facets {
	return Facets{
		Types:      make(map[string]int),
		Sources:    make(map[string]int),
		Tags:       make(map[string]int),
		Categories: make(map[string]int),
		Dates:      make(map[string]int),
	}
}

// Package query holds the validated, immutable search query.
package query

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/retrio/internal/domain"
)

// Query parameter limits.
const (
	MaxQueryLength    = 1024
	DefaultMaxResults = 20
	MaxMaxResults     = 100
	DefaultLanguage   = "en"
)

// Query is a validated retrieval request. Immutable once dispatched.
type Query struct {
	text       string
	types      []domain.ContentType
	filters    Filters
	threshold  float64
	maxResults int
	language   string
}

// New validates and normalizes query parameters.
// Empty types means all content types. maxResults defaults to 20, capped at 100.
func New(
	text string,
	types []domain.ContentType,
	filters Filters,
	threshold float64,
	maxResults int,
	language string,
) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, fmt.Errorf("%w: query text is required", domain.ErrInvalidQuery)
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("%w: query text too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if threshold < 0 || threshold > 1 {
		return Query{}, fmt.Errorf("%w: similarity_threshold must be between 0 and 1", domain.ErrInvalidQuery)
	}
	normalized, err := normalizeTypes(types)
	if err != nil {
		return Query{}, err
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > MaxMaxResults {
		maxResults = MaxMaxResults
	}
	if language == "" {
		language = DefaultLanguage
	}

	return Query{
		text:       text,
		types:      normalized,
		filters:    filters,
		threshold:  threshold,
		maxResults: maxResults,
		language:   strings.ToLower(language),
	}, nil
}

func normalizeTypes(types []domain.ContentType) ([]domain.ContentType, error) {
	if len(types) == 0 {
		return nil, nil
	}
	seen := make(map[domain.ContentType]struct{}, len(types))
	out := make([]domain.ContentType, 0, len(types))
	for _, t := range types {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: unknown content type %q", domain.ErrInvalidQuery, t)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Text returns the query text.
func (q *Query) Text() string { return q.text }

// ContentTypes returns the requested content types (nil = all).
func (q *Query) ContentTypes() []domain.ContentType { return q.types }

// Filters returns the filter restrictions.
func (q *Query) Filters() Filters { return q.filters }

// Threshold returns the minimum fused score to keep a result.
func (q *Query) Threshold() float64 { return q.threshold }

// MaxResults returns the result page size.
func (q *Query) MaxResults() int { return q.maxResults }

// Language returns the query language code.
func (q *Query) Language() string { return q.language }

// WantsType reports whether the query accepts content of type t.
func (q *Query) WantsType(t domain.ContentType) bool {
	if len(q.types) == 0 {
		return true
	}
	for _, want := range q.types {
		if want == t {
			return true
		}
	}
	return false
}

// CacheKey derives a stable key over the normalized query for result caching.
func (q *Query) CacheKey() string {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	write(strings.ToLower(q.text))
	write(q.language)
	write(fmt.Sprintf("%.4f|%d", q.threshold, q.maxResults))
	for _, t := range q.types {
		write(string(t))
	}
	for _, s := range q.filters.Tags() {
		write("t:" + s)
	}
	for _, s := range q.filters.Categories() {
		write("c:" + s)
	}
	for _, s := range q.filters.Sources() {
		write("s:" + s)
	}
	d := q.filters.Dates()
	if !d.IsZero() {
		write(d.From().UTC().Format(time.RFC3339) + ".." + d.To().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("q:%016x", h.Sum64())
}

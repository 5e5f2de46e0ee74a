// Package fusion merges per-backend candidate batches into one ranked,
// deduplicated result list with facets over the matching population.
package fusion

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/meta"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/ranked"
)

// lowPriorityFactor halves the weight of backends the planner kept only for
// sole content-type coverage.
const lowPriorityFactor = 0.5

// BackendResults is one backend's contribution to fusion, as assembled from
// a dispatch outcome.
type BackendResults struct {
	BackendID   string
	Candidates  []candidate.Candidate
	LowPriority bool
	// Hints are the filters the backend could not apply natively; fusion
	// enforces them here before deduplication.
	Hints query.Filters
}

// Output is the fused response body.
type Output struct {
	Results     []ranked.Result
	Facets      ranked.Facets
	Suggestions []string
	// TotalMatched counts results above threshold before page truncation.
	TotalMatched int
}

// Engine fuses candidate batches. Scoring is deterministic: identical inputs
// produce identical output, ties break on content ID.
type Engine struct {
	normalizers map[string]Normalizer
	weights     map[string]float64
}

// NewEngine creates an engine with min-max normalization and weight 1.0 for
// every backend.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		normalizers: make(map[string]Normalizer),
		weights:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures the engine.
type Option func(*Engine)

// WithNormalizer overrides the score normalizer for one backend.
func WithNormalizer(backendID string, n Normalizer) Option {
	return func(e *Engine) { e.normalizers[backendID] = n }
}

// WithWeight overrides the fusion weight for one backend.
func WithWeight(backendID string, w float64) Option {
	return func(e *Engine) { e.weights[backendID] = w }
}

// merged accumulates one content item across backends.
type merged struct {
	contentID  string
	weighted   float64
	best       float64 // highest normalized score, picks the representative
	repr       candidate.Candidate
	backends   []string
	highlights []string
	metadata   map[string]meta.Value
}

// Fuse applies hint post-filters, normalizes each batch, merges duplicates,
// and ranks. The final score for an item is the weighted sum of its
// normalized per-backend scores divided by the total weight of all
// contributing backends, so multi-backend agreement outranks any single hit.
func (e *Engine) Fuse(q query.Query, batches []BackendResults) Output {
	var weightSum float64
	items := make(map[string]*merged)

	for _, batch := range batches {
		kept := applyHints(batch.Candidates, batch.Hints)
		if len(kept) == 0 {
			continue
		}

		weight := e.weightOf(batch.BackendID)
		if batch.LowPriority {
			weight *= lowPriorityFactor
		}
		weightSum += weight

		raw := make([]float64, len(kept))
		for i, c := range kept {
			raw[i] = c.RawScore()
		}
		norm := e.normalizerOf(batch.BackendID)(raw)

		for i, c := range kept {
			e.accumulate(items, c, norm[i], weight, batch.BackendID)
		}
	}

	if weightSum == 0 {
		return Output{
			Facets:      ranked.NewFacets(),
			Suggestions: suggestions(q),
		}
	}

	// Above-threshold set, before page truncation: feeds facets and totals.
	matched := make([]*merged, 0, len(items))
	for _, m := range items {
		score := m.weighted / weightSum
		if score < q.Threshold() {
			continue
		}
		m.weighted = score
		matched = append(matched, m)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].weighted != matched[j].weighted {
			return matched[i].weighted > matched[j].weighted
		}
		return matched[i].contentID < matched[j].contentID
	})

	out := Output{
		Facets:       facetsOf(matched),
		TotalMatched: len(matched),
	}

	page := matched
	if len(page) > q.MaxResults() {
		page = page[:q.MaxResults()]
	}
	out.Results = make([]ranked.Result, len(page))
	for i, m := range page {
		sort.Strings(m.backends)
		out.Results[i] = ranked.New(
			m.contentID,
			m.repr.ContentType(),
			m.repr.Title(),
			m.repr.Excerpt(),
			m.weighted,
			m.backends,
			i+1,
			m.highlights,
		)
	}

	if len(out.Results) == 0 {
		out.Suggestions = suggestions(q)
	}
	return out
}

func (e *Engine) accumulate(items map[string]*merged, c candidate.Candidate, norm, weight float64, backendID string) {
	m, ok := items[c.ContentID()]
	if !ok {
		m = &merged{
			contentID: c.ContentID(),
			best:      -1,
			metadata:  make(map[string]meta.Value, len(c.Metadata())),
		}
		items[c.ContentID()] = m
	}

	m.weighted += weight * norm
	m.backends = append(m.backends, backendID)
	m.highlights = appendUnique(m.highlights, c.Highlights())
	for k, v := range c.Metadata() {
		if _, exists := m.metadata[k]; !exists {
			m.metadata[k] = v
		}
	}
	if norm > m.best {
		m.best = norm
		m.repr = c
	}
}

func (e *Engine) normalizerOf(backendID string) Normalizer {
	if n, ok := e.normalizers[backendID]; ok {
		return n
	}
	return MinMax
}

func (e *Engine) weightOf(backendID string) float64 {
	if w, ok := e.weights[backendID]; ok && w > 0 {
		return w
	}
	return 1.0
}

// applyHints drops candidates that fail the deferred filters. A candidate
// missing the metadata a hint needs cannot be verified and is dropped.
func applyHints(cands []candidate.Candidate, hints query.Filters) []candidate.Candidate {
	if hints.IsEmpty() {
		return cands
	}
	kept := make([]candidate.Candidate, 0, len(cands))
	for _, c := range cands {
		if passesHints(&c, hints) {
			kept = append(kept, c)
		}
	}
	return kept
}

func passesHints(c *candidate.Candidate, hints query.Filters) bool {
	if tags := hints.Tags(); len(tags) > 0 {
		if !matchesAny(c, meta.KeyTags, tags) {
			return false
		}
	}
	if cats := hints.Categories(); len(cats) > 0 {
		if !matchesAny(c, meta.KeyCategory, cats) {
			return false
		}
	}
	if srcs := hints.Sources(); len(srcs) > 0 {
		if !matchesAny(c, meta.KeySource, srcs) {
			return false
		}
	}
	if d := hints.Dates(); !d.IsZero() {
		v, ok := c.Meta(meta.KeyPublished)
		if !ok {
			return false
		}
		ts, ok := v.Time()
		if !ok || !d.Contains(ts) {
			return false
		}
	}
	return true
}

// matchesAny reports whether the candidate's metadata value matches one of
// the (already lowercased) filter terms.
func matchesAny(c *candidate.Candidate, key string, terms []string) bool {
	v, ok := c.Meta(key)
	if !ok {
		return false
	}
	for _, term := range terms {
		if v.Contains(term) {
			return true
		}
		if s, isStr := v.Str(); isStr && strings.ToLower(s) == term {
			return true
		}
		if list, isList := v.List(); isList {
			for _, item := range list {
				if strings.ToLower(item) == term {
					return true
				}
			}
		}
	}
	return false
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		dup := false
		for _, have := range dst {
			if have == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}

// suggestions proposes query relaxations when nothing matched.
func suggestions(q query.Query) []string {
	var out []string
	if !q.Filters().IsEmpty() {
		out = append(out, "remove or relax filters")
	}
	if q.Threshold() > 0 {
		out = append(out, "lower the similarity threshold")
	}
	if len(q.ContentTypes()) > 0 {
		out = append(out, "broaden the content types")
	}
	if len(strings.Fields(q.Text())) > 3 {
		out = append(out, "use fewer, more general terms")
	}
	if len(out) == 0 {
		out = append(out, "try different search terms")
	}
	return out
}

// Package keyword implements the backend adapter over a bleve full-text
// index. Raw scores are bleve's TF-IDF relevance, unbounded above.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/meta"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

// BackendID identifies the keyword backend in sub-queries and health records.
const BackendID = "keyword"

// Indexed field names.
const (
	fieldTitle     = "title"
	fieldBody      = "body"
	fieldType      = "content_type"
	fieldSource    = "source"
	fieldCategory  = "category"
	fieldTags      = "tags"
	fieldPublished = "published_at"
)

// Document is one piece of content in the keyword index.
type Document struct {
	ID        string
	Type      domain.ContentType
	Title     string
	Body      string
	Source    string
	Category  string
	Tags      []string
	Published time.Time
}

// Adapter implements backend.Adapter over a bleve index.
type Adapter struct {
	index bleve.Index
}

var _ backend.Adapter = (*Adapter)(nil)

// New opens (or creates) a persistent keyword index at path.
func New(path string) (*Adapter, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	return &Adapter{index: idx}, nil
}

// NewMem creates an in-memory keyword index (tests, local runs).
func NewMem() (*Adapter, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Adapter{index: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	date := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldTitle, text)
	doc.AddFieldMappingsAt(fieldBody, text)
	doc.AddFieldMappingsAt(fieldType, exact)
	doc.AddFieldMappingsAt(fieldSource, exact)
	doc.AddFieldMappingsAt(fieldCategory, exact)
	doc.AddFieldMappingsAt(fieldTags, exact)
	doc.AddFieldMappingsAt(fieldPublished, date)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Index adds or replaces one document.
func (a *Adapter) Index(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	fields := map[string]any{
		fieldTitle:    doc.Title,
		fieldBody:     doc.Body,
		fieldType:     string(doc.Type),
		fieldSource:   doc.Source,
		fieldCategory: doc.Category,
		fieldTags:     doc.Tags,
	}
	if !doc.Published.IsZero() {
		fields[fieldPublished] = doc.Published.Format(time.RFC3339)
	}
	if err := a.index.Index(doc.ID, fields); err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	return nil
}

// Close releases the index.
func (a *Adapter) Close() error {
	if err := a.index.Close(); err != nil {
		return fmt.Errorf("close keyword index: %w", err)
	}
	return nil
}

// ID implements backend.Adapter.
func (a *Adapter) ID() string { return BackendID }

// Capabilities implements backend.Adapter. All filter dimensions are
// expressible as term or date-range clauses.
func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		ContentTypes:     domain.AllContentTypes(),
		NativeTags:       true,
		NativeCategories: true,
		NativeSources:    true,
		NativeDates:      true,
	}
}

// Search runs a filtered full-text query with highlighting.
func (a *Adapter) Search(ctx context.Context, sq subquery.SubQuery) ([]candidate.Candidate, error) {
	req := bleve.NewSearchRequestOptions(buildQuery(sq), sq.TopK(), 0, false)
	req.Fields = []string{
		fieldTitle, fieldBody, fieldType, fieldSource, fieldCategory, fieldTags, fieldPublished,
	}
	req.Highlight = bleve.NewHighlight()

	res, err := a.index.SearchInContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("keyword search: %w: %w", domain.ErrBackendUnavailable, err)
	}

	cands := make([]candidate.Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		cands = append(cands, candidateFromHit(hit.ID, hit.Score, hit.Fields, hit.Fragments))
	}
	return cands, nil
}

// buildQuery combines the text match with native term/date filters.
func buildQuery(sq subquery.SubQuery) blevequery.Query {
	match := bleve.NewMatchQuery(sq.Text())

	conjuncts := []blevequery.Query{blevequery.Query(match)}

	if types := sq.ContentTypes(); len(types) > 0 {
		vals := make([]string, len(types))
		for i, t := range types {
			vals[i] = string(t)
		}
		conjuncts = append(conjuncts, termDisjunction(fieldType, vals))
	}

	f := sq.Pushdown()
	if tags := f.Tags(); len(tags) > 0 {
		conjuncts = append(conjuncts, termDisjunction(fieldTags, tags))
	}
	if cats := f.Categories(); len(cats) > 0 {
		conjuncts = append(conjuncts, termDisjunction(fieldCategory, cats))
	}
	if srcs := f.Sources(); len(srcs) > 0 {
		conjuncts = append(conjuncts, termDisjunction(fieldSource, srcs))
	}
	if d := f.Dates(); !d.IsZero() {
		from := d.From()
		to := d.To()
		dateQuery := bleve.NewDateRangeQuery(from, to)
		dateQuery.SetField(fieldPublished)
		conjuncts = append(conjuncts, dateQuery)
	}

	if len(conjuncts) == 1 {
		return match
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

func termDisjunction(field string, values []string) blevequery.Query {
	if len(values) == 1 {
		tq := bleve.NewTermQuery(values[0])
		tq.SetField(field)
		return tq
	}
	dis := bleve.NewDisjunctionQuery()
	for _, v := range values {
		tq := bleve.NewTermQuery(v)
		tq.SetField(field)
		dis.AddQuery(tq)
	}
	return dis
}

func candidateFromHit(
	id string, score float64,
	fields map[string]any,
	fragments map[string][]string,
) candidate.Candidate {
	md := make(map[string]meta.Value, 4)
	if src, _ := fields[fieldSource].(string); src != "" {
		md[meta.KeySource] = meta.String(src)
	}
	if cat, _ := fields[fieldCategory].(string); cat != "" {
		md[meta.KeyCategory] = meta.String(cat)
	}
	if tags := stringList(fields[fieldTags]); len(tags) > 0 {
		md[meta.KeyTags] = meta.Strings(tags...)
	}
	if ts, _ := fields[fieldPublished].(string); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			md[meta.KeyPublished] = meta.Time(t.UTC())
		}
	}

	// Fragment map iteration order is random; sort fields for stable output.
	fragFields := make([]string, 0, len(fragments))
	for field := range fragments {
		fragFields = append(fragFields, field)
	}
	sort.Strings(fragFields)
	var highlights []string
	for _, field := range fragFields {
		highlights = append(highlights, fragments[field]...)
	}

	title, _ := fields[fieldTitle].(string)
	body, _ := fields[fieldBody].(string)
	contentType, _ := fields[fieldType].(string)

	return candidate.New(
		id,
		domain.ContentType(contentType),
		title,
		excerptOf(body),
		score,
		BackendID,
		md,
		highlights,
	)
}

// stringList coerces a bleve stored field (string or []any) into a slice.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

const maxExcerptLen = 280

// excerptOf caps the body at maxExcerptLen bytes, cutting on a rune boundary.
func excerptOf(body string) string {
	if len(body) <= maxExcerptLen {
		return body
	}
	cut := maxExcerptLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

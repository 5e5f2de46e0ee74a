// Package subquery holds the backend-specific projection of a query.
// A SubQuery is owned by the dispatcher for the duration of one request.
package subquery

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/query"
)

// SubQuery targets one backend with pushed-down filters and a per-backend timeout.
// Filters the backend cannot express natively travel as post-filter hints,
// applied during fusion instead.
type SubQuery struct {
	backendID      string
	text           string
	topK           int
	types          []domain.ContentType
	pushdown       query.Filters
	hints          query.Filters
	lowPriority    bool
	embeddingModel string
	timeout        time.Duration
}

// New validates and creates a SubQuery.
func New(
	backendID, text string,
	topK int,
	types []domain.ContentType,
	pushdown, hints query.Filters,
	lowPriority bool,
	timeout time.Duration,
) (SubQuery, error) {
	if backendID == "" {
		return SubQuery{}, fmt.Errorf("backend id is required")
	}
	if text == "" {
		return SubQuery{}, fmt.Errorf("sub-query text is required")
	}
	if topK <= 0 {
		return SubQuery{}, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if timeout <= 0 {
		return SubQuery{}, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	return SubQuery{
		backendID:   backendID,
		text:        text,
		topK:        topK,
		types:       types,
		pushdown:    pushdown,
		hints:       hints,
		lowPriority: lowPriority,
		timeout:     timeout,
	}, nil
}

// WithEmbeddingModel returns a copy carrying the embedding space identifier
// (vector backends only).
func (s SubQuery) WithEmbeddingModel(model string) SubQuery {
	s.embeddingModel = model
	return s
}

// BackendID returns the target backend.
func (s *SubQuery) BackendID() string { return s.backendID }

// Text returns the query text.
func (s *SubQuery) Text() string { return s.text }

// TopK returns the number of candidates to retrieve.
func (s *SubQuery) TopK() int { return s.topK }

// ContentTypes returns the requested content types (nil = all the backend serves).
func (s *SubQuery) ContentTypes() []domain.ContentType { return s.types }

// Pushdown returns the filters the backend applies natively.
func (s *SubQuery) Pushdown() query.Filters { return s.pushdown }

// Hints returns the filters deferred to fusion post-filtering.
func (s *SubQuery) Hints() query.Filters { return s.hints }

// LowPriority reports whether fusion should down-weight this backend's
// contribution (unreachable backend kept for sole content-type coverage).
func (s *SubQuery) LowPriority() bool { return s.lowPriority }

// EmbeddingModel returns the embedding space identifier, if any.
func (s *SubQuery) EmbeddingModel() string { return s.embeddingModel }

// Timeout returns the per-backend deadline budget.
func (s *SubQuery) Timeout() time.Duration { return s.timeout }

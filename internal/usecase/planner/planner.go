// Package planner decomposes a validated query into per-backend sub-queries.
package planner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
	"github.com/kailas-cloud/retrio/internal/logger"
)

// DefaultTimeout is the per-backend budget when none is configured.
const DefaultTimeout = 2 * time.Second

// Config holds per-backend planning knobs.
type Config struct {
	// TopK is the per-backend retrieval depth. Planning widens it to the
	// query's max results when that is larger, so truncation happens at
	// fusion rather than at the backends.
	TopK int
	// Timeouts overrides the per-backend deadline budget by backend ID.
	Timeouts map[string]time.Duration
	// DefaultTimeout applies when Timeouts has no entry for a backend.
	DefaultTimeout time.Duration
	// EmbeddingModels pins the embedding space per backend ID, for backends
	// that vectorize the query text.
	EmbeddingModels map[string]string
}

// Planner turns a query plus a health snapshot into the sub-query set to
// dispatch. Identical inputs always yield the same plan: the registry is
// ID-ordered and nothing here reads clocks or randomness.
type Planner struct {
	registry *backend.Registry
	cfg      Config
}

// New creates a planner.
func New(registry *backend.Registry, cfg Config) *Planner {
	if cfg.TopK <= 0 {
		cfg.TopK = query.DefaultMaxResults
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	return &Planner{registry: registry, cfg: cfg}
}

// Plan selects eligible backends and builds one sub-query per backend.
//
// A backend is eligible when it serves at least one requested content type.
// Unreachable backends are excluded unless they are the only eligible
// provider of a requested type, in which case they are kept with the
// low-priority mark so fusion down-weights whatever they manage to return.
// Returns ErrNoEligibleBackends when nothing can serve the query.
func (p *Planner) Plan(ctx context.Context, q query.Query, snap health.Snapshot) ([]subquery.SubQuery, error) {
	wanted := q.ContentTypes()
	if len(wanted) == 0 {
		wanted = domain.AllContentTypes()
	}

	// Supporter counts over type-eligible backends, before health pruning.
	supporters := make(map[domain.ContentType]int, len(wanted))
	eligible := make([]backend.Adapter, 0, len(p.registry.All()))
	for _, a := range p.registry.All() {
		caps := a.Capabilities()
		serves := false
		for _, t := range wanted {
			if caps.Supports(t) {
				supporters[t]++
				serves = true
			}
		}
		if serves {
			eligible = append(eligible, a)
		}
	}

	topK := p.cfg.TopK
	if q.MaxResults() > topK {
		topK = q.MaxResults()
	}

	subs := make([]subquery.SubQuery, 0, len(eligible))
	for _, a := range eligible {
		lowPriority := false
		if snap.StatusOf(a.ID()) == health.Unreachable {
			if !p.soleSupporter(a, wanted, supporters) {
				logger.FromContext(ctx).Debug("skipping unreachable backend",
					zap.String("backend", a.ID()))
				continue
			}
			lowPriority = true
		}

		pushdown, hints := splitFilters(q.Filters(), a.Capabilities())

		sq, err := subquery.New(
			a.ID(),
			q.Text(),
			topK,
			requestedTypes(q, a.Capabilities()),
			pushdown,
			hints,
			lowPriority,
			p.timeoutFor(a.ID()),
		)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", a.ID(), err)
		}
		if model, ok := p.cfg.EmbeddingModels[a.ID()]; ok {
			sq = sq.WithEmbeddingModel(model)
		}
		subs = append(subs, sq)
	}

	if len(subs) == 0 {
		return nil, domain.ErrNoEligibleBackends
	}
	return subs, nil
}

// soleSupporter reports whether a is the only type-eligible backend serving
// some requested content type.
func (p *Planner) soleSupporter(a backend.Adapter, wanted []domain.ContentType, supporters map[domain.ContentType]int) bool {
	caps := a.Capabilities()
	for _, t := range wanted {
		if caps.Supports(t) && supporters[t] == 1 {
			return true
		}
	}
	return false
}

// requestedTypes narrows the query's type restriction to what the backend
// serves. Nil when the query accepts everything.
func requestedTypes(q query.Query, caps backend.Capabilities) []domain.ContentType {
	wanted := q.ContentTypes()
	if len(wanted) == 0 {
		return nil
	}
	out := make([]domain.ContentType, 0, len(wanted))
	for _, t := range wanted {
		if caps.Supports(t) {
			out = append(out, t)
		}
	}
	return out
}

// splitFilters routes each filter dimension to native pushdown or to a
// fusion-side post-filter hint, per the backend's capabilities.
func splitFilters(f query.Filters, caps backend.Capabilities) (pushdown, hints query.Filters) {
	var (
		pdDates, hDates query.DateRange
		pdTags, hTags   []string
		pdCats, hCats   []string
		pdSrcs, hSrcs   []string
	)

	if caps.NativeDates {
		pdDates = f.Dates()
	} else {
		hDates = f.Dates()
	}
	if caps.NativeTags {
		pdTags = f.Tags()
	} else {
		hTags = f.Tags()
	}
	if caps.NativeCategories {
		pdCats = f.Categories()
	} else {
		hCats = f.Categories()
	}
	if caps.NativeSources {
		pdSrcs = f.Sources()
	} else {
		hSrcs = f.Sources()
	}

	return query.NewFilters(pdDates, pdTags, pdCats, pdSrcs),
		query.NewFilters(hDates, hTags, hCats, hSrcs)
}

func (p *Planner) timeoutFor(backendID string) time.Duration {
	if d, ok := p.cfg.Timeouts[backendID]; ok && d > 0 {
		return d
	}
	return p.cfg.DefaultTimeout
}

// Package search orchestrates one retrieval request end to end: plan,
// dispatch, fuse, degrade.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/ranked"
	"github.com/kailas-cloud/retrio/internal/logger"
	"github.com/kailas-cloud/retrio/internal/usecase/fusion"
)

// DefaultMaxWait caps the whole backend fan-out per request.
const DefaultMaxWait = 3 * time.Second

// BackendTiming is one backend's contribution to the response analytics.
type BackendTiming struct {
	BackendID  string
	Elapsed    time.Duration
	Candidates int
	Failed     bool
}

// Analytics carries per-request observability data back to the caller.
type Analytics struct {
	TotalResults   int
	ProcessingTime time.Duration
	Backends       []BackendTiming
}

// Response is the assembled search result. Success is false only when every
// backend hard-failed; partial failure degrades to warnings instead.
type Response struct {
	Success     bool
	Results     []ranked.Result
	Facets      ranked.Facets
	Suggestions []string
	Warnings    []string
	Analytics   Analytics
}

// Service wires the planner, dispatcher, and fusion engine together.
type Service struct {
	planner    Planner
	dispatcher Dispatcher
	fuser      Fuser
	health     HealthReader

	maxWait time.Duration
	cache   *Cache
}

// New creates the search service.
func New(planner Planner, dispatcher Dispatcher, fuser Fuser, health HealthReader, opts ...Option) *Service {
	s := &Service{
		planner:    planner,
		dispatcher: dispatcher,
		fuser:      fuser,
		health:     health,
		maxWait:    DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures the service.
type Option func(*Service)

// WithMaxWait overrides the global fan-out deadline.
func WithMaxWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxWait = d
		}
	}
}

// WithCache enables response caching.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// Search runs one query. Plan and dispatch errors propagate; per-backend
// failures with surviving candidates degrade into response warnings. Clean
// responses are cached by normalized query.
func (s *Service) Search(ctx context.Context, q query.Query) (Response, error) {
	if s.cache != nil {
		if resp, ok := s.cache.Get(q.CacheKey()); ok {
			return resp, nil
		}
	}

	start := time.Now()

	subs, err := s.planner.Plan(ctx, q, s.health.Snapshot())
	if err != nil {
		return Response{}, fmt.Errorf("plan query: %w", err)
	}

	outcomes, dispatchErr := s.dispatcher.Dispatch(ctx, subs, s.maxWait)
	resp := Response{Analytics: Analytics{Backends: make([]BackendTiming, 0, len(outcomes))}}

	batches := make([]fusion.BackendResults, 0, len(outcomes))
	for i, o := range outcomes {
		resp.Analytics.Backends = append(resp.Analytics.Backends, BackendTiming{
			BackendID:  o.BackendID,
			Elapsed:    o.Elapsed,
			Candidates: len(o.Candidates),
			Failed:     o.Failed(),
		})
		if o.Err != nil {
			resp.Warnings = append(resp.Warnings, warningFor(o.BackendID, o.Err))
		}
		if len(o.Candidates) == 0 {
			continue
		}
		batches = append(batches, fusion.BackendResults{
			BackendID:   o.BackendID,
			Candidates:  o.Candidates,
			LowPriority: o.LowPriority,
			Hints:       subs[i].Hints(),
		})
	}

	if dispatchErr != nil {
		resp.Success = false
		resp.Analytics.ProcessingTime = time.Since(start)
		return resp, fmt.Errorf("dispatch query: %w", dispatchErr)
	}

	out := s.fuser.Fuse(q, batches)
	resp.Success = true
	resp.Results = out.Results
	resp.Facets = out.Facets
	resp.Suggestions = out.Suggestions
	resp.Analytics.TotalResults = out.TotalMatched
	resp.Analytics.ProcessingTime = time.Since(start)

	logger.FromContext(ctx).Info("search completed",
		zap.Int("results", len(resp.Results)),
		zap.Int("total_matched", out.TotalMatched),
		zap.Int("warnings", len(resp.Warnings)),
		zap.Duration("elapsed", resp.Analytics.ProcessingTime),
	)

	if s.cache != nil && len(resp.Warnings) == 0 {
		s.cache.Set(q.CacheKey(), resp)
	}
	return resp, nil
}

// warningFor renders a caller-facing degradation notice for one backend.
func warningFor(backendID string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s backend timed out; results may be incomplete", backendID)
	}
	return fmt.Sprintf("%s backend failed; results may be incomplete", backendID)
}

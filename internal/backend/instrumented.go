package backend

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
	"github.com/kailas-cloud/retrio/internal/logger"
	"github.com/kailas-cloud/retrio/internal/metrics"
)

// Instrumented wraps an Adapter with latency tracking, Prometheus metrics,
// and logging. The latency window it feeds is the source for the
// verification service's p50/p99 figures.
type Instrumented struct {
	inner   Adapter
	tracker *LatencyTracker
}

// NewInstrumented wraps an adapter with observability.
func NewInstrumented(inner Adapter, tracker *LatencyTracker) *Instrumented {
	if tracker == nil {
		tracker = NewLatencyTracker(DefaultLatencyWindow)
	}
	return &Instrumented{inner: inner, tracker: tracker}
}

// ID delegates to the wrapped adapter.
func (i *Instrumented) ID() string { return i.inner.ID() }

// Capabilities delegates to the wrapped adapter.
func (i *Instrumented) Capabilities() Capabilities { return i.inner.Capabilities() }

// Tracker exposes the rolling latency window.
func (i *Instrumented) Tracker() *LatencyTracker { return i.tracker }

// Search delegates to the wrapped adapter, recording latency and outcome.
func (i *Instrumented) Search(ctx context.Context, sq subquery.SubQuery) ([]candidate.Candidate, error) {
	start := time.Now()
	cands, err := i.inner.Search(ctx, sq)
	elapsed := time.Since(start)

	i.tracker.Observe(elapsed)
	metrics.BackendRequestDuration.WithLabelValues(i.ID()).Observe(elapsed.Seconds())
	metrics.BackendRequestsTotal.WithLabelValues(i.ID(), outcomeLabel(err)).Inc()
	if len(cands) > 0 {
		metrics.BackendCandidatesTotal.WithLabelValues(i.ID()).Add(float64(len(cands)))
	}

	if err != nil {
		logger.FromContext(ctx).Warn("backend search failed",
			zap.String("backend", i.ID()),
			zap.Duration("elapsed", elapsed),
			zap.Int("partial_candidates", len(cands)),
			zap.Error(err),
		)
	}
	return cands, err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrBackendProtocol):
		return "protocol_error"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

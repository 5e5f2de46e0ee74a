// Package verify runs periodic health probes against the configured
// backends and publishes the results to the health board.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
	"github.com/kailas-cloud/retrio/internal/logger"
	"github.com/kailas-cloud/retrio/internal/metrics"
)

// Defaults applied when the config leaves a knob unset.
const (
	DefaultInterval      = 30 * time.Second
	DefaultLatencyBudget = 2 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	probeTopK            = 5
)

// Probe is one synthetic query executed against one backend every cycle.
type Probe struct {
	BackendID string
	// Query is the probe text; pick one known to match seeded content.
	Query string
	// MinResults is the result floor below which the backend counts as degraded.
	MinResults int
	// ExpectContentID, when set, must appear among the probe's candidates.
	ExpectContentID string
}

// Config holds the probe schedule and classification thresholds.
type Config struct {
	Interval time.Duration
	// LatencyBudget is the p99 above which a responsive backend is degraded.
	LatencyBudget time.Duration
	ProbeTimeout  time.Duration
	Probes        []Probe
}

// Service drives the probe cycle. It is the sole writer to the health board;
// backends without a configured probe stay Unknown and are never penalized
// at planning time.
type Service struct {
	registry *backend.Registry
	board    *health.Board
	trackers map[string]*backend.LatencyTracker
	cfg      Config

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the verification service. trackers maps backend ID to the
// rolling latency window its instrumented adapter feeds.
func New(registry *backend.Registry, board *health.Board, trackers map[string]*backend.LatencyTracker, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LatencyBudget <= 0 {
		cfg.LatencyBudget = DefaultLatencyBudget
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Service{
		registry: registry,
		board:    board,
		trackers: trackers,
		cfg:      cfg,
	}
}

// Start launches the probe loop. The first cycle runs immediately so the
// planner sees real statuses shortly after boot.
func (s *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.RunOnce(runCtx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(runCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// RunOnce executes every configured probe and updates the board.
func (s *Service) RunOnce(ctx context.Context) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With(zap.String("probe_run", runID))

	for _, probe := range s.cfg.Probes {
		if ctx.Err() != nil {
			return
		}
		status := s.runProbe(ctx, probe)

		p50, p99 := s.latencies(probe.BackendID)
		s.board.Update(health.NewBackend(probe.BackendID, status, time.Now().UTC(), p50, p99))
		metrics.ProbesTotal.WithLabelValues(probe.BackendID, string(status)).Inc()

		log.Info("probe completed",
			zap.String("backend", probe.BackendID),
			zap.String("status", string(status)),
			zap.Duration("p50", p50),
			zap.Duration("p99", p99),
		)
	}
}

// runProbe executes one probe and classifies the outcome:
// error -> unreachable; too few results, a missing expected hit, or a p99
// over budget -> degraded; otherwise healthy.
func (s *Service) runProbe(ctx context.Context, probe Probe) health.Status {
	adapter, ok := s.registry.Get(probe.BackendID)
	if !ok {
		logger.FromContext(ctx).Warn("probe targets unregistered backend",
			zap.String("backend", probe.BackendID))
		return health.Unknown
	}

	s.board.Update(health.NewBackend(probe.BackendID, health.Probing, time.Now().UTC(), 0, 0))

	sq, err := subquery.New(
		probe.BackendID,
		probe.Query,
		probeTopK,
		nil,
		query.Filters{},
		query.Filters{},
		false,
		s.cfg.ProbeTimeout,
	)
	if err != nil {
		logger.FromContext(ctx).Error("invalid probe", zap.String("backend", probe.BackendID), zap.Error(err))
		return health.Unknown
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	cands, err := adapter.Search(probeCtx, sq)
	if err != nil {
		logger.FromContext(ctx).Warn("probe failed",
			zap.String("backend", probe.BackendID), zap.Error(err))
		return health.Unreachable
	}

	if len(cands) < probe.MinResults {
		return health.Degraded
	}
	if probe.ExpectContentID != "" && !containsContent(cands, probe.ExpectContentID) {
		return health.Degraded
	}
	if _, p99 := s.latencies(probe.BackendID); p99 > s.cfg.LatencyBudget {
		return health.Degraded
	}
	return health.Healthy
}

func (s *Service) latencies(backendID string) (p50, p99 time.Duration) {
	tracker, ok := s.trackers[backendID]
	if !ok {
		return 0, 0
	}
	return tracker.P50(), tracker.P99()
}

func containsContent(cands []candidate.Candidate, id string) bool {
	for i := range cands {
		if cands[i].ContentID() == id {
			return true
		}
	}
	return false
}

// String renders the probe for logs.
func (p Probe) String() string {
	return fmt.Sprintf("%s:%q", p.BackendID, p.Query)
}

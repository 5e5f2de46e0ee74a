// Package dispatch fans sub-queries out to their backends concurrently and
// joins the outcomes under a global deadline.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
	"github.com/kailas-cloud/retrio/internal/logger"
)

// DefaultPoolSize bounds concurrent backend calls across all in-flight requests.
const DefaultPoolSize = 64

// Outcome is one backend's result for one dispatched sub-query. Err and
// Candidates are not exclusive: a deadline can cut a backend off after it
// produced partial candidates, and those still feed fusion.
type Outcome struct {
	BackendID   string
	Candidates  []candidate.Candidate
	Err         error
	Elapsed     time.Duration
	LowPriority bool
}

// Failed reports a hard failure: an error with nothing salvaged.
func (o Outcome) Failed() bool { return o.Err != nil && len(o.Candidates) == 0 }

// Dispatcher runs sub-queries on a shared worker pool. One Dispatch call
// blocks until every backend has answered or hit its deadline; it never
// returns early with work still running against the caller's buffers.
type Dispatcher struct {
	registry *backend.Registry
	pool     *ants.Pool
}

// New creates a dispatcher with a worker pool of the given size.
func New(registry *backend.Registry, poolSize int) (*Dispatcher, error) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Dispatcher{registry: registry, pool: pool}, nil
}

// Close releases the worker pool.
func (d *Dispatcher) Close() {
	d.pool.Release()
}

// Dispatch runs every sub-query concurrently and returns all outcomes in
// sub-query order. maxWait caps the whole fan-out; each sub-query
// additionally carries its own per-backend timeout.
//
// Partial failure is not an error: outcomes carry per-backend errors and the
// caller decides how to degrade. Only when every backend hard-fails does
// Dispatch return an AllBackendsFailedError alongside the outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, subs []subquery.SubQuery, maxWait time.Duration) ([]Outcome, error) {
	if len(subs) == 0 {
		return nil, domain.ErrNoEligibleBackends
	}

	seen := make(map[string]struct{}, len(subs))
	for _, sq := range subs {
		if _, dup := seen[sq.BackendID()]; dup {
			return nil, fmt.Errorf("backend %s dispatched twice in one plan", sq.BackendID())
		}
		seen[sq.BackendID()] = struct{}{}
	}

	groupCtx := ctx
	if maxWait > 0 {
		var cancel context.CancelFunc
		groupCtx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}

	outcomes := make([]Outcome, len(subs))
	var wg sync.WaitGroup
	for i, sq := range subs {
		wg.Add(1)
		run := func() {
			defer wg.Done()
			outcomes[i] = d.runOne(groupCtx, sq)
		}
		if err := d.pool.Submit(run); err != nil {
			// Pool released mid-flight; degrade to inline execution.
			run()
		}
	}
	wg.Wait()

	failures := make([]domain.BackendFailure, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			failures = append(failures, domain.BackendFailure{BackendID: o.BackendID, Err: o.Err})
		}
	}
	if len(failures) == len(outcomes) {
		return outcomes, domain.NewAllBackendsFailed(failures)
	}
	return outcomes, nil
}

func (d *Dispatcher) runOne(ctx context.Context, sq subquery.SubQuery) Outcome {
	out := Outcome{BackendID: sq.BackendID(), LowPriority: sq.LowPriority()}

	adapter, ok := d.registry.Get(sq.BackendID())
	if !ok {
		out.Err = fmt.Errorf("backend %s: %w", sq.BackendID(), domain.ErrNotFound)
		return out
	}

	subCtx, cancel := context.WithTimeout(ctx, sq.Timeout())
	defer cancel()

	start := time.Now()
	out.Candidates, out.Err = adapter.Search(subCtx, sq)
	out.Elapsed = time.Since(start)

	logger.FromContext(ctx).Debug("backend answered",
		zap.String("backend", out.BackendID),
		zap.Int("candidates", len(out.Candidates)),
		zap.Duration("elapsed", out.Elapsed),
		zap.Error(out.Err),
	)
	return out
}

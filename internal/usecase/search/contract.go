package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
	"github.com/kailas-cloud/retrio/internal/usecase/dispatch"
	"github.com/kailas-cloud/retrio/internal/usecase/fusion"
)

// Planner decomposes a query into per-backend sub-queries.
type Planner interface {
	Plan(ctx context.Context, q query.Query, snap health.Snapshot) ([]subquery.SubQuery, error)
}

// Dispatcher fans sub-queries out concurrently and joins the outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, subs []subquery.SubQuery, maxWait time.Duration) ([]dispatch.Outcome, error)
}

// Fuser merges candidate batches into the ranked response body.
type Fuser interface {
	Fuse(q query.Query, batches []fusion.BackendResults) fusion.Output
}

// HealthReader provides the health snapshot consulted at planning time.
type HealthReader interface {
	Snapshot() health.Snapshot
}

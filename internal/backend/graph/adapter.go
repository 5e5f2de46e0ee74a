package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/meta"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

// BackendID identifies the graph backend in sub-queries and health records.
const BackendID = "graph"

// DefaultMaxDepth bounds how far activation spreads from seed nodes.
const DefaultMaxDepth = 2

// edgeDecay damps activation per hop so distant nodes score below their
// anchors even over weight-1.0 edges.
const edgeDecay = 0.5

// Adapter implements backend.Adapter over a badger knowledge graph using
// term-anchored spreading activation.
type Adapter struct {
	store    *Store
	maxDepth int
}

var _ backend.Adapter = (*Adapter)(nil)

// New creates a graph adapter. A non-positive maxDepth falls back to
// DefaultMaxDepth.
func New(store *Store, maxDepth int) *Adapter {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Adapter{store: store, maxDepth: maxDepth}
}

// ID implements backend.Adapter.
func (a *Adapter) ID() string { return BackendID }

// Capabilities implements backend.Adapter. Sources and dates live on the
// node record and filter natively; tag and category restrictions travel as
// post-filter hints because activation may surface related nodes whose tags
// differ from their anchors.
func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		ContentTypes:     domain.AllContentTypes(),
		NativeTags:       false,
		NativeCategories: false,
		NativeSources:    true,
		NativeDates:      true,
	}
}

// Close releases the underlying store.
func (a *Adapter) Close() error { return a.store.Close() }

// Search seeds activation from query-term postings, spreads it over weighted
// edges up to maxDepth hops, and returns the highest-activation nodes.
func (a *Adapter) Search(ctx context.Context, sq subquery.SubQuery) ([]candidate.Candidate, error) {
	terms := Tokenize(sq.Text())
	if len(terms) == 0 {
		return nil, nil
	}

	var cands []candidate.Candidate
	err := a.store.db.View(func(txn *badger.Txn) error {
		scores, err := a.activate(ctx, txn, terms)
		if err != nil {
			return err
		}
		cands, err = a.collect(ctx, txn, sq, scores)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrBackendProtocol) {
			return nil, err
		}
		return nil, fmt.Errorf("graph search: %w: %w", domain.ErrBackendUnavailable, err)
	}
	return cands, nil
}

// activate runs spreading activation. Each term match injects 1.0 into its
// anchor node; every hop multiplies by the edge weight and edgeDecay. A node
// propagates only on the wave where it first receives activation, which keeps
// the walk acyclic.
func (a *Adapter) activate(ctx context.Context, txn *badger.Txn, terms []string) (map[string]float64, error) {
	scores := make(map[string]float64)
	wave := make(map[string]float64)

	for _, term := range terms {
		for _, id := range a.store.nodesForTerm(txn, term) {
			scores[id] += 1.0
			wave[id] += 1.0
		}
	}

	visited := make(map[string]struct{}, len(wave))
	for id := range wave {
		visited[id] = struct{}{}
	}

	for depth := 0; depth < a.maxDepth && len(wave) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := make(map[string]float64)
		for id, act := range wave {
			edges, err := a.store.neighbors(txn, id)
			if err != nil {
				return nil, err
			}
			for dst, weight := range edges {
				delta := act * weight * edgeDecay
				scores[dst] += delta
				if _, seen := visited[dst]; !seen {
					next[dst] += delta
				}
			}
		}
		for id := range next {
			visited[id] = struct{}{}
		}
		wave = next
	}
	return scores, nil
}

// collect loads the activated nodes, applies native filters, and returns the
// top-K candidates ordered by activation (ties broken by content id).
func (a *Adapter) collect(
	ctx context.Context,
	txn *badger.Txn,
	sq subquery.SubQuery,
	scores map[string]float64,
) ([]candidate.Candidate, error) {
	f := sq.Pushdown()
	types := sq.ContentTypes()

	cands := make([]candidate.Candidate, 0, len(scores))
	for id, score := range scores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := a.store.node(txn, id)
		if errors.Is(err, domain.ErrNotFound) {
			// dangling edge or posting, skip
			continue
		}
		if err != nil {
			return nil, err
		}

		if len(types) > 0 && !slices.Contains(types, n.Type) {
			continue
		}
		if srcs := f.Sources(); len(srcs) > 0 && !slices.Contains(srcs, strings.ToLower(n.Source)) {
			continue
		}
		if d := f.Dates(); !d.IsZero() {
			if n.Published.IsZero() || !d.Contains(n.Published) {
				continue
			}
		}

		cands = append(cands, candidateFromNode(n, score))
	}

	slices.SortFunc(cands, func(a, b candidate.Candidate) int {
		if a.RawScore() != b.RawScore() {
			if a.RawScore() > b.RawScore() {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ContentID(), b.ContentID())
	})
	if len(cands) > sq.TopK() {
		cands = cands[:sq.TopK()]
	}
	return cands, nil
}

func candidateFromNode(n Node, score float64) candidate.Candidate {
	md := make(map[string]meta.Value, 4)
	if n.Source != "" {
		md[meta.KeySource] = meta.String(n.Source)
	}
	if n.Category != "" {
		md[meta.KeyCategory] = meta.String(n.Category)
	}
	if len(n.Tags) > 0 {
		md[meta.KeyTags] = meta.Strings(n.Tags...)
	}
	if !n.Published.IsZero() {
		md[meta.KeyPublished] = meta.Time(n.Published.UTC())
	}

	return candidate.New(n.ID, n.Type, n.Title, n.Excerpt, score, BackendID, md, nil)
}

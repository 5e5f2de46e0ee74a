// Package backend defines the uniform adapter contract over heterogeneous
// retrieval backends (vector store, knowledge graph, keyword index).
package backend

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

// Adapter translates canonical sub-queries into backend-native calls and
// backend-native hits into canonical candidates. Adding a backend family
// requires no change to the dispatcher or fusion engine.
//
// Search must honor ctx cancellation promptly. On deadline it returns
// context.DeadlineExceeded together with any candidates collected before the
// cutoff; zero candidates is a valid, non-fatal outcome.
type Adapter interface {
	ID() string
	Capabilities() Capabilities
	Search(ctx context.Context, sq subquery.SubQuery) ([]candidate.Candidate, error)
}

// Capabilities describes what a backend can serve and which filters it can
// apply natively. Filters without native support travel to fusion as
// post-filter hints.
type Capabilities struct {
	ContentTypes     []domain.ContentType
	NativeTags       bool
	NativeCategories bool
	NativeSources    bool
	NativeDates      bool
}

// Supports reports whether the backend serves content of type t.
func (c Capabilities) Supports(t domain.ContentType) bool {
	for _, ct := range c.ContentTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Registry holds the configured adapters in deterministic (ID-sorted) order,
// so that identical inputs always plan identical sub-query sets.
type Registry struct {
	adapters []Adapter
	byID     map[string]Adapter
}

// NewRegistry creates a registry. Adapter IDs must be unique.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	byID := make(map[string]Adapter, len(adapters))
	ordered := make([]Adapter, len(adapters))
	copy(ordered, adapters)
	for _, a := range ordered {
		if a.ID() == "" {
			return nil, fmt.Errorf("adapter with empty id")
		}
		if _, ok := byID[a.ID()]; ok {
			return nil, fmt.Errorf("duplicate adapter id %q", a.ID())
		}
		byID[a.ID()] = a
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID() < ordered[j].ID() })
	return &Registry{adapters: ordered, byID: byID}, nil
}

// All returns the adapters in ID order.
func (r *Registry) All() []Adapter { return r.adapters }

// Get looks up an adapter by ID.
func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.byID[id]
	return a, ok
}

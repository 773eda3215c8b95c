package lineage

import (
	"context"
	"errors"
	"sync"
)

// Selector picks the resolution strategy for one schema: authoritative
// store lookup when the side table exists, dependency-graph traversal
// otherwise. The choice is made on first use and held for the lifetime
// of the selector; the two strategies are never mixed within one schema.
type Selector struct {
	store *Store
	graph *GraphResolver

	mu       sync.Mutex
	fallback bool
	decided  bool
}

// NewSelector combines an authoritative store (may be nil) with a graph
// fallback. At least one of the two must be non-nil.
func NewSelector(store *Store, graph *GraphResolver) *Selector {
	return &Selector{store: store, graph: graph}
}

// Resolve implements Resolver.
func (s *Selector) Resolve(ctx context.Context, table, attribute string) (*Origin, error) {
	if s.useFallback() {
		return s.graph.Resolve(ctx, table, attribute)
	}
	o, err := s.store.Resolve(ctx, table, attribute)
	if errors.Is(err, ErrNoLineageTable) {
		s.commitFallback()
		if s.graph == nil {
			return nil, err
		}
		return s.graph.Resolve(ctx, table, attribute)
	}
	if err != nil {
		return nil, err
	}
	s.commitStore()
	return o, nil
}

func (s *Selector) useFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return true
	}
	return s.decided && s.fallback
}

func (s *Selector) commitFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decided = true
	s.fallback = true
}

func (s *Selector) commitStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decided {
		s.decided = true
		s.fallback = false
	}
}

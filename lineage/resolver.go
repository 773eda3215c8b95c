package lineage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Resolver determines the origin of an attribute.
//
// Resolve returns (nil, nil) when the attribute has no origin: native
// secondary attributes and computed attributes are legitimate columns
// that simply cannot be used for semantic matching.
type Resolver interface {
	Resolve(ctx context.Context, table, attribute string) (*Origin, error)
}

// ForeignKey describes one foreign-key edge of a table: the parent it
// references and the child-to-parent attribute correspondence.
type ForeignKey struct {
	Parent string
	// AttrMap maps child attribute name to the parent attribute name
	// it references. Usually the identity map.
	AttrMap map[string]string
}

// TableNode is one table in the dependency graph.
type TableNode struct {
	Name        string
	PrimaryKey  []string
	Attributes  []string
	ForeignKeys []ForeignKey
}

// InKey reports whether the attribute is part of the table's primary key.
func (t *TableNode) InKey(attr string) bool {
	for _, k := range t.PrimaryKey {
		if k == attr {
			return true
		}
	}
	return false
}

// TableGraph is the foreign-key adjacency of one schema, supplied by the
// declaration loader. The graph does not change within a schema session.
type TableGraph struct {
	Schema string
	Tables map[string]*TableNode
}

// Session is a lifetime-scoped cache of resolved origins for one schema.
// It is explicitly passed, never a hidden singleton, so tests can inject
// isolated caches and verify fallback behavior deterministically.
//
// Concurrent use is safe: reads take the shared lock, and population on
// miss is idempotent because all writes for the same key carry the same
// value (the graph is immutable for the session's lifetime).
type Session struct {
	id string

	mu    sync.RWMutex
	cache map[string]*Origin
}

// NewSession creates an empty per-schema resolution cache.
func NewSession() *Session {
	return &Session{
		id:    uuid.NewString(),
		cache: make(map[string]*Origin),
	}
}

// ID returns the session's unique token, used in diagnostics.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) lookup(key string) (*Origin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.cache[key]
	return o, ok
}

func (s *Session) put(key string, o *Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = o
}

// GraphResolver computes lineage by walking foreign-key relationships:
// if an attribute is inherited via a foreign key, recurse to the
// parent's corresponding attribute; if it is a native primary-key
// attribute, the origin is the current table; otherwise there is no
// origin. Results are memoized in the Session.
type GraphResolver struct {
	graph   *TableGraph
	session *Session
}

// NewGraphResolver creates a resolver over the given adjacency.
// A nil session gets a private one.
func NewGraphResolver(graph *TableGraph, session *Session) *GraphResolver {
	if session == nil {
		session = NewSession()
	}
	return &GraphResolver{graph: graph, session: session}
}

// Session returns the cache the resolver populates.
func (r *GraphResolver) Session() *Session {
	return r.session
}

// Resolve implements Resolver.
func (r *GraphResolver) Resolve(ctx context.Context, table, attribute string) (*Origin, error) {
	key := table + "\x00" + attribute
	if o, ok := r.session.lookup(key); ok {
		return o, nil
	}
	o, err := r.walk(table, attribute, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	r.session.put(key, o)
	return o, nil
}

func (r *GraphResolver) walk(table, attribute string, seen map[string]bool) (*Origin, error) {
	key := table + "\x00" + attribute
	if seen[key] {
		return nil, fmt.Errorf("foreign-key cycle at %s.%s", table, attribute)
	}
	seen[key] = true

	node, ok := r.graph.Tables[table]
	if !ok {
		return nil, fmt.Errorf("table %q not declared in schema %q", table, r.graph.Schema)
	}

	// Inheritance through a foreign key takes precedence over native
	// key membership: a child key attribute referencing a parent keeps
	// the parent's lineage, recursively.
	for _, fk := range node.ForeignKeys {
		if parentAttr, ok := fk.AttrMap[attribute]; ok {
			return r.walk(fk.Parent, parentAttr, seen)
		}
	}
	if node.InKey(attribute) {
		return &Origin{Schema: r.graph.Schema, Table: table, Attribute: attribute}, nil
	}
	// Native secondary attribute: no origin.
	return nil, nil
}

// Package lineage determines the origin of attributes: the schema,
// table, and attribute name where each attribute was first declared.
//
// Two interchangeable strategies exist, selected per schema:
//
//   - Store: an authoritative side table in the schema's SQLite
//     database, written at table-declaration time, giving O(1) lookup.
//   - GraphResolver: a fallback that walks foreign-key relationships
//     recursively when no authoritative table exists, memoizing results
//     in a per-schema Session cache.
//
// The Selector combines both: it tries the authoritative store first
// and, on ErrNoLineageTable, commits to graph traversal for the rest of
// the schema session. The strategies are never mixed within one schema.
//
// The Session cache is the only mutable shared state in the engine; it
// is guarded by a read-write lock and population is idempotent, so
// concurrent resolution of the same attribute is safe.
package lineage

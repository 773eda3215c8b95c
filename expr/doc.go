// Package expr implements the expression tree of the query engine: the
// node variants produced by the builder operations (restriction, join,
// projection, aggregation, union, universal set) and the policy that
// decides, per operator application, whether an input merges in place or
// must be wrapped as a subquery.
//
// Nodes are immutable and structurally shared: a node may serve as input
// to any number of other nodes, and the resulting graph is a DAG. No
// operation mutates an existing node; builders always return new nodes.
// Tree construction is therefore pure, lock-free, and safe to run
// concurrently.
//
// All domain errors are raised here, synchronously, at construction
// time. Once a tree is built, rendering it (see the render package)
// cannot fail with a user error.
package expr

package expr

// Subquery-materialization policy.
//
// Each operator merges its input's heading, restriction, and support
// into the enclosing SELECT unless a trigger fires, in which case the
// input is wrapped behind a Subquery boundary:
//
//  1. a restriction condition references an alias (computed/renamed)
//     attribute of the input
//  2. a projection defines a new attribute by referencing an existing
//     alias attribute (chained aliasing)
//  3. a join uses an alias attribute as a matching key
//  4. an aggregation used as an operand to join or projection is always
//     wrapped; a restriction over an aggregation is the one exception -
//     it becomes a HAVING predicate and never wraps
//
// Structural triggers beyond the alias rules: projections, promotions,
// unions, and aggregations change the column set or row multiplicity of
// their input, so they cannot be merged into an enclosing join scope and
// are materialized there.

// mergeable reports whether an expression can contribute its FROM
// sources and WHERE conditions directly to an enclosing join scope.
func mergeable(e Expr) bool {
	switch n := e.(type) {
	case *Base, *Subquery:
		return true
	case *Restriction:
		return mergeable(n.Input)
	case *Join:
		return mergeable(n.Left) && mergeable(n.Right)
	default:
		return false
	}
}

// joinOperand prepares an expression for use as a join (or grouping)
// operand, wrapping when the structure or an alias key demands it.
func joinOperand(e Expr, keys []string) Expr {
	if !mergeable(e) {
		return wrap(e)
	}
	h := e.Heading()
	for _, k := range keys {
		if a, ok := h.Attribute(k); ok && a.IsAlias() {
			return wrap(e)
		}
	}
	return e
}

// TerminalAggregation reports whether the expression is an aggregation,
// possibly under a chain of restrictions (its HAVING predicates). The
// renderer uses this to route such chains through HAVING emission.
func TerminalAggregation(e Expr) bool {
	return terminalAggregation(e)
}

// terminalAggregation reports whether the expression is an aggregation,
// possibly under a chain of restrictions (its HAVING predicates).
func terminalAggregation(e Expr) bool {
	for {
		switch n := e.(type) {
		case *Aggregation:
			return true
		case *Restriction:
			e = n.Input
		default:
			return false
		}
	}
}

// restrictOperand prepares an expression for restriction. Aggregations
// are never wrapped here (HAVING rule); unions must materialize before a
// WHERE can apply; alias references fire trigger 1.
func restrictOperand(e Expr, cond Condition) Expr {
	if terminalAggregation(e) {
		return e
	}
	if _, isUnion := e.(*Union); isUnion {
		return wrap(e)
	}
	if referencesAlias(cond, e.Heading()) {
		return wrap(e)
	}
	return e
}

// projectOperand prepares an expression for projection. Aggregations are
// terminal (trigger 4); unions and distinct promotions materialize;
// chained aliasing (trigger 2) wraps.
func projectOperand(e Expr, renamed map[string]string, computed map[string]string) Expr {
	if terminalAggregation(e) {
		return wrap(e)
	}
	switch n := e.(type) {
	case *Union:
		return wrap(e)
	case *Promotion:
		if n.Distinct {
			return wrap(e)
		}
	}
	h := e.Heading()
	for _, oldName := range renamed {
		if a, ok := h.Attribute(oldName); ok && a.IsAlias() {
			return wrap(e)
		}
	}
	for _, sqlExpr := range computed {
		if exprRefsAlias(sqlExpr, h) {
			return wrap(e)
		}
	}
	return e
}

// promoteOperand prepares an expression for distinct key promotion.
func promoteOperand(e Expr, names []string) Expr {
	if !mergeable(e) {
		return wrap(e)
	}
	h := e.Heading()
	for _, name := range names {
		if a, ok := h.Attribute(name); ok && a.IsAlias() {
			return wrap(e)
		}
	}
	return e
}

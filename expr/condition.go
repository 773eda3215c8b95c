package expr

import (
	"regexp"

	"github.com/entset/entset/heading"
)

// Condition is the sealed interface of restriction conditions.
//
// This is a sealed interface - only types in this package implement it.
//
// Condition types and their per-kind evaluation rules:
//   - Equality: attribute = literal per map entry, conjoined; map keys
//     absent from the operand's heading are ignored
//   - Raw: an opaque SQL predicate, emitted verbatim in parentheses
//   - AndList: conjunction; empty list matches all rows
//   - OrList: disjunction; empty list matches no rows
//   - Not: negation
//   - SubqueryRef: restriction by expression (semijoin on the
//     homologous namesakes of the two operands)
//   - Bool: constant condition
type Condition interface {
	conditionNode() // Marker method - seals interface to this package
}

// Equality restricts by attribute/value equality. Entries whose key is
// not an attribute of the operand are ignored, so one map can restrict
// several expressions with different headings.
type Equality map[string]heading.Literal

func (Equality) conditionNode() {}

// Raw is an opaque SQL predicate fragment.
type Raw string

func (Raw) conditionNode() {}

// AndList is a conjunction of conditions. Empty means "match all".
type AndList []Condition

func (AndList) conditionNode() {}

// OrList is a disjunction of conditions. Empty means "match none".
type OrList []Condition

func (OrList) conditionNode() {}

// Not negates a condition.
type Not struct {
	Cond Condition
}

func (Not) conditionNode() {}

// Bool is a constant condition.
type Bool bool

func (Bool) conditionNode() {}

// SubqueryRef restricts by another expression: rows survive when a
// matching row exists in Target, matched on the homologous namesakes of
// the two operands. Keys is populated during Restrict construction after
// the compatibility check; with no namesakes the match degrades to a
// bare existence test.
type SubqueryRef struct {
	Target Expr

	// Keys is the validated matching-attribute list. Set by Restrict.
	Keys []string
}

func (SubqueryRef) conditionNode() {}

var identPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)

// conditionRefs collects the attribute names of h that cond references.
// For Raw conditions, any identifier token matching an attribute name
// counts; other tokens are assumed to be SQL syntax or functions.
func conditionRefs(cond Condition, h *heading.Heading, out map[string]bool) {
	switch c := cond.(type) {
	case Equality:
		for name := range c {
			if h.Has(name) {
				out[name] = true
			}
		}
	case Raw:
		for _, tok := range identPattern.FindAllString(string(c), -1) {
			if h.Has(tok) {
				out[tok] = true
			}
		}
	case AndList:
		for _, sub := range c {
			conditionRefs(sub, h, out)
		}
	case OrList:
		for _, sub := range c {
			conditionRefs(sub, h, out)
		}
	case Not:
		conditionRefs(c.Cond, h, out)
	case *Not:
		conditionRefs(c.Cond, h, out)
	case SubqueryRef:
		for _, k := range c.Keys {
			out[k] = true
		}
	case *SubqueryRef:
		for _, k := range c.Keys {
			out[k] = true
		}
	case Bool:
		// No references.
	}
}

// ConditionRefs returns the attribute names of h referenced by cond.
func ConditionRefs(cond Condition, h *heading.Heading) []string {
	set := make(map[string]bool)
	conditionRefs(cond, h, set)
	var out []string
	for _, name := range h.Names() {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}

// referencesAlias reports whether cond references any alias attribute of
// the heading: the first subquery trigger.
func referencesAlias(cond Condition, h *heading.Heading) bool {
	for _, name := range ConditionRefs(cond, h) {
		if a, ok := h.Attribute(name); ok && a.IsAlias() {
			return true
		}
	}
	return false
}

// exprRefsAlias reports whether a computed SQL expression references an
// alias attribute of the heading: the chained-aliasing trigger.
func exprRefsAlias(sqlExpr string, h *heading.Heading) bool {
	for _, tok := range identPattern.FindAllString(sqlExpr, -1) {
		if a, ok := h.Attribute(tok); ok && a.IsAlias() {
			return true
		}
	}
	return false
}

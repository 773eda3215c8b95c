package expr

import (
	"github.com/entset/entset/heading"
)

// Finalize recursively rewrites each subquery input to project out
// attributes not referenced anywhere by its consumer, minimizing
// rendered subquery width before emission. Purely a size optimization:
// the result is semantically identical to the input (primary keys are
// never projected out).
//
// Finalize never mutates the tree it is given; shared nodes are rebuilt
// as needed and the original remains valid.
func Finalize(e Expr) Expr {
	return finalizeNode(e, nil)
}

// finalizeNode rewrites e so that it only needs to produce the named
// attributes. A nil needed set means "all attributes".
func finalizeNode(e Expr, needed map[string]bool) Expr {
	switch n := e.(type) {
	case *Base, *UniversalSet:
		return e

	case *Subquery:
		input := narrowInput(n.Input, needed)
		input = finalizeNode(input, nameSet(input.Heading().Names()))
		if input == n.Input {
			return n
		}
		return wrap(input)

	case *Restriction:
		childNeeded := addNames(copySet(needed, n.Input.Heading()), ConditionRefs(n.Cond, n.Input.Heading()))
		input := finalizeNode(n.Input, childNeeded)
		return &Restriction{Input: input, Cond: finalizeCondition(n.Cond), heading: n.heading}

	case *Join:
		left := finalizeNode(n.Left, sideNeeded(needed, n.Left.Heading(), n.Keys))
		right := finalizeNode(n.Right, sideNeeded(needed, n.Right.Heading(), n.Keys))
		if left == n.Left && right == n.Right {
			return n
		}
		return &Join{Left: left, Right: right, Keys: n.Keys, heading: n.heading}

	case *Projection:
		input := finalizeNode(n.Input, projectionSources(n.heading, needed, n.Input.Heading()))
		if input == n.Input {
			return n
		}
		return &Projection{Input: input, heading: n.heading}

	case *Promotion:
		var childNeeded map[string]bool
		if n.Distinct {
			childNeeded = nameSet(n.heading.Names())
		} else {
			childNeeded = copySet(needed, n.Input.Heading())
		}
		input := finalizeNode(n.Input, childNeeded)
		if input == n.Input {
			return n
		}
		return &Promotion{Input: input, Distinct: n.Distinct, heading: n.heading}

	case *Aggregation:
		grouping := finalizeNode(n.Grouping, groupingNeeded(n, needed))
		grouped := finalizeNode(n.Grouped, groupedNeeded(n))
		if grouping == n.Grouping && grouped == n.Grouped {
			return n
		}
		return &Aggregation{Grouping: grouping, Grouped: grouped, Keys: n.Keys, heading: n.heading}

	case *Union:
		arms := make([]Expr, len(n.Inputs))
		changed := false
		for i, arm := range n.Inputs {
			armNeeded := copySet(needed, arm.Heading())
			addNames(armNeeded, arm.Heading().PrimaryKey())
			arms[i] = finalizeNode(arm, armNeeded)
			if arms[i] != n.Inputs[i] {
				changed = true
			}
		}
		if !changed {
			return n
		}
		return &Union{Inputs: arms, heading: n.heading}

	default:
		return e
	}
}

// narrowInput projects a subquery input down to the needed attributes.
// Terminal aggregations and unions keep their explicit headings; inputs
// already narrow enough stay untouched.
func narrowInput(input Expr, needed map[string]bool) Expr {
	if needed == nil {
		return input
	}
	if terminalAggregation(input) {
		return input
	}
	if _, isUnion := input.(*Union); isUnion {
		return input
	}
	h := input.Heading()
	var kept []string
	drops := false
	for _, name := range h.Names() {
		if needed[name] {
			kept = append(kept, name)
		} else if a, _ := h.Attribute(name); !a.InKey {
			drops = true
		}
	}
	if !drops {
		return input
	}
	narrowed, err := Project(input, kept, nil, nil)
	if err != nil {
		// Narrowing is best-effort; an input that cannot be projected
		// is rendered at full width.
		return input
	}
	return narrowed
}

// finalizeCondition rewrites subquery references inside a condition.
func finalizeCondition(c Condition) Condition {
	switch cond := c.(type) {
	case *SubqueryRef:
		return &SubqueryRef{Target: finalizeNode(cond.Target, nameSet(cond.Keys)), Keys: cond.Keys}
	case SubqueryRef:
		return finalizeCondition(&cond)
	case AndList:
		return AndList(finalizeList(cond))
	case OrList:
		return OrList(finalizeList(cond))
	case Not:
		return Not{Cond: finalizeCondition(cond.Cond)}
	case *Not:
		return &Not{Cond: finalizeCondition(cond.Cond)}
	default:
		return c
	}
}

func finalizeList(conds []Condition) []Condition {
	out := make([]Condition, len(conds))
	for i, sub := range conds {
		out[i] = finalizeCondition(sub)
	}
	return out
}

// sideNeeded computes the attributes one join operand must produce: the
// consumer's needs that fall on this side, plus the matching keys.
func sideNeeded(needed map[string]bool, side *heading.Heading, keys []string) map[string]bool {
	out := copySet(needed, side)
	return addNames(out, keys)
}

// projectionSources maps the needed output attributes of a projection
// back to the input attributes they are derived from.
func projectionSources(proj *heading.Heading, needed map[string]bool, input *heading.Heading) map[string]bool {
	out := make(map[string]bool)
	for _, a := range proj.Attributes() {
		if needed != nil && !needed[a.Name] && !a.InKey {
			continue
		}
		switch {
		case a.RenameOf != "":
			out[a.RenameOf] = true
		case a.Expr != "":
			for _, tok := range identPattern.FindAllString(a.Expr, -1) {
				if input.Has(tok) {
					out[tok] = true
				}
			}
		default:
			if input.Has(a.Name) {
				out[a.Name] = true
			}
		}
	}
	return out
}

func groupingNeeded(a *Aggregation, needed map[string]bool) map[string]bool {
	out := projectionSources(a.heading, needed, a.Grouping.Heading())
	return addNames(out, a.Keys)
}

func groupedNeeded(a *Aggregation) map[string]bool {
	out := make(map[string]bool)
	gh := a.Grouped.Heading()
	for _, attr := range a.heading.Attributes() {
		if attr.Expr == "" {
			continue
		}
		for _, tok := range identPattern.FindAllString(attr.Expr, -1) {
			if gh.Has(tok) {
				out[tok] = true
			}
		}
	}
	return addNames(out, a.Keys)
}

func nameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// copySet restricts a needed set to the names present in h; nil means
// every name of h.
func copySet(needed map[string]bool, h *heading.Heading) map[string]bool {
	out := make(map[string]bool)
	for _, name := range h.Names() {
		if needed == nil || needed[name] {
			out[name] = true
		}
	}
	return out
}

func addNames(set map[string]bool, names []string) map[string]bool {
	for _, n := range names {
		set[n] = true
	}
	return set
}

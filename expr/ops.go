package expr

import (
	"fmt"
	"regexp"

	"github.com/entset/entset/compat"
	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

// Restrict filters an expression by a condition.
//
// A condition may be any Condition variant; restriction by another
// expression uses SubqueryRef and is validated by the compatibility
// checker. Restricting an aggregation produces a HAVING predicate and
// never triggers a subquery; restricting through an alias attribute
// wraps the input first.
//
// A universal set may appear on either side of a restriction-by-
// expression: it promotes the named attributes into the other operand's
// primary key (see Universal).
func Restrict(e Expr, cond Condition) (Expr, error) {
	if u, ok := e.(*UniversalSet); ok {
		sq, ok := asSubqueryRef(cond)
		if !ok {
			return nil, &UnsupportedOperationError{
				Operation: "restrict(universal, condition)",
				Guidance:  "a universal set can only be restricted by another expression",
			}
		}
		return promoteUniversal(u, sq.Target)
	}
	if sq, ok := asSubqueryRef(cond); ok {
		if u, ok := sq.Target.(*UniversalSet); ok {
			return promoteInto(e, u)
		}
		keys, err := compat.AssertCompatible(e.Heading(), sq.Target.Heading())
		if err != nil {
			return nil, err
		}
		cond = &SubqueryRef{Target: sq.Target, Keys: keys}
	}

	input := restrictOperand(e, cond)
	return &Restriction{Input: input, Cond: cond, heading: input.Heading()}, nil
}

// Exclude filters an expression by the negation of a condition. For all
// e and c, Restrict(e, c) and Exclude(e, c) partition e's rows.
//
// Excluding by or from a universal set is illegal: the complement of a
// universal set is infinite.
func Exclude(e Expr, cond Condition) (Expr, error) {
	if _, ok := e.(*UniversalSet); ok {
		return nil, &UnsupportedOperationError{
			Operation: "exclude(universal, ...)",
			Guidance:  "the complement of a universal set is infinite; restrict it instead",
		}
	}
	if sq, ok := asSubqueryRef(cond); ok {
		if _, ok := sq.Target.(*UniversalSet); ok {
			return nil, &UnsupportedOperationError{
				Operation: "exclude(..., universal)",
				Guidance:  "a universal set cannot be an exclusion operand; restrict by it instead",
			}
		}
	}
	return Restrict(e, Not{Cond: cond})
}

// JoinOptions controls join construction.
type JoinOptions struct {
	// SkipCompatibilityCheck joins on all namesakes without the
	// homology check. The explicit opt-out replaces the removed
	// implicit permissive join.
	SkipCompatibilityCheck bool
}

// NewJoin constructs the natural equijoin of two operands on their
// homologous namesakes. Non-homologous namesakes raise
// IncompatibleAttributeError unless the check is explicitly skipped.
// Aggregation operands and alias matching keys are wrapped as
// subqueries; with no namesakes at all, the join degrades to a
// cartesian product.
func NewJoin(left, right Expr, opts JoinOptions) (Expr, error) {
	if _, ok := left.(*UniversalSet); ok {
		return nil, universalJoinError()
	}
	if _, ok := right.(*UniversalSet); ok {
		return nil, universalJoinError()
	}

	var keys []string
	var err error
	if opts.SkipCompatibilityCheck {
		keys = compat.Namesakes(left.Heading(), right.Heading())
	} else {
		keys, err = compat.AssertCompatible(left.Heading(), right.Heading())
		if err != nil {
			return nil, err
		}
	}

	l := joinOperand(left, keys)
	r := joinOperand(right, keys)
	h, err := l.Heading().Join(r.Heading())
	if err != nil {
		return nil, err
	}
	return &Join{Left: l, Right: r, Keys: keys, heading: h}, nil
}

func universalJoinError() error {
	return &UnsupportedOperationError{
		Operation: "join with universal set",
		Guidance:  "joining a universal set is superseded by restriction; use Restrict",
	}
}

// PermissiveJoin is the removed implicit-permissive join.
//
// Deprecated: it always fails. Request the permissive behavior
// explicitly via NewJoin with JoinOptions{SkipCompatibilityCheck: true}.
func PermissiveJoin(left, right Expr) (Expr, error) {
	return nil, &UnsupportedOperationError{
		Operation: "permissive join",
		Guidance:  "matching without the homology check now requires JoinOptions{SkipCompatibilityCheck: true}",
	}
}

// Project narrows or extends an expression's heading: kept attributes
// survive, renamed attributes keep their source lineage under a new
// name, computed attributes are appended without lineage. Primary-key
// attributes are implicitly kept unless renamed.
func Project(e Expr, kept []string, renamed map[string]string, computed map[string]string) (Expr, error) {
	if _, ok := e.(*UniversalSet); ok {
		return nil, &UnsupportedOperationError{
			Operation: "project(universal, ...)",
			Guidance:  "a universal set has no projectable attributes; restrict it against a concrete operand first",
		}
	}
	input := projectOperand(e, renamed, computed)
	h, err := input.Heading().Project(kept, renamed, computed)
	if err != nil {
		return nil, err
	}
	return &Projection{Input: input, heading: h}, nil
}

// AggProjection is the projection shape of an aggregation: identical to
// plain projection except Computed entries may use aggregate functions
// over the grouped operand's attributes.
type AggProjection struct {
	Kept     []string
	Renamed  map[string]string
	Computed map[string]string
}

var aggregateFuncPattern = regexp.MustCompile(`(?i)\b(count|sum|min|max|avg|total|group_concat)\s*\(`)

// Aggregate groups the grouped operand by the primary key of the
// grouping operand and projects aggregate results onto the grouping
// rows. It translates to a natural left join grouped by the grouping
// operand's primary key.
//
// The functional-dependency requirement: the grouped operand must carry
// every primary-key attribute of the grouping operand, homologous on
// each; violations raise AggregationDependencyError.
//
// A universal set as the grouping operand groups the grouped operand by
// the named attributes, implicitly restricted to rows with a match.
func Aggregate(grouping, grouped Expr, proj AggProjection) (Expr, error) {
	if _, ok := grouped.(*UniversalSet); ok {
		return nil, &UnsupportedOperationError{
			Operation: "aggregate over universal set",
			Guidance:  "the grouped operand must be a concrete expression",
		}
	}

	fromUniversal := false
	if u, ok := grouping.(*UniversalSet); ok {
		promoted, err := promoteUniversal(u, grouped)
		if err != nil {
			return nil, err
		}
		grouping = promoted
		fromUniversal = true
	}

	keys := grouping.Heading().PrimaryKey()
	if err := checkFunctionalDependency(grouping, grouped, keys, fromUniversal); err != nil {
		return nil, err
	}

	if err := checkAggProjection(grouping.Heading(), proj); err != nil {
		return nil, err
	}

	g := joinOperand(grouping, keys)
	h, err := g.Heading().Project(proj.Kept, proj.Renamed, proj.Computed)
	if err != nil {
		return nil, err
	}
	return &Aggregation{
		Grouping: g,
		Grouped:  wrap(grouped),
		Keys:     keys,
		heading:  h,
	}, nil
}

// checkFunctionalDependency verifies every grouping key attribute exists
// in the grouped operand with matching lineage. Keys promoted from a
// universal set over this same grouped operand carry its lineage by
// construction and only need the presence check.
func checkFunctionalDependency(grouping, grouped Expr, keys []string, fromUniversal bool) error {
	var violated []string
	gh := grouping.Heading()
	dh := grouped.Heading()
	for _, k := range keys {
		da, ok := dh.Attribute(k)
		if !ok {
			violated = append(violated, k)
			continue
		}
		if fromUniversal {
			continue
		}
		ga, _ := gh.Attribute(k)
		if !lineage.Equal(ga.Lineage, da.Lineage) {
			violated = append(violated, k)
		}
	}
	if len(violated) > 0 {
		return &AggregationDependencyError{Attributes: violated}
	}
	return nil
}

// checkAggProjection enforces the aggregation projection rule: computed
// entries without an aggregate function may only reference the grouping
// operand's attributes.
func checkAggProjection(grouping *heading.Heading, proj AggProjection) error {
	for name, sqlExpr := range proj.Computed {
		if aggregateFuncPattern.MatchString(sqlExpr) {
			continue
		}
		for _, tok := range identPattern.FindAllString(sqlExpr, -1) {
			if !grouping.Has(tok) && looksLikeAttribute(tok) {
				return &heading.UnknownAttributeError{
					Name:    tok,
					Context: fmt.Sprintf("aggregation expression %q (non-aggregated expressions may only reference grouping attributes)", name),
				}
			}
		}
	}
	return nil
}

// looksLikeAttribute filters identifier tokens that are SQL keywords or
// bare function names rather than attribute references.
var sqlWordSet = map[string]bool{
	"and": true, "or": true, "not": true, "null": true, "is": true,
	"in": true, "like": true, "between": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "as": true, "distinct": true,
	"abs": true, "round": true, "length": true, "lower": true, "upper": true,
	"coalesce": true, "ifnull": true, "substr": true, "trim": true,
}

func looksLikeAttribute(tok string) bool {
	return !sqlWordSet[lower(tok)] && !isNumeric(tok)
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Unite constructs the n-ary union of expressions sharing one primary
// key. Nested unions are flattened, which makes the operator associative
// at the tree level; commutativity holds by row set.
//
// Construction requires identical primary-key attribute names across all
// inputs, homologous namesakes throughout (checked pairwise), and equal
// types on any shared non-key attribute. Primary-key disjointness of the
// inputs is a runtime contract and cannot be checked structurally.
func Unite(inputs ...Expr) (Expr, error) {
	var flat []Expr
	for _, in := range inputs {
		if _, ok := in.(*UniversalSet); ok {
			return nil, &UnsupportedOperationError{
				Operation: "union with universal set",
				Guidance:  "a universal set cannot be a union operand",
			}
		}
		if u, ok := in.(*Union); ok {
			flat = append(flat, u.Inputs...)
			continue
		}
		flat = append(flat, in)
	}
	if len(flat) == 0 {
		return nil, &UnionIncompatibleError{Reason: "union requires at least one operand"}
	}
	if len(flat) == 1 {
		return flat[0], nil
	}

	first := flat[0].Heading()
	pk := keySet(first.PrimaryKey())
	for _, in := range flat[1:] {
		if !sameKeySet(pk, keySet(in.Heading().PrimaryKey())) {
			return nil, &UnionIncompatibleError{
				Reason: fmt.Sprintf("primary keys differ: %v vs %v",
					first.PrimaryKey(), in.Heading().PrimaryKey()),
			}
		}
	}
	for i := range flat {
		for j := i + 1; j < len(flat); j++ {
			if _, err := compat.AssertCompatible(flat[i].Heading(), flat[j].Heading()); err != nil {
				return nil, err
			}
			if err := checkSharedSecondaryTypes(flat[i].Heading(), flat[j].Heading()); err != nil {
				return nil, err
			}
		}
	}

	arms := make([]Expr, len(flat))
	for i, in := range flat {
		arms[i] = wrap(in)
	}
	h, err := unionHeading(arms)
	if err != nil {
		return nil, err
	}
	return &Union{Inputs: arms, heading: h}, nil
}

func checkSharedSecondaryTypes(a, b *heading.Heading) error {
	for _, name := range compat.Namesakes(a, b) {
		aa, _ := a.Attribute(name)
		ba, _ := b.Attribute(name)
		if aa.InKey && ba.InKey {
			continue
		}
		if aa.Type != ba.Type {
			return &UnionIncompatibleError{
				Reason: fmt.Sprintf("attribute %q declared as %s and %s", name, aa.Type, ba.Type),
			}
		}
	}
	return nil
}

// unionHeading builds the output heading: the shared primary key
// followed by every input's secondary attributes, deduplicated, all
// nullable (a key present in only some inputs leaves the others'
// secondaries NULL).
func unionHeading(arms []Expr) (*heading.Heading, error) {
	var attrs []heading.Attribute
	seen := make(map[string]bool)
	for _, a := range arms[0].Heading().Attributes() {
		if a.InKey {
			attrs = append(attrs, a)
			seen[a.Name] = true
		}
	}
	for _, arm := range arms {
		for _, a := range arm.Heading().Attributes() {
			if a.InKey || seen[a.Name] {
				continue
			}
			a.Nullable = true
			attrs = append(attrs, a)
			seen[a.Name] = true
		}
	}
	return heading.New(attrs)
}

func keySet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func sameKeySet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// asSubqueryRef normalizes the value and pointer forms of SubqueryRef.
func asSubqueryRef(cond Condition) (*SubqueryRef, bool) {
	switch c := cond.(type) {
	case SubqueryRef:
		return &c, true
	case *SubqueryRef:
		return c, true
	default:
		return nil, false
	}
}

// By adapts an expression into a restriction condition, for
// restriction-by-expression call sites: Restrict(a, By(b)).
func By(target Expr) Condition {
	return &SubqueryRef{Target: target}
}

// promoteUniversal resolves Restrict(universal, target): the result is a
// new entity type over the universal set's attributes, with types and
// lineage transferred from the target and every attribute primary.
// An empty attribute list promotes all of the target's attributes.
func promoteUniversal(u *UniversalSet, target Expr) (Expr, error) {
	if _, ok := target.(*UniversalSet); ok {
		return nil, &UnsupportedOperationError{
			Operation: "restrict(universal, universal)",
			Guidance:  "a universal set can only be restricted by a concrete expression",
		}
	}
	names := u.Attributes()
	if len(names) == 0 {
		h, err := target.Heading().PromoteKey(nil)
		if err != nil {
			return nil, err
		}
		return &Promotion{Input: target, heading: h}, nil
	}
	input := promoteOperand(target, names)
	h, err := input.Heading().SelectKey(names)
	if err != nil {
		return nil, err
	}
	return &Promotion{Input: input, Distinct: true, heading: h}, nil
}

// promoteInto resolves Restrict(e, By(universal)): the universal set's
// attributes join e's primary key; an empty list promotes every
// attribute.
func promoteInto(e Expr, u *UniversalSet) (Expr, error) {
	h, err := e.Heading().PromoteKey(u.Attributes())
	if err != nil {
		return nil, err
	}
	return &Promotion{Input: e, heading: h}, nil
}

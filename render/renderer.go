package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/entset/entset/expr"
	"github.com/entset/entset/heading"
)

// Statement is a compiled SQL statement: text plus the ordered bound
// parameters. Values are never interpolated into the text.
type Statement struct {
	SQL    string
	Params []heading.Literal
}

// Args converts the bound parameters to the native values expected by
// database/sql execution.
func (s *Statement) Args() []any {
	out := make([]any, len(s.Params))
	for i, p := range s.Params {
		out[i] = heading.Param(p)
	}
	return out
}

// InternalError reports a violated renderer invariant. Seeing one means
// an engine bug: construction is supposed to make these states
// unreachable.
type InternalError struct {
	Message string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return "internal renderer invariant violated: " + e.Message
}

// IsInternal reports whether err is an InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// Compile finalizes an expression tree and renders it as one SELECT
// statement under the given dialect.
func Compile(e expr.Expr, d Dialect) (*Statement, error) {
	if _, ok := e.(*expr.UniversalSet); ok {
		return nil, &expr.UnsupportedOperationError{
			Operation: "compile universal set",
			Guidance:  "a universal set cannot stand alone; restrict it against a concrete operand",
		}
	}
	r := &renderer{d: d}
	sql, err := r.selectFor(expr.Finalize(e))
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: sql, Params: r.params}, nil
}

type renderer struct {
	d      Dialect
	params []heading.Literal
	aliasN int
}

func (r *renderer) nextAlias() string {
	a := fmt.Sprintf("_s%d", r.aliasN)
	r.aliasN++
	return a
}

// boundCond pairs a condition with the heading it was applied against,
// which scopes Equality key filtering.
type boundCond struct {
	cond expr.Condition
	h    *heading.Heading
}

// stripRestrictions peels the restriction chain off an expression,
// returning the core node and the conditions in application order.
func stripRestrictions(e expr.Expr) (expr.Expr, []boundCond) {
	var conds []boundCond
	for {
		rn, ok := e.(*expr.Restriction)
		if !ok {
			break
		}
		conds = append(conds, boundCond{cond: rn.Cond, h: rn.Input.Heading()})
		e = rn.Input
	}
	// Collected outermost-first; application order is innermost-first.
	for i, j := 0, len(conds)-1; i < j; i, j = i+1, j-1 {
		conds[i], conds[j] = conds[j], conds[i]
	}
	return e, conds
}

// selectFor renders one full SELECT statement for the expression.
func (r *renderer) selectFor(e expr.Expr) (string, error) {
	core, conds := stripRestrictions(e)

	switch n := core.(type) {
	case *expr.UniversalSet:
		return "", &InternalError{Message: "universal set reached the renderer"}
	case *expr.Aggregation:
		return r.selectAggregation(n, conds)
	case *expr.Union:
		if len(conds) > 0 {
			return "", &InternalError{Message: "restricted union was not wrapped"}
		}
		return r.selectUnion(n)
	default:
	}

	h := core.Heading()
	distinct := ""
	src := core
	switch n := core.(type) {
	case *expr.Projection:
		src = n.Input
	case *expr.Promotion:
		src = n.Input
		if n.Distinct {
			distinct = "DISTINCT "
		}
	}

	from, srcConds, err := r.source(src)
	if err != nil {
		return "", err
	}
	where, err := r.conditions(append(srcConds, conds...), "WHERE")
	if err != nil {
		return "", err
	}
	return "SELECT " + distinct + r.selectList(h) + " FROM " + from + where, nil
}

// source flattens a mergeable expression into a FROM fragment plus the
// WHERE conditions collected from merged restriction nodes.
func (r *renderer) source(e expr.Expr) (string, []boundCond, error) {
	switch n := e.(type) {
	case *expr.Base:
		return r.tableRef(n), nil, nil

	case *expr.Subquery:
		inner, err := r.selectFor(n.Input)
		if err != nil {
			return "", nil, err
		}
		return "(" + inner + ") AS " + r.d.Quote(r.nextAlias()), nil, nil

	case *expr.Restriction:
		if expr.TerminalAggregation(n) {
			return r.derived(n)
		}
		from, conds, err := r.source(n.Input)
		if err != nil {
			return "", nil, err
		}
		return from, append(conds, boundCond{cond: n.Cond, h: n.Input.Heading()}), nil

	case *expr.Projection:
		return r.source(n.Input)

	case *expr.Promotion:
		if n.Distinct {
			return r.derived(n)
		}
		return r.source(n.Input)

	case *expr.Join:
		lf, lc, err := r.source(n.Left)
		if err != nil {
			return "", nil, err
		}
		rf, rc, err := r.source(n.Right)
		if err != nil {
			return "", nil, err
		}
		if _, rightJoin := n.Right.(*expr.Join); rightJoin {
			rf = "(" + rf + ")"
		}
		var from string
		if len(n.Keys) == 0 {
			from = lf + " CROSS JOIN " + rf
		} else {
			from = lf + " JOIN " + rf + " USING (" + r.nameList(n.Keys) + ")"
		}
		return from, append(lc, rc...), nil

	case *expr.Aggregation, *expr.Union:
		return r.derived(e)

	default:
		return "", nil, &InternalError{Message: fmt.Sprintf("unexpected source node %T", n)}
	}
}

// derived renders an expression as a parenthesized derived table.
func (r *renderer) derived(e expr.Expr) (string, []boundCond, error) {
	inner, err := r.selectFor(e)
	if err != nil {
		return "", nil, err
	}
	return "(" + inner + ") AS " + r.d.Quote(r.nextAlias()), nil, nil
}

// selectAggregation renders the grouped outer join. Restrictions over
// the aggregation become HAVING predicates when the dialect evaluates
// SELECT before GROUP BY; otherwise the aggregation is wrapped and the
// predicates apply as an outer WHERE.
func (r *renderer) selectAggregation(n *expr.Aggregation, conds []boundCond) (string, error) {
	if len(conds) > 0 && !r.d.SelectBeforeGroupBy {
		inner, err := r.selectAggregation(n, nil)
		if err != nil {
			return "", err
		}
		from := "(" + inner + ") AS " + r.d.Quote(r.nextAlias())
		where, err := r.conditions(conds, "WHERE")
		if err != nil {
			return "", err
		}
		return "SELECT " + r.nameList(n.Heading().Names()) + " FROM " + from + where, nil
	}

	gFrom, gConds, err := r.source(n.Grouping)
	if err != nil {
		return "", err
	}
	sub, ok := n.Grouped.(*expr.Subquery)
	if !ok {
		return "", &InternalError{Message: "aggregation grouped operand is not materialized"}
	}
	grouped, err := r.selectFor(sub.Input)
	if err != nil {
		return "", err
	}
	from := gFrom + " LEFT JOIN (" + grouped + ") AS " + r.d.Quote(r.nextAlias()) +
		" USING (" + r.nameList(n.Keys) + ")"

	where, err := r.conditions(gConds, "WHERE")
	if err != nil {
		return "", err
	}
	having, err := r.conditions(conds, "HAVING")
	if err != nil {
		return "", err
	}
	return "SELECT " + r.selectList(n.Heading()) + " FROM " + from + where +
		" GROUP BY " + r.nameList(n.Keys) + having, nil
}

// selectUnion renders the n-ary union. When every arm carries the full
// attribute set a plain UNION of the arms suffices; otherwise each arm
// drives a NULL-filling left join against all other arms.
func (r *renderer) selectUnion(n *expr.Union) (string, error) {
	h := n.Heading()
	uniform := true
	for _, arm := range n.Inputs {
		if arm.Heading().Len() != h.Len() {
			uniform = false
			break
		}
	}

	arms := make([]string, len(n.Inputs))
	for k, arm := range n.Inputs {
		sub, ok := arm.(*expr.Subquery)
		if !ok {
			return "", &InternalError{Message: "union arm is not materialized"}
		}
		sql, err := r.unionArm(n, sub, k, uniform)
		if err != nil {
			return "", err
		}
		arms[k] = sql
	}
	return strings.Join(arms, " UNION "), nil
}

func (r *renderer) unionArm(n *expr.Union, driving *expr.Subquery, k int, uniform bool) (string, error) {
	h := n.Heading()

	inner, err := r.selectFor(driving.Input)
	if err != nil {
		return "", err
	}
	drivingAlias := r.nextAlias()
	from := "(" + inner + ") AS " + r.d.Quote(drivingAlias)

	aliasOf := map[int]string{k: drivingAlias}
	if !uniform {
		pk := r.nameList(h.PrimaryKey())
		for j, other := range n.Inputs {
			if j == k {
				continue
			}
			sub := other.(*expr.Subquery)
			otherSQL, err := r.selectFor(sub.Input)
			if err != nil {
				return "", err
			}
			alias := r.nextAlias()
			aliasOf[j] = alias
			from += " LEFT JOIN (" + otherSQL + ") AS " + r.d.Quote(alias) + " USING (" + pk + ")"
		}
	}

	var items []string
	for _, a := range h.Attributes() {
		if a.InKey {
			items = append(items, r.qualified(drivingAlias, a.Name)+" AS "+r.d.Quote(a.Name))
			continue
		}
		var refs []string
		if n.Inputs[k].Heading().Has(a.Name) {
			refs = append(refs, r.qualified(drivingAlias, a.Name))
		}
		if !uniform {
			for j, other := range n.Inputs {
				if j == k || !other.Heading().Has(a.Name) {
					continue
				}
				refs = append(refs, r.qualified(aliasOf[j], a.Name))
			}
		}
		switch {
		case len(refs) == 0:
			items = append(items, "NULL AS "+r.d.Quote(a.Name))
		case len(refs) == 1:
			items = append(items, refs[0]+" AS "+r.d.Quote(a.Name))
		default:
			items = append(items, "COALESCE("+strings.Join(refs, ", ")+") AS "+r.d.Quote(a.Name))
		}
	}
	return "SELECT " + strings.Join(items, ", ") + " FROM " + from, nil
}

func (r *renderer) qualified(alias, name string) string {
	return r.d.Quote(alias) + "." + r.d.Quote(name)
}

// selectList renders a heading as a SELECT item list: plain columns by
// name, renames as quoted source AS name, computed attributes as their
// SQL expression AS name.
func (r *renderer) selectList(h *heading.Heading) string {
	items := make([]string, 0, h.Len())
	for _, a := range h.Attributes() {
		switch {
		case a.Expr != "":
			items = append(items, a.Expr+" AS "+r.d.Quote(a.Name))
		case a.RenameOf != "":
			items = append(items, r.d.Quote(a.RenameOf)+" AS "+r.d.Quote(a.Name))
		default:
			items = append(items, r.d.Quote(a.Name))
		}
	}
	return strings.Join(items, ", ")
}

func (r *renderer) nameList(names []string) string {
	items := make([]string, len(names))
	for i, n := range names {
		items[i] = r.d.Quote(n)
	}
	return strings.Join(items, ", ")
}

func (r *renderer) tableRef(b *expr.Base) string {
	if b.SchemaName == "" {
		return r.d.Quote(b.TableName)
	}
	return r.d.Quote(b.SchemaName) + "." + r.d.Quote(b.TableName)
}

// conditions renders a condition list as a keyword clause, or an empty
// string when nothing applies.
func (r *renderer) conditions(conds []boundCond, keyword string) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	frags := make([]string, 0, len(conds))
	for _, bc := range conds {
		frag, err := r.condition(bc.cond, bc.h)
		if err != nil {
			return "", err
		}
		frags = append(frags, "("+frag+")")
	}
	return " " + keyword + " " + strings.Join(frags, " AND "), nil
}

// condition renders one condition fragment, appending bound parameters
// in text order.
func (r *renderer) condition(c expr.Condition, h *heading.Heading) (string, error) {
	switch cond := c.(type) {
	case expr.Equality:
		return r.equality(cond, h), nil

	case expr.Raw:
		return "(" + string(cond) + ")", nil

	case expr.AndList:
		return r.conditionList([]expr.Condition(cond), h, " AND ", "1 = 1")

	case expr.OrList:
		return r.conditionList([]expr.Condition(cond), h, " OR ", "1 = 0")

	case expr.Not:
		inner, err := r.condition(cond.Cond, h)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	case *expr.Not:
		return r.condition(*cond, h)

	case expr.Bool:
		if cond {
			return "1 = 1", nil
		}
		return "1 = 0", nil

	case expr.SubqueryRef:
		return r.semijoin(&cond, h)

	case *expr.SubqueryRef:
		return r.semijoin(cond, h)

	default:
		return "", &InternalError{Message: fmt.Sprintf("unexpected condition %T", c)}
	}
}

func (r *renderer) conditionList(conds []expr.Condition, h *heading.Heading, sep, empty string) (string, error) {
	if len(conds) == 0 {
		return empty, nil
	}
	frags := make([]string, 0, len(conds))
	for _, sub := range conds {
		frag, err := r.condition(sub, h)
		if err != nil {
			return "", err
		}
		frags = append(frags, "("+frag+")")
	}
	return strings.Join(frags, sep), nil
}

// equality renders an attribute/value map. Keys absent from the operand
// heading are ignored; an all-ignored map matches every row. NULL values
// render as IS NULL; everything else is parameterized.
func (r *renderer) equality(m expr.Equality, h *heading.Heading) string {
	names := make([]string, 0, len(m))
	for name := range m {
		if h.Has(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "1 = 1"
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if _, isNull := m[name].(heading.Null); isNull {
			parts = append(parts, r.d.Quote(name)+" IS NULL")
			continue
		}
		parts = append(parts, r.d.Quote(name)+" = "+r.d.Placeholder)
		r.params = append(r.params, m[name])
	}
	return strings.Join(parts, " AND ")
}

// semijoin renders restriction by expression: a row-value IN over the
// matching keys, degrading to a bare EXISTS when no namesakes exist.
func (r *renderer) semijoin(sq *expr.SubqueryRef, h *heading.Heading) (string, error) {
	inner, err := r.selectFor(sq.Target)
	if err != nil {
		return "", err
	}
	if len(sq.Keys) == 0 {
		return "EXISTS (" + inner + ")", nil
	}
	derived := "(" + inner + ") AS " + r.d.Quote(r.nextAlias())
	keyList := r.nameList(sq.Keys)
	left := keyList
	if len(sq.Keys) > 1 {
		left = "(" + keyList + ")"
	}
	return left + " IN (SELECT " + keyList + " FROM " + derived + ")", nil
}

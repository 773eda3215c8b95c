package expr

import (
	"github.com/entset/entset/heading"
)

// Expr is the sealed interface of expression-tree nodes.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and
// enables exhaustive type switches in the renderer.
//
// Node types:
//   - Base: a stored entity set
//   - Subquery: a materialization boundary inserted by the wrap policy
//   - Restriction: input filtered by a condition
//   - Join: natural equijoin on homologous namesakes
//   - Projection: kept/renamed/computed attribute selection
//   - Promotion: primary-key promotion (universal-set restriction)
//   - Aggregation: grouped outer join with aggregate projection
//   - Union: n-ary union sharing one primary key
//   - UniversalSet: virtual lineage-unconstrained entity type
type Expr interface {
	// Heading returns the node's attribute metadata. Computed once at
	// construction and shared thereafter.
	Heading() *heading.Heading

	exprNode() // Marker method - seals interface to this package
}

// PrimaryKey returns the primary-key attribute names of an expression.
func PrimaryKey(e Expr) []string {
	return e.Heading().PrimaryKey()
}

// Base is a stored entity set, backed by a table whose heading the
// schema collaborator supplies with lineage already resolved.
type Base struct {
	SchemaName string
	TableName  string

	heading *heading.Heading
}

// NewBase constructs a Base node. The heading must designate a primary
// key; lineage annotation is the caller's responsibility (see the
// schema package).
func NewBase(schemaName, tableName string, h *heading.Heading) (*Base, error) {
	if h.IsUniversal() {
		return nil, &UnsupportedOperationError{
			Operation: "base",
			Guidance:  "a universal set has no backing table; use Universal instead",
		}
	}
	return &Base{SchemaName: schemaName, TableName: tableName, heading: h}, nil
}

func (b *Base) Heading() *heading.Heading { return b.heading }
func (b *Base) exprNode()                 {}

// Subquery is a materialization boundary: its input renders as a nested
// SELECT and its own heading exposes the input's attributes as plain
// columns of the derived table. The wrap policy inserts these nodes;
// callers never build one directly.
type Subquery struct {
	Input Expr

	heading *heading.Heading
}

func (s *Subquery) Heading() *heading.Heading { return s.heading }
func (s *Subquery) exprNode()                 {}

// wrap materializes an expression behind a subquery boundary.
// Wrapping an existing boundary is a no-op.
func wrap(e Expr) Expr {
	if _, already := e.(*Subquery); already {
		return e
	}
	return &Subquery{Input: e, heading: e.Heading().ClearAliases()}
}

// Restriction filters its input by a condition. A chain of restrictions
// over an Aggregation renders as HAVING; everywhere else the conditions
// land in WHERE.
type Restriction struct {
	Input Expr
	Cond  Condition

	heading *heading.Heading
}

func (r *Restriction) Heading() *heading.Heading { return r.heading }
func (r *Restriction) exprNode()                 {}

// Join is a natural equijoin of two operands on their homologous
// namesakes. Keys is the validated matching-attribute list; empty keys
// degrade to a cartesian product.
type Join struct {
	Left  Expr
	Right Expr
	Keys  []string

	heading *heading.Heading
}

func (j *Join) Heading() *heading.Heading { return j.heading }
func (j *Join) exprNode()                 {}

// Projection narrows or extends its input's heading: kept and renamed
// attributes survive with their lineage, computed attributes are
// appended without lineage. The projection itself carries no SQL clause
// beyond the select list derived from its heading.
type Projection struct {
	Input Expr

	heading *heading.Heading
}

func (p *Projection) Heading() *heading.Heading { return p.heading }
func (p *Projection) exprNode()                 {}

// Promotion alters only key designation: it either narrows the heading
// to a universal set's attributes (rendered SELECT DISTINCT) or promotes
// named attributes into the input's primary key in place.
type Promotion struct {
	Input Expr

	// Distinct marks the narrowing form, which must deduplicate.
	Distinct bool

	heading *heading.Heading
}

func (p *Promotion) Heading() *heading.Heading { return p.heading }
func (p *Promotion) exprNode()                 {}

// Aggregation translates to a left outer join of Grouping and Grouped,
// grouped by Grouping's primary key, followed by a projection whose
// computed entries may use aggregate functions over Grouped's
// attributes. Grouped is always behind a subquery boundary.
type Aggregation struct {
	Grouping Expr
	Grouped  Expr

	// Keys is Grouping's primary key, the grouping attribute list.
	Keys []string

	heading *heading.Heading
}

func (a *Aggregation) Heading() *heading.Heading { return a.heading }
func (a *Aggregation) exprNode()                 {}

// Union combines inputs that share one primary key. Inputs are kept in
// canonical form: nested unions are flattened at construction, which
// makes union associative at the tree level.
type Union struct {
	Inputs []Expr

	heading *heading.Heading
}

func (u *Union) Heading() *heading.Heading { return u.heading }
func (u *Union) exprNode()                 {}

// UniversalSet is a virtual entity type with no backing table: the named
// attributes have no fixed type or lineage until matched against a
// concrete operand. It cannot stand alone as a queryable source.
type UniversalSet struct {
	heading *heading.Heading
}

// Universal constructs a universal set over the named attributes.
// An empty attribute list is legal and promotes every attribute of the
// operand it is later matched with.
func Universal(attributes ...string) (*UniversalSet, error) {
	h, err := heading.NewUniversal(attributes)
	if err != nil {
		return nil, err
	}
	return &UniversalSet{heading: h}, nil
}

// Attributes returns the named attributes.
func (u *UniversalSet) Attributes() []string { return u.heading.Names() }

func (u *UniversalSet) Heading() *heading.Heading { return u.heading }
func (u *UniversalSet) exprNode()                 {}

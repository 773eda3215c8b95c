package heading

import (
	"strings"

	"github.com/entset/entset/lineage"
)

// TypeDescriptor is a minimal SQL type model. Equality is by value; the
// union operator uses it to reject conflicting declarations of a shared
// secondary attribute.
type TypeDescriptor struct {
	// Name is the SQL type name, lowercased (e.g. "int", "varchar").
	Name string

	// Size is the declared width, or 0 when the type takes none.
	Size int

	// Unsigned marks unsigned integer types.
	Unsigned bool
}

// String renders the descriptor as SQL type syntax, e.g. "varchar(30)"
// or "int unsigned".
func (t TypeDescriptor) String() string {
	var b strings.Builder
	b.WriteString(t.Name)
	if t.Size > 0 {
		b.WriteString("(")
		b.WriteString(itoa(t.Size))
		b.WriteString(")")
	}
	if t.Unsigned {
		b.WriteString(" unsigned")
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Attribute describes one named, typed column of an entity set.
//
// The zero Expr means the attribute maps directly to a stored column of
// the same name. A non-empty Expr marks an alias attribute: a computed
// expression or a rename introduced by projection. Alias attributes are
// what the subquery policy watches for - referencing one from a later
// operator forces the input to be materialized as a subquery so the
// alias becomes a real column.
type Attribute struct {
	// Name is the attribute name, unique within a heading.
	Name string

	// Type describes the SQL type. Universal-set attributes have an
	// empty Type until they are matched against a concrete operand.
	Type TypeDescriptor

	// Nullable marks attributes that may hold NULL. Never true for
	// primary-key attributes.
	Nullable bool

	// Default is the declared default value, or nil when none.
	Default Literal

	// InKey marks primary-key membership.
	InKey bool

	// Lineage is the origin of the attribute, or nil for native
	// secondary and computed attributes.
	Lineage *lineage.Origin

	// Expr is the SQL expression this attribute is computed from.
	// Empty for plain stored columns and renames.
	Expr string

	// RenameOf is the source column name when the attribute was
	// introduced by a rename. Unlike Expr, the value is an identifier
	// and is quoted by the renderer according to the active dialect.
	RenameOf string
}

// IsAlias reports whether the attribute is a computed or renamed
// attribute rather than a plain stored column.
func (a Attribute) IsAlias() bool {
	return a.Expr != "" || a.RenameOf != ""
}

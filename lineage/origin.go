package lineage

import "fmt"

// Origin identifies the table where an attribute was originally defined.
//
// An attribute's origin is NOT where it is currently visible: an attribute
// inherited through a chain of foreign keys traces back to the table that
// first declared it as a native primary-key attribute.
//
// A nil *Origin means "no origin": the attribute is either a native
// secondary attribute or a computed expression, and it can never be used
// as a matching key against a same-named attribute from another source.
type Origin struct {
	Schema    string
	Table     string
	Attribute string
}

// String renders the origin as "schema.table.attribute".
func (o Origin) String() string {
	return fmt.Sprintf("%s.%s.%s", o.Schema, o.Table, o.Attribute)
}

// Equal reports whether two origins identify the same declaring attribute.
// Two nil origins are NOT considered equal for matching purposes; that
// decision belongs to the compat package, which treats nil/nil namesakes
// as an error. Equal only compares concrete values.
func Equal(a, b *Origin) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// Package compat implements semantic matching between headings: deciding
// which same-named attributes of two operands may legally be used as a
// join, union, or restriction key.
//
// Two attributes are namesakes if they share a name. Namesakes are
// homologous when both trace to the same origin (see the lineage
// package). Homologous namesakes are usable for matching; non-homologous
// namesakes are a construction error, because matching two attributes
// that merely happen to share a name silently produces wrong joins.
package compat

import (
	"errors"
	"fmt"

	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

// IncompatibleAttributeError reports non-homologous namesakes: an
// attribute present by the same name in both operands whose origins
// differ, or where one (or both) sides have no origin at all.
type IncompatibleAttributeError struct {
	// Name is the clashing attribute name.
	Name string

	// LeftOrigin and RightOrigin are the origins on each side;
	// nil means the attribute has no lineage (native secondary or
	// computed attribute).
	LeftOrigin  *lineage.Origin
	RightOrigin *lineage.Origin
}

// Error implements the error interface.
func (e *IncompatibleAttributeError) Error() string {
	return fmt.Sprintf(
		"attribute %q cannot be matched: left origin %s, right origin %s; "+
			"rename one side via projection or request the permissive variant explicitly",
		e.Name, originLabel(e.LeftOrigin), originLabel(e.RightOrigin))
}

func originLabel(o *lineage.Origin) string {
	if o == nil {
		return "none"
	}
	return o.String()
}

// IsIncompatible reports whether err is an IncompatibleAttributeError.
// Uses errors.As to handle wrapped errors.
func IsIncompatible(err error) bool {
	var ie *IncompatibleAttributeError
	return errors.As(err, &ie)
}

// Namesakes returns the attribute names present in both headings, in the
// declaration order of the left heading. No homology check is applied.
func Namesakes(a, b *heading.Heading) []string {
	var out []string
	for _, name := range a.Names() {
		if b.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// AssertCompatible computes the homologous namesakes of two headings and
// returns them, or an IncompatibleAttributeError for the first
// non-homologous pair found.
//
// Decision matrix per namesake:
//   - both sides carry equal lineage: usable for matching
//   - both sides carry lineage, unequal: error
//   - both sides lack lineage: error
//   - one side lacks lineage: error
//
// A universal-set heading matches unconditionally: its attributes have
// no lineage of their own and adopt the other operand's.
func AssertCompatible(a, b *heading.Heading) ([]string, error) {
	names := Namesakes(a, b)
	if a.IsUniversal() || b.IsUniversal() {
		return names, nil
	}
	for _, name := range names {
		left, _ := a.Attribute(name)
		right, _ := b.Attribute(name)
		if !lineage.Equal(left.Lineage, right.Lineage) {
			return nil, &IncompatibleAttributeError{
				Name:        name,
				LeftOrigin:  left.Lineage,
				RightOrigin: right.Lineage,
			}
		}
	}
	return names, nil
}

package heading

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Heading is an ordered, name-unique collection of attributes with a
// designated primary key. Immutable once constructed; operators always
// produce a new Heading.
type Heading struct {
	attrs     []Attribute
	index     map[string]int
	universal bool
}

// New constructs a heading from the given attributes.
//
// Invariants enforced here:
//   - attribute names are unique (after NFC normalization)
//   - primary-key attributes are never nullable
//   - the primary key is non-empty
func New(attrs []Attribute) (*Heading, error) {
	h := &Heading{
		attrs: make([]Attribute, len(attrs)),
		index: make(map[string]int, len(attrs)),
	}
	hasKey := false
	for i, a := range attrs {
		a.Name = norm.NFC.String(a.Name)
		if a.Name == "" {
			return nil, &HeadingError{Message: "empty attribute name"}
		}
		if _, dup := h.index[a.Name]; dup {
			return nil, &HeadingError{Message: fmt.Sprintf("duplicate attribute %q", a.Name)}
		}
		if a.InKey {
			hasKey = true
			if a.Nullable {
				return nil, &HeadingError{Message: fmt.Sprintf("primary-key attribute %q cannot be nullable", a.Name)}
			}
		}
		h.attrs[i] = a
		h.index[a.Name] = i
	}
	if !hasKey {
		return nil, &HeadingError{Message: "primary key is empty"}
	}
	return h, nil
}

// NewUniversal constructs the heading of a universal set: every named
// attribute is primary, untyped, and without lineage. The attribute list
// may be empty (the unconstrained universal set).
func NewUniversal(names []string) (*Heading, error) {
	h := &Heading{
		attrs:     make([]Attribute, len(names)),
		index:     make(map[string]int, len(names)),
		universal: true,
	}
	for i, name := range names {
		name = norm.NFC.String(name)
		if name == "" {
			return nil, &HeadingError{Message: "empty attribute name"}
		}
		if _, dup := h.index[name]; dup {
			return nil, &HeadingError{Message: fmt.Sprintf("duplicate attribute %q", name)}
		}
		h.attrs[i] = Attribute{Name: name, InKey: true}
		h.index[name] = i
	}
	return h, nil
}

// IsUniversal reports whether the heading belongs to a universal set.
func (h *Heading) IsUniversal() bool {
	return h.universal
}

// Len returns the number of attributes.
func (h *Heading) Len() int {
	return len(h.attrs)
}

// Attributes returns a copy of the attribute sequence in declaration order.
func (h *Heading) Attributes() []Attribute {
	out := make([]Attribute, len(h.attrs))
	copy(out, h.attrs)
	return out
}

// Attribute looks up an attribute by name.
func (h *Heading) Attribute(name string) (Attribute, bool) {
	i, ok := h.index[norm.NFC.String(name)]
	if !ok {
		return Attribute{}, false
	}
	return h.attrs[i], true
}

// Has reports whether the heading contains an attribute with the name.
func (h *Heading) Has(name string) bool {
	_, ok := h.index[norm.NFC.String(name)]
	return ok
}

// Names returns all attribute names in declaration order.
func (h *Heading) Names() []string {
	out := make([]string, len(h.attrs))
	for i, a := range h.attrs {
		out[i] = a.Name
	}
	return out
}

// PrimaryKey returns the primary-key attribute names in declaration order.
func (h *Heading) PrimaryKey() []string {
	var out []string
	for _, a := range h.attrs {
		if a.InKey {
			out = append(out, a.Name)
		}
	}
	return out
}

// SecondaryNames returns the non-key attribute names in declaration order.
func (h *Heading) SecondaryNames() []string {
	var out []string
	for _, a := range h.attrs {
		if !a.InKey {
			out = append(out, a.Name)
		}
	}
	return out
}

// HasAliases reports whether any attribute is a computed or renamed
// alias. The subquery policy consults this to decide whether an input
// must be materialized before further operators reference its columns.
func (h *Heading) HasAliases() bool {
	for _, a := range h.attrs {
		if a.IsAlias() {
			return true
		}
	}
	return false
}

// ClearAliases returns a heading in which every attribute is a plain
// stored column. Applied at subquery boundaries: once an input is
// materialized as a nested SELECT, its aliases become real columns of
// the derived table.
func (h *Heading) ClearAliases() *Heading {
	out := h.clone()
	for i := range out.attrs {
		out.attrs[i].Expr = ""
		out.attrs[i].RenameOf = ""
	}
	return out
}

// Project applies the §-style projection rule set:
//   - kept attributes survive under their own name and lineage
//   - renamed attributes (newname -> oldname) keep the source lineage
//   - computed attributes (newname -> SQL expression) are appended as
//     secondary attributes without lineage
//   - primary-key attributes are always implicitly kept
//
// Referencing a name absent from the heading raises UnknownAttributeError.
func (h *Heading) Project(kept []string, renamed map[string]string, computed map[string]string) (*Heading, error) {
	// Rename targets, indexed by source position so renames keep the
	// declaration order of their source attribute.
	renameAt := make(map[string][]string) // oldname -> newnames
	for newName, oldName := range renamed {
		oldName = norm.NFC.String(oldName)
		if !h.Has(oldName) {
			return nil, &UnknownAttributeError{Name: oldName, Context: "rename"}
		}
		renameAt[oldName] = append(renameAt[oldName], norm.NFC.String(newName))
	}
	for _, news := range renameAt {
		sort.Strings(news)
	}

	keep := make(map[string]bool, len(kept))
	for _, name := range kept {
		name = norm.NFC.String(name)
		if !h.Has(name) {
			return nil, &UnknownAttributeError{Name: name, Context: "projection"}
		}
		keep[name] = true
	}
	// The primary key survives implicitly, except for key attributes
	// that are being renamed: a rename transfers key membership to the
	// new name and retires the old one.
	for _, name := range h.PrimaryKey() {
		if _, gone := renameAt[name]; !gone {
			keep[name] = true
		}
	}

	var attrs []Attribute
	for _, a := range h.attrs {
		if keep[a.Name] {
			attrs = append(attrs, a)
		}
		for _, newName := range renameAt[a.Name] {
			r := a
			r.Name = newName
			if a.Expr == "" && a.RenameOf == "" {
				r.RenameOf = a.Name
			}
			attrs = append(attrs, r)
		}
	}

	computedNames := make([]string, 0, len(computed))
	for name := range computed {
		computedNames = append(computedNames, name)
	}
	sort.Strings(computedNames)
	for _, name := range computedNames {
		attrs = append(attrs, Attribute{
			Name:     norm.NFC.String(name),
			Nullable: true,
			Expr:     computed[name],
		})
	}

	return New(attrs)
}

// Join merges two headings for a natural equijoin. Attributes present in
// both by name must have been pre-validated as homologous (see the
// compat package) and are kept once; the merged primary key is the union
// of both inputs' primary keys.
func (h *Heading) Join(other *Heading) (*Heading, error) {
	attrs := make([]Attribute, 0, len(h.attrs)+len(other.attrs))
	for _, a := range h.attrs {
		if b, shared := other.Attribute(a.Name); shared {
			a.InKey = a.InKey || b.InKey
			a.Nullable = a.Nullable && b.Nullable
			if a.InKey {
				a.Nullable = false
			}
		}
		attrs = append(attrs, a)
	}
	for _, b := range other.attrs {
		if !h.Has(b.Name) {
			attrs = append(attrs, b)
		}
	}
	return New(attrs)
}

// SelectKey returns a heading containing only the named attributes, all
// promoted to the primary key. Used when a universal set restricts a
// concrete operand: the named attributes keep the operand's type and
// lineage but form a new primary key.
func (h *Heading) SelectKey(names []string) (*Heading, error) {
	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		a, ok := h.Attribute(name)
		if !ok {
			return nil, &UnknownAttributeError{Name: name, Context: "key promotion"}
		}
		a.InKey = true
		a.Nullable = false
		attrs = append(attrs, a)
	}
	return New(attrs)
}

// PromoteKey returns a heading with the named attributes added to the
// primary key. An empty name list promotes every attribute.
func (h *Heading) PromoteKey(names []string) (*Heading, error) {
	promote := make(map[string]bool, len(names))
	if len(names) == 0 {
		for _, a := range h.attrs {
			promote[a.Name] = true
		}
	}
	for _, name := range names {
		name = norm.NFC.String(name)
		if !h.Has(name) {
			return nil, &UnknownAttributeError{Name: name, Context: "key promotion"}
		}
		promote[name] = true
	}
	attrs := make([]Attribute, len(h.attrs))
	copy(attrs, h.attrs)
	for i := range attrs {
		if promote[attrs[i].Name] {
			attrs[i].InKey = true
			attrs[i].Nullable = false
		}
	}
	return New(attrs)
}

func (h *Heading) clone() *Heading {
	out := &Heading{
		attrs:     make([]Attribute, len(h.attrs)),
		index:     make(map[string]int, len(h.index)),
		universal: h.universal,
	}
	copy(out.attrs, h.attrs)
	for k, v := range h.index {
		out.index[k] = v
	}
	return out
}

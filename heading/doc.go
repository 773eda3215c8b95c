// Package heading models the metadata of an entity set: an ordered,
// name-unique collection of typed attributes with a designated primary key.
//
// Headings are immutable. Operator packages never modify a heading in
// place; every algebraic operation (projection, join merge, promotion)
// produces a new Heading value. Attribute names are normalized to Unicode
// NFC at construction so that namesake detection is canonical.
//
// Each attribute carries its lineage: the (schema, table, attribute)
// triple where it was originally declared, or nil for native secondary
// and computed attributes. Lineage is what decides whether two same-named
// attributes from different sources may legally be matched; see the
// compat package for the matching rules.
package heading

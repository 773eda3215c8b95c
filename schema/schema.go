// Package schema loads entity-set declarations written in CUE and turns
// them into headings with resolved lineage plus the foreign-key
// adjacency the lineage package walks.
//
// A declaration file names its schema and declares tables:
//
//	schema: "university"
//
//	table: Student: {
//		attributes: [
//			{name: "student_id", type: "int"},
//			{name: "full_name", type: "varchar", size: 64, nullable: true},
//		]
//		primaryKey: ["student_id"]
//	}
//
//	table: Enrollment: {
//		attributes: [
//			{name: "student_id", type: "int"},
//			{name: "course_id", type: "int"},
//		]
//		primaryKey: ["student_id", "course_id"]
//		foreignKeys: [
//			{parent: "Student", map: {student_id: "student_id"}},
//			{parent: "Course", map: {course_id: "course_id"}},
//		]
//	}
package schema

import (
	"context"
	"fmt"

	"github.com/entset/entset/expr"
	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

// Definition is one declared table: its heading (with lineage resolved)
// and its outgoing foreign-key edges.
type Definition struct {
	Name        string
	Heading     *heading.Heading
	ForeignKeys []lineage.ForeignKey
}

// Node returns the dependency-graph node for this table.
func (d *Definition) Node() *lineage.TableNode {
	return &lineage.TableNode{
		Name:        d.Name,
		PrimaryKey:  d.Heading.PrimaryKey(),
		Attributes:  d.Heading.Names(),
		ForeignKeys: d.ForeignKeys,
	}
}

// Schema is a loaded set of table declarations.
type Schema struct {
	Name string

	defs  map[string]*Definition
	order []string
}

// Table looks up a declared table by name.
func (s *Schema) Table(name string) (*Definition, bool) {
	d, ok := s.defs[name]
	return d, ok
}

// Tables returns all definitions in declaration order.
func (s *Schema) Tables() []*Definition {
	out := make([]*Definition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.defs[name])
	}
	return out
}

// Graph returns the foreign-key adjacency of the schema.
func (s *Schema) Graph() *lineage.TableGraph {
	g := &lineage.TableGraph{Schema: s.Name, Tables: make(map[string]*lineage.TableNode, len(s.defs))}
	for name, d := range s.defs {
		g.Tables[name] = d.Node()
	}
	return g
}

// Base constructs a stored-table expression node for a declared table.
func (s *Schema) Base(table string) (*expr.Base, error) {
	d, ok := s.defs[table]
	if !ok {
		return nil, fmt.Errorf("table %q not declared in schema %q", table, s.Name)
	}
	return expr.NewBase(s.Name, table, d.Heading)
}

// Relink re-resolves attribute lineage through the given resolver and
// rebuilds each table's heading. Used to switch a loaded schema from
// graph-derived lineage to an authoritative side-table store.
func (s *Schema) Relink(ctx context.Context, r lineage.Resolver) error {
	for _, name := range s.order {
		d := s.defs[name]
		attrs := d.Heading.Attributes()
		for i := range attrs {
			origin, err := r.Resolve(ctx, d.Name, attrs[i].Name)
			if err != nil {
				return fmt.Errorf("resolving %s.%s: %w", d.Name, attrs[i].Name, err)
			}
			attrs[i].Lineage = origin
		}
		h, err := heading.New(attrs)
		if err != nil {
			return fmt.Errorf("rebuilding heading for %s: %w", d.Name, err)
		}
		d.Heading = h
	}
	return nil
}

// Recorder persists resolved lineage entries for a table. Satisfied by
// *lineage.Store.
type Recorder interface {
	RecordTable(ctx context.Context, table string, entries map[string]lineage.Origin) error
}

// Register writes every resolved origin of every table to the recorder,
// making the side-table strategy authoritative for later sessions.
func (s *Schema) Register(ctx context.Context, rec Recorder) error {
	for _, name := range s.order {
		d := s.defs[name]
		entries := make(map[string]lineage.Origin)
		for _, a := range d.Heading.Attributes() {
			if a.Lineage != nil {
				entries[a.Name] = *a.Lineage
			}
		}
		if err := rec.RecordTable(ctx, d.Name, entries); err != nil {
			return fmt.Errorf("recording lineage for %s: %w", d.Name, err)
		}
	}
	return nil
}

package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

// LoadMode controls how errors are handled during declaration loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// CompileError is a declaration error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads all CUE files in a directory and compiles them into a
// Schema with graph-resolved lineage. In LoadModeCollectAll the partial
// schema is returned alongside every error found; in LoadModeFailFast
// the first error stops the load.
func Load(ctx context.Context, dir string, mode LoadMode) (*Schema, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("declarations directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("error accessing declarations directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	cuectx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Field: "cue", Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&CompileError{Field: "cue", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}
	value := cuectx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	return Compile(ctx, value, mode)
}

// Compile turns an already-built CUE value into a Schema. Exposed so
// tests can feed declarations from strings via cuecontext.CompileString.
func Compile(ctx context.Context, value cue.Value, mode LoadMode) (*Schema, []error) {
	var errs []error

	nameVal := value.LookupPath(cue.ParsePath("schema"))
	if !nameVal.Exists() {
		return nil, []error{&CompileError{Field: "schema", Message: "schema name is required", Pos: value.Pos()}}
	}
	schemaName, err := nameVal.String()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	s := &Schema{Name: schemaName, defs: make(map[string]*Definition)}
	raw := make(map[string]*rawTable)

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if tablesVal.Exists() {
		iter, iterErr := tablesVal.Fields()
		if iterErr != nil {
			return nil, []error{formatCUEError(iterErr)}
		}
		for iter.Next() {
			rt, compileErr := compileTable(iter.Label(), iter.Value())
			if compileErr != nil {
				errs = append(errs, compileErr)
				if mode == LoadModeFailFast {
					return s, errs
				}
				continue
			}
			raw[rt.name] = rt
			s.order = append(s.order, rt.name)
		}
	}
	if len(raw) == 0 && len(errs) == 0 {
		return s, []error{&CompileError{Field: "table", Message: "no tables declared", Pos: value.Pos()}}
	}

	// Foreign keys may only reference declared tables; validate before
	// walking the graph so resolution errors point at the declaration.
	// In collect-all mode a bad table is excluded but the rest still
	// materialize.
	bad := make(map[string]bool)
	for _, name := range s.order {
		rt := raw[name]
		for _, fk := range rt.foreignKeys {
			if _, ok := raw[fk.Parent]; !ok {
				errs = append(errs, &CompileError{
					Field:   "foreignKeys",
					Message: fmt.Sprintf("table %q references undeclared parent %q (declared: %s)", name, fk.Parent, strings.Join(rawNames(raw), ", ")),
					Pos:     rt.pos,
				})
				bad[name] = true
				if mode == LoadModeFailFast {
					return s, errs
				}
			}
		}
	}

	// Lineage is resolved against the full adjacency, so definitions are
	// materialized only after every declaration has been parsed.
	graph := &lineage.TableGraph{Schema: schemaName, Tables: make(map[string]*lineage.TableNode, len(raw))}
	for name, rt := range raw {
		if !bad[name] {
			graph.Tables[name] = rt.node()
		}
	}
	resolver := lineage.NewGraphResolver(graph, nil)

	for _, name := range s.order {
		if bad[name] {
			continue
		}
		rt := raw[name]
		attrs := make([]heading.Attribute, len(rt.attrs))
		copy(attrs, rt.attrs)
		for i := range attrs {
			origin, resolveErr := resolver.Resolve(ctx, name, attrs[i].Name)
			if resolveErr != nil {
				errs = append(errs, &CompileError{Field: "foreignKeys", Message: resolveErr.Error(), Pos: rt.pos})
				if mode == LoadModeFailFast {
					return s, errs
				}
				continue
			}
			attrs[i].Lineage = origin
		}
		h, headErr := heading.New(attrs)
		if headErr != nil {
			errs = append(errs, &CompileError{Field: "attributes", Message: headErr.Error(), Pos: rt.pos})
			if mode == LoadModeFailFast {
				return s, errs
			}
			continue
		}
		s.defs[name] = &Definition{Name: name, Heading: h, ForeignKeys: rt.foreignKeys}
	}

	// Drop ordering entries for tables that failed to materialize.
	if len(errs) > 0 {
		kept := s.order[:0]
		for _, name := range s.order {
			if _, ok := s.defs[name]; ok {
				kept = append(kept, name)
			}
		}
		s.order = kept
	}
	return s, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// rawTable is a parsed declaration before lineage resolution.
type rawTable struct {
	name        string
	attrs       []heading.Attribute
	primaryKey  []string
	foreignKeys []lineage.ForeignKey
	pos         token.Pos
}

func (rt *rawTable) node() *lineage.TableNode {
	names := make([]string, len(rt.attrs))
	for i, a := range rt.attrs {
		names[i] = a.Name
	}
	return &lineage.TableNode{
		Name:        rt.name,
		PrimaryKey:  rt.primaryKey,
		Attributes:  names,
		ForeignKeys: rt.foreignKeys,
	}
}

func compileTable(name string, v cue.Value) (*rawTable, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	rt := &rawTable{name: name, pos: v.Pos()}

	pkVal := v.LookupPath(cue.ParsePath("primaryKey"))
	if !pkVal.Exists() {
		return nil, &CompileError{Field: "primaryKey", Message: fmt.Sprintf("table %q: primaryKey is required", name), Pos: v.Pos()}
	}
	pkIter, err := pkVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	inKey := make(map[string]bool)
	for pkIter.Next() {
		k, err := pkIter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rt.primaryKey = append(rt.primaryKey, k)
		inKey[k] = true
	}
	if len(rt.primaryKey) == 0 {
		return nil, &CompileError{Field: "primaryKey", Message: fmt.Sprintf("table %q: primaryKey must not be empty", name), Pos: pkVal.Pos()}
	}

	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return nil, &CompileError{Field: "attributes", Message: fmt.Sprintf("table %q: attributes are required", name), Pos: v.Pos()}
	}
	attrIter, err := attrsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for attrIter.Next() {
		attr, err := compileAttribute(name, attrIter.Value(), inKey)
		if err != nil {
			return nil, err
		}
		rt.attrs = append(rt.attrs, attr)
	}
	if len(rt.attrs) == 0 {
		return nil, &CompileError{Field: "attributes", Message: fmt.Sprintf("table %q: at least one attribute is required", name), Pos: attrsVal.Pos()}
	}
	declared := make(map[string]bool, len(rt.attrs))
	for _, a := range rt.attrs {
		declared[a.Name] = true
	}
	for _, k := range rt.primaryKey {
		if !declared[k] {
			return nil, &CompileError{Field: "primaryKey", Message: fmt.Sprintf("table %q: key attribute %q is not declared", name, k), Pos: pkVal.Pos()}
		}
	}

	fksVal := v.LookupPath(cue.ParsePath("foreignKeys"))
	if fksVal.Exists() {
		fkIter, err := fksVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for fkIter.Next() {
			fk, err := compileForeignKey(name, fkIter.Value(), declared)
			if err != nil {
				return nil, err
			}
			rt.foreignKeys = append(rt.foreignKeys, fk)
		}
	}
	return rt, nil
}

func compileAttribute(table string, v cue.Value, inKey map[string]bool) (heading.Attribute, error) {
	var attr heading.Attribute

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return attr, &CompileError{Field: "attributes", Message: fmt.Sprintf("table %q: attribute name is required", table), Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return attr, formatCUEError(err)
	}
	attr.Name = name
	attr.InKey = inKey[name]

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return attr, &CompileError{Field: "type", Message: fmt.Sprintf("table %q: attribute %q needs a type", table, name), Pos: v.Pos()}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return attr, formatCUEError(err)
	}
	attr.Type.Name = strings.ToLower(typeName)

	if sizeVal := v.LookupPath(cue.ParsePath("size")); sizeVal.Exists() {
		size, err := sizeVal.Int64()
		if err != nil {
			return attr, formatCUEError(err)
		}
		attr.Type.Size = int(size)
	}
	if unsVal := v.LookupPath(cue.ParsePath("unsigned")); unsVal.Exists() {
		unsigned, err := unsVal.Bool()
		if err != nil {
			return attr, formatCUEError(err)
		}
		attr.Type.Unsigned = unsigned
	}
	if nullVal := v.LookupPath(cue.ParsePath("nullable")); nullVal.Exists() {
		nullable, err := nullVal.Bool()
		if err != nil {
			return attr, formatCUEError(err)
		}
		if nullable && attr.InKey {
			return attr, &CompileError{Field: "nullable", Message: fmt.Sprintf("table %q: key attribute %q cannot be nullable", table, name), Pos: nullVal.Pos()}
		}
		attr.Nullable = nullable
	}
	if defVal := v.LookupPath(cue.ParsePath("default")); defVal.Exists() {
		lit, err := literalFromCUE(defVal)
		if err != nil {
			return attr, err
		}
		attr.Default = lit
	}
	return attr, nil
}

func compileForeignKey(table string, v cue.Value, declared map[string]bool) (lineage.ForeignKey, error) {
	var fk lineage.ForeignKey

	parentVal := v.LookupPath(cue.ParsePath("parent"))
	if !parentVal.Exists() {
		return fk, &CompileError{Field: "foreignKeys", Message: fmt.Sprintf("table %q: foreign key needs a parent", table), Pos: v.Pos()}
	}
	parent, err := parentVal.String()
	if err != nil {
		return fk, formatCUEError(err)
	}
	fk.Parent = parent
	fk.AttrMap = make(map[string]string)

	mapVal := v.LookupPath(cue.ParsePath("map"))
	if !mapVal.Exists() {
		return fk, &CompileError{Field: "foreignKeys", Message: fmt.Sprintf("table %q: foreign key to %q needs an attribute map", table, parent), Pos: v.Pos()}
	}
	mapIter, err := mapVal.Fields()
	if err != nil {
		return fk, formatCUEError(err)
	}
	for mapIter.Next() {
		child := mapIter.Label()
		if !declared[child] {
			return fk, &CompileError{Field: "foreignKeys", Message: fmt.Sprintf("table %q: foreign-key attribute %q is not declared", table, child), Pos: mapIter.Value().Pos()}
		}
		parentAttr, err := mapIter.Value().String()
		if err != nil {
			return fk, formatCUEError(err)
		}
		fk.AttrMap[child] = parentAttr
	}
	if len(fk.AttrMap) == 0 {
		return fk, &CompileError{Field: "foreignKeys", Message: fmt.Sprintf("table %q: foreign key to %q has an empty attribute map", table, parent), Pos: mapVal.Pos()}
	}
	return fk, nil
}

// literalFromCUE converts a concrete CUE value to a literal default.
func literalFromCUE(v cue.Value) (heading.Literal, error) {
	switch v.Kind() {
	case cue.NullKind:
		return heading.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return heading.String(s), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return heading.Int(i), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return heading.Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return heading.Bool(b), nil
	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return heading.Bytes(b), nil
	default:
		return nil, &CompileError{
			Field:   "default",
			Message: fmt.Sprintf("unsupported default kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func rawNames(m map[string]*rawTable) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

const universityCUE = `
schema: "university"

table: Department: {
	attributes: [
		{name: "dept_id", type: "int"},
		{name: "dept_name", type: "varchar", size: 30},
	]
	primaryKey: ["dept_id"]
}

table: Student: {
	attributes: [
		{name: "student_id", type: "int"},
		{name: "full_name", type: "varchar", size: 64},
		{name: "dept_id", type: "int"},
	]
	primaryKey: ["student_id"]
	foreignKeys: [
		{parent: "Department", map: {dept_id: "dept_id"}},
	]
}

table: Course: {
	attributes: [
		{name: "course_id", type: "int"},
		{name: "title", type: "varchar", size: 80},
	]
	primaryKey: ["course_id"]
}

table: Enrollment: {
	attributes: [
		{name: "student_id", type: "int"},
		{name: "course_id", type: "int"},
		{name: "grade", type: "varchar", size: 2, nullable: true},
	]
	primaryKey: ["student_id", "course_id"]
	foreignKeys: [
		{parent: "Student", map: {student_id: "student_id"}},
		{parent: "Course", map: {course_id: "course_id"}},
	]
}
`

func compileString(t *testing.T, src string, mode LoadMode) (*Schema, []error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return Compile(context.Background(), v, mode)
}

func mustCompile(t *testing.T, src string) *Schema {
	t.Helper()
	s, errs := compileString(t, src, LoadModeFailFast)
	require.Empty(t, errs)
	return s
}

func asCompileError(t *testing.T, err error) *CompileError {
	t.Helper()
	var ce *CompileError
	require.True(t, errors.As(err, &ce), "expected *CompileError, got %T: %v", err, err)
	return ce
}

func TestCompile_ResolvesLineage(t *testing.T) {
	s := mustCompile(t, universityCUE)
	assert.Equal(t, "university", s.Name)

	names := make([]string, 0, 4)
	for _, d := range s.Tables() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Department", "Student", "Course", "Enrollment"}, names)

	student, ok := s.Table("Student")
	require.True(t, ok)
	assert.Equal(t, []string{"student_id"}, student.Heading.PrimaryKey())

	sid, ok := student.Heading.Attribute("student_id")
	require.True(t, ok)
	require.NotNil(t, sid.Lineage)
	assert.Equal(t, "university.Student.student_id", sid.Lineage.String())

	// A foreign-key attribute inherits the parent's origin.
	did, ok := student.Heading.Attribute("dept_id")
	require.True(t, ok)
	require.NotNil(t, did.Lineage)
	assert.Equal(t, "university.Department.dept_id", did.Lineage.String())

	// Non-key attributes without an edge carry no lineage.
	fn, ok := student.Heading.Attribute("full_name")
	require.True(t, ok)
	assert.Nil(t, fn.Lineage)

	enr, ok := s.Table("Enrollment")
	require.True(t, ok)
	esid, ok := enr.Heading.Attribute("student_id")
	require.True(t, ok)
	require.NotNil(t, esid.Lineage)
	assert.Equal(t, "university.Student.student_id", esid.Lineage.String())
}

func TestCompile_SchemaNameRequired(t *testing.T) {
	_, errs := compileString(t, `table: T: {attributes: [{name: "id", type: "int"}], primaryKey: ["id"]}`, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, "schema", asCompileError(t, errs[0]).Field)
}

func TestCompile_NoTables(t *testing.T) {
	_, errs := compileString(t, `schema: "empty"`, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, "table", asCompileError(t, errs[0]).Field)
}

func TestCompile_PrimaryKeyRequired(t *testing.T) {
	_, errs := compileString(t, `
schema: "s"
table: T: {attributes: [{name: "id", type: "int"}]}
`, LoadModeFailFast)
	require.Len(t, errs, 1)
	ce := asCompileError(t, errs[0])
	assert.Equal(t, "primaryKey", ce.Field)
	assert.Contains(t, ce.Message, "required")
}

func TestCompile_UndeclaredKeyAttribute(t *testing.T) {
	_, errs := compileString(t, `
schema: "s"
table: T: {attributes: [{name: "id", type: "int"}], primaryKey: ["nope"]}
`, LoadModeFailFast)
	require.Len(t, errs, 1)
	ce := asCompileError(t, errs[0])
	assert.Equal(t, "primaryKey", ce.Field)
	assert.Contains(t, ce.Message, `"nope"`)
}

func TestCompile_NullableKeyRejected(t *testing.T) {
	_, errs := compileString(t, `
schema: "s"
table: T: {attributes: [{name: "id", type: "int", nullable: true}], primaryKey: ["id"]}
`, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, "nullable", asCompileError(t, errs[0]).Field)
}

func TestCompile_UndeclaredForeignKeyParent(t *testing.T) {
	_, errs := compileString(t, `
schema: "s"
table: Child: {
	attributes: [{name: "id", type: "int"}, {name: "p_id", type: "int"}]
	primaryKey: ["id"]
	foreignKeys: [{parent: "Ghost", map: {p_id: "id"}}]
}
`, LoadModeFailFast)
	require.Len(t, errs, 1)
	ce := asCompileError(t, errs[0])
	assert.Equal(t, "foreignKeys", ce.Field)
	assert.Contains(t, ce.Message, `undeclared parent "Ghost"`)
}

func TestCompile_CollectAllKeepsGoodTables(t *testing.T) {
	s, errs := compileString(t, `
schema: "s"
table: Good: {attributes: [{name: "id", type: "int"}], primaryKey: ["id"]}
table: NoKey: {attributes: [{name: "id", type: "int"}]}
table: NoType: {attributes: [{name: "id"}], primaryKey: ["id"]}
table: BadRef: {
	attributes: [{name: "id", type: "int"}, {name: "g_id", type: "int"}]
	primaryKey: ["id"]
	foreignKeys: [{parent: "Ghost", map: {g_id: "id"}}]
}
`, LoadModeCollectAll)
	assert.Len(t, errs, 3)

	_, ok := s.Table("Good")
	assert.True(t, ok)
	require.Len(t, s.Tables(), 1)
	assert.Equal(t, "Good", s.Tables()[0].Name)
}

func TestCompile_DefaultLiterals(t *testing.T) {
	s := mustCompile(t, `
schema: "s"
table: T: {
	attributes: [
		{name: "id", type: "int"},
		{name: "label", type: "varchar", size: 10, default: "none"},
		{name: "rank", type: "int", default: 3},
		{name: "ratio", type: "double", default: 0.5},
		{name: "active", type: "tinyint", default: true},
		{name: "note", type: "text", nullable: true, default: null},
	]
	primaryKey: ["id"]
}
`)
	d, ok := s.Table("T")
	require.True(t, ok)

	expect := map[string]heading.Literal{
		"label":  heading.String("none"),
		"rank":   heading.Int(3),
		"ratio":  heading.Float(0.5),
		"active": heading.Bool(true),
		"note":   heading.Null{},
	}
	for name, want := range expect {
		a, ok := d.Heading.Attribute(name)
		require.True(t, ok, name)
		assert.Equal(t, want, a.Default, name)
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.cue"), []byte(universityCUE), 0o644))

	s, errs := Load(context.Background(), dir, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, "university", s.Name)
	assert.Len(t, s.Tables(), 4)
}

func TestLoad_DirectoryErrors(t *testing.T) {
	_, errs := Load(context.Background(), filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "not found")

	_, errs = Load(context.Background(), t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no CUE files")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("x: 1"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.cue"), []byte("y: 2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("not cue"), 0o644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSchema_Base(t *testing.T) {
	s := mustCompile(t, universityCUE)

	b, err := s.Base("Student")
	require.NoError(t, err)
	assert.Equal(t, "university", b.SchemaName)
	assert.Equal(t, "Student", b.TableName)
	assert.Equal(t, []string{"student_id", "full_name", "dept_id"}, b.Heading().Names())

	_, err = s.Base("Ghost")
	assert.Error(t, err)
}

func TestSchema_RegisterAndRelink(t *testing.T) {
	ctx := context.Background()
	s := mustCompile(t, universityCUE)

	store, err := lineage.Open("university", filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, s.Register(ctx, store))

	got, err := store.Resolve(ctx, "Enrollment", "student_id")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "university.Student.student_id", got.String())

	// An operator override in the store wins over the graph on relink.
	override := lineage.Origin{Schema: "university", Table: "Department", Attribute: "dept_id"}
	require.NoError(t, store.RecordTable(ctx, "Course", map[string]lineage.Origin{
		"course_id": {Schema: "university", Table: "Course", Attribute: "course_id"},
		"title":     override,
	}))

	sel := lineage.NewSelector(store, lineage.NewGraphResolver(s.Graph(), nil))
	require.NoError(t, s.Relink(ctx, sel))

	course, ok := s.Table("Course")
	require.True(t, ok)
	title, ok := course.Heading.Attribute("title")
	require.True(t, ok)
	require.NotNil(t, title.Lineage)
	assert.Equal(t, "university.Department.dept_id", title.Lineage.String())
}

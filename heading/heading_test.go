package heading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entset/entset/lineage"
)

func studentHeading(t *testing.T) *Heading {
	t.Helper()
	h, err := New([]Attribute{
		{Name: "student_id", Type: TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: &lineage.Origin{Schema: "university", Table: "Student", Attribute: "student_id"}},
		{Name: "full_name", Type: TypeDescriptor{Name: "varchar", Size: 64}},
		{Name: "dept_id", Type: TypeDescriptor{Name: "int"},
			Lineage: &lineage.Origin{Schema: "university", Table: "Department", Attribute: "dept_id"}},
	})
	require.NoError(t, err)
	return h
}

func TestNew_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		attrs   []Attribute
		wantErr string
	}{
		{
			name: "duplicate names",
			attrs: []Attribute{
				{Name: "id", InKey: true},
				{Name: "id"},
			},
			wantErr: "duplicate attribute",
		},
		{
			name: "nullable key attribute",
			attrs: []Attribute{
				{Name: "id", InKey: true, Nullable: true},
			},
			wantErr: "cannot be nullable",
		},
		{
			name: "empty primary key",
			attrs: []Attribute{
				{Name: "value"},
			},
			wantErr: "primary key is empty",
		},
		{
			name: "empty attribute name",
			attrs: []Attribute{
				{Name: "", InKey: true},
			},
			wantErr: "empty attribute name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.attrs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_NormalizesNames(t *testing.T) {
	// "é" in decomposed form (e + combining acute) collapses to the
	// precomposed form, so the two spellings are one attribute.
	decomposed := "café"
	precomposed := "café"

	h, err := New([]Attribute{{Name: decomposed, InKey: true}})
	require.NoError(t, err)
	assert.True(t, h.Has(precomposed))
	assert.True(t, h.Has(decomposed))

	_, err = New([]Attribute{
		{Name: decomposed, InKey: true},
		{Name: precomposed, InKey: true},
	})
	require.Error(t, err)
}

func TestHeading_Accessors(t *testing.T) {
	h := studentHeading(t)

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []string{"student_id", "full_name", "dept_id"}, h.Names())
	assert.Equal(t, []string{"student_id"}, h.PrimaryKey())
	assert.Equal(t, []string{"full_name", "dept_id"}, h.SecondaryNames())
	assert.False(t, h.IsUniversal())

	a, ok := h.Attribute("dept_id")
	require.True(t, ok)
	assert.Equal(t, "Department", a.Lineage.Table)

	_, ok = h.Attribute("missing")
	assert.False(t, ok)
}

func TestNewUniversal(t *testing.T) {
	h, err := NewUniversal([]string{"dept_id", "term"})
	require.NoError(t, err)
	assert.True(t, h.IsUniversal())
	assert.Equal(t, []string{"dept_id", "term"}, h.PrimaryKey())

	for _, a := range h.Attributes() {
		assert.True(t, a.InKey)
		assert.Nil(t, a.Lineage)
		assert.Empty(t, a.Type.Name)
	}

	empty, err := NewUniversal(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsUniversal())
	assert.Equal(t, 0, empty.Len())
}

func TestProject_KeepsPrimaryKeyImplicitly(t *testing.T) {
	h := studentHeading(t)

	p, err := h.Project([]string{"full_name"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"student_id", "full_name"}, p.Names())
	assert.Equal(t, []string{"student_id"}, p.PrimaryKey())

	// Projecting nothing still yields the key.
	p, err = h.Project(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"student_id"}, p.Names())
}

func TestProject_RenameTransfersKeyAndLineage(t *testing.T) {
	h := studentHeading(t)

	p, err := h.Project(nil, map[string]string{"sid": "student_id"}, nil)
	require.NoError(t, err)

	// The old key name is retired, the new one carries key membership
	// and the source lineage.
	assert.False(t, p.Has("student_id"))
	a, ok := p.Attribute("sid")
	require.True(t, ok)
	assert.True(t, a.InKey)
	assert.Equal(t, "student_id", a.RenameOf)
	require.NotNil(t, a.Lineage)
	assert.Equal(t, "student_id", a.Lineage.Attribute)
}

func TestProject_ComputedAppendedNullable(t *testing.T) {
	h := studentHeading(t)

	p, err := h.Project(nil, nil, map[string]string{
		"b_name": "lower(full_name)",
		"a_name": "upper(full_name)",
	})
	require.NoError(t, err)

	// Computed attributes follow the kept ones, sorted by name.
	assert.Equal(t, []string{"student_id", "a_name", "b_name"}, p.Names())
	a, _ := p.Attribute("a_name")
	assert.True(t, a.Nullable)
	assert.Nil(t, a.Lineage)
	assert.Equal(t, "upper(full_name)", a.Expr)
	assert.True(t, a.IsAlias())
}

func TestProject_UnknownAttribute(t *testing.T) {
	h := studentHeading(t)

	_, err := h.Project([]string{"nope"}, nil, nil)
	require.Error(t, err)
	assert.True(t, IsUnknownAttribute(err))

	_, err = h.Project(nil, map[string]string{"x": "nope"}, nil)
	require.Error(t, err)
	assert.True(t, IsUnknownAttribute(err))
}

func TestJoin_MergesSharedAttributes(t *testing.T) {
	student := studentHeading(t)
	department, err := New([]Attribute{
		{Name: "dept_id", Type: TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: &lineage.Origin{Schema: "university", Table: "Department", Attribute: "dept_id"}},
		{Name: "dept_name", Type: TypeDescriptor{Name: "varchar", Size: 30}},
	})
	require.NoError(t, err)

	j, err := student.Join(department)
	require.NoError(t, err)
	assert.Equal(t, []string{"student_id", "full_name", "dept_id", "dept_name"}, j.Names())

	// dept_id is secondary on the left, primary on the right: key
	// membership is the union.
	a, _ := j.Attribute("dept_id")
	assert.True(t, a.InKey)
	assert.False(t, a.Nullable)
	assert.Equal(t, []string{"student_id", "dept_id"}, j.PrimaryKey())
}

func TestSelectKey(t *testing.T) {
	h := studentHeading(t)

	k, err := h.SelectKey([]string{"dept_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dept_id"}, k.Names())
	a, _ := k.Attribute("dept_id")
	assert.True(t, a.InKey)
	require.NotNil(t, a.Lineage)
	assert.Equal(t, "Department", a.Lineage.Table)

	_, err = h.SelectKey([]string{"missing"})
	assert.True(t, IsUnknownAttribute(err))
}

func TestPromoteKey(t *testing.T) {
	h := studentHeading(t)

	p, err := h.PromoteKey([]string{"dept_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"student_id", "dept_id"}, p.PrimaryKey())
	assert.Equal(t, h.Names(), p.Names())

	// Empty list promotes everything.
	all, err := h.PromoteKey(nil)
	require.NoError(t, err)
	assert.Equal(t, h.Names(), all.PrimaryKey())

	_, err = h.PromoteKey([]string{"missing"})
	assert.True(t, IsUnknownAttribute(err))
}

func TestClearAliases(t *testing.T) {
	h := studentHeading(t)
	p, err := h.Project(nil, map[string]string{"sid": "student_id"}, map[string]string{"n": "upper(full_name)"})
	require.NoError(t, err)
	require.True(t, p.HasAliases())

	c := p.ClearAliases()
	assert.False(t, c.HasAliases())
	assert.Equal(t, p.Names(), c.Names())
	a, _ := c.Attribute("sid")
	assert.True(t, a.InKey)
	assert.Empty(t, a.RenameOf)
}

func TestTypeDescriptor_String(t *testing.T) {
	assert.Equal(t, "varchar(30)", TypeDescriptor{Name: "varchar", Size: 30}.String())
	assert.Equal(t, "int unsigned", TypeDescriptor{Name: "int", Unsigned: true}.String())
	assert.Equal(t, "date", TypeDescriptor{Name: "date"}.String())
}

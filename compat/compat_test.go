package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

func mustHeading(t *testing.T, attrs []heading.Attribute) *heading.Heading {
	t.Helper()
	h, err := heading.New(attrs)
	require.NoError(t, err)
	return h
}

func origin(table, attr string) *lineage.Origin {
	return &lineage.Origin{Schema: "university", Table: table, Attribute: attr}
}

func TestNamesakes_LeftOrder(t *testing.T) {
	a := mustHeading(t, []heading.Attribute{
		{Name: "x", InKey: true},
		{Name: "y"},
		{Name: "z"},
	})
	b := mustHeading(t, []heading.Attribute{
		{Name: "z", InKey: true},
		{Name: "x"},
	})
	assert.Equal(t, []string{"x", "z"}, Namesakes(a, b))
	assert.Equal(t, []string{"z", "x"}, Namesakes(b, a))
	assert.Empty(t, Namesakes(a, mustHeading(t, []heading.Attribute{{Name: "w", InKey: true}})))
}

func TestAssertCompatible_Matrix(t *testing.T) {
	tests := []struct {
		name     string
		left     *lineage.Origin
		right    *lineage.Origin
		wantKeys bool
	}{
		{"equal lineage", origin("Student", "student_id"), origin("Student", "student_id"), true},
		{"unequal lineage", origin("Student", "student_id"), origin("Course", "course_id"), false},
		{"both without lineage", nil, nil, false},
		{"left without lineage", nil, origin("Student", "student_id"), false},
		{"right without lineage", origin("Student", "student_id"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustHeading(t, []heading.Attribute{
				{Name: "student_id", InKey: true, Lineage: tt.left},
			})
			b := mustHeading(t, []heading.Attribute{
				{Name: "student_id", InKey: true, Lineage: tt.right},
				{Name: "grade"},
			})
			keys, err := AssertCompatible(a, b)
			if tt.wantKeys {
				require.NoError(t, err)
				assert.Equal(t, []string{"student_id"}, keys)
				return
			}
			require.Error(t, err)
			assert.True(t, IsIncompatible(err))
		})
	}
}

func TestAssertCompatible_SharedForeignLineage(t *testing.T) {
	// Two different tables referencing the same parent: the inherited
	// attribute is homologous on both sides.
	a := mustHeading(t, []heading.Attribute{
		{Name: "course_id", InKey: true, Lineage: origin("Course", "course_id")},
		{Name: "title"},
	})
	b := mustHeading(t, []heading.Attribute{
		{Name: "student_id", InKey: true, Lineage: origin("Student", "student_id")},
		{Name: "course_id", InKey: true, Lineage: origin("Course", "course_id")},
	})
	keys, err := AssertCompatible(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"course_id"}, keys)
}

func TestAssertCompatible_UniversalMatchesUnconditionally(t *testing.T) {
	u, err := heading.NewUniversal([]string{"dept_id"})
	require.NoError(t, err)
	concrete := mustHeading(t, []heading.Attribute{
		{Name: "dept_id", InKey: true, Lineage: origin("Department", "dept_id")},
		{Name: "dept_name"},
	})

	keys, err := AssertCompatible(u, concrete)
	require.NoError(t, err)
	assert.Equal(t, []string{"dept_id"}, keys)

	keys, err = AssertCompatible(concrete, u)
	require.NoError(t, err)
	assert.Equal(t, []string{"dept_id"}, keys)
}

func TestIncompatibleAttributeError_Remediation(t *testing.T) {
	err := &IncompatibleAttributeError{Name: "dept_id", LeftOrigin: origin("Department", "dept_id")}
	assert.Contains(t, err.Error(), `"dept_id"`)
	assert.Contains(t, err.Error(), "none")
	assert.Contains(t, err.Error(), "rename")
	assert.False(t, IsIncompatible(nil))
}

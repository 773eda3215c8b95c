package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entset/entset/heading"
	"github.com/entset/entset/lineage"
)

// Fixture entity sets modeled on a small university schema. Lineage is
// annotated by hand the way the schema loader would resolve it.

func origin(table, attr string) *lineage.Origin {
	return &lineage.Origin{Schema: "university", Table: table, Attribute: attr}
}

func mustHeading(t *testing.T, attrs []heading.Attribute) *heading.Heading {
	t.Helper()
	h, err := heading.New(attrs)
	require.NoError(t, err)
	return h
}

func mustBase(t *testing.T, table string, attrs []heading.Attribute) *Base {
	t.Helper()
	b, err := NewBase("university", table, mustHeading(t, attrs))
	require.NoError(t, err)
	return b
}

func studentBase(t *testing.T) *Base {
	return mustBase(t, "Student", []heading.Attribute{
		{Name: "student_id", Type: heading.TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: origin("Student", "student_id")},
		{Name: "full_name", Type: heading.TypeDescriptor{Name: "varchar", Size: 64}},
		{Name: "dept_id", Type: heading.TypeDescriptor{Name: "int"},
			Lineage: origin("Department", "dept_id")},
	})
}

func departmentBase(t *testing.T) *Base {
	return mustBase(t, "Department", []heading.Attribute{
		{Name: "dept_id", Type: heading.TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: origin("Department", "dept_id")},
		{Name: "dept_name", Type: heading.TypeDescriptor{Name: "varchar", Size: 30}},
	})
}

func courseBase(t *testing.T) *Base {
	return mustBase(t, "Course", []heading.Attribute{
		{Name: "course_id", Type: heading.TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: origin("Course", "course_id")},
		{Name: "title", Type: heading.TypeDescriptor{Name: "varchar", Size: 80}},
		{Name: "dept_id", Type: heading.TypeDescriptor{Name: "int"},
			Lineage: origin("Department", "dept_id")},
	})
}

func enrollmentBase(t *testing.T) *Base {
	return mustBase(t, "Enrollment", []heading.Attribute{
		{Name: "student_id", Type: heading.TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: origin("Student", "student_id")},
		{Name: "course_id", Type: heading.TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: origin("Course", "course_id")},
		{Name: "grade", Type: heading.TypeDescriptor{Name: "varchar", Size: 2}, Nullable: true},
	})
}

func scheduleBase(t *testing.T) *Base {
	return mustBase(t, "CourseSchedule", []heading.Attribute{
		{Name: "course_id", Type: heading.TypeDescriptor{Name: "int"}, InKey: true,
			Lineage: origin("Course", "course_id")},
		{Name: "room", Type: heading.TypeDescriptor{Name: "varchar", Size: 10}},
	})
}

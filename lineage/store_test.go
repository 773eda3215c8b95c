package lineage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("university", filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndResolve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RecordTable(ctx, "Enrollment", map[string]Origin{
		"student_id": {Schema: "university", Table: "Student", Attribute: "student_id"},
		"course_id":  {Schema: "university", Table: "Course", Attribute: "course_id"},
	})
	require.NoError(t, err)

	o, err := s.Resolve(ctx, "Enrollment", "student_id")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "university.Student.student_id", o.String())

	// Unrecorded attribute: no origin, no error.
	o, err = s.Resolve(ctx, "Enrollment", "grade")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestStore_RecordTableReplacesEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTable(ctx, "T", map[string]Origin{
		"a": {Schema: "s", Table: "T", Attribute: "a"},
		"b": {Schema: "s", Table: "T", Attribute: "b"},
	}))
	require.NoError(t, s.RecordTable(ctx, "T", map[string]Origin{
		"a": {Schema: "s", Table: "P", Attribute: "a"},
	}))

	o, err := s.Resolve(ctx, "T", "a")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "s.P.a", o.String())

	// The redefinition dropped b.
	o, err = s.Resolve(ctx, "T", "b")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestStore_DropTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTable(ctx, "T", map[string]Origin{
		"a": {Schema: "s", Table: "T", Attribute: "a"},
	}))
	require.NoError(t, s.DropTable(ctx, "T"))

	o, err := s.Resolve(ctx, "T", "a")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestAttach_MissingSideTable(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "plain.db"))
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	s := Attach("university", db)
	_, err = s.Resolve(context.Background(), "T", "a")
	assert.ErrorIs(t, err, ErrNoLineageTable)
}

func TestParseOrigin(t *testing.T) {
	o, err := ParseOrigin("university.Student.student_id")
	require.NoError(t, err)
	assert.Equal(t, &Origin{Schema: "university", Table: "Student", Attribute: "student_id"}, o)

	for _, raw := range []string{"", "a", "a.b", "a.b.", ".b.c"} {
		_, err := ParseOrigin(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

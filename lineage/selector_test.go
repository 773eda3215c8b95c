package lineage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_PrefersStore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// Store and graph deliberately disagree so the chosen strategy is
	// observable.
	require.NoError(t, store.RecordTable(ctx, "Student", map[string]Origin{
		"dept_id": {Schema: "side", Table: "Department", Attribute: "dept_id"},
	}))
	sel := NewSelector(store, NewGraphResolver(universityGraph(), nil))

	o, err := sel.Resolve(ctx, "Student", "dept_id")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "side.Department.dept_id", o.String())
}

func TestSelector_FallbackOnMissingTable(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// Simulate a schema database without the side table.
	_, err := store.db.Exec(`DROP TABLE lineage_entries`)
	require.NoError(t, err)

	sel := NewSelector(store, NewGraphResolver(universityGraph(), nil))

	o, err := sel.Resolve(ctx, "Student", "dept_id")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "university.Department.dept_id", o.String())

	// Recreating the side table later does not flip the strategy back:
	// the decision holds for the selector's lifetime.
	_, err = store.db.Exec(sideTableDDL)
	require.NoError(t, err)
	require.NoError(t, store.RecordTable(ctx, "Student", map[string]Origin{
		"dept_id": {Schema: "side", Table: "Department", Attribute: "dept_id"},
	}))

	o, err = sel.Resolve(ctx, "Student", "dept_id")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "university.Department.dept_id", o.String())
}

func TestSelector_NilStoreUsesGraph(t *testing.T) {
	sel := NewSelector(nil, NewGraphResolver(universityGraph(), nil))

	o, err := sel.Resolve(context.Background(), "Course", "course_id")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "university.Course.course_id", o.String())
}

func TestSelector_NoGraphPropagatesError(t *testing.T) {
	store := openTestStore(t)
	_, err := store.db.Exec(`DROP TABLE lineage_entries`)
	require.NoError(t, err)

	sel := NewSelector(store, nil)
	_, err = sel.Resolve(context.Background(), "T", "a")
	assert.ErrorIs(t, err, ErrNoLineageTable)
}

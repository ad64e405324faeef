package mapping_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/changelog"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/internal/testmodel"
	"github.com/syssam/ogm/mapping"
)

func TestContextIdentityMap(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	a := &testmodel.Person{Name: "a"}
	b := &testmodel.Person{Name: "b"}
	m := &testmodel.Movie{Title: "m"}

	assert.Same(t, a, ctx.Remember(2, a))
	ctx.Remember(1, b)
	ctx.Remember(3, m)

	got, ok := ctx.Get(2)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []any{b, a}, ctx.All(reflect.TypeFor[testmodel.Person]()))
	assert.Equal(t, []any{m}, ctx.All(reflect.TypeFor[*testmodel.Movie]()))
	assert.Equal(t, 3, ctx.Len())

	// Remember replaces the canonical instance.
	c := &testmodel.Person{Name: "c"}
	ctx.Remember(2, c)
	got, _ = ctx.Get(2)
	assert.Same(t, c, got)

	ctx.ClearType(reflect.TypeFor[testmodel.Person]())
	assert.Equal(t, 1, ctx.Len())
	_, ok = ctx.Get(1)
	assert.False(t, ok)

	ctx.Clear()
	assert.Zero(t, ctx.Len())
}

func TestContextRelationships(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	knows := mapping.MappedRelationship{StartID: 1, Type: "KNOWS", EndID: 2}
	rated := mapping.MappedRelationship{StartID: 1, Type: "RATED", EndID: 3, RelationshipID: 10}
	ctx.RegisterRelationship(knows)
	ctx.RegisterRelationship(knows)
	ctx.RegisterRelationship(rated)
	ctx.RememberRelationshipEntity(10, &testmodel.Rating{})

	active := ctx.ActiveRelationships()
	require.Len(t, active, 2)
	assert.True(t, active[0].Active)
	assert.Equal(t, "KNOWS", active[0].Type)

	// Registering again without an identity keeps the known one.
	ctx.RegisterRelationship(mapping.MappedRelationship{StartID: 1, Type: "RATED", EndID: 3})
	assert.Equal(t, int64(10), ctx.Relationships(3, "RATED", ogm.Incoming)[0].RelationshipID)

	assert.Len(t, ctx.Relationships(1, "KNOWS", ogm.Outgoing), 1)
	assert.Empty(t, ctx.Relationships(1, "KNOWS", ogm.Incoming))
	assert.Len(t, ctx.Relationships(2, "KNOWS", ogm.Undirected), 1)
	assert.True(t, ctx.HasRelationship(knows.Key()))

	ctx.RemoveRelationship(rated)
	assert.False(t, ctx.HasRelationship(rated.Key()))
	_, ok := ctx.RelationshipEntity(10)
	assert.False(t, ok)

	ctx.Remember(1, &testmodel.Person{})
	ctx.ForgetEntity(1)
	assert.Empty(t, ctx.ActiveRelationships())
}

func TestContextDirtyTracking(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	labels := []string{"Person"}
	props := map[string]any{"name": "a", "age": 3}

	assert.True(t, ctx.IsDirty(1, labels, props), "never synchronized")
	require.NoError(t, ctx.MarkClean(1, labels, props))
	assert.False(t, ctx.IsDirty(1, labels, map[string]any{"age": 3, "name": "a"}))
	assert.True(t, ctx.IsDirty(1, labels, map[string]any{"name": "b", "age": 3}))
	assert.True(t, ctx.IsDirty(1, []string{"Person", "Employee"}, props))

	require.NoError(t, ctx.MarkRelationshipClean(7, map[string]any{"stars": 5}))
	assert.False(t, ctx.IsRelationshipDirty(7, map[string]any{"stars": 5}))
	assert.True(t, ctx.IsRelationshipDirty(7, map[string]any{"stars": 4}))

	ctx.Forget(1)
	assert.True(t, ctx.IsDirty(1, labels, props))
}

func TestContextConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			ctx.Remember(id, &testmodel.Person{})
			ctx.RegisterRelationship(mapping.MappedRelationship{StartID: id, Type: "KNOWS", EndID: id + 1})
			ctx.Get(id)
			ctx.ActiveRelationships()
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, 8, ctx.Len())
	assert.Len(t, ctx.ActiveRelationships(), 8)
}

func TestSyncAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	p := &testmodel.Person{Name: "p"}

	bound := changelog.New()
	bound.Record(changelog.EntitySaved{Node: dialect.NodeKey{ID: 1}, Entity: reflect.ValueOf(p), Labels: []string{"Person"}, Dirty: true})

	unbound := changelog.New()
	ref := unbound.NewRef("n")
	unbound.Record(changelog.EntitySaved{Node: dialect.NodeKey{Ref: ref}, Entity: reflect.ValueOf(&testmodel.Person{}), Dirty: true})

	err := ctx.Sync(bound, unbound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound node")
	assert.Zero(t, ctx.Len(), "a failed sync applies nothing")

	require.NoError(t, ctx.Sync(bound))
	got, ok := ctx.Get(1)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.False(t, ctx.IsDirty(1, []string{"Person"}, nil))
}

func TestSyncLabelDeleted(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	emp := &testmodel.Employee{}
	require.NoError(t, ctx.MarkClean(1, []string{"Person"}, nil))
	ctx.Remember(1, &testmodel.Person{})
	ctx.Remember(2, emp)
	require.NoError(t, ctx.MarkClean(2, []string{"Person", "Employee"}, nil))
	ctx.Remember(3, &testmodel.Movie{})
	require.NoError(t, ctx.MarkClean(3, []string{"Movie"}, nil))
	ctx.RegisterRelationship(mapping.MappedRelationship{StartID: 2, Type: "KNOWS", EndID: 3})

	log := changelog.New()
	log.Record(changelog.LabelDeleted{Label: "Person"})
	require.NoError(t, log.Bind(make([]dialect.Result, len(log.Compile()))))
	require.NoError(t, ctx.Sync(log))

	for _, id := range []int64{1, 2} {
		_, ok := ctx.Get(id)
		assert.False(t, ok, "node %d", id)
		assert.True(t, ctx.IsDirty(id, []string{"Person"}, nil))
	}
	_, ok := ctx.Get(3)
	assert.True(t, ok)
	assert.Empty(t, ctx.ActiveRelationships())

	ctx.Remember(4, &testmodel.Employee{})
	require.NoError(t, ctx.MarkClean(4, []string{"Person", "Employee"}, nil))
	ctx.ClearLabel("Employee")
	assert.Equal(t, 1, ctx.Len())
}

func TestSyncRelationshipsAndDeletes(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	ctx.Remember(1, &testmodel.Person{})
	ctx.Remember(2, &testmodel.Person{})
	ctx.Remember(3, &testmodel.Movie{})
	ctx.RegisterRelationship(mapping.MappedRelationship{StartID: 1, Type: "KNOWS", EndID: 2})

	log := changelog.New()
	rating := &testmodel.Rating{Stars: 4}
	ref := log.NewRef("r")
	log.Record(changelog.RelationshipChanged{Start: dialect.NodeKey{ID: 1}, End: dialect.NodeKey{ID: 2}, Type: "KNOWS"})
	log.Record(changelog.RelationshipChanged{
		Start: dialect.NodeKey{ID: 1}, End: dialect.NodeKey{ID: 3}, Type: "RATED", Active: true,
		Ref: ref, Entity: reflect.ValueOf(rating), Properties: map[string]any{"stars": 4},
	})
	log.Record(changelog.EntityDeleted{ID: 2})
	results := make([]dialect.Result, len(log.Compile()))
	results[1].ID = 42
	require.NoError(t, log.Bind(results))
	require.NoError(t, ctx.Sync(log))

	assert.False(t, ctx.HasRelationship(mapping.RelationshipKey{StartID: 1, Type: "KNOWS", EndID: 2}))
	assert.True(t, ctx.HasRelationship(mapping.RelationshipKey{StartID: 1, Type: "RATED", EndID: 3}))
	re, ok := ctx.RelationshipEntity(42)
	require.True(t, ok)
	assert.Same(t, rating, re)
	assert.False(t, ctx.IsRelationshipDirty(42, map[string]any{"stars": 4}))
	_, ok = ctx.Get(2)
	assert.False(t, ok)

	purge := changelog.New()
	purge.Record(changelog.Purged{})
	require.NoError(t, purge.Bind(make([]dialect.Result, 1)))
	require.NoError(t, ctx.Sync(purge))
	assert.Zero(t, ctx.Len())
	assert.Empty(t, ctx.ActiveRelationships())
}

func TestOverlay(t *testing.T) {
	t.Parallel()
	ctx := mapping.NewContext()
	ctx.RegisterRelationship(mapping.MappedRelationship{StartID: 1, Type: "KNOWS", EndID: 2})
	ctx.RegisterRelationship(mapping.MappedRelationship{StartID: 1, Type: "KNOWS", EndID: 3})

	log := changelog.New()
	log.Record(changelog.RelationshipChanged{Start: dialect.NodeKey{ID: 1}, End: dialect.NodeKey{ID: 2}, Type: "KNOWS"})
	ref := log.NewRef("n")
	log.Record(changelog.EntitySaved{Node: dialect.NodeKey{Ref: ref}, Labels: []string{"Person"}, Dirty: true})
	log.Record(changelog.RelationshipChanged{Start: dialect.NodeKey{ID: 1}, End: dialect.NodeKey{Ref: ref}, Type: "KNOWS", Active: true})

	// Before binding the new node is unknown.
	view := mapping.NewOverlay(ctx, log)
	assert.False(t, view.HasRelationship(mapping.RelationshipKey{StartID: 1, Type: "KNOWS", EndID: 2}))
	assert.Len(t, view.Relationships(1, "KNOWS", ogm.Outgoing), 1)

	results := make([]dialect.Result, len(log.Compile()))
	results[1].ID = 9
	require.NoError(t, log.Bind(results))
	view = mapping.NewOverlay(ctx, log)
	rs := view.Relationships(1, "KNOWS", ogm.Outgoing)
	require.Len(t, rs, 2)
	assert.Equal(t, int64(3), rs[0].EndID)
	assert.Equal(t, int64(9), rs[1].EndID)
	assert.True(t, view.HasRelationship(mapping.RelationshipKey{StartID: 1, Type: "KNOWS", EndID: 9}))

	// The context itself is untouched.
	assert.True(t, ctx.HasRelationship(mapping.RelationshipKey{StartID: 1, Type: "KNOWS", EndID: 2}))
}

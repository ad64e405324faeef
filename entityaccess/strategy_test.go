package entityaccess_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/entityaccess"
	"github.com/syssam/ogm/internal/testmodel"
	"github.com/syssam/ogm/metadata"
)

// annotatedSetter declares relationship R on both a field and a setter.
type annotatedSetter struct {
	ID        *int64
	R         []*testmodel.Movie `ogm:"relationship=R"`
	viaSetter []*testmodel.Movie
}

func (a *annotatedSetter) SetR(movies []*testmodel.Movie) { a.viaSetter = movies }

func (a *annotatedSetter) MethodAnnotations() map[string]string {
	return map[string]string{"SetR": "relationship=R"}
}

// plainSetter is annotatedSetter without the method annotation.
type plainSetter struct {
	ID        *int64
	R         []*testmodel.Movie `ogm:"relationship=R"`
	viaSetter []*testmodel.Movie
}

func (p *plainSetter) SetR(movies []*testmodel.Movie) { p.viaSetter = movies }

type guarded struct {
	ID   *int64
	name string
}

func (g *guarded) Name() string { return g.name }

func (g *guarded) SetName(n string) error {
	if n == "" {
		return errors.New("empty name")
	}
	g.name = n
	return nil
}

func (g *guarded) SetNick(string) { panic("boom") }

func newRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	catalog := metadata.NewCatalog().MustRegister(
		testmodel.Person{}, testmodel.Movie{}, testmodel.Rating{}, testmodel.Director{},
		annotatedSetter{}, plainSetter{}, guarded{},
	)
	reg := metadata.NewRegistry(catalog)
	require.NoError(t, reg.Register(context.Background(),
		"github.com/syssam/ogm/internal/testmodel", "github.com/syssam/ogm/entityaccess_test"))
	return reg
}

func describe[T any](t *testing.T, reg *metadata.Registry) *metadata.ClassDescriptor {
	t.Helper()
	cd, err := reg.DescribeType(reflect.TypeFor[T]())
	require.NoError(t, err)
	return cd
}

func TestPrecedenceAnnotatedMethodOverField(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	movieType := reflect.TypeFor[testmodel.Movie]()

	cd := describe[annotatedSetter](t, reg)
	w, err := s.ResolveWriter(cd, entityaccess.Relationship("R", ogm.Outgoing, movieType))
	require.NoError(t, err)
	assert.Equal(t, entityaccess.MethodAccess, w.Kind())
	assert.Equal(t, "SetR", w.Name())

	e := &annotatedSetter{}
	movie := &testmodel.Movie{Title: "Heat"}
	require.NoError(t, w.SetRelated(reflect.ValueOf(e), []reflect.Value{reflect.ValueOf(movie)}))
	assert.Equal(t, []*testmodel.Movie{movie}, e.viaSetter)
	assert.Nil(t, e.R)

	r, err := s.ResolveReader(cd, entityaccess.Relationship("R", ogm.Outgoing, movieType))
	require.NoError(t, err)
	assert.Equal(t, entityaccess.FieldAccess, r.Kind(), "no getter, the annotated field reads")
}

func TestPrecedenceAnnotatedFieldOverPlainMethod(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	cd := describe[plainSetter](t, reg)
	w, err := s.ResolveWriter(cd, entityaccess.Relationship("R", ogm.Outgoing, reflect.TypeFor[testmodel.Movie]()))
	require.NoError(t, err)
	assert.Equal(t, entityaccess.FieldAccess, w.Kind())
	assert.Equal(t, "R", w.Name())

	e := &plainSetter{}
	movie := &testmodel.Movie{Title: "Ronin"}
	require.NoError(t, w.SetRelated(reflect.ValueOf(e), []reflect.Value{reflect.ValueOf(movie)}))
	assert.Equal(t, []*testmodel.Movie{movie}, e.R)
	assert.Nil(t, e.viaSetter)
}

func TestResolveRelationship(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	cd := describe[testmodel.Person](t, reg)
	personType := reflect.TypeFor[testmodel.Person]()

	tests := []struct {
		name   string
		target entityaccess.Target
		want   string
	}{
		{name: "undirected accepts incoming", target: entityaccess.Relationship("FRIEND_OF", ogm.Incoming, personType), want: "Friends"},
		{name: "case insensitive", target: entityaccess.Relationship("knows", ogm.Outgoing, personType), want: "Knows"},
		{name: "scalar member", target: entityaccess.Relationship("MANAGES", ogm.Incoming, personType), want: "Manager"},
		{name: "element type fallback", target: entityaccess.Relationship("COLLEAGUE", ogm.Outgoing, personType), want: "Knows"},
		{name: "relationship entity", target: entityaccess.Relationship("RATED", ogm.Outgoing, reflect.TypeFor[*testmodel.Rating]()), want: "Ratings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := s.ResolveReader(cd, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
		})
	}

	_, err := s.ResolveReader(cd, entityaccess.Relationship("KNOWS", ogm.Incoming, personType))
	require.Error(t, err)
	assert.True(t, ogm.IsNoAccessor(err))
	assert.ErrorIs(t, err, ogm.ErrNoAccessor)
	assert.Contains(t, err.Error(), `no reader for relationship "KNOWS"`)

	_, err = s.ResolveWriter(cd, entityaccess.Property("missing"))
	assert.ErrorContains(t, err, `no writer for property "missing"`)
}

func TestIdentityAccess(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	for _, cd := range []*metadata.ClassDescriptor{describe[testmodel.Person](t, reg), describe[testmodel.Movie](t, reg)} {
		e := reflect.New(cd.Type)
		_, ok, err := s.Identity(cd, e)
		require.NoError(t, err)
		assert.False(t, ok, cd.Name)

		require.NoError(t, s.SetIdentity(cd, e, 42))
		id, ok, err := s.Identity(cd, e)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(42), id)

		require.NoError(t, s.ResetIdentity(cd, e))
		_, ok, err = s.Identity(cd, e)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestPropertyAccess(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	cd := describe[testmodel.Person](t, reg)
	born := time.Date(1970, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &testmodel.Person{Name: "Ada", Age: 36, Born: born, Tags: []string{"math"}}
	pv := reflect.ValueOf(p)

	readers, err := s.PropertyReaders(cd)
	require.NoError(t, err)
	got := make(map[string]any)
	for _, r := range readers {
		v, err := r.Accessor.Property(pv)
		require.NoError(t, err)
		got[r.Name] = v
	}
	assert.Equal(t, map[string]any{
		"name": "Ada", "age": 36, "born": "1970-01-02T03:04:05Z", "tags": []string{"math"}, "note": "",
	}, got)

	writers, err := s.PropertyWriters(cd)
	require.NoError(t, err)
	assert.Len(t, writers, 4, "getter-only properties are not written")

	q := &testmodel.Person{}
	qv := reflect.ValueOf(q)
	for _, w := range writers {
		require.NoError(t, w.Accessor.SetProperty(qv, map[string]any{
			"name": "Grace", "age": int64(85), "born": "1906-12-09T00:00:00Z", "tags": []any{"navy", "cobol"},
		}[w.Name]))
	}
	assert.Equal(t, "Grace", q.Name)
	assert.Equal(t, 85, q.Age)
	assert.Equal(t, []string{"navy", "cobol"}, q.Tags)
	assert.True(t, q.Born.Equal(time.Date(1906, 12, 9, 0, 0, 0, 0, time.UTC)))

	movie := describe[testmodel.Movie](t, reg)
	w, err := s.ResolveWriter(movie, entityaccess.Property("released"))
	require.NoError(t, err)
	err = w.SetProperty(reflect.ValueOf(&testmodel.Movie{}), int64(70000))
	assert.ErrorContains(t, err, "overflows int16")

	_, err = w.Value(reflect.ValueOf(p))
	assert.Error(t, err, "entity of another class")
	_, err = w.Value(reflect.ValueOf((*testmodel.Movie)(nil)))
	assert.Error(t, err)
}

func TestMethodAccess(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()

	cd := describe[testmodel.Director](t, reg)
	target := entityaccess.Relationship("DIRECTED", ogm.Outgoing, reflect.TypeFor[testmodel.Movie]())
	r, err := s.ResolveReader(cd, target)
	require.NoError(t, err)
	assert.Equal(t, "Films", r.Name())
	w, err := s.ResolveWriter(cd, target)
	require.NoError(t, err)
	assert.Equal(t, "SetFilms", w.Name())

	d := &testmodel.Director{}
	films := []reflect.Value{reflect.ValueOf(&testmodel.Movie{Key: 1}), reflect.ValueOf(&testmodel.Movie{Key: 2})}
	require.NoError(t, w.SetRelated(reflect.ValueOf(d), films))
	assert.Equal(t, 1, d.SetCalls())
	related, err := r.Related(reflect.ValueOf(d))
	require.NoError(t, err)
	assert.Len(t, related, 2)

	g := describe[guarded](t, reg)
	name, err := s.ResolveWriter(g, entityaccess.Property("name"))
	require.NoError(t, err)
	assert.Equal(t, entityaccess.MethodAccess, name.Kind())
	assert.ErrorContains(t, name.SetProperty(reflect.ValueOf(&guarded{}), ""), "empty name")
	e := &guarded{}
	require.NoError(t, name.SetProperty(reflect.ValueOf(e), "ok"))
	assert.Equal(t, "ok", e.Name())

	nick, err := s.ResolveWriter(g, entityaccess.Property("nick"))
	require.NoError(t, err)
	assert.ErrorContains(t, nick.SetProperty(reflect.ValueOf(&guarded{}), "x"), "panics")
}

func TestRelatedAndEndpoints(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	cd := describe[testmodel.Person](t, reg)

	a, b := &testmodel.Person{Name: "a"}, &testmodel.Person{Name: "b"}
	p := &testmodel.Person{Friends: []*testmodel.Person{a, nil, b}}
	friends, err := s.ResolveReader(cd, entityaccess.Relationship("FRIEND_OF", ogm.Undirected, nil))
	require.NoError(t, err)
	related, err := friends.Related(reflect.ValueOf(p))
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Same(t, a, related[0].Interface())
	assert.Same(t, b, related[1].Interface())

	manager, err := s.ResolveWriter(cd, entityaccess.Relationship("MANAGES", ogm.Incoming, nil))
	require.NoError(t, err)
	require.NoError(t, manager.SetRelated(reflect.ValueOf(p), []reflect.Value{reflect.ValueOf(a)}))
	assert.Same(t, a, p.Manager)
	require.NoError(t, manager.SetRelated(reflect.ValueOf(p), nil))
	assert.Nil(t, p.Manager)

	readers, err := s.RelationalReaders(cd)
	require.NoError(t, err)
	names := make([]string, len(readers))
	for i, r := range readers {
		names[i] = r.Name()
	}
	assert.Equal(t, []string{"Friends", "Knows", "Manager", "Ratings"}, names)

	rating := describe[testmodel.Rating](t, reg)
	start, err := s.EndpointReader(rating, metadata.EndpointStart)
	require.NoError(t, err)
	assert.Equal(t, "Person", start.Name())
	end, err := s.EndpointWriter(rating, metadata.EndpointEnd)
	require.NoError(t, err)
	assert.Equal(t, "Movie", end.Name())
	_, err = s.EndpointReader(cd, metadata.EndpointStart)
	assert.True(t, ogm.IsNoAccessor(err))
}

func TestResolveCached(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	s := entityaccess.New()
	cd := describe[testmodel.Person](t, reg)

	first, err := s.ResolveReader(cd, entityaccess.Property("name"))
	require.NoError(t, err)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := s.ResolveReader(cd, entityaccess.Property("name"))
			assert.NoError(t, err)
			assert.Same(t, first, a)
		}()
	}
	wg.Wait()
}

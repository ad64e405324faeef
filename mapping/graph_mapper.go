package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/changelog"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/entityaccess"
	"github.com/syssam/ogm/metadata"
)

// GraphMapper turns an object graph into the change log of a save.
type GraphMapper struct {
	registry *metadata.Registry
	access   *entityaccess.Strategy
	ctx      *Context
	logger   *slog.Logger
}

// NewGraphMapper returns a mapper saving against ctx.
func NewGraphMapper(registry *metadata.Registry, access *entityaccess.Strategy, ctx *Context, logger *slog.Logger) *GraphMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphMapper{registry: registry, access: access, ctx: ctx, logger: logger}
}

type nodeLink struct {
	start, end dialect.NodeKey
	typ        string
}

type clearKey struct {
	id  int64
	typ string
	dir ogm.Direction
}

// saveState is the bookkeeping of one Map call. Entities are tracked by
// pointer, so new entities without an identity are visited once too.
type saveState struct {
	log        *changelog.ChangeLog
	view       RelationshipView
	visited    map[any]dialect.NodeKey
	horizon    map[any]int
	relVisited map[any]bool
	linked     map[nodeLink]bool
	cleared    map[clearKey]bool
	kept       map[RelationshipKey]bool
	stale      map[RelationshipKey]MappedRelationship
	staleOrder []RelationshipKey
}

func newSaveState(view RelationshipView) *saveState {
	return &saveState{
		log:        changelog.New(),
		view:       view,
		visited:    make(map[any]dialect.NodeKey),
		horizon:    make(map[any]int),
		relVisited: make(map[any]bool),
		linked:     make(map[nodeLink]bool),
		cleared:    make(map[clearKey]bool),
		kept:       make(map[RelationshipKey]bool),
		stale:      make(map[RelationshipKey]MappedRelationship),
	}
}

// Map records the effects of saving entity and everything reachable from
// it within depth hops (-1 for no limit). Relationships are reconciled
// against view: known relationships no longer implied by the traversed
// entities are recorded as inactive. A nil view reads the context.
//
// Map does not modify the context.
func (m *GraphMapper) Map(entity any, depth int, view RelationshipView) (*changelog.ChangeLog, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("mapping: save needs a non-nil pointer, got %T", entity)
	}
	if view == nil {
		view = m.ctx
	}
	cd, err := m.registry.DescribeType(v.Type())
	if err != nil {
		return nil, err
	}
	st := newSaveState(view)
	if cd.IsRelationshipEntity() {
		err = m.mapRelationshipEntity(st, cd, v, depth)
	} else {
		_, err = m.mapEntity(st, cd, v, depth)
	}
	if err != nil {
		return nil, err
	}
	for _, k := range st.staleOrder {
		if st.kept[k] {
			continue
		}
		r := st.stale[k]
		st.log.Record(changelog.RelationshipChanged{
			Start:          dialect.NodeKey{ID: r.StartID},
			End:            dialect.NodeKey{ID: r.EndID},
			Type:           r.Type,
			RelationshipID: r.RelationshipID,
		})
	}
	m.logger.Debug("save mapped", "class", cd.Name, "depth", depth, "effects", st.log.Len())
	return st.log, nil
}

// deeper reports whether remaining depth a reaches further than b.
func deeper(a, b int) bool {
	switch {
	case b < 0:
		return false
	case a < 0:
		return true
	}
	return a > b
}

func next(depth int) int {
	if depth < 0 {
		return depth
	}
	return depth - 1
}

func (m *GraphMapper) mapEntity(st *saveState, cd *metadata.ClassDescriptor, v reflect.Value, depth int) (dialect.NodeKey, error) {
	ptr := v.Interface()
	if key, ok := st.visited[ptr]; ok {
		if !deeper(depth, st.horizon[ptr]) {
			return key, nil
		}
		st.horizon[ptr] = depth
		return key, m.mapRelationships(st, cd, v, key, depth)
	}
	id, known, err := m.access.Identity(cd, v)
	if err != nil {
		return dialect.NodeKey{}, err
	}
	key := dialect.NodeKey{ID: id}
	if !known {
		key = dialect.NodeKey{Ref: st.log.NewRef("n")}
	}
	st.visited[ptr] = key
	st.horizon[ptr] = depth

	props, err := readProperties(m.access, cd, v)
	if err != nil {
		return dialect.NodeKey{}, err
	}
	st.log.Record(changelog.EntitySaved{
		Node:       key,
		Entity:     v,
		Class:      cd,
		Labels:     cd.Labels,
		Properties: props,
		Dirty:      !known || m.ctx.IsDirty(id, cd.Labels, props),
	})
	if depth == 0 {
		return key, nil
	}
	return key, m.mapRelationships(st, cd, v, key, depth)
}

func (m *GraphMapper) mapRelationships(st *saveState, cd *metadata.ClassDescriptor, v reflect.Value, key dialect.NodeKey, depth int) error {
	readers, err := m.access.RelationalReaders(cd)
	if err != nil {
		return err
	}
	for _, r := range readers {
		mem := r.Member()
		if key.Ref == "" {
			m.collectStale(st, key.ID, mem)
		}
		related, err := r.Related(v)
		if err != nil {
			return ogm.NewMappingError(cd.Name, r.Name(), err)
		}
		for _, rv := range related {
			if rv.Pointer() == v.Pointer() {
				continue
			}
			rcd, err := m.registry.DescribeType(rv.Type())
			if err != nil {
				return ogm.NewMappingError(cd.Name, r.Name(), err)
			}
			if rcd.IsRelationshipEntity() {
				if err := m.mapRelationshipEntity(st, rcd, rv, next(depth)); err != nil {
					return err
				}
				continue
			}
			other, err := m.mapEntity(st, rcd, rv, next(depth))
			if err != nil {
				return err
			}
			m.link(st, key, other, mem.Relationship, mem.Direction)
		}
	}
	return nil
}

// collectStale remembers the known relationships a member is responsible
// for. Those not linked again by the end of the save are deleted.
func (m *GraphMapper) collectStale(st *saveState, id int64, mem *metadata.Member) {
	ck := clearKey{id: id, typ: mem.Relationship, dir: mem.Direction}
	if st.cleared[ck] {
		return
	}
	st.cleared[ck] = true
	for _, r := range st.view.Relationships(id, mem.Relationship, mem.Direction) {
		if other, ok := m.ctx.Get(r.Other(id)); ok && !m.holds(mem, other) {
			continue
		}
		k := r.Key()
		if _, ok := st.stale[k]; !ok {
			st.stale[k] = r
			st.staleOrder = append(st.staleOrder, k)
		}
	}
}

// holds reports whether a relationship member can refer to other.
func (m *GraphMapper) holds(mem *metadata.Member, other any) bool {
	if target, err := m.registry.DescribeType(mem.Type.Elem); err == nil && target.IsRelationshipEntity() {
		return true
	}
	ocd, err := m.registry.DescribeValue(other)
	if err != nil {
		return false
	}
	return ocd.Type == mem.Type.Elem || slices.Contains(ocd.Embeds, mem.Target)
}

// link records the relationship between two mapped nodes unless it is
// already known. Undirected relationships are created once, whichever
// side reaches them first.
func (m *GraphMapper) link(st *saveState, from, to dialect.NodeKey, typ string, dir ogm.Direction) {
	start, end := from, to
	if dir == ogm.Incoming {
		start, end = to, from
	}
	l := nodeLink{start: start, end: end, typ: typ}
	if st.linked[l] || (dir == ogm.Undirected && st.linked[nodeLink{start: end, end: start, typ: typ}]) {
		return
	}
	st.linked[l] = true
	known := start.Ref == "" && end.Ref == ""
	if known {
		k := RelationshipKey{StartID: start.ID, Type: typ, EndID: end.ID}
		if st.view.HasRelationship(k) {
			st.kept[k] = true
			return
		}
		if dir == ogm.Undirected {
			rk := RelationshipKey{StartID: end.ID, Type: typ, EndID: start.ID}
			if st.view.HasRelationship(rk) {
				st.kept[rk] = true
				return
			}
		}
	}
	st.log.Record(changelog.RelationshipChanged{Start: start, End: end, Type: typ, Active: true, Merge: known})
}

func (m *GraphMapper) mapRelationshipEntity(st *saveState, cd *metadata.ClassDescriptor, v reflect.Value, depth int) error {
	ptr := v.Interface()
	if st.relVisited[ptr] {
		return nil
	}
	st.relVisited[ptr] = true

	var keys [2]dialect.NodeKey
	for i, e := range []metadata.Endpoint{metadata.EndpointStart, metadata.EndpointEnd} {
		r, err := m.access.EndpointReader(cd, e)
		if err != nil {
			return err
		}
		nodes, err := r.Related(v)
		if err != nil {
			return ogm.NewMappingError(cd.Name, r.Name(), err)
		}
		if len(nodes) == 0 {
			return ogm.NewMappingError(cd.Name, r.Name(), errors.New("relationship entity endpoint is nil"))
		}
		ncd, err := m.registry.DescribeType(nodes[0].Type())
		if err != nil {
			return ogm.NewMappingError(cd.Name, r.Name(), err)
		}
		if keys[i], err = m.mapEntity(st, ncd, nodes[0], depth); err != nil {
			return err
		}
	}

	id, known, err := m.access.Identity(cd, v)
	if err != nil {
		return err
	}
	props, err := readProperties(m.access, cd, v)
	if err != nil {
		return err
	}
	rc := changelog.RelationshipChanged{
		Start:      keys[0],
		End:        keys[1],
		Type:       cd.RelationshipType,
		Active:     true,
		Entity:     v,
		Class:      cd,
		Properties: props,
	}
	if known {
		rc.RelationshipID = id
		rc.Dirty = m.ctx.IsRelationshipDirty(id, props)
		if keys[0].Ref == "" && keys[1].Ref == "" {
			st.kept[RelationshipKey{StartID: keys[0].ID, Type: rc.Type, EndID: keys[1].ID}] = true
		}
	} else {
		rc.Ref = st.log.NewRef("r")
	}
	st.log.Record(rc)
	return nil
}

// AssignIdentities writes the identities bound in a log to the entities it
// created.
func (m *GraphMapper) AssignIdentities(log *changelog.ChangeLog) error {
	return m.eachNew(log, func(cd *metadata.ClassDescriptor, v reflect.Value, id int64) error {
		return m.access.SetIdentity(cd, v, id)
	})
}

// ResetIdentities marks the entities created by a log as unsaved again.
func (m *GraphMapper) ResetIdentities(log *changelog.ChangeLog) error {
	var errs []error
	err := m.eachNew(log, func(cd *metadata.ClassDescriptor, v reflect.Value, _ int64) error {
		if err := m.access.ResetIdentity(cd, v); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	errs = append(errs, err)
	return ogm.NewAggregateError(errs...)
}

func (m *GraphMapper) eachNew(log *changelog.ChangeLog, fn func(*metadata.ClassDescriptor, reflect.Value, int64) error) error {
	for _, e := range log.Effects() {
		var (
			ref    dialect.Ref
			cd     *metadata.ClassDescriptor
			entity reflect.Value
		)
		switch e := e.(type) {
		case changelog.EntitySaved:
			ref, cd, entity = e.Node.Ref, e.Class, e.Entity
		case changelog.RelationshipChanged:
			ref, cd, entity = e.Ref, e.Class, e.Entity
		}
		if ref == "" || cd == nil || !entity.IsValid() {
			continue
		}
		id, ok := log.Lookup(ref)
		if !ok {
			return fmt.Errorf("mapping: unbound reference %s", ref)
		}
		if err := fn(cd, entity, id); err != nil {
			return err
		}
	}
	return nil
}

// readProperties reads the persisted properties of an entity. Nil values
// are left out.
func readProperties(access *entityaccess.Strategy, cd *metadata.ClassDescriptor, v reflect.Value) (map[string]any, error) {
	readers, err := access.PropertyReaders(cd)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any, len(readers))
	for _, r := range readers {
		val, err := r.Accessor.Property(v)
		if err != nil {
			return nil, ogm.NewMappingError(cd.Name, r.Accessor.Name(), err)
		}
		if val != nil {
			props[r.Name] = val
		}
	}
	return props, nil
}

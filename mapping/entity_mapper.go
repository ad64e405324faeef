package mapping

import (
	"log/slog"
	"reflect"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/entityaccess"
	"github.com/syssam/ogm/metadata"
)

// EntityMapper hydrates query results into the context.
type EntityMapper struct {
	registry *metadata.Registry
	access   *entityaccess.Strategy
	ctx      *Context
	logger   *slog.Logger
}

// NewEntityMapper returns a mapper hydrating into ctx.
func NewEntityMapper(registry *metadata.Registry, access *entityaccess.Strategy, ctx *Context, logger *slog.Logger) *EntityMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityMapper{registry: registry, access: access, ctx: ctx, logger: logger}
}

type wiring struct {
	entity reflect.Value
	class  *metadata.ClassDescriptor
	target entityaccess.Target
	writer *entityaccess.Accessor
	values []reflect.Value
}

type wiringKey struct {
	entity any
	writer *entityaccess.Accessor
}

// hydration collects the relationship values of one Map call so every
// member is written once.
type hydration struct {
	wires map[wiringKey]*wiring
	order []wiringKey
}

// Map hydrates a graph. Nodes already in the context keep their instance
// and state; new nodes are instantiated from the class matching their
// labels and marked clean. Relationships are registered in the context and
// wired into the members of both endpoints, merged with what the members
// already hold.
func (m *EntityMapper) Map(g dialect.Graph) error {
	for _, n := range g.Nodes {
		if err := m.mapNode(n); err != nil {
			return err
		}
	}
	h := &hydration{wires: make(map[wiringKey]*wiring)}
	for _, r := range g.Relationships {
		if err := m.mapRelationship(h, r); err != nil {
			return err
		}
	}
	for _, k := range h.order {
		if err := m.wire(h.wires[k]); err != nil {
			return err
		}
	}
	return nil
}

// Entities returns the context instances of ids, skipping unknown ones.
func (m *EntityMapper) Entities(ids []int64) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.ctx.Get(id); ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *EntityMapper) mapNode(n dialect.Node) error {
	if _, ok := m.ctx.Get(n.ID); ok {
		return nil
	}
	cd, ok := m.registry.ForLabels(n.Labels)
	if !ok {
		m.logger.Debug("no class for labels", "id", n.ID, "labels", n.Labels)
		return nil
	}
	v := reflect.New(cd.Type)
	if err := m.access.SetIdentity(cd, v, n.ID); err != nil {
		return err
	}
	if err := m.setProperties(cd, v, n.Properties); err != nil {
		return err
	}
	props, err := readProperties(m.access, cd, v)
	if err != nil {
		return err
	}
	m.ctx.Remember(n.ID, v.Interface())
	return m.ctx.MarkClean(n.ID, cd.Labels, props)
}

func (m *EntityMapper) setProperties(cd *metadata.ClassDescriptor, v reflect.Value, props map[string]any) error {
	writers, err := m.access.PropertyWriters(cd)
	if err != nil {
		return err
	}
	for _, w := range writers {
		val, ok := props[w.Name]
		if !ok {
			continue
		}
		if err := w.Accessor.SetProperty(v, val); err != nil {
			return ogm.NewMappingError(cd.Name, w.Accessor.Name(), err)
		}
	}
	return nil
}

func (m *EntityMapper) mapRelationship(h *hydration, r dialect.Relationship) error {
	start, ok := m.ctx.Get(r.Start)
	if !ok {
		return nil
	}
	end, ok := m.ctx.Get(r.End)
	if !ok {
		return nil
	}
	scd, err := m.registry.DescribeValue(start)
	if err != nil {
		return err
	}
	ecd, err := m.registry.DescribeValue(end)
	if err != nil {
		return err
	}
	m.ctx.RegisterRelationship(MappedRelationship{StartID: r.Start, Type: r.Type, EndID: r.End, Active: true, RelationshipID: r.ID})

	sv, ev := reflect.ValueOf(start), reflect.ValueOf(end)
	toStart, toEnd := ev, sv
	startElem, endElem := ecd.Type, scd.Type
	if rcd, ok := m.registry.ForRelationshipType(r.Type); ok {
		re, err := m.relationshipEntity(rcd, r, sv, ev)
		if err != nil {
			return err
		}
		toStart, toEnd = re, re
		startElem, endElem = rcd.Type, rcd.Type
	}
	if err := m.collect(h, sv, scd, entityaccess.Relationship(r.Type, ogm.Outgoing, startElem), toStart); err != nil {
		return err
	}
	return m.collect(h, ev, ecd, entityaccess.Relationship(r.Type, ogm.Incoming, endElem), toEnd)
}

// relationshipEntity returns the relationship entity of r, creating it
// when the context does not hold one yet.
func (m *EntityMapper) relationshipEntity(cd *metadata.ClassDescriptor, r dialect.Relationship, start, end reflect.Value) (reflect.Value, error) {
	if e, ok := m.ctx.RelationshipEntity(r.ID); ok {
		return reflect.ValueOf(e), nil
	}
	v := reflect.New(cd.Type)
	if err := m.access.SetIdentity(cd, v, r.ID); err != nil {
		return reflect.Value{}, err
	}
	if err := m.setProperties(cd, v, r.Properties); err != nil {
		return reflect.Value{}, err
	}
	for i, e := range []metadata.Endpoint{metadata.EndpointStart, metadata.EndpointEnd} {
		node := start
		if i == 1 {
			node = end
		}
		w, err := m.access.EndpointWriter(cd, e)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := w.Set(v, node); err != nil {
			return reflect.Value{}, ogm.NewMappingError(cd.Name, w.Name(), err)
		}
	}
	props, err := readProperties(m.access, cd, v)
	if err != nil {
		return reflect.Value{}, err
	}
	m.ctx.RememberRelationshipEntity(r.ID, v.Interface())
	return v, m.ctx.MarkRelationshipClean(r.ID, props)
}

func (m *EntityMapper) collect(h *hydration, entity reflect.Value, cd *metadata.ClassDescriptor, t entityaccess.Target, value reflect.Value) error {
	w, err := m.access.ResolveWriter(cd, t)
	if ogm.IsNoAccessor(err) {
		m.logger.Debug("relationship not mapped", "class", cd.Name, "type", t.Name, "direction", t.Direction)
		return nil
	}
	if err != nil {
		return err
	}
	k := wiringKey{entity: entity.Interface(), writer: w}
	wr, ok := h.wires[k]
	if !ok {
		wr = &wiring{entity: entity, class: cd, target: t, writer: w}
		h.wires[k] = wr
		h.order = append(h.order, k)
	}
	wr.values = appendUnique(wr.values, value)
	return nil
}

// wire writes collected values. Collections keep the entities they already
// hold; scalars take the loaded value.
func (m *EntityMapper) wire(w *wiring) error {
	values := w.values
	if w.writer.Member().Type.Collection() {
		if r, err := m.access.ResolveReader(w.class, w.target); err == nil {
			existing, err := r.Related(w.entity)
			if err != nil {
				return ogm.NewMappingError(w.class.Name, r.Name(), err)
			}
			merged := existing
			for _, v := range values {
				merged = appendUnique(merged, v)
			}
			values = merged
		}
	}
	if err := w.writer.SetRelated(w.entity, values); err != nil {
		return ogm.NewMappingError(w.class.Name, w.writer.Name(), err)
	}
	return nil
}

func appendUnique(values []reflect.Value, v reflect.Value) []reflect.Value {
	for _, e := range values {
		if e.Pointer() == v.Pointer() {
			return values
		}
	}
	return append(values, v)
}

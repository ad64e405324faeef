package mapping

import (
	"fmt"
	"slices"

	"github.com/syssam/ogm/changelog"
)

// Sync applies the effects of committed change logs to the context, in
// order: saved entities are remembered and marked clean, activated
// relationships registered, deactivated ones removed, and deleted entities
// forgotten. Every effect is checked before the first one is applied, so a
// failing Sync leaves the context unchanged.
func (c *Context) Sync(logs ...*changelog.ChangeLog) error {
	var steps []func()
	for _, log := range logs {
		for i, e := range log.Effects() {
			step, err := c.plan(log, e)
			if err != nil {
				return fmt.Errorf("mapping: sync effect %d: %w", i, err)
			}
			if step != nil {
				steps = append(steps, step)
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, step := range steps {
		step()
	}
	return nil
}

// plan validates one effect and returns the mutation applying it. The
// mutation runs with c.mu held.
func (c *Context) plan(log *changelog.ChangeLog, e changelog.Effect) (func(), error) {
	switch e := e.(type) {
	case changelog.EntitySaved:
		id, ok := log.ID(e.Node)
		if !ok {
			return nil, fmt.Errorf("unbound node %s", e.Node)
		}
		h, err := Fingerprint(e.Labels, e.Properties)
		if err != nil {
			return nil, err
		}
		entity := e.Entity.Interface()
		labels := slices.Clone(e.Labels)
		return func() {
			c.nodes[id] = entity
			c.memo[id] = h
			c.labels[id] = labels
		}, nil
	case changelog.RelationshipChanged:
		start, ok := log.ID(e.Start)
		if !ok {
			return nil, fmt.Errorf("unbound node %s", e.Start)
		}
		end, ok := log.ID(e.End)
		if !ok {
			return nil, fmt.Errorf("unbound node %s", e.End)
		}
		r := MappedRelationship{StartID: start, Type: e.Type, EndID: end, Active: e.Active, RelationshipID: e.RelationshipID}
		if !e.Active {
			return func() { c.removeRelationship(r.Key()) }, nil
		}
		if e.Ref != "" {
			id, ok := log.Lookup(e.Ref)
			if !ok {
				return nil, fmt.Errorf("unbound relationship %s", e.Ref)
			}
			r.RelationshipID = id
		}
		if !e.Entity.IsValid() || r.RelationshipID == 0 {
			return func() { c.registerRelationship(r) }, nil
		}
		h, err := Fingerprint(nil, e.Properties)
		if err != nil {
			return nil, err
		}
		entity := e.Entity.Interface()
		return func() {
			c.registerRelationship(r)
			c.rels[r.RelationshipID] = entity
			c.relMemo[r.RelationshipID] = h
		}, nil
	case changelog.EntityDeleted:
		return func() { c.forgetEntity(e.ID) }, nil
	case changelog.LabelDeleted:
		return func() {
			ids := c.idsWithLabel(e.Label)
			if e.Class != nil {
				ids = append(ids, c.idsOf(e.Class.Type)...)
			}
			for _, id := range ids {
				c.forgetEntity(id)
			}
		}, nil
	case changelog.Purged:
		return func() {
			clear(c.nodes)
			clear(c.rels)
			clear(c.edges)
			clear(c.memo)
			clear(c.relMemo)
			clear(c.labels)
		}, nil
	}
	return nil, fmt.Errorf("unknown effect %T", e)
}

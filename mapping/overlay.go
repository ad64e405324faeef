package mapping

import (
	"github.com/syssam/ogm"
	"github.com/syssam/ogm/changelog"
)

// Overlay is a RelationshipView of a base view with the relationship
// effects of uncommitted, bound change logs applied on top. It is a
// snapshot: later changes to the logs are not reflected.
type Overlay struct {
	base    RelationshipView
	added   map[RelationshipKey]MappedRelationship
	removed map[RelationshipKey]bool
}

// NewOverlay layers logs over base.
func NewOverlay(base RelationshipView, logs ...*changelog.ChangeLog) *Overlay {
	o := &Overlay{
		base:    base,
		added:   make(map[RelationshipKey]MappedRelationship),
		removed: make(map[RelationshipKey]bool),
	}
	for _, log := range logs {
		for _, e := range log.Effects() {
			rc, ok := e.(changelog.RelationshipChanged)
			if !ok {
				continue
			}
			start, ok1 := log.ID(rc.Start)
			end, ok2 := log.ID(rc.End)
			if !ok1 || !ok2 {
				continue
			}
			r := MappedRelationship{StartID: start, Type: rc.Type, EndID: end, Active: rc.Active, RelationshipID: rc.RelationshipID}
			if rc.Ref != "" {
				r.RelationshipID, _ = log.Lookup(rc.Ref)
			}
			k := r.Key()
			if rc.Active {
				o.added[k] = r
				delete(o.removed, k)
			} else {
				delete(o.added, k)
				o.removed[k] = true
			}
		}
	}
	return o
}

// Relationships implements RelationshipView.
func (o *Overlay) Relationships(id int64, typ string, dir ogm.Direction) []MappedRelationship {
	var out []MappedRelationship
	seen := make(map[RelationshipKey]bool)
	for _, r := range o.base.Relationships(id, typ, dir) {
		k := r.Key()
		if o.removed[k] {
			continue
		}
		if a, ok := o.added[k]; ok {
			r = a
		}
		seen[k] = true
		out = append(out, r)
	}
	for k, r := range o.added {
		if !seen[k] && k.Type == typ && r.Touches(id, dir) {
			out = append(out, r)
		}
	}
	return sortRelationships(out)
}

// HasRelationship implements RelationshipView.
func (o *Overlay) HasRelationship(k RelationshipKey) bool {
	if o.removed[k] {
		return false
	}
	if _, ok := o.added[k]; ok {
		return true
	}
	return o.base.HasRelationship(k)
}

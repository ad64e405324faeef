// Package changelog records the effects of a save and compiles them into a
// statement batch.
package changelog

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/syssam/ogm/cypher"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/metadata"
)

// Effect is one recorded mapping effect.
type Effect interface {
	effect()
}

// EntitySaved records a node entity written by a save. A node addressed by
// a Ref is new; its identity is known once the log is bound.
type EntitySaved struct {
	Node       dialect.NodeKey
	Entity     reflect.Value
	Class      *metadata.ClassDescriptor
	Labels     []string
	Properties map[string]any
	// Dirty is set when the node must be written: new nodes, and known
	// nodes whose properties changed since they were last synchronized.
	Dirty bool
}

// RelationshipChanged records a relationship that became active or
// inactive.
type RelationshipChanged struct {
	Start  dialect.NodeKey
	End    dialect.NodeKey
	Type   string
	Active bool
	// Merge reuses an existing relationship between the nodes.
	Merge bool
	// RelationshipID is the identity of a known relationship, or zero.
	RelationshipID int64
	// Ref names the identity of a new relationship backed by a
	// relationship entity.
	Ref dialect.Ref
	// Entity and Class are set for relationship entities.
	Entity     reflect.Value
	Class      *metadata.ClassDescriptor
	Properties map[string]any
	// Dirty is set when a known relationship entity changed.
	Dirty bool
}

// EntityDeleted records the deletion of a node and its relationships.
type EntityDeleted struct {
	ID     int64
	Entity reflect.Value
	Class  *metadata.ClassDescriptor
}

// LabelDeleted records the deletion of every node of a class.
type LabelDeleted struct {
	Label string
	Class *metadata.ClassDescriptor
}

// Purged records the deletion of the whole graph.
type Purged struct{}

func (EntitySaved) effect()         {}
func (RelationshipChanged) effect() {}
func (EntityDeleted) effect()       {}
func (LabelDeleted) effect()        {}
func (Purged) effect()              {}

// edgeKey distinguishes relationship entities between the same nodes by
// their identity or ref.
type edgeKey struct {
	start, end dialect.NodeKey
	typ        string
	id         int64
	ref        dialect.Ref
}

// ChangeLog is an ordered, append-only record of the effects of one save.
// It is not safe for concurrent use.
type ChangeLog struct {
	effects []Effect
	nodes   map[dialect.NodeKey]int
	edges   map[edgeKey]int
	seq     int
	ids     map[dialect.Ref]int64
	stmts   []dialect.Statement
}

// New returns an empty log.
func New() *ChangeLog {
	return &ChangeLog{
		nodes: make(map[dialect.NodeKey]int),
		edges: make(map[edgeKey]int),
		ids:   make(map[dialect.Ref]int64),
	}
}

// NewRef returns a ref unique within the log.
func (l *ChangeLog) NewRef(prefix string) dialect.Ref {
	l.seq++
	return dialect.Ref(prefix + strconv.Itoa(l.seq))
}

// Record appends an effect. Saving the same node twice, or changing the
// same relationship twice, keeps the position of the first record and the
// value of the last.
func (l *ChangeLog) Record(e Effect) {
	l.stmts = nil
	switch e := e.(type) {
	case EntitySaved:
		if i, ok := l.nodes[e.Node]; ok {
			prev := l.effects[i].(EntitySaved)
			e.Dirty = e.Dirty || prev.Dirty
			l.effects[i] = e
			return
		}
		l.nodes[e.Node] = len(l.effects)
	case RelationshipChanged:
		k := edgeKey{start: e.Start, end: e.End, typ: e.Type, id: e.RelationshipID, ref: e.Ref}
		if i, ok := l.edges[k]; ok {
			l.effects[i] = e
			return
		}
		l.edges[k] = len(l.effects)
	}
	l.effects = append(l.effects, e)
}

// Effects returns the recorded effects in order.
func (l *ChangeLog) Effects() []Effect {
	return l.effects
}

// Len returns the number of recorded effects.
func (l *ChangeLog) Len() int {
	return len(l.effects)
}

// Saved returns the EntitySaved record of a node, if any.
func (l *ChangeLog) Saved(k dialect.NodeKey) (EntitySaved, bool) {
	i, ok := l.nodes[k]
	if !ok {
		return EntitySaved{}, false
	}
	return l.effects[i].(EntitySaved), true
}

// Compile returns the statements implementing the log, in recording order.
// Clean known nodes produce no statement.
func (l *ChangeLog) Compile() []dialect.Statement {
	if l.stmts != nil {
		return l.stmts
	}
	stmts := make([]dialect.Statement, 0, len(l.effects))
	for _, e := range l.effects {
		switch e := e.(type) {
		case EntitySaved:
			switch {
			case e.Node.Ref != "":
				stmts = append(stmts, cypher.CreateNode(e.Node.Ref, e.Labels, e.Properties))
			case e.Dirty:
				stmts = append(stmts, cypher.UpdateNode(e.Node, e.Labels, e.Properties))
			}
		case RelationshipChanged:
			switch {
			case !e.Active:
				stmts = append(stmts, cypher.DeleteRelationship(e.Start, e.End, e.Type))
			case e.RelationshipID != 0:
				if e.Dirty {
					stmts = append(stmts, cypher.UpdateRelationship(e.RelationshipID, e.Properties))
				}
			default:
				stmts = append(stmts, cypher.CreateRelationship(e.Ref, e.Start, e.End, e.Type, e.Properties, e.Merge))
			}
		case EntityDeleted:
			stmts = append(stmts, cypher.DeleteNode(e.ID))
		case LabelDeleted:
			stmts = append(stmts, cypher.DeleteLabel(e.Label))
		case Purged:
			stmts = append(stmts, cypher.Purge())
		}
	}
	l.stmts = stmts
	return stmts
}

// Bind reads the identities produced by the compiled statements from their
// results.
func (l *ChangeLog) Bind(results []dialect.Result) error {
	stmts := l.Compile()
	if len(results) != len(stmts) {
		return fmt.Errorf("changelog: %d results for %d statements", len(results), len(stmts))
	}
	for i, s := range stmts {
		if s.Returns != "" {
			l.ids[s.Returns] = results[i].ID
		}
	}
	return nil
}

// Lookup returns the identity bound to ref.
func (l *ChangeLog) Lookup(ref dialect.Ref) (int64, bool) {
	id, ok := l.ids[ref]
	return id, ok
}

// ID returns the identity of a node key, resolving refs.
func (l *ChangeLog) ID(k dialect.NodeKey) (int64, bool) {
	id, err := k.Resolve(l.ids)
	return id, err == nil
}

// Resolved reports whether every ref of the log has been bound.
func (l *ChangeLog) Resolved() bool {
	bound := func(r dialect.Ref) bool {
		if r == "" {
			return true
		}
		_, ok := l.ids[r]
		return ok
	}
	for _, e := range l.effects {
		switch e := e.(type) {
		case EntitySaved:
			if !bound(e.Node.Ref) {
				return false
			}
		case RelationshipChanged:
			if !bound(e.Start.Ref) || !bound(e.End.Ref) || (e.Active && !bound(e.Ref)) {
				return false
			}
		}
	}
	return true
}

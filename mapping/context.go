package mapping

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/ogm"
)

// Context is the identity map of a unit of work. It holds one instance per
// graph identity, the relationships known to be active between them, the
// relationship entities, and a fingerprint of every node as it was last
// synchronized with the graph.
//
// A Context belongs to one unit of work. Its methods are safe for
// concurrent use, but interleaving two units of work on one Context breaks
// the identity map.
type Context struct {
	mu      sync.RWMutex
	nodes   map[int64]any
	rels    map[int64]any
	edges   map[RelationshipKey]MappedRelationship
	memo    map[int64]uint64
	relMemo map[int64]uint64
	labels  map[int64][]string
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{
		nodes:   make(map[int64]any),
		rels:    make(map[int64]any),
		edges:   make(map[RelationshipKey]MappedRelationship),
		memo:    make(map[int64]uint64),
		relMemo: make(map[int64]uint64),
		labels:  make(map[int64][]string),
	}
}

// Remember makes entity the canonical instance of id, replacing any
// previous one, and returns it.
func (c *Context) Remember(id int64, entity any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[id] = entity
	return entity
}

// Get returns the canonical instance of id.
func (c *Context) Get(id int64) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.nodes[id]
	return e, ok
}

// Forget removes the instance of id and its fingerprint.
func (c *Context) Forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, id)
	delete(c.memo, id)
	delete(c.labels, id)
}

// ForgetEntity removes the instance of id together with every relationship
// touching it.
func (c *Context) ForgetEntity(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgetEntity(id)
}

func (c *Context) forgetEntity(id int64) {
	delete(c.nodes, id)
	delete(c.memo, id)
	delete(c.labels, id)
	for k, r := range c.edges {
		if k.StartID == id || k.EndID == id {
			delete(c.edges, k)
			if r.RelationshipID != 0 {
				delete(c.rels, r.RelationshipID)
				delete(c.relMemo, r.RelationshipID)
			}
		}
	}
}

// RememberRelationshipEntity makes entity the canonical relationship
// entity of relationship id.
func (c *Context) RememberRelationshipEntity(id int64, entity any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rels[id] = entity
	return entity
}

// RelationshipEntity returns the relationship entity of relationship id.
func (c *Context) RelationshipEntity(id int64) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rels[id]
	return e, ok
}

// RegisterRelationship marks r active. Registering an equal relationship
// again only refreshes its activity and identity.
func (c *Context) RegisterRelationship(r MappedRelationship) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerRelationship(r)
}

func (c *Context) registerRelationship(r MappedRelationship) {
	k := r.Key()
	if prev, ok := c.edges[k]; ok && r.RelationshipID == 0 {
		r.RelationshipID = prev.RelationshipID
	}
	r.Active = true
	c.edges[k] = r
}

// RemoveRelationship deletes r from the known relationships.
func (c *Context) RemoveRelationship(r MappedRelationship) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeRelationship(r.Key())
}

func (c *Context) removeRelationship(k RelationshipKey) {
	if prev, ok := c.edges[k]; ok && prev.RelationshipID != 0 {
		delete(c.rels, prev.RelationshipID)
		delete(c.relMemo, prev.RelationshipID)
	}
	delete(c.edges, k)
}

// ActiveRelationships returns the active relationships, sorted by start,
// type and end.
func (c *Context) ActiveRelationships() []MappedRelationship {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MappedRelationship, 0, len(c.edges))
	for _, r := range c.edges {
		if r.Active {
			out = append(out, r)
		}
	}
	return sortRelationships(out)
}

// Relationships implements RelationshipView.
func (c *Context) Relationships(id int64, typ string, dir ogm.Direction) []MappedRelationship {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []MappedRelationship
	for k, r := range c.edges {
		if r.Active && k.Type == typ && r.Touches(id, dir) {
			out = append(out, r)
		}
	}
	return sortRelationships(out)
}

// HasRelationship implements RelationshipView.
func (c *Context) HasRelationship(k RelationshipKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.edges[k]
	return ok && r.Active
}

// All returns the instances whose dynamic type is t or a pointer to t,
// ordered by identity.
func (c *Context) All(t reflect.Type) []any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.idsOf(t)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = c.nodes[id]
	}
	return out
}

func (c *Context) idsOf(t reflect.Type) []int64 {
	var ids []int64
	for id, e := range c.nodes {
		if et := reflect.TypeOf(e); et == t || (et.Kind() == reflect.Pointer && et.Elem() == t) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ClearType forgets every instance of type t and the relationships touching
// them.
func (c *Context) ClearType(t reflect.Type) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.idsOf(t) {
		c.forgetEntity(id)
	}
}

// ClearLabel forgets every instance whose node carries label, including
// instances of subclasses, and the relationships touching them.
func (c *Context) ClearLabel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.idsWithLabel(label) {
		c.forgetEntity(id)
	}
}

func (c *Context) idsWithLabel(label string) []int64 {
	var ids []int64
	for id, labels := range c.labels {
		if _, ok := c.nodes[id]; ok && slices.Contains(labels, label) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Clear empties the context.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.nodes)
	clear(c.rels)
	clear(c.edges)
	clear(c.memo)
	clear(c.relMemo)
	clear(c.labels)
}

// Len returns the number of node instances.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// MarkClean records the state of node id as synchronized.
func (c *Context) MarkClean(id int64, labels []string, props map[string]any) error {
	h, err := Fingerprint(labels, props)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo[id] = h
	c.labels[id] = slices.Clone(labels)
	return nil
}

// IsDirty reports whether the state of node id differs from the last
// synchronized one. Nodes never synchronized are dirty.
func (c *Context) IsDirty(id int64, labels []string, props map[string]any) bool {
	h, err := Fingerprint(labels, props)
	if err != nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	prev, ok := c.memo[id]
	return !ok || prev != h
}

// MarkRelationshipClean records the properties of relationship id as
// synchronized.
func (c *Context) MarkRelationshipClean(id int64, props map[string]any) error {
	h, err := Fingerprint(nil, props)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relMemo[id] = h
	return nil
}

// IsRelationshipDirty reports whether the properties of relationship id
// changed since they were last synchronized.
func (c *Context) IsRelationshipDirty(id int64, props map[string]any) bool {
	h, err := Fingerprint(nil, props)
	if err != nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	prev, ok := c.relMemo[id]
	return !ok || prev != h
}

// Fingerprint hashes labels and properties. Map keys are encoded in sorted
// order so equal states hash equally.
func Fingerprint(labels []string, props map[string]any) (uint64, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(labels); err != nil {
		return 0, fmt.Errorf("mapping: fingerprint: %w", err)
	}
	if err := enc.Encode(props); err != nil {
		return 0, fmt.Errorf("mapping: fingerprint: %w", err)
	}
	return xxhash.Sum64(buf.Bytes()), nil
}

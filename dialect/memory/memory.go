// Package memory implements an in-process graph transport. Each
// transaction works on a private copy of the committed graph; commit
// publishes the copy unless another transaction committed first.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/dialect/graphop"
)

// ErrConflict is returned by Commit when the committed graph changed since
// the transaction began.
var ErrConflict = errors.New("memory: concurrent commit")

const scheme = "memory://tx/"

// Driver is a dialect.Driver backed by an in-memory graph.
type Driver struct {
	mu        sync.Mutex
	committed *Graph
	version   uint64
	txs       map[string]*tx
	logger    *slog.Logger
}

type tx struct {
	mu      sync.Mutex
	graph   *Graph
	version uint64
	dirty   bool
}

// Option configures the Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// Open returns an empty in-memory graph.
func Open(opts ...Option) *Driver {
	d := &Driver{
		committed: NewGraph(),
		txs:       make(map[string]*tx),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dialect implements dialect.Driver.
func (*Driver) Dialect() string { return dialect.Memory }

// Close discards open transactions.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.txs)
	return nil
}

// Begin implements dialect.Driver.
func (d *Driver) Begin(_ context.Context, opts dialect.TxOptions) (dialect.Endpoint, error) {
	token := uuid.NewString()
	if opts.AutoCommit {
		return dialect.Endpoint{URL: scheme + token + "/commit", AutoCommit: true}, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txs[token] = &tx{graph: d.committed.Clone(), version: d.version}
	return dialect.Endpoint{URL: scheme + token}, nil
}

func (d *Driver) lookup(ep dialect.Endpoint) (*tx, string, error) {
	token, ok := strings.CutPrefix(ep.URL, scheme)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", dialect.ErrUnknownEndpoint, ep)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.txs[token]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", dialect.ErrUnknownEndpoint, ep)
	}
	return t, token, nil
}

// Execute implements dialect.Driver. A failing statement leaves the
// transaction as it was before the batch.
func (d *Driver) Execute(ctx context.Context, ep dialect.Endpoint, stmts []dialect.Statement) ([]dialect.Result, error) {
	if ep.SingleShot() {
		return d.executeOnce(ctx, stmts)
	}
	t, _, err := d.lookup(ep)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	work := t.graph.Clone()
	res, err := graphop.Run(ctx, work, stmts)
	if err != nil {
		return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
	}
	t.graph = work
	t.dirty = t.dirty || mutates(stmts)
	return res, nil
}

func (d *Driver) executeOnce(ctx context.Context, stmts []dialect.Statement) ([]dialect.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	work := d.committed.Clone()
	res, err := graphop.Run(ctx, work, stmts)
	if err != nil {
		return nil, ogm.NewRemoteExecutionError("execute", scheme+"commit", err)
	}
	if mutates(stmts) {
		d.committed = work
		d.version++
	}
	return res, nil
}

func mutates(stmts []dialect.Statement) bool {
	return slices.ContainsFunc(stmts, func(s dialect.Statement) bool {
		return s.Op.Kind != dialect.OpMatchNodes && s.Op.Kind != dialect.OpCountNodes
	})
}

// Commit implements dialect.Driver.
func (d *Driver) Commit(_ context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	t, token, err := d.lookup(ep)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.txs, token)
	if !t.dirty {
		return nil
	}
	if t.version != d.version {
		return ogm.NewRemoteExecutionError("commit", ep.URL, ErrConflict)
	}
	d.committed = t.graph
	d.version++
	d.logger.Debug("memory transaction committed", "endpoint", ep.URL, "nodes", len(t.graph.nodes))
	return nil
}

// Rollback implements dialect.Driver.
func (d *Driver) Rollback(_ context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	_, token, err := d.lookup(ep)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.txs, token)
	return nil
}

// Snapshot returns a copy of the committed graph.
func (d *Driver) Snapshot() *Graph {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed.Clone()
}

// OpenTransactions returns the number of open transactions.
func (d *Driver) OpenTransactions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.txs)
}

var _ dialect.Driver = (*Driver)(nil)

// Graph is an in-memory graphop.Store. It is not safe for concurrent use.
type Graph struct {
	nextNode int64
	nextRel  int64
	nodes    map[int64]dialect.Node
	rels     map[int64]dialect.Relationship
}

// NewGraph returns an empty graph. Identities start at 1.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[int64]dialect.Node),
		rels:  make(map[int64]dialect.Relationship),
	}
}

// Clone returns a copy sharing no mutable state with g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nextNode: g.nextNode,
		nextRel:  g.nextRel,
		nodes:    make(map[int64]dialect.Node, len(g.nodes)),
		rels:     make(map[int64]dialect.Relationship, len(g.rels)),
	}
	for id, n := range g.nodes {
		n.Labels = slices.Clone(n.Labels)
		n.Properties = maps.Clone(n.Properties)
		c.nodes[id] = n
	}
	for id, r := range g.rels {
		r.Properties = maps.Clone(r.Properties)
		c.rels[id] = r
	}
	return c
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// RelationshipCount returns the number of relationships.
func (g *Graph) RelationshipCount() int { return len(g.rels) }

// CreateNode implements graphop.Store.
func (g *Graph) CreateNode(_ context.Context, labels []string, props map[string]any) (int64, error) {
	g.nextNode++
	g.nodes[g.nextNode] = dialect.Node{ID: g.nextNode, Labels: slices.Clone(labels), Properties: maps.Clone(props)}
	return g.nextNode, nil
}

// UpdateNode implements graphop.Store.
func (g *Graph) UpdateNode(_ context.Context, id int64, labels []string, props map[string]any) error {
	n, ok := g.nodes[id]
	if !ok {
		return ogm.NewNotFoundError("node", id)
	}
	for _, l := range labels {
		if !slices.Contains(n.Labels, l) {
			n.Labels = append(n.Labels, l)
		}
	}
	n.Properties = maps.Clone(props)
	g.nodes[id] = n
	return nil
}

// DeleteNode implements graphop.Store.
func (g *Graph) DeleteNode(_ context.Context, id int64) error {
	delete(g.nodes, id)
	maps.DeleteFunc(g.rels, func(_ int64, r dialect.Relationship) bool {
		return r.Start == id || r.End == id
	})
	return nil
}

// DeleteLabel implements graphop.Store.
func (g *Graph) DeleteLabel(ctx context.Context, label string) error {
	ids, _ := g.FindNodes(ctx, label)
	for _, id := range ids {
		_ = g.DeleteNode(ctx, id)
	}
	return nil
}

// CreateRelationship implements graphop.Store.
func (g *Graph) CreateRelationship(_ context.Context, start, end int64, typ string, props map[string]any) (int64, error) {
	g.nextRel++
	g.rels[g.nextRel] = dialect.Relationship{ID: g.nextRel, Type: typ, Start: start, End: end, Properties: maps.Clone(props)}
	return g.nextRel, nil
}

// UpdateRelationship implements graphop.Store.
func (g *Graph) UpdateRelationship(_ context.Context, id int64, props map[string]any) error {
	r, ok := g.rels[id]
	if !ok {
		return ogm.NewNotFoundError("relationship", id)
	}
	r.Properties = maps.Clone(props)
	g.rels[id] = r
	return nil
}

// DeleteRelationships implements graphop.Store.
func (g *Graph) DeleteRelationships(_ context.Context, start, end int64, typ string) error {
	maps.DeleteFunc(g.rels, func(_ int64, r dialect.Relationship) bool {
		return r.Start == start && r.End == end && r.Type == typ
	})
	return nil
}

// FindNodes implements graphop.Store.
func (g *Graph) FindNodes(_ context.Context, label string) ([]int64, error) {
	var ids []int64
	for id, n := range g.nodes {
		if slices.Contains(n.Labels, label) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Nodes implements graphop.Store.
func (g *Graph) Nodes(_ context.Context, ids []int64) ([]dialect.Node, error) {
	out := make([]dialect.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			n.Labels = slices.Clone(n.Labels)
			n.Properties = maps.Clone(n.Properties)
			out = append(out, n)
		}
	}
	return out, nil
}

// Relationships implements graphop.Store.
func (g *Graph) Relationships(_ context.Context, ids []int64) ([]dialect.Relationship, error) {
	var out []dialect.Relationship
	for _, r := range g.rels {
		if slices.Contains(ids, r.Start) || slices.Contains(ids, r.End) {
			r.Properties = maps.Clone(r.Properties)
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b dialect.Relationship) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Purge implements graphop.Store.
func (g *Graph) Purge(context.Context) error {
	clear(g.nodes)
	clear(g.rels)
	return nil
}

var _ graphop.Store = (*Graph)(nil)

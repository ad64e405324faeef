// Package graphop runs the structured operations of a statement batch
// against a graph Store. Transports that do not speak Cypher implement
// Store and hand their batches to Run.
package graphop

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
)

// Store is a graph storage the interpreter runs on. Identities are
// assigned by the store and are never reused.
type Store interface {
	CreateNode(ctx context.Context, labels []string, props map[string]any) (int64, error)
	// UpdateNode adds labels to a node and replaces its properties.
	UpdateNode(ctx context.Context, id int64, labels []string, props map[string]any) error
	// DeleteNode deletes a node and its relationships. Unknown ids are
	// ignored.
	DeleteNode(ctx context.Context, id int64) error
	DeleteLabel(ctx context.Context, label string) error
	CreateRelationship(ctx context.Context, start, end int64, typ string, props map[string]any) (int64, error)
	UpdateRelationship(ctx context.Context, id int64, props map[string]any) error
	// DeleteRelationships deletes every relationship of type typ from start
	// to end.
	DeleteRelationships(ctx context.Context, start, end int64, typ string) error
	// FindNodes returns the ids of the nodes carrying label, in ascending
	// order.
	FindNodes(ctx context.Context, label string) ([]int64, error)
	// Nodes returns the nodes of ids that exist, in the order of ids.
	Nodes(ctx context.Context, ids []int64) ([]dialect.Node, error)
	// Relationships returns the relationships touching any of ids,
	// ordered by identity.
	Relationships(ctx context.Context, ids []int64) ([]dialect.Relationship, error)
	Purge(ctx context.Context) error
}

// Run executes stmts in order and returns one result per statement. Refs
// produced by earlier statements are resolved before each statement runs.
// Raw Cypher fails with dialect.ErrUnsupported.
func Run(ctx context.Context, s Store, stmts []dialect.Statement) ([]dialect.Result, error) {
	ids := make(map[dialect.Ref]int64)
	results := make([]dialect.Result, 0, len(stmts))
	for i, stmt := range stmts {
		res, err := run(ctx, s, stmt.Op, ids)
		if err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i, stmt.Op.Kind, err)
		}
		if stmt.Returns != "" {
			ids[stmt.Returns] = res.ID
		}
		results = append(results, res)
	}
	return results, nil
}

func run(ctx context.Context, s Store, op dialect.Op, ids map[dialect.Ref]int64) (dialect.Result, error) {
	var res dialect.Result
	switch op.Kind {
	case dialect.OpCreateNode:
		id, err := s.CreateNode(ctx, op.Labels, Compact(op.Properties))
		if err != nil {
			return res, err
		}
		return identity(id), nil
	case dialect.OpUpdateNode:
		id, err := op.Node.Resolve(ids)
		if err != nil {
			return res, err
		}
		if err := exists(ctx, s, id); err != nil {
			return res, err
		}
		return res, s.UpdateNode(ctx, id, op.Labels, Compact(op.Properties))
	case dialect.OpDeleteNode:
		id, err := op.Node.Resolve(ids)
		if err != nil {
			return res, err
		}
		return res, s.DeleteNode(ctx, id)
	case dialect.OpDeleteLabel:
		return res, s.DeleteLabel(ctx, op.Label)
	case dialect.OpCreateRelationship:
		return createRelationship(ctx, s, op, ids)
	case dialect.OpUpdateRelationship:
		return res, s.UpdateRelationship(ctx, op.Relationship, Compact(op.Properties))
	case dialect.OpDeleteRelationship:
		start, err := op.Start.Resolve(ids)
		if err != nil {
			return res, err
		}
		end, err := op.End.Resolve(ids)
		if err != nil {
			return res, err
		}
		return res, s.DeleteRelationships(ctx, start, end, op.Type)
	case dialect.OpMatchNodes:
		roots, err := Roots(ctx, s, op)
		if err != nil {
			return res, err
		}
		g, err := Expand(ctx, s, roots, op.Depth)
		if err != nil {
			return res, err
		}
		res.Graph, res.Columns = g, []string{"id"}
		for _, id := range roots {
			res.Rows = append(res.Rows, []any{id})
		}
		return res, nil
	case dialect.OpCountNodes:
		roots, err := Roots(ctx, s, op)
		if err != nil {
			return res, err
		}
		res.Columns, res.Rows = []string{"count"}, [][]any{{int64(len(roots))}}
		return res, nil
	case dialect.OpPurge:
		return res, s.Purge(ctx)
	}
	return res, fmt.Errorf("%w: %s", dialect.ErrUnsupported, op.Kind)
}

func identity(id int64) dialect.Result {
	return dialect.Result{ID: id, Columns: []string{"id"}, Rows: [][]any{{id}}}
}

func exists(ctx context.Context, s Store, id int64) error {
	nodes, err := s.Nodes(ctx, []int64{id})
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return ogm.NewNotFoundError("node", id)
	}
	return nil
}

func createRelationship(ctx context.Context, s Store, op dialect.Op, ids map[dialect.Ref]int64) (dialect.Result, error) {
	start, err := op.Start.Resolve(ids)
	if err != nil {
		return dialect.Result{}, err
	}
	end, err := op.End.Resolve(ids)
	if err != nil {
		return dialect.Result{}, err
	}
	nodes, err := s.Nodes(ctx, []int64{start, end})
	if err != nil {
		return dialect.Result{}, err
	}
	if want := len(slices.Compact([]int64{start, end})); len(nodes) != want {
		return dialect.Result{}, ogm.NewNotFoundError("node", fmt.Sprintf("%d or %d", start, end))
	}
	if op.Merge {
		rels, err := s.Relationships(ctx, []int64{start})
		if err != nil {
			return dialect.Result{}, err
		}
		for _, r := range rels {
			if r.Start == start && r.End == end && r.Type == op.Type {
				if len(op.Properties) > 0 {
					if err := s.UpdateRelationship(ctx, r.ID, Compact(op.Properties)); err != nil {
						return dialect.Result{}, err
					}
				}
				return identity(r.ID), nil
			}
		}
	}
	id, err := s.CreateRelationship(ctx, start, end, op.Type, Compact(op.Properties))
	if err != nil {
		return dialect.Result{}, err
	}
	return identity(id), nil
}

// Roots returns the root nodes selected by a match or count operation: the
// existing nodes of op.IDs in their order, or the nodes carrying op.Label
// that pass op.Filters, sorted by op.Order and paged by op.Skip and op.Limit.
func Roots(ctx context.Context, s Store, op dialect.Op) ([]int64, error) {
	if op.Label == "" {
		nodes, err := s.Nodes(ctx, op.IDs)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		return ids, nil
	}
	ids, err := s.FindNodes(ctx, op.Label)
	if err != nil {
		return nil, err
	}
	if len(op.Filters) > 0 || len(op.Order) > 0 {
		nodes, err := s.Nodes(ctx, ids)
		if err != nil {
			return nil, err
		}
		nodes = slices.DeleteFunc(nodes, func(n dialect.Node) bool {
			return !Matches(n.Properties, op.Filters)
		})
		if len(op.Order) > 0 {
			slices.SortStableFunc(nodes, func(a, b dialect.Node) int {
				return compareBy(a.Properties, b.Properties, op.Order)
			})
		}
		ids = ids[:0]
		for _, n := range nodes {
			ids = append(ids, n.ID)
		}
	}
	return page(ids, op.Skip, op.Limit), nil
}

func page(ids []int64, skip, limit int) []int64 {
	if skip > 0 {
		ids = ids[min(skip, len(ids)):]
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

// Matches reports whether props pass every filter. A missing property
// fails every comparison except IsNull.
func Matches(props map[string]any, filters []dialect.Filter) bool {
	for _, f := range filters {
		if !match(props, f) {
			return false
		}
	}
	return true
}

func match(props map[string]any, f dialect.Filter) bool {
	v, ok := props[f.Property]
	ok = ok && v != nil
	switch f.Comparison {
	case dialect.Exists:
		return ok
	case dialect.IsNull:
		return !ok
	}
	if !ok {
		return false
	}
	switch f.Comparison {
	case dialect.Equals:
		return Equal(v, f.Value)
	case dialect.NotEquals:
		return !Equal(v, f.Value)
	case dialect.LessThan, dialect.LessThanEqual, dialect.GreaterThan, dialect.GreaterThanEqual:
		c, ok := Compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Comparison {
		case dialect.LessThan:
			return c < 0
		case dialect.LessThanEqual:
			return c <= 0
		case dialect.GreaterThan:
			return c > 0
		}
		return c >= 0
	case dialect.StartsWith, dialect.EndsWith, dialect.Contains:
		s, ok1 := v.(string)
		sub, ok2 := f.Value.(string)
		if !ok1 || !ok2 {
			return false
		}
		switch f.Comparison {
		case dialect.StartsWith:
			return strings.HasPrefix(s, sub)
		case dialect.EndsWith:
			return strings.HasSuffix(s, sub)
		}
		return strings.Contains(s, sub)
	case dialect.In:
		list := reflect.ValueOf(f.Value)
		if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
			return false
		}
		for i := range list.Len() {
			if Equal(v, list.Index(i).Interface()) {
				return true
			}
		}
	}
	return false
}

// Compare orders two property values of the same kind: numbers by value,
// strings lexically and booleans false first. It reports false for values
// that do not compare.
func Compare(a, b any) (int, bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(x, y), true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return strings.Compare(x, y), ok
	case bool:
		y, ok := b.(bool)
		switch {
		case !ok:
			return 0, false
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// compareBy orders two property maps by orders. Missing or incomparable
// values sort after present ones in ascending order.
func compareBy(a, b map[string]any, orders []dialect.Order) int {
	for _, o := range orders {
		va, oka := a[o.Property]
		vb, okb := b[o.Property]
		oka, okb = oka && va != nil, okb && vb != nil
		var c int
		switch {
		case !oka && !okb:
		case !oka:
			c = 1
		case !okb:
			c = -1
		default:
			c, _ = Compare(va, vb)
		}
		if o.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Expand returns the roots and everything within depth hops of them,
// following relationships in both directions. A negative depth is
// unbounded. Roots come first, in order.
func Expand(ctx context.Context, s Store, roots []int64, depth int) (dialect.Graph, error) {
	var (
		g        dialect.Graph
		seen     = make(map[int64]bool)
		seenRels = make(map[int64]bool)
		order    []int64
		frontier []int64
	)
	for _, id := range roots {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
			frontier = append(frontier, id)
		}
	}
	for hop := 0; len(frontier) > 0 && (depth < 0 || hop < depth); hop++ {
		rels, err := s.Relationships(ctx, frontier)
		if err != nil {
			return g, err
		}
		var next []int64
		for _, r := range rels {
			if seenRels[r.ID] {
				continue
			}
			seenRels[r.ID] = true
			g.Relationships = append(g.Relationships, r)
			for _, id := range []int64{r.Start, r.End} {
				if !seen[id] {
					seen[id] = true
					order = append(order, id)
					next = append(next, id)
				}
			}
		}
		frontier = next
	}
	nodes, err := s.Nodes(ctx, order)
	if err != nil {
		return g, err
	}
	g.Nodes = nodes
	return g, nil
}

// Compact returns a copy of props without nil values, or nil when nothing
// remains.
func Compact(props map[string]any) map[string]any {
	var out map[string]any
	for k, v := range props {
		if v == nil {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(props))
		}
		out[k] = v
	}
	return out
}

// Equal compares property values the way the graph store does: numbers of
// any width compare by value.
func Equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

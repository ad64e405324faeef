package graphop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/dialect/graphop"
	"github.com/syssam/ogm/dialect/memory"
)

func TestEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b any
		want bool
	}{
		{a: 1, b: int64(1), want: true},
		{a: int16(3), b: 3.0, want: true},
		{a: uint8(2), b: 3, want: false},
		{a: "x", b: "x", want: true},
		{a: "1", b: 1, want: false},
		{a: []string{"a"}, b: []string{"a"}, want: true},
		{a: nil, b: nil, want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, graphop.Equal(tt.a, tt.b), "%v == %v", tt.a, tt.b)
	}
}

func TestCompact(t *testing.T) {
	t.Parallel()
	assert.Nil(t, graphop.Compact(nil))
	assert.Nil(t, graphop.Compact(map[string]any{"a": nil}))
	in := map[string]any{"a": 1, "b": nil}
	assert.Equal(t, map[string]any{"a": 1}, graphop.Compact(in))
	assert.Len(t, in, 2)
}

func TestRunAndExpand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := memory.NewGraph()
	key := func(r dialect.Ref) dialect.NodeKey { return dialect.NodeKey{Ref: r} }
	res, err := graphop.Run(ctx, g, []dialect.Statement{
		{Returns: "a", Op: dialect.Op{Kind: dialect.OpCreateNode, Labels: []string{"N"}}},
		{Returns: "b", Op: dialect.Op{Kind: dialect.OpCreateNode, Labels: []string{"N"}}},
		{Returns: "c", Op: dialect.Op{Kind: dialect.OpCreateNode, Labels: []string{"N"}}},
		{Op: dialect.Op{Kind: dialect.OpCreateRelationship, Start: key("a"), End: key("b"), Type: "T"}},
		{Op: dialect.Op{Kind: dialect.OpCreateRelationship, Start: key("b"), End: key("c"), Type: "T"}},
		{Op: dialect.Op{Kind: dialect.OpCreateRelationship, Start: key("c"), End: key("a"), Type: "T"}},
		{Op: dialect.Op{Kind: dialect.OpCreateRelationship, Start: key("a"), End: key("a"), Type: "SELF"}},
	})
	require.NoError(t, err)
	require.Len(t, res, 7)
	assert.Equal(t, int64(1), res[0].ID)

	sub, err := graphop.Expand(ctx, g, []int64{1}, -1)
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 3)
	assert.Len(t, sub.Relationships, 4, "a cycle is visited once")
	assert.Equal(t, int64(1), sub.Nodes[0].ID, "roots come first")

	roots, err := graphop.Roots(ctx, g, dialect.Op{Kind: dialect.OpMatchNodes, IDs: []int64{3, 1, 8}})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, roots)

	_, err = graphop.Run(ctx, g, []dialect.Statement{
		{Op: dialect.Op{Kind: dialect.OpDeleteNode, Node: key("missing")}},
	})
	assert.ErrorContains(t, err, "unresolved reference")
}

func TestMatches(t *testing.T) {
	t.Parallel()
	props := map[string]any{"name": "alice", "age": int64(30), "admin": true, "nick": nil}
	tests := []struct {
		name string
		f    dialect.Filter
		want bool
	}{
		{name: "equals", f: dialect.Filter{Property: "age", Comparison: dialect.Equals, Value: 30}, want: true},
		{name: "not equals", f: dialect.Filter{Property: "name", Comparison: dialect.NotEquals, Value: "bob"}, want: true},
		{name: "less", f: dialect.Filter{Property: "age", Comparison: dialect.LessThan, Value: 30.5}, want: true},
		{name: "less equal", f: dialect.Filter{Property: "age", Comparison: dialect.LessThanEqual, Value: 29}},
		{name: "greater", f: dialect.Filter{Property: "name", Comparison: dialect.GreaterThan, Value: "aaron"}, want: true},
		{name: "greater equal", f: dialect.Filter{Property: "age", Comparison: dialect.GreaterThanEqual, Value: 30}, want: true},
		{name: "mixed kinds", f: dialect.Filter{Property: "age", Comparison: dialect.GreaterThan, Value: "1"}},
		{name: "starts with", f: dialect.Filter{Property: "name", Comparison: dialect.StartsWith, Value: "al"}, want: true},
		{name: "ends with", f: dialect.Filter{Property: "name", Comparison: dialect.EndsWith, Value: "ce"}, want: true},
		{name: "contains", f: dialect.Filter{Property: "name", Comparison: dialect.Contains, Value: "lic"}, want: true},
		{name: "contains number", f: dialect.Filter{Property: "age", Comparison: dialect.Contains, Value: "3"}},
		{name: "in", f: dialect.Filter{Property: "age", Comparison: dialect.In, Value: []int{10, 30}}, want: true},
		{name: "not in", f: dialect.Filter{Property: "name", Comparison: dialect.In, Value: []string{"bob"}}},
		{name: "in scalar", f: dialect.Filter{Property: "name", Comparison: dialect.In, Value: "alice"}},
		{name: "exists", f: dialect.Filter{Property: "admin", Comparison: dialect.Exists}, want: true},
		{name: "nil is missing", f: dialect.Filter{Property: "nick", Comparison: dialect.Exists}},
		{name: "is null", f: dialect.Filter{Property: "email", Comparison: dialect.IsNull}, want: true},
		{name: "missing fails", f: dialect.Filter{Property: "email", Comparison: dialect.NotEquals, Value: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, graphop.Matches(props, []dialect.Filter{tt.f}))
		})
	}
	assert.True(t, graphop.Matches(props, nil))
}

func TestRootsShaped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := memory.NewGraph()
	for _, p := range []map[string]any{
		{"name": "carol", "age": 41},
		{"name": "alice", "age": 30},
		{"name": "dave"},
		{"name": "bob", "age": 30},
		{"name": "erin", "age": 25},
	} {
		_, err := g.CreateNode(ctx, []string{"Person"}, p)
		require.NoError(t, err)
	}
	_, err := g.CreateNode(ctx, []string{"Movie"}, map[string]any{"name": "heat"})
	require.NoError(t, err)

	tests := []struct {
		name string
		op   dialect.Op
		want []int64
	}{
		{name: "label", op: dialect.Op{Label: "Person"}, want: []int64{1, 2, 3, 4, 5}},
		{name: "filter", op: dialect.Op{Label: "Person", Filters: []dialect.Filter{{Property: "age", Comparison: dialect.GreaterThanEqual, Value: 30}}}, want: []int64{1, 2, 4}},
		{
			name: "order",
			op:   dialect.Op{Label: "Person", Order: []dialect.Order{{Property: "age"}, {Property: "name", Descending: true}}},
			want: []int64{5, 4, 2, 1, 3},
		},
		{
			name: "order descending puts missing first",
			op:   dialect.Op{Label: "Person", Order: []dialect.Order{{Property: "age", Descending: true}}},
			want: []int64{3, 1, 2, 4, 5},
		},
		{
			name: "page",
			op:   dialect.Op{Label: "Person", Order: []dialect.Order{{Property: "name"}}, Skip: 1, Limit: 2},
			want: []int64{4, 1},
		},
		{name: "skip past end", op: dialect.Op{Label: "Person", Skip: 9}, want: []int64{}},
		{name: "limit only", op: dialect.Op{Label: "Person", Limit: 2}, want: []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := graphop.Roots(ctx, g, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, append([]int64{}, got...))
		})
	}

	res, err := graphop.Run(ctx, g, []dialect.Statement{{Op: dialect.Op{
		Kind: dialect.OpCountNodes, Label: "Person",
		Filters: []dialect.Filter{{Property: "age", Comparison: dialect.IsNull}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, res[0].Rows)
}

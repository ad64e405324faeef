package bolt

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ogm/dialect"
)

//nolint:staticcheck
func TestConvert(t *testing.T) {
	t.Parallel()
	alice := neo4j.Node{Id: 1, Labels: []string{"Person"}, Props: map[string]any{"name": "alice"}}
	bob := neo4j.Node{Id: 2, Labels: []string{"Person"}}
	knows := neo4j.Relationship{Id: 10, StartId: 1, EndId: 2, Type: "KNOWS", Props: map[string]any{"since": int64(2001)}}
	records := []*neo4j.Record{
		{Keys: []string{"p", "id"}, Values: []any{neo4j.Path{Nodes: []neo4j.Node{alice, bob}, Relationships: []neo4j.Relationship{knows}}, int64(1)}},
		{Keys: []string{"p", "id"}, Values: []any{neo4j.Path{Nodes: []neo4j.Node{alice}}, int64(1)}},
	}
	res := convert([]string{"p", "id"}, records)
	assert.Equal(t, int64(1), res.ID)
	assert.Len(t, res.Rows, 2)
	require.Len(t, res.Graph.Nodes, 2)
	assert.Equal(t, dialect.Node{ID: 1, Labels: []string{"Person"}, Properties: map[string]any{"name": "alice"}}, res.Graph.Nodes[0])
	assert.Equal(t, []dialect.Relationship{{ID: 10, Type: "KNOWS", Start: 1, End: 2, Properties: map[string]any{"since": int64(2001)}}}, res.Graph.Relationships)

	res = convert([]string{"n"}, []*neo4j.Record{{Keys: []string{"n"}, Values: []any{[]any{bob, "x"}}}})
	assert.Zero(t, res.ID)
	assert.Equal(t, []any{dialect.Node{ID: 2, Labels: []string{"Person"}}, "x"}, res.Rows[0][0])
	assert.Len(t, res.Graph.Nodes, 1)
}

func TestUnknownEndpoint(t *testing.T) {
	t.Parallel()
	d := &Driver{txs: make(map[string]*tx)}
	ctx := context.Background()
	_, err := d.Execute(ctx, dialect.Endpoint{URL: scheme + "nope"}, nil)
	assert.ErrorIs(t, err, dialect.ErrUnknownEndpoint)
	assert.ErrorIs(t, d.Commit(ctx, dialect.Endpoint{URL: "memory://tx/1"}), dialect.ErrUnknownEndpoint)
	assert.NoError(t, d.Rollback(ctx, dialect.Endpoint{URL: scheme + "x/commit"}))
	assert.Equal(t, dialect.Bolt, d.Dialect())
}

func TestOpen(t *testing.T) {
	t.Parallel()
	_, err := Open("unknown://localhost")
	assert.Error(t, err)
	d, err := Open("bolt://localhost:7687", WithBasicAuth("neo4j", "secret"), WithDatabase("graph"))
	require.NoError(t, err)
	assert.Equal(t, "graph", d.database)
	ep, err := d.Begin(context.Background(), dialect.TxOptions{AutoCommit: true})
	require.NoError(t, err)
	assert.True(t, ep.SingleShot())
	require.NoError(t, d.Close())
}

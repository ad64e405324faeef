package cypher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/ogm/cypher"
	"github.com/syssam/ogm/dialect"
)

func TestQuote(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "`Person`", cypher.Quote("Person"))
	assert.Equal(t, "`we``ird`", cypher.Quote("we`ird"))
}

func TestDepth(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "*0..2", cypher.Depth(2))
	assert.Equal(t, "*0..0", cypher.Depth(0))
	assert.Equal(t, "*0..", cypher.Depth(-1))
}

func TestMatchParams(t *testing.T) {
	t.Parallel()
	stmt := cypher.MatchLabel("Person", 0,
		cypher.Where(dialect.Filter{Property: "name", Comparison: dialect.In, Value: []string{"a", "b"}}),
		cypher.Page(0, 3),
	)
	assert.Equal(t, map[string]any{"f0": []string{"a", "b"}, "limit": 3}, stmt.Params)
	assert.Equal(t, 3, stmt.Op.Limit)
	assert.Len(t, stmt.Op.Filters, 1)
	assert.Nil(t, cypher.MatchLabel("Person", 0).Params)
}

func TestStatements(t *testing.T) {
	t.Parallel()
	props := map[string]any{"name": "a"}
	tests := []struct {
		name   string
		stmt   dialect.Statement
		cypher string
		kind   dialect.OpKind
	}{
		{
			name:   "create node",
			stmt:   cypher.CreateNode("n1", []string{"Person", "Employee"}, props),
			cypher: "CREATE (n:`Person`:`Employee` $props) RETURN id(n) AS id",
			kind:   dialect.OpCreateNode,
		},
		{
			name:   "update node",
			stmt:   cypher.UpdateNode(dialect.NodeKey{ID: 4}, []string{"Person"}, props),
			cypher: "MATCH (n) WHERE id(n) = $id SET n:`Person` SET n = $props",
			kind:   dialect.OpUpdateNode,
		},
		{
			name:   "delete node",
			stmt:   cypher.DeleteNode(4),
			cypher: "MATCH (n) WHERE id(n) = $id DETACH DELETE n",
			kind:   dialect.OpDeleteNode,
		},
		{
			name:   "delete label",
			stmt:   cypher.DeleteLabel("Movie"),
			cypher: "MATCH (n:`Movie`) DETACH DELETE n",
			kind:   dialect.OpDeleteLabel,
		},
		{
			name:   "purge",
			stmt:   cypher.Purge(),
			cypher: "MATCH (n) DETACH DELETE n",
			kind:   dialect.OpPurge,
		},
		{
			name:   "create relationship",
			stmt:   cypher.CreateRelationship("", dialect.NodeKey{Ref: "n1"}, dialect.NodeKey{ID: 2}, "KNOWS", nil, false),
			cypher: "MATCH (a), (b) WHERE id(a) = $start AND id(b) = $end CREATE (a)-[r:`KNOWS`]->(b) RETURN id(r) AS id",
			kind:   dialect.OpCreateRelationship,
		},
		{
			name:   "merge relationship with properties",
			stmt:   cypher.CreateRelationship("r1", dialect.NodeKey{ID: 1}, dialect.NodeKey{ID: 2}, "RATED", map[string]any{"stars": 5}, true),
			cypher: "MATCH (a), (b) WHERE id(a) = $start AND id(b) = $end MERGE (a)-[r:`RATED`]->(b) SET r = $props RETURN id(r) AS id",
			kind:   dialect.OpCreateRelationship,
		},
		{
			name:   "update relationship",
			stmt:   cypher.UpdateRelationship(9, map[string]any{"stars": 4}),
			cypher: "MATCH ()-[r]->() WHERE id(r) = $id SET r = $props",
			kind:   dialect.OpUpdateRelationship,
		},
		{
			name:   "delete relationship",
			stmt:   cypher.DeleteRelationship(dialect.NodeKey{ID: 1}, dialect.NodeKey{ID: 2}, "KNOWS"),
			cypher: "MATCH (a)-[r:`KNOWS`]->(b) WHERE id(a) = $start AND id(b) = $end DELETE r",
			kind:   dialect.OpDeleteRelationship,
		},
		{
			name:   "match ids",
			stmt:   cypher.MatchIDs([]int64{1, 2}, 1),
			cypher: "MATCH (n) WHERE id(n) IN $ids WITH n MATCH p=(n)-[*0..1]-(m) RETURN p, id(n) AS id",
			kind:   dialect.OpMatchNodes,
		},
		{
			name:   "match label",
			stmt:   cypher.MatchLabel("Movie", -1),
			cypher: "MATCH (n:`Movie`) WITH n MATCH p=(n)-[*0..]-(m) RETURN p, id(n) AS id",
			kind:   dialect.OpMatchNodes,
		},
		{
			name:   "match property",
			stmt:   cypher.MatchProperty("Person", "name", "a", 0),
			cypher: "MATCH (n:`Person`) WHERE n.`name` = $f0 WITH n MATCH p=(n)-[*0..0]-(m) RETURN p, id(n) AS id",
			kind:   dialect.OpMatchNodes,
		},
		{
			name: "match filtered",
			stmt: cypher.MatchLabel("Person", 1,
				cypher.Where(
					dialect.Filter{Property: "age", Comparison: dialect.GreaterThanEqual, Value: 18},
					dialect.Filter{Property: "email", Comparison: dialect.Exists},
				),
				cypher.OrderBy(dialect.Order{Property: "age", Descending: true}, dialect.Order{Property: "name"}),
				cypher.Page(10, 5),
			),
			cypher: "MATCH (n:`Person`) WHERE n.`age` >= $f0 AND n.`email` IS NOT NULL WITH n ORDER BY n.`age` DESC, n.`name` SKIP $skip LIMIT $limit MATCH p=(n)-[*0..1]-(m) RETURN p, id(n) AS id",
			kind:   dialect.OpMatchNodes,
		},
		{
			name:   "count filtered",
			stmt:   cypher.CountLabel("Person", dialect.Filter{Property: "name", Comparison: dialect.StartsWith, Value: "a"}),
			cypher: "MATCH (n:`Person`) WHERE n.`name` STARTS WITH $f0 RETURN count(n) AS count",
			kind:   dialect.OpCountNodes,
		},
		{
			name:   "count",
			stmt:   cypher.CountLabel("Person"),
			cypher: "MATCH (n:`Person`) RETURN count(n) AS count",
			kind:   dialect.OpCountNodes,
		},
		{
			name:   "raw",
			stmt:   cypher.Raw("RETURN 1", nil),
			cypher: "RETURN 1",
			kind:   dialect.OpCypher,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.cypher, tt.stmt.Cypher)
			assert.Equal(t, tt.kind, tt.stmt.Op.Kind)
		})
	}
}

func TestStatementRefs(t *testing.T) {
	t.Parallel()
	s := cypher.CreateRelationship("r1", dialect.NodeKey{Ref: "n1"}, dialect.NodeKey{Ref: "n2"}, "KNOWS", nil, false)
	assert.Equal(t, dialect.Ref("r1"), s.Returns)
	assert.Equal(t, dialect.Ref("n1"), s.Params["start"])
	assert.Equal(t, int64(2), cypher.DeleteRelationship(dialect.NodeKey{ID: 1}, dialect.NodeKey{ID: 2}, "X").Params["end"])
	assert.ElementsMatch(t, []dialect.Ref{"n1", "n2", "n1", "n2"}, s.Refs())

	u := cypher.UpdateNode(dialect.NodeKey{Ref: "n3"}, nil, nil)
	assert.Equal(t, "MATCH (n) WHERE id(n) = $id SET n = $props", u.Cypher)
	assert.Equal(t, dialect.Ref("n3"), u.Params["id"])
}

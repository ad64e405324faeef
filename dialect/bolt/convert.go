package bolt

import (
	"slices"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/syssam/ogm/dialect"
)

// convert turns the records of one statement into a result. Nodes,
// relationships and paths found anywhere in a row are added to the graph
// and replaced in the row by their dialect form.
func convert(keys []string, records []*neo4j.Record) dialect.Result {
	res := dialect.Result{Columns: keys}
	idcol := slices.Index(keys, "id")
	for i, rec := range records {
		var g dialect.Graph
		row := make([]any, len(rec.Values))
		for j, v := range rec.Values {
			row[j] = value(&g, v)
		}
		if i == 0 && idcol >= 0 && idcol < len(row) {
			if id, ok := row[idcol].(int64); ok {
				res.ID = id
			}
		}
		res.Rows = append(res.Rows, row)
		res.Graph.Merge(g)
	}
	return res
}

//nolint:staticcheck // identities are numeric to match id() in statements
func value(g *dialect.Graph, v any) any {
	switch v := v.(type) {
	case neo4j.Node:
		n := dialect.Node{ID: v.Id, Labels: slices.Clone(v.Labels), Properties: props(g, v.Props)}
		g.Merge(dialect.Graph{Nodes: []dialect.Node{n}})
		return n
	case neo4j.Relationship:
		r := dialect.Relationship{ID: v.Id, Type: v.Type, Start: v.StartId, End: v.EndId, Properties: props(g, v.Props)}
		g.Merge(dialect.Graph{Relationships: []dialect.Relationship{r}})
		return r
	case neo4j.Path:
		for _, n := range v.Nodes {
			value(g, n)
		}
		for _, r := range v.Relationships {
			value(g, r)
		}
		return nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = value(g, e)
		}
		return out
	case map[string]any:
		return props(g, v)
	}
	return v
}

func props(g *dialect.Graph, in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = value(g, v)
	}
	return out
}

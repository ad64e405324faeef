package rest

import (
	"encoding/json"
	"errors"
	"slices"
	"strconv"

	"github.com/syssam/ogm/dialect"
)

type request struct {
	Statements []statement `json:"statements"`
}

type statement struct {
	Statement          string         `json:"statement"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	ResultDataContents []string       `json:"resultDataContents,omitempty"`
}

// newRequest renders a segment, binding refs produced by earlier segments.
func newRequest(seg []dialect.Statement, ids map[dialect.Ref]int64) (*request, error) {
	req := &request{Statements: make([]statement, 0, len(seg))}
	for _, s := range seg {
		params, err := dialect.Bind(s.Params, ids)
		if err != nil {
			return nil, err
		}
		req.Statements = append(req.Statements, statement{
			Statement:          s.Cypher,
			Parameters:         params,
			ResultDataContents: []string{"row", "graph"},
		})
	}
	return req, nil
}

type response struct {
	Commit  string        `json:"commit,omitempty"`
	Results []result      `json:"results"`
	Errors  []ServerError `json:"errors"`
}

func (r *response) err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

type result struct {
	Columns []string `json:"columns"`
	Data    []datum  `json:"data"`
}

type datum struct {
	Row   []any `json:"row"`
	Graph struct {
		Nodes []struct {
			ID         string         `json:"id"`
			Labels     []string       `json:"labels"`
			Properties map[string]any `json:"properties"`
		} `json:"nodes"`
		Relationships []struct {
			ID         string         `json:"id"`
			Type       string         `json:"type"`
			StartNode  string         `json:"startNode"`
			EndNode    string         `json:"endNode"`
			Properties map[string]any `json:"properties"`
		} `json:"relationships"`
	} `json:"graph"`
}

// convert flattens the rows and graphs of a result. Graphs of all rows are
// merged; the identity comes from the "id" column of the first row.
func (r result) convert() dialect.Result {
	res := dialect.Result{Columns: r.Columns}
	idcol := slices.Index(r.Columns, "id")
	for i, d := range r.Data {
		row := make([]any, len(d.Row))
		for j, v := range d.Row {
			row[j] = normalize(v)
		}
		res.Rows = append(res.Rows, row)
		if i == 0 && idcol >= 0 && idcol < len(row) {
			if id, ok := row[idcol].(int64); ok {
				res.ID = id
			}
		}
		var g dialect.Graph
		for _, n := range d.Graph.Nodes {
			g.Nodes = append(g.Nodes, dialect.Node{
				ID:         parseID(n.ID),
				Labels:     n.Labels,
				Properties: properties(n.Properties),
			})
		}
		for _, rel := range d.Graph.Relationships {
			g.Relationships = append(g.Relationships, dialect.Relationship{
				ID:         parseID(rel.ID),
				Type:       rel.Type,
				Start:      parseID(rel.StartNode),
				End:        parseID(rel.EndNode),
				Properties: properties(rel.Properties),
			})
		}
		res.Graph.Merge(g)
	}
	return res
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func properties(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalize(v)
	}
	return out
}

// normalize turns decoded JSON numbers into int64 when integral and float64
// otherwise, recursively.
func normalize(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		return properties(v)
	}
	return v
}

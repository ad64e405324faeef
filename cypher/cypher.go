// Package cypher builds the Cypher statements sent by the mapper. Every
// builder returns a dialect.Statement carrying both the Cypher text and the
// structured operation, so transports that do not speak Cypher can run it.
package cypher

import (
	"strconv"
	"strings"

	"github.com/syssam/ogm/dialect"
)

// Quote returns a backtick-quoted label, type or property name.
func Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func labels(ls []string) string {
	var b strings.Builder
	for _, l := range ls {
		b.WriteByte(':')
		b.WriteString(Quote(l))
	}
	return b.String()
}

func keyParam(k dialect.NodeKey) any {
	if k.Ref != "" {
		return k.Ref
	}
	return k.ID
}

// Depth renders a variable-length range from zero to depth hops; a
// negative depth is unbounded.
func Depth(depth int) string {
	if depth < 0 {
		return "*0.."
	}
	return "*0.." + strconv.Itoa(depth)
}

// CreateNode creates a node and exposes its identity as ref.
func CreateNode(ref dialect.Ref, ls []string, props map[string]any) dialect.Statement {
	return dialect.Statement{
		Cypher:  "CREATE (n" + labels(ls) + " $props) RETURN id(n) AS id",
		Params:  map[string]any{"props": props},
		Returns: ref,
		Op:      dialect.Op{Kind: dialect.OpCreateNode, Labels: ls, Properties: props},
	}
}

// UpdateNode replaces the properties of a node and adds its labels.
func UpdateNode(key dialect.NodeKey, ls []string, props map[string]any) dialect.Statement {
	q := "MATCH (n) WHERE id(n) = $id"
	if len(ls) > 0 {
		q += " SET n" + labels(ls)
	}
	q += " SET n = $props"
	return dialect.Statement{
		Cypher: q,
		Params: map[string]any{"id": keyParam(key), "props": props},
		Op:     dialect.Op{Kind: dialect.OpUpdateNode, Node: key, Labels: ls, Properties: props},
	}
}

// DeleteNode deletes a node and every relationship touching it.
func DeleteNode(id int64) dialect.Statement {
	return dialect.Statement{
		Cypher: "MATCH (n) WHERE id(n) = $id DETACH DELETE n",
		Params: map[string]any{"id": id},
		Op:     dialect.Op{Kind: dialect.OpDeleteNode, Node: dialect.NodeKey{ID: id}},
	}
}

// DeleteLabel deletes every node carrying label.
func DeleteLabel(label string) dialect.Statement {
	return dialect.Statement{
		Cypher: "MATCH (n" + labels([]string{label}) + ") DETACH DELETE n",
		Op:     dialect.Op{Kind: dialect.OpDeleteLabel, Label: label},
	}
}

// Purge deletes the whole graph.
func Purge() dialect.Statement {
	return dialect.Statement{
		Cypher: "MATCH (n) DETACH DELETE n",
		Op:     dialect.Op{Kind: dialect.OpPurge},
	}
}

// CreateRelationship creates a relationship between two nodes. With merge
// set, an existing relationship of the same type between them is reused.
// A non-empty ref exposes the relationship identity.
func CreateRelationship(ref dialect.Ref, start, end dialect.NodeKey, typ string, props map[string]any, merge bool) dialect.Statement {
	verb := "CREATE"
	if merge {
		verb = "MERGE"
	}
	q := "MATCH (a), (b) WHERE id(a) = $start AND id(b) = $end " +
		verb + " (a)-[r:" + Quote(typ) + "]->(b)"
	params := map[string]any{"start": keyParam(start), "end": keyParam(end)}
	if len(props) > 0 {
		q += " SET r = $props"
		params["props"] = props
	}
	q += " RETURN id(r) AS id"
	return dialect.Statement{
		Cypher:  q,
		Params:  params,
		Returns: ref,
		Op: dialect.Op{
			Kind: dialect.OpCreateRelationship, Start: start, End: end,
			Type: typ, Properties: props, Merge: merge,
		},
	}
}

// UpdateRelationship replaces the properties of a relationship.
func UpdateRelationship(id int64, props map[string]any) dialect.Statement {
	return dialect.Statement{
		Cypher: "MATCH ()-[r]->() WHERE id(r) = $id SET r = $props",
		Params: map[string]any{"id": id, "props": props},
		Op:     dialect.Op{Kind: dialect.OpUpdateRelationship, Relationship: id, Properties: props},
	}
}

// DeleteRelationship deletes the relationships of type typ from start to
// end.
func DeleteRelationship(start, end dialect.NodeKey, typ string) dialect.Statement {
	return dialect.Statement{
		Cypher: "MATCH (a)-[r:" + Quote(typ) + "]->(b) WHERE id(a) = $start AND id(b) = $end DELETE r",
		Params: map[string]any{"start": keyParam(start), "end": keyParam(end)},
		Op:     dialect.Op{Kind: dialect.OpDeleteRelationship, Start: start, End: end, Type: typ},
	}
}

// tail expands matched roots n into paths of at most depth hops.
func tail(depth int) string {
	return " WITH n MATCH p=(n)-[" + Depth(depth) + "]-(m) RETURN p, id(n) AS id"
}

// MatchIDs loads the nodes with the given identities and everything within
// depth hops of them.
func MatchIDs(ids []int64, depth int) dialect.Statement {
	return dialect.Statement{
		Cypher: "MATCH (n) WHERE id(n) IN $ids" + tail(depth),
		Params: map[string]any{"ids": ids},
		Op:     dialect.Op{Kind: dialect.OpMatchNodes, IDs: ids, Depth: depth},
	}
}

// MatchOption narrows or shapes the roots of MatchLabel.
type MatchOption func(*dialect.Op)

// Where keeps the roots passing every filter.
func Where(filters ...dialect.Filter) MatchOption {
	return func(op *dialect.Op) {
		op.Filters = append(op.Filters, filters...)
	}
}

// OrderBy sorts the roots.
func OrderBy(orders ...dialect.Order) MatchOption {
	return func(op *dialect.Op) {
		op.Order = append(op.Order, orders...)
	}
}

// Page skips the first skip roots and keeps at most limit of the rest. A
// zero limit keeps all of them.
func Page(skip, limit int) MatchOption {
	return func(op *dialect.Op) {
		op.Skip, op.Limit = skip, limit
	}
}

// MatchLabel loads the nodes carrying label and everything within depth
// hops of them.
func MatchLabel(label string, depth int, opts ...MatchOption) dialect.Statement {
	op := dialect.Op{Kind: dialect.OpMatchNodes, Label: label, Depth: depth}
	for _, opt := range opts {
		opt(&op)
	}
	params := make(map[string]any)
	var b strings.Builder
	b.WriteString("MATCH (n" + labels([]string{label}) + ")")
	b.WriteString(where(op.Filters, params))
	b.WriteString(" WITH n")
	for i, o := range op.Order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString("n." + Quote(o.Property))
		if o.Descending {
			b.WriteString(" DESC")
		}
	}
	if op.Skip > 0 {
		b.WriteString(" SKIP $skip")
		params["skip"] = op.Skip
	}
	if op.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = op.Limit
	}
	b.WriteString(" MATCH p=(n)-[" + Depth(depth) + "]-(m) RETURN p, id(n) AS id")
	if len(params) == 0 {
		params = nil
	}
	return dialect.Statement{Cypher: b.String(), Params: params, Op: op}
}

// MatchProperty loads the nodes carrying label whose property equals value,
// and everything within depth hops of them.
func MatchProperty(label, property string, value any, depth int) dialect.Statement {
	return MatchLabel(label, depth, Where(dialect.Filter{Property: property, Comparison: dialect.Equals, Value: value}))
}

// CountLabel counts the nodes carrying label that pass every filter.
func CountLabel(label string, filters ...dialect.Filter) dialect.Statement {
	params := make(map[string]any)
	q := "MATCH (n" + labels([]string{label}) + ")" + where(filters, params) + " RETURN count(n) AS count"
	if len(params) == 0 {
		params = nil
	}
	return dialect.Statement{
		Cypher: q,
		Params: params,
		Op:     dialect.Op{Kind: dialect.OpCountNodes, Label: label, Filters: filters},
	}
}

// where renders filters as a WHERE clause, adding their values to params
// as $f0, $f1 and so on.
func where(filters []dialect.Filter, params map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	conds := make([]string, len(filters))
	for i, f := range filters {
		cond := "n." + Quote(f.Property) + " " + f.Comparison.String()
		if !f.Comparison.Unary() {
			name := "f" + strconv.Itoa(i)
			cond += " $" + name
			params[name] = f.Value
		}
		conds[i] = cond
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// Raw wraps a caller-supplied Cypher statement.
func Raw(query string, params map[string]any) dialect.Statement {
	return dialect.Statement{Cypher: query, Params: params, Op: dialect.Op{Kind: dialect.OpCypher}}
}

package dialect

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Dialect names.
const (
	Memory   = "memory"
	HTTP     = "http"
	Bolt     = "bolt"
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// ErrUnsupported is returned by transports that cannot run a statement, for
// example raw Cypher on a transport that only interprets operations.
var ErrUnsupported = errors.New("dialect: statement not supported by transport")

// ErrUnknownEndpoint is returned when an endpoint does not name an open
// transaction of the transport.
var ErrUnknownEndpoint = errors.New("dialect: unknown transaction endpoint")

// Driver is the transport collaborator. It opens remote transactions,
// executes statement batches inside them and finishes them. Implementations
// must be safe for concurrent use; each endpoint is used by one goroutine at
// a time.
type Driver interface {
	// Begin opens a remote transaction and returns its endpoint.
	Begin(ctx context.Context, opts TxOptions) (Endpoint, error)
	// Execute runs a batch inside the transaction and returns one result per
	// statement. On a single-shot endpoint the batch is committed on success.
	Execute(ctx context.Context, ep Endpoint, stmts []Statement) ([]Result, error)
	// Commit commits the transaction. It is a no-op on single-shot endpoints.
	Commit(ctx context.Context, ep Endpoint) error
	// Rollback discards the transaction. It is a no-op on single-shot endpoints.
	Rollback(ctx context.Context, ep Endpoint) error
	// Dialect returns the dialect name.
	Dialect() string
	// Close releases the transport.
	Close() error
}

// TxOptions holds the options of a new transaction.
type TxOptions struct {
	// AutoCommit opens a single-shot endpoint.
	AutoCommit bool
	// ReadOnly hints that the transaction only reads.
	ReadOnly bool
}

// Endpoint is the opaque locator of a remote transaction.
type Endpoint struct {
	URL        string
	AutoCommit bool
}

// SingleShot reports whether every Execute on the endpoint commits
// immediately: it was opened with AutoCommit or its URL is a commit URL.
func (e Endpoint) SingleShot() bool {
	return e.AutoCommit || strings.HasSuffix(e.URL, "/commit")
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.URL
}

// Ref names the identity produced by an earlier statement of the same batch.
// A Ref used as a parameter value, or in a NodeKey, is replaced by that
// identity before the statement runs.
type Ref string

// NodeKey addresses a node by identity, or by the Ref of the statement that
// creates it.
type NodeKey struct {
	ID  int64
	Ref Ref
}

// String implements fmt.Stringer.
func (k NodeKey) String() string {
	if k.Ref != "" {
		return string(k.Ref)
	}
	return fmt.Sprintf("#%d", k.ID)
}

// Resolve returns the identity of the key, looking refs up in ids.
func (k NodeKey) Resolve(ids map[Ref]int64) (int64, error) {
	if k.Ref == "" {
		return k.ID, nil
	}
	id, ok := ids[k.Ref]
	if !ok {
		return 0, fmt.Errorf("dialect: unresolved reference %q", k.Ref)
	}
	return id, nil
}

// OpKind enumerates the structured operations.
type OpKind uint8

// Operation kinds.
const (
	OpCypher OpKind = iota
	OpCreateNode
	OpUpdateNode
	OpDeleteNode
	OpDeleteLabel
	OpCreateRelationship
	OpUpdateRelationship
	OpDeleteRelationship
	OpMatchNodes
	OpCountNodes
	OpPurge
)

var opNames = [...]string{
	OpCypher:             "cypher",
	OpCreateNode:         "create node",
	OpUpdateNode:         "update node",
	OpDeleteNode:         "delete node",
	OpDeleteLabel:        "delete label",
	OpCreateRelationship: "create relationship",
	OpUpdateRelationship: "update relationship",
	OpDeleteRelationship: "delete relationship",
	OpMatchNodes:         "match nodes",
	OpCountNodes:         "count nodes",
	OpPurge:              "purge",
}

// String returns the operation name.
func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("op(%d)", k)
}

// Op is the structured form of a statement, for transports that interpret
// operations instead of Cypher text. Which fields are used depends on Kind.
type Op struct {
	Kind OpKind
	// Node addresses the node of update and delete node operations.
	Node   NodeKey
	Labels []string
	// Properties are the node or relationship properties to write. Updates
	// replace the whole property map.
	Properties map[string]any
	// Start, End and Type describe a relationship.
	Start NodeKey
	End   NodeKey
	Type  string
	// Merge makes relationship creation a no-op when an edge of the same
	// type already joins the nodes.
	Merge bool
	// Relationship addresses an existing relationship by identity.
	Relationship int64
	// IDs and Label select the root nodes of match and count operations:
	// by identity, or by label narrowed by Filters, all of which must hold.
	IDs     []int64
	Label   string
	Filters []Filter
	// Order, Skip and Limit shape the roots of a label match. A zero Limit
	// is unlimited.
	Order []Order
	Skip  int
	Limit int
	// Depth is the traversal depth of a match; -1 is unlimited.
	Depth int
}

// Comparison is the operator of a property Filter.
type Comparison uint8

// Property comparisons.
const (
	Equals Comparison = iota
	NotEquals
	LessThan
	LessThanEqual
	GreaterThan
	GreaterThanEqual
	StartsWith
	EndsWith
	Contains
	In
	Exists
	IsNull
)

var comparisonNames = [...]string{
	Equals:           "=",
	NotEquals:        "<>",
	LessThan:         "<",
	LessThanEqual:    "<=",
	GreaterThan:      ">",
	GreaterThanEqual: ">=",
	StartsWith:       "STARTS WITH",
	EndsWith:         "ENDS WITH",
	Contains:         "CONTAINS",
	In:               "IN",
	Exists:           "IS NOT NULL",
	IsNull:           "IS NULL",
}

// String returns the Cypher operator.
func (c Comparison) String() string {
	if int(c) < len(comparisonNames) {
		return comparisonNames[c]
	}
	return fmt.Sprintf("comparison(%d)", c)
}

// Unary reports whether the comparison takes no value.
func (c Comparison) Unary() bool { return c == Exists || c == IsNull }

// Filter compares a node property with a value. Exists and IsNull ignore
// Value; In expects a slice.
type Filter struct {
	Property   string
	Comparison Comparison
	Value      any
}

// Order sorts match roots by a node property. Nodes without the property
// sort last in ascending order.
type Order struct {
	Property   string
	Descending bool
}

// Statement is one unit of a batch.
type Statement struct {
	Cypher string
	Params map[string]any
	// Returns names the identity produced by the statement, if any. Later
	// statements of the batch refer to it through a Ref of the same name.
	Returns Ref
	Op      Op
}

// String implements fmt.Stringer.
func (s Statement) String() string {
	if s.Cypher != "" {
		return s.Cypher
	}
	return s.Op.Kind.String()
}

// Refs returns the refs the statement depends on.
func (s Statement) Refs() []Ref {
	var refs []Ref
	add := func(r Ref) {
		if r != "" {
			refs = append(refs, r)
		}
	}
	add(s.Op.Node.Ref)
	add(s.Op.Start.Ref)
	add(s.Op.End.Ref)
	for _, v := range s.Params {
		if r, ok := v.(Ref); ok {
			add(r)
		}
	}
	return refs
}

// Bind returns a copy of the parameters with every Ref replaced by the
// identity in ids.
func Bind(params map[string]any, ids map[Ref]int64) (map[string]any, error) {
	if len(params) == 0 {
		return params, nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if r, ok := v.(Ref); ok {
			id, err := NodeKey{Ref: r}.Resolve(ids)
			if err != nil {
				return nil, err
			}
			v = id
		}
		out[k] = v
	}
	return out, nil
}

// Segments splits a batch into consecutive runs in which no statement
// depends on a ref produced inside the same run. Transports that cannot
// pass identities between statements of one request send one run at a time.
func Segments(stmts []Statement) [][]Statement {
	var (
		out      [][]Statement
		start    int
		produced = make(map[Ref]bool)
	)
	for i, s := range stmts {
		for _, r := range s.Refs() {
			if produced[r] {
				out = append(out, stmts[start:i])
				start = i
				clear(produced)
				break
			}
		}
		if s.Returns != "" {
			produced[s.Returns] = true
		}
	}
	if start < len(stmts) {
		out = append(out, stmts[start:])
	}
	return out
}

// Result is the outcome of one statement.
type Result struct {
	Columns []string
	Rows    [][]any
	// Graph holds the nodes and relationships returned by the statement.
	Graph Graph
	// ID is the identity produced by a create statement.
	ID int64
}

// Node is a node as returned by the graph store.
type Node struct {
	ID         int64
	Labels     []string
	Properties map[string]any
}

// Relationship is a relationship as returned by the graph store.
type Relationship struct {
	ID         int64
	Type       string
	Start      int64
	End        int64
	Properties map[string]any
}

// Graph is a set of nodes and relationships.
type Graph struct {
	Nodes         []Node
	Relationships []Relationship
}

// Empty reports whether the graph holds nothing.
func (g Graph) Empty() bool {
	return len(g.Nodes) == 0 && len(g.Relationships) == 0
}

// Merge adds the nodes and relationships of o that g does not hold yet.
func (g *Graph) Merge(o Graph) {
	nodes := make(map[int64]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = true
	}
	for _, n := range o.Nodes {
		if !nodes[n.ID] {
			nodes[n.ID] = true
			g.Nodes = append(g.Nodes, n)
		}
	}
	rels := make(map[int64]bool, len(g.Relationships))
	for _, r := range g.Relationships {
		rels[r.ID] = true
	}
	for _, r := range o.Relationships {
		if !rels[r.ID] {
			rels[r.ID] = true
			g.Relationships = append(g.Relationships, r)
		}
	}
}

// Node returns the node with identity id.
func (g Graph) Node(id int64) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

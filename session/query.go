package session

import (
	"fmt"
	"slices"

	"github.com/syssam/ogm/cypher"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/metadata"
)

type (
	// Filter restricts the nodes LoadByType and Count match. Property is a
	// graph property name or the name of the mapped member holding it.
	Filter = dialect.Filter
	// Order sorts the nodes LoadByType returns.
	Order = dialect.Order
	// Comparison is the operator of a Filter.
	Comparison = dialect.Comparison
)

// Filter comparisons.
const (
	Equals           = dialect.Equals
	NotEquals        = dialect.NotEquals
	LessThan         = dialect.LessThan
	LessThanEqual    = dialect.LessThanEqual
	GreaterThan      = dialect.GreaterThan
	GreaterThanEqual = dialect.GreaterThanEqual
	StartsWith       = dialect.StartsWith
	EndsWith         = dialect.EndsWith
	Contains         = dialect.Contains
	In               = dialect.In
	Exists           = dialect.Exists
	IsNull           = dialect.IsNull
)

// Asc sorts by property in ascending order.
func Asc(property string) Order { return Order{Property: property} }

// Desc sorts by property in descending order.
func Desc(property string) Order { return Order{Property: property, Descending: true} }

// LoadOption configures LoadByType.
type LoadOption func(*loadOptions)

type loadOptions struct {
	depth   int
	filters []Filter
	order   []Order
	skip    int
	limit   int
}

// WithDepth sets how many hops around each matched node are loaded.
func WithDepth(depth int) LoadOption {
	return func(o *loadOptions) { o.depth = depth }
}

// Where keeps the nodes matching every filter.
func Where(filters ...Filter) LoadOption {
	return func(o *loadOptions) { o.filters = append(o.filters, filters...) }
}

// OrderBy sorts the matched nodes. Nodes missing a sort property come last
// in ascending order.
func OrderBy(orders ...Order) LoadOption {
	return func(o *loadOptions) { o.order = append(o.order, orders...) }
}

// Paged returns page number page (zero based) of size nodes.
func Paged(page, size int) LoadOption {
	return func(o *loadOptions) {
		o.skip, o.limit = max(page, 0)*size, size
	}
}

// Window skips the first skip nodes and returns at most limit of the rest.
// A zero limit returns every remaining node.
func Window(skip, limit int) LoadOption {
	return func(o *loadOptions) { o.skip, o.limit = skip, limit }
}

// match builds the label match of cd from opts.
func (o *loadOptions) match(cd *metadata.ClassDescriptor) (dialect.Statement, error) {
	filters, err := resolveFilters(cd, o.filters)
	if err != nil {
		return dialect.Statement{}, err
	}
	order := make([]Order, len(o.order))
	for i, by := range o.order {
		if by.Property, err = resolveProperty(cd, by.Property); err != nil {
			return dialect.Statement{}, err
		}
		order[i] = by
	}
	if o.skip < 0 || o.limit < 0 {
		return dialect.Statement{}, fmt.Errorf("session: negative page window %d, %d", o.skip, o.limit)
	}
	return cypher.MatchLabel(cd.Label(), o.depth,
		cypher.Where(filters...), cypher.OrderBy(order...), cypher.Page(o.skip, o.limit),
	), nil
}

func resolveFilters(cd *metadata.ClassDescriptor, filters []Filter) ([]Filter, error) {
	out := make([]Filter, len(filters))
	for i, f := range filters {
		var err error
		if f.Property, err = resolveProperty(cd, f.Property); err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// resolveProperty maps a property or member name of cd to its graph
// property name.
func resolveProperty(cd *metadata.ClassDescriptor, name string) (string, error) {
	props := cd.Properties()
	if slices.Contains(props, name) {
		return name, nil
	}
	for _, f := range cd.FieldsWith(metadata.RoleScalar) {
		if f.Name == name || f.Key == name {
			return f.Property, nil
		}
	}
	for _, m := range cd.MethodsWith(metadata.RoleScalar, metadata.Getter) {
		if m.Name == name || m.Key == name {
			return m.Property, nil
		}
	}
	return "", fmt.Errorf("session: %s has no property %q", cd.Name, name)
}

package metadata

import (
	"reflect"
	"strings"

	"github.com/syssam/ogm"
)

// Role classifies what a member contributes to the graph.
type Role uint8

// Member roles.
const (
	RoleTransient Role = iota
	RoleIdentity
	RoleScalar
	RoleRelationship
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleIdentity:
		return "identity"
	case RoleScalar:
		return "property"
	case RoleRelationship:
		return "relationship"
	default:
		return "transient"
	}
}

// Endpoint marks a relationship entity member that holds one of its nodes.
type Endpoint uint8

// Relationship entity endpoints.
const (
	EndpointNone Endpoint = iota
	EndpointStart
	EndpointEnd
)

// ClassKind tells node entities and relationship entities apart.
type ClassKind uint8

// Class kinds.
const (
	KindNode ClassKind = iota
	KindRelationship
)

// MethodKind tells getters and setters apart.
type MethodKind uint8

// Method kinds.
const (
	Getter MethodKind = iota
	Setter
)

// String returns the method kind name.
func (k MethodKind) String() string {
	if k == Setter {
		return "setter"
	}
	return "getter"
}

// Member holds the classification shared by fields and methods.
type Member struct {
	// Name is the Go field or method name.
	Name string
	// Key is the logical member name: the field name, or the method name
	// without its Get/Set prefix.
	Key         string
	Type        TypeSignature
	Role        Role
	Annotations AnnotationSet
	// Property is the graph property name for identity and scalar members.
	Property string
	// Relationship is the relationship type for relationship members.
	Relationship string
	Direction    ogm.Direction
	Endpoint     Endpoint
	// Converter is resolved from the annotation or inferred from the type.
	Converter Converter
	// Target is the qualified class name of the related entity, resolved
	// once every class of the index is known.
	Target string
}

// Annotated reports whether the member explicitly declares role r.
func (m *Member) Annotated(r Role) bool {
	return m.Annotations.Marks(r)
}

// FieldDescriptor describes a struct field.
type FieldDescriptor struct {
	Member
	// Index is the reflect index path, through embedded structs.
	Index []int
}

// MethodDescriptor describes a getter or setter method.
type MethodDescriptor struct {
	Member
	Kind MethodKind
	// ReturnsError is set for setters declared as SetX(v) error.
	ReturnsError bool
}

// ClassDescriptor is the immutable metadata of one mapped type.
type ClassDescriptor struct {
	// Name is the qualified name: package path, a dot, and the type name.
	Name string
	// Type is the struct type (never a pointer).
	Type reflect.Type
	Kind ClassKind
	// Labels lists the node labels, primary label first, followed by the
	// labels of embedded entity classes.
	Labels []string
	// RelationshipType is the graph type of a relationship entity.
	RelationshipType string
	Fields           []*FieldDescriptor
	Methods          []*MethodDescriptor
	// Embeds names the registered classes embedded in this one.
	Embeds []string
}

// Label returns the primary label.
func (c *ClassDescriptor) Label() string {
	if len(c.Labels) == 0 {
		return c.Type.Name()
	}
	return c.Labels[0]
}

// IsRelationshipEntity reports whether the class is a relationship payload.
func (c *ClassDescriptor) IsRelationshipEntity() bool {
	return c.Kind == KindRelationship
}

// Field returns the field with the given Go name.
func (c *ClassDescriptor) Field(name string) *FieldDescriptor {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Method returns the method with the given Go name.
func (c *ClassDescriptor) Method(name string) *MethodDescriptor {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FieldsWith returns the fields classified with role r, in declaration order.
func (c *ClassDescriptor) FieldsWith(r Role) []*FieldDescriptor {
	var fields []*FieldDescriptor
	for _, f := range c.Fields {
		if f.Role == r {
			fields = append(fields, f)
		}
	}
	return fields
}

// MethodsWith returns the methods of the given kind classified with role r.
func (c *ClassDescriptor) MethodsWith(r Role, kind MethodKind) []*MethodDescriptor {
	var methods []*MethodDescriptor
	for _, m := range c.Methods {
		if m.Role == r && m.Kind == kind {
			methods = append(methods, m)
		}
	}
	return methods
}

// Identity returns the identity field, or nil.
func (c *ClassDescriptor) Identity() *FieldDescriptor {
	for _, f := range c.Fields {
		if f.Role == RoleIdentity {
			return f
		}
	}
	return nil
}

// EndpointField returns the field holding the given endpoint of a
// relationship entity, or nil.
func (c *ClassDescriptor) EndpointField(e Endpoint) *FieldDescriptor {
	for _, f := range c.Fields {
		if f.Endpoint == e {
			return f
		}
	}
	return nil
}

// Properties returns the scalar members that are persisted as properties,
// keyed by property name. Fields win over getters for the same property.
func (c *ClassDescriptor) Properties() []string {
	seen := make(map[string]bool)
	var names []string
	for _, f := range c.FieldsWith(RoleScalar) {
		if !seen[f.Property] {
			seen[f.Property] = true
			names = append(names, f.Property)
		}
	}
	for _, m := range c.MethodsWith(RoleScalar, Getter) {
		if !seen[m.Property] {
			seen[m.Property] = true
			names = append(names, m.Property)
		}
	}
	return names
}

// RelationshipKeys returns the distinct (type, direction) pairs declared by
// relationship members, fields first.
func (c *ClassDescriptor) RelationshipKeys() []RelationshipKey {
	var keys []RelationshipKey
	add := func(m *Member) {
		if m.Endpoint != EndpointNone {
			return
		}
		k := RelationshipKey{Type: m.Relationship, Direction: m.Direction}
		for _, e := range keys {
			if e == k {
				return
			}
		}
		keys = append(keys, k)
	}
	for _, f := range c.FieldsWith(RoleRelationship) {
		add(&f.Member)
	}
	for _, m := range c.MethodsWith(RoleRelationship, Getter) {
		add(&m.Member)
	}
	return keys
}

// HasLabel reports whether the class carries label l.
func (c *ClassDescriptor) HasLabel(l string) bool {
	for _, label := range c.Labels {
		if strings.EqualFold(label, l) {
			return true
		}
	}
	return false
}

// RelationshipKey identifies a relationship member by type and direction.
type RelationshipKey struct {
	Type      string
	Direction ogm.Direction
}

package entityaccess

import (
	"reflect"

	"github.com/syssam/ogm/metadata"
)

// PropertyAccess pairs a graph property name with its accessor.
type PropertyAccess struct {
	Name     string
	Accessor *Accessor
}

// Identity reads the graph identity of entity. The second result is false
// for entities that were never saved.
func (s *Strategy) Identity(cd *metadata.ClassDescriptor, entity reflect.Value) (int64, bool, error) {
	a, err := s.ResolveReader(cd, Identity)
	if err != nil {
		return 0, false, err
	}
	v, err := a.Value(entity)
	if err != nil {
		return 0, false, err
	}
	id, ok := metadata.IdentityOf(v)
	return id, ok, nil
}

// SetIdentity writes the graph identity of entity.
func (s *Strategy) SetIdentity(cd *metadata.ClassDescriptor, entity reflect.Value, id int64) error {
	a, err := s.ResolveWriter(cd, Identity)
	if err != nil {
		return err
	}
	return a.Set(entity, id)
}

// ResetIdentity marks entity as unsaved again.
func (s *Strategy) ResetIdentity(cd *metadata.ClassDescriptor, entity reflect.Value) error {
	a, err := s.ResolveWriter(cd, Identity)
	if err != nil {
		return err
	}
	return a.Set(entity, reflect.Zero(a.Type()))
}

// PropertyReaders returns a reader for every persisted property of cd, in
// property order.
func (s *Strategy) PropertyReaders(cd *metadata.ClassDescriptor) ([]PropertyAccess, error) {
	return s.properties(cd, false)
}

// PropertyWriters returns a writer for every persisted property of cd that
// has one.
func (s *Strategy) PropertyWriters(cd *metadata.ClassDescriptor) ([]PropertyAccess, error) {
	return s.properties(cd, true)
}

func (s *Strategy) properties(cd *metadata.ClassDescriptor, write bool) ([]PropertyAccess, error) {
	names := cd.Properties()
	out := make([]PropertyAccess, 0, len(names))
	for _, name := range names {
		a, err := s.resolve(cd, Property(name), write)
		switch {
		case err == nil:
			out = append(out, PropertyAccess{Name: name, Accessor: a})
		case write:
			// Getter-only properties are read but never hydrated.
		default:
			return nil, err
		}
	}
	return out, nil
}

// RelationalReaders returns one reader per relationship type and direction
// declared by cd.
func (s *Strategy) RelationalReaders(cd *metadata.ClassDescriptor) ([]*Accessor, error) {
	keys := cd.RelationshipKeys()
	out := make([]*Accessor, 0, len(keys))
	for _, k := range keys {
		a, err := s.ResolveReader(cd, Relationship(k.Type, k.Direction, nil))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// EndpointReader returns the reader of a relationship entity endpoint.
func (s *Strategy) EndpointReader(cd *metadata.ClassDescriptor, e metadata.Endpoint) (*Accessor, error) {
	return s.ResolveReader(cd, EndpointOf(e))
}

// EndpointWriter returns the writer of a relationship entity endpoint.
func (s *Strategy) EndpointWriter(cd *metadata.ClassDescriptor, e metadata.Endpoint) (*Accessor, error) {
	return s.ResolveWriter(cd, EndpointOf(e))
}

package entityaccess

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/metadata"
)

// Target names the semantic role an accessor must serve.
type Target struct {
	Role metadata.Role
	// Name is the property name of a scalar target or the relationship type
	// of a relationship target. It is ignored for identity targets.
	Name      string
	Direction ogm.Direction
	// Elem optionally names the related entity type of a relationship
	// target. It breaks ties between members of different element types and
	// lets an unannotated member be found by type alone.
	Elem reflect.Type
	// Endpoint selects the start or end member of a relationship entity.
	Endpoint metadata.Endpoint
}

// Identity is the identity target.
var Identity = Target{Role: metadata.RoleIdentity}

// Property returns the target of a scalar property.
func Property(name string) Target {
	return Target{Role: metadata.RoleScalar, Name: name}
}

// Relationship returns the target of a relationship member.
func Relationship(typ string, dir ogm.Direction, elem reflect.Type) Target {
	if elem != nil {
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
	}
	return Target{Role: metadata.RoleRelationship, Name: typ, Direction: dir, Elem: elem}
}

// EndpointOf returns the target of a relationship entity endpoint.
func EndpointOf(e metadata.Endpoint) Target {
	return Target{Role: metadata.RoleRelationship, Endpoint: e}
}

type cacheKey struct {
	class  string
	target Target
	write  bool
}

// Strategy resolves accessors with a fixed precedence:
//
//  1. a method annotated for the target,
//  2. a field annotated for the target,
//  3. an unannotated method matching the target,
//  4. an unannotated field matching the target.
//
// Getters serve readers and setters serve writers. Within one rank, a
// member whose element type equals the target's wins, then declaration
// order. Resolutions are cached per class and target.
type Strategy struct {
	cache sync.Map // cacheKey -> *Accessor
	group singleflight.Group
}

// New returns a strategy with an empty cache.
func New() *Strategy {
	return &Strategy{}
}

// ResolveReader returns the accessor reading t from instances of cd.
func (s *Strategy) ResolveReader(cd *metadata.ClassDescriptor, t Target) (*Accessor, error) {
	return s.resolve(cd, t, false)
}

// ResolveWriter returns the accessor writing t to instances of cd.
func (s *Strategy) ResolveWriter(cd *metadata.ClassDescriptor, t Target) (*Accessor, error) {
	return s.resolve(cd, t, true)
}

func (s *Strategy) resolve(cd *metadata.ClassDescriptor, t Target, write bool) (*Accessor, error) {
	key := cacheKey{class: cd.Name, target: t, write: write}
	if a, ok := s.cache.Load(key); ok {
		return a.(*Accessor), nil
	}
	v, err, _ := s.group.Do(flightKey(key), func() (any, error) {
		if a, ok := s.cache.Load(key); ok {
			return a, nil
		}
		a := lookup(cd, t, write)
		if a == nil {
			return nil, &ogm.NoAccessorError{Class: cd.Name, Role: roleName(t), Name: t.Name, Write: write}
		}
		s.cache.Store(key, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Accessor), nil
}

func flightKey(k cacheKey) string {
	elem := ""
	if k.target.Elem != nil {
		elem = metadata.QualifiedName(k.target.Elem)
	}
	return fmt.Sprintf("%s|%d|%s|%d|%s|%d|%t", k.class, k.target.Role, k.target.Name,
		k.target.Direction, elem, k.target.Endpoint, k.write)
}

func roleName(t Target) string {
	switch {
	case t.Endpoint == metadata.EndpointStart:
		return "start node"
	case t.Endpoint == metadata.EndpointEnd:
		return "end node"
	}
	return t.Role.String()
}

// lookup walks the precedence ranks and returns the first match.
func lookup(cd *metadata.ClassDescriptor, t Target, write bool) *Accessor {
	kind := metadata.Getter
	if write {
		kind = metadata.Setter
	}
	var methods []*metadata.MethodDescriptor
	for _, m := range cd.Methods {
		if m.Kind == kind && m.Role == t.Role {
			methods = append(methods, m)
		}
	}
	fields := cd.FieldsWith(t.Role)

	annotatedMethods, plainMethods := splitMethods(methods, t.Role)
	annotatedFields, plainFields := splitFields(fields, t.Role)

	if m := pickMethod(annotatedMethods, t, false); m != nil {
		return methodAccessor(cd, m)
	}
	if f := pickField(annotatedFields, t, false); f != nil {
		return fieldAccessor(cd, f)
	}
	if m := pickMethod(plainMethods, t, true); m != nil {
		return methodAccessor(cd, m)
	}
	if f := pickField(plainFields, t, true); f != nil {
		return fieldAccessor(cd, f)
	}
	return nil
}

func splitMethods(ms []*metadata.MethodDescriptor, r metadata.Role) (annotated, plain []*metadata.MethodDescriptor) {
	for _, m := range ms {
		if m.Annotated(r) {
			annotated = append(annotated, m)
		} else {
			plain = append(plain, m)
		}
	}
	return annotated, plain
}

func splitFields(fs []*metadata.FieldDescriptor, r metadata.Role) (annotated, plain []*metadata.FieldDescriptor) {
	for _, f := range fs {
		if f.Annotated(r) {
			annotated = append(annotated, f)
		} else {
			plain = append(plain, f)
		}
	}
	return annotated, plain
}

func pickMethod(ms []*metadata.MethodDescriptor, t Target, byType bool) *metadata.MethodDescriptor {
	members := make([]*metadata.Member, len(ms))
	for i, m := range ms {
		members[i] = &m.Member
	}
	if i := pick(members, t, byType); i >= 0 {
		return ms[i]
	}
	return nil
}

func pickField(fs []*metadata.FieldDescriptor, t Target, byType bool) *metadata.FieldDescriptor {
	members := make([]*metadata.Member, len(fs))
	for i, f := range fs {
		members[i] = &f.Member
	}
	if i := pick(members, t, byType); i >= 0 {
		return fs[i]
	}
	return nil
}

// pick returns the index of the best member for t among one precedence
// rank, or -1. With byType set, a relationship target that matches no
// member by name falls back to the single member whose element type and
// direction match.
func pick(members []*metadata.Member, t Target, byType bool) int {
	var matched []int
	for i, m := range members {
		if matches(m, t) {
			matched = append(matched, i)
		}
	}
	if len(matched) == 0 && byType && t.Role == metadata.RoleRelationship && t.Endpoint == metadata.EndpointNone && t.Elem != nil {
		for i, m := range members {
			if m.Endpoint == metadata.EndpointNone && m.Type.Elem == t.Elem && m.Direction.Matches(t.Direction) {
				matched = append(matched, i)
			}
		}
		if len(matched) > 1 {
			return -1
		}
	}
	if len(matched) == 0 {
		return -1
	}
	best, bestScore := matched[0], -1
	for _, i := range matched {
		score := 0
		if t.Elem != nil && members[i].Type.Elem == t.Elem {
			score += 2
		}
		if t.Role == metadata.RoleRelationship && members[i].Direction == t.Direction {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func matches(m *metadata.Member, t Target) bool {
	switch t.Role {
	case metadata.RoleIdentity:
		return true
	case metadata.RoleScalar:
		return strings.EqualFold(m.Property, t.Name) || strings.EqualFold(m.Key, t.Name)
	case metadata.RoleRelationship:
		if t.Endpoint != metadata.EndpointNone || m.Endpoint != metadata.EndpointNone {
			return t.Endpoint == m.Endpoint
		}
		return strings.EqualFold(m.Relationship, t.Name) && m.Direction.Matches(t.Direction)
	}
	return false
}

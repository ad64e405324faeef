package entityaccess

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/syssam/ogm/metadata"
)

// Kind tells field accessors and method accessors apart.
type Kind uint8

// Accessor kinds.
const (
	FieldAccess Kind = iota
	MethodAccess
)

// String returns the accessor kind name.
func (k Kind) String() string {
	if k == MethodAccess {
		return "method"
	}
	return "field"
}

// Accessor is a resolved reader or writer for one member of a class. It holds
// no mutable state and may be shared between goroutines.
type Accessor struct {
	kind   Kind
	class  *metadata.ClassDescriptor
	field  *metadata.FieldDescriptor
	method *metadata.MethodDescriptor
}

func fieldAccessor(cd *metadata.ClassDescriptor, f *metadata.FieldDescriptor) *Accessor {
	return &Accessor{kind: FieldAccess, class: cd, field: f}
}

func methodAccessor(cd *metadata.ClassDescriptor, m *metadata.MethodDescriptor) *Accessor {
	return &Accessor{kind: MethodAccess, class: cd, method: m}
}

// Kind returns whether the accessor goes through a field or a method.
func (a *Accessor) Kind() Kind { return a.kind }

// Class returns the class the accessor belongs to.
func (a *Accessor) Class() *metadata.ClassDescriptor { return a.class }

// Member returns the classified member behind the accessor.
func (a *Accessor) Member() *metadata.Member {
	if a.kind == MethodAccess {
		return &a.method.Member
	}
	return &a.field.Member
}

// Name returns the Go name of the field or method.
func (a *Accessor) Name() string { return a.Member().Name }

// Type returns the declared type of the member.
func (a *Accessor) Type() reflect.Type { return a.Member().Type.Type }

// String implements fmt.Stringer.
func (a *Accessor) String() string {
	return fmt.Sprintf("%s %s.%s", a.kind, a.class.Name, a.Name())
}

// Value reads the raw member value of entity, a pointer to a struct of the
// accessor's class.
func (a *Accessor) Value(entity reflect.Value) (v reflect.Value, err error) {
	ev, err := a.receiver(entity)
	if err != nil {
		return reflect.Value{}, err
	}
	if a.kind == FieldAccess {
		return ev.Elem().FieldByIndexErr(a.field.Index)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entityaccess: %s panics: %v", a, r)
		}
	}()
	out := ev.MethodByName(a.method.Name).Call(nil)
	return out[0], nil
}

// Set writes a Go value to the member. The value is coerced to the declared
// type, with range checks for narrower numeric types.
func (a *Accessor) Set(entity reflect.Value, value any) (err error) {
	ev, err := a.receiver(entity)
	if err != nil {
		return err
	}
	v, err := metadata.Coerce(value, a.Type())
	if err != nil {
		return fmt.Errorf("entityaccess: %s: %w", a, err)
	}
	if a.kind == FieldAccess {
		f, err := ev.Elem().FieldByIndexErr(a.field.Index)
		if err != nil {
			return err
		}
		f.Set(v)
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entityaccess: %s panics: %v", a, r)
		}
	}()
	out := ev.MethodByName(a.method.Name).Call([]reflect.Value{v})
	if a.method.ReturnsError && !out[0].IsNil() {
		return fmt.Errorf("entityaccess: %s: %w", a, out[0].Interface().(error))
	}
	return nil
}

// Property reads the member as a graph property value, applying the
// member's converter. Nil pointers read as nil.
func (a *Accessor) Property(entity reflect.Value) (any, error) {
	v, err := a.Value(entity)
	if err != nil {
		return nil, err
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if c := a.Member().Converter; c != nil {
		return c.ToGraph(v)
	}
	return v.Interface(), nil
}

// SetProperty writes a graph property value to the member, applying the
// member's converter.
func (a *Accessor) SetProperty(entity reflect.Value, value any) error {
	c := a.Member().Converter
	if c == nil || value == nil {
		return a.Set(entity, value)
	}
	v, err := c.ToEntity(value, a.Type())
	if err != nil {
		return fmt.Errorf("entityaccess: %s: %w", a, err)
	}
	return a.Set(entity, v)
}

// Related reads a relationship member and returns the non-nil entities it
// refers to, as pointers, in member order.
func (a *Accessor) Related(entity reflect.Value) ([]reflect.Value, error) {
	v, err := a.Value(entity)
	if err != nil {
		return nil, err
	}
	var out []reflect.Value
	add := func(e reflect.Value) {
		for e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		switch {
		case !e.IsValid():
		case e.Kind() == reflect.Pointer:
			if !e.IsNil() {
				out = append(out, e)
			}
		case e.CanAddr():
			out = append(out, e.Addr())
		default:
			p := reflect.New(e.Type())
			p.Elem().Set(e)
			out = append(out, p)
		}
	}
	if a.Member().Type.Collection() {
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		for i := 0; i < v.Len(); i++ {
			add(v.Index(i))
		}
		return out, nil
	}
	add(v)
	return out, nil
}

// SetRelated writes entities (pointers to structs) to a relationship member,
// shaped as the declared type: the first entity for a scalar member, a
// slice or a zero-padded array otherwise.
func (a *Accessor) SetRelated(entity reflect.Value, related []reflect.Value) error {
	sig := a.Member().Type
	elem := func(e reflect.Value, t reflect.Type) reflect.Value {
		if t.Kind() == reflect.Pointer {
			return e
		}
		return e.Elem()
	}
	switch sig.Shape {
	case metadata.ShapeSlice:
		s := reflect.MakeSlice(sig.Type, 0, len(related))
		for _, e := range related {
			s = reflect.Append(s, elem(e, sig.Type.Elem()))
		}
		return a.Set(entity, s)
	case metadata.ShapeArray:
		if len(related) > sig.Len {
			return fmt.Errorf("entityaccess: %s: %d entities do not fit %s", a, len(related), sig.Type)
		}
		arr := reflect.New(sig.Type).Elem()
		for i, e := range related {
			arr.Index(i).Set(elem(e, sig.Type.Elem()))
		}
		return a.Set(entity, arr)
	default:
		if len(related) == 0 {
			return a.Set(entity, reflect.Zero(sig.Type))
		}
		return a.Set(entity, elem(related[0], sig.Type))
	}
}

// receiver validates that entity is a non-nil pointer to the class type.
func (a *Accessor) receiver(entity reflect.Value) (reflect.Value, error) {
	for entity.Kind() == reflect.Interface {
		entity = entity.Elem()
	}
	if entity.Kind() != reflect.Pointer || entity.IsNil() {
		return reflect.Value{}, errors.New("entityaccess: entity must be a non-nil pointer")
	}
	if entity.Type().Elem() != a.class.Type {
		return reflect.Value{}, fmt.Errorf("entityaccess: %s does not accept %s", a, entity.Type())
	}
	return entity, nil
}

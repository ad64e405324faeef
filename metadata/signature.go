package metadata

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Shape is the container shape of a declared type.
type Shape uint8

// Type shapes.
const (
	ShapeScalar Shape = iota
	ShapeSlice
	ShapeArray
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeSlice:
		return "slice"
	case ShapeArray:
		return "array"
	default:
		return "scalar"
	}
}

var (
	timeType            = reflect.TypeFor[time.Time]()
	bytesType           = reflect.TypeFor[[]byte]()
	errorType           = reflect.TypeFor[error]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// TypeSignature is the precomputed view of a member's declared type.
type TypeSignature struct {
	// Type is the declared type.
	Type  reflect.Type
	Shape Shape
	// Elem is the element type of a slice or array, or the declared type of
	// a scalar, with pointer indirections removed.
	Elem reflect.Type
	// Pointer reports whether elements are held through a pointer.
	Pointer bool
	// Len is the length of an array shape.
	Len int
	// Normalized is the box-normalized signature: *int64 and int64 both
	// normalize to "int64", platform int to "int64", slices to "[]elem".
	Normalized string
}

// SignatureOf computes the signature of t.
func SignatureOf(t reflect.Type) TypeSignature {
	sig := TypeSignature{Type: t}
	elem := t
	switch {
	case t == bytesType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8):
		sig.Shape = ShapeScalar
	case t.Kind() == reflect.Slice:
		sig.Shape, elem = ShapeSlice, t.Elem()
	case t.Kind() == reflect.Array:
		sig.Shape, elem, sig.Len = ShapeArray, t.Elem(), t.Len()
	}
	for elem.Kind() == reflect.Pointer {
		sig.Pointer = true
		elem = elem.Elem()
	}
	sig.Elem = elem
	sig.Normalized = normalize(elem)
	if sig.Shape != ShapeScalar {
		sig.Normalized = "[]" + sig.Normalized
	}
	return sig
}

// Integer reports whether the element type is an integer kind.
func (s TypeSignature) Integer() bool {
	switch s.Elem.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return s.Shape == ShapeScalar
	}
	return false
}

// Collection reports whether the signature is a slice or array.
func (s TypeSignature) Collection() bool {
	return s.Shape != ShapeScalar
}

func normalize(t reflect.Type) string {
	switch {
	case t == timeType:
		return "time"
	case t == bytesType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8):
		return "bytes"
	}
	switch t.Kind() {
	case reflect.Int:
		return "int" + strconv.Itoa(strconv.IntSize)
	case reflect.Uint:
		return "uint" + strconv.Itoa(strconv.IntSize)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool, reflect.String:
		return t.Kind().String()
	case reflect.Struct:
		if t.PkgPath() != "" {
			return t.PkgPath() + "." + t.Name()
		}
		return t.String()
	default:
		return t.String()
	}
}

// simple reports whether values of t are stored as graph properties.
func simple(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType || t == bytesType || textual(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice, reflect.Array:
		return simple(t.Elem())
	}
	return false
}

// entityLike reports whether t refers to other entities: a struct, a
// pointer to one, or a collection of either.
func entityLike(t reflect.Type) bool {
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && !simple(t)
}

func textual(t reflect.Type) bool {
	if t.Kind() == reflect.Interface {
		return false
	}
	return t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// IdentityOf extracts a graph identity from an identity member value. Nil
// pointers and zero integers mean the entity has not been saved yet.
func IdentityOf(v reflect.Value) (int64, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0, false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() == 0 {
			return 0, false
		}
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() == 0 || v.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int64(v.Uint()), true
	}
	return 0, false
}

// Coerce converts a graph value into a value assignable to t. Numbers are
// range checked against the target width, and collections are converted
// element by element.
func Coerce(v any, t reflect.Type) (reflect.Value, error) {
	if rv, ok := v.(reflect.Value); ok {
		if !rv.IsValid() {
			return reflect.Zero(t), nil
		}
		v = rv.Interface()
	}
	if v == nil {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Pointer {
		rv := reflect.ValueOf(v)
		if rv.Type().AssignableTo(t) {
			return rv, nil
		}
		inner, err := Coerce(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && rv.Type() != t {
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		rv = rv.Elem()
	}
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %s", n, t)
		}
		out.SetInt(n)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %s", n, t)
		}
		out.SetUint(uint64(n))
		return out, nil
	case reflect.Float32, reflect.Float64:
		var f float64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), t)
		}
		if out.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("value %g overflows %s", f, t)
		}
		out.SetFloat(f)
		return out, nil
	case reflect.Slice:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		s := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := Coerce(rv.Index(i), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			s.Index(i).Set(e)
		}
		return s, nil
	case reflect.Array:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		if rv.Len() > t.Len() {
			return reflect.Value{}, fmt.Errorf("%d elements do not fit %s", rv.Len(), t)
		}
		for i := 0; i < rv.Len(); i++ {
			e, err := Coerce(rv.Index(i), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil
	}
	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), t)
}

func toInt64(rv reflect.Value) (int64, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, fmt.Errorf("value %g is not an integer", f)
		}
		return int64(f), nil
	case reflect.String:
		n, err := strconv.ParseInt(rv.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", rv.String())
		}
		return n, nil
	}
	return 0, fmt.Errorf("cannot convert %s to an integer", rv.Type())
}

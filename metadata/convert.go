package metadata

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"reflect"
	"time"
)

// Converter translates between an entity attribute and the value stored as a
// graph property.
type Converter interface {
	// ToGraph converts an attribute value into a property value.
	ToGraph(v reflect.Value) (any, error)
	// ToEntity converts a property value into a value of type t.
	ToEntity(v any, t reflect.Type) (reflect.Value, error)
}

// Builtin converter names.
const (
	ConvertTime   = "time"
	ConvertEpoch  = "epoch"
	ConvertBase64 = "base64"
	ConvertText   = "text"
)

func builtinConverters() map[string]Converter {
	return map[string]Converter{
		ConvertTime:   timeConverter{},
		ConvertEpoch:  epochConverter{},
		ConvertBase64: base64Converter{},
		ConvertText:   textConverter{},
	}
}

// inferConverter returns the converter implied by an element type.
func inferConverter(t reflect.Type, convs map[string]Converter) Converter {
	switch {
	case t == timeType:
		return convs[ConvertTime]
	case textual(t):
		return convs[ConvertText]
	}
	return nil
}

// timeConverter stores time.Time as an RFC 3339 string with nanoseconds.
type timeConverter struct{}

func (timeConverter) ToGraph(v reflect.Value) (any, error) {
	t, ok := deref(v).Interface().(time.Time)
	if !ok {
		return nil, fmt.Errorf("time converter: unexpected %s", v.Type())
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}

func (timeConverter) ToEntity(v any, t reflect.Type) (reflect.Value, error) {
	s, ok := v.(string)
	if !ok {
		return reflect.Value{}, fmt.Errorf("time converter: expected string, got %T", v)
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("time converter: %w", err)
	}
	return Coerce(ts, t)
}

// epochConverter stores time.Time as milliseconds since the Unix epoch.
type epochConverter struct{}

func (epochConverter) ToGraph(v reflect.Value) (any, error) {
	t, ok := deref(v).Interface().(time.Time)
	if !ok {
		return nil, fmt.Errorf("epoch converter: unexpected %s", v.Type())
	}
	return t.UnixMilli(), nil
}

func (epochConverter) ToEntity(v any, t reflect.Type) (reflect.Value, error) {
	ms, err := toInt64(reflect.ValueOf(v))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("epoch converter: %w", err)
	}
	return Coerce(time.UnixMilli(ms).UTC(), t)
}

// base64Converter stores byte slices as standard base64 text.
type base64Converter struct{}

func (base64Converter) ToGraph(v reflect.Value) (any, error) {
	b, ok := deref(v).Interface().([]byte)
	if !ok {
		return nil, fmt.Errorf("base64 converter: unexpected %s", v.Type())
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (base64Converter) ToEntity(v any, t reflect.Type) (reflect.Value, error) {
	s, ok := v.(string)
	if !ok {
		return reflect.Value{}, fmt.Errorf("base64 converter: expected string, got %T", v)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("base64 converter: %w", err)
	}
	return Coerce(b, t)
}

// textConverter stores encoding.TextMarshaler values as strings.
type textConverter struct{}

func (textConverter) ToGraph(v reflect.Value) (any, error) {
	m, ok := deref(v).Interface().(encoding.TextMarshaler)
	if !ok {
		return nil, fmt.Errorf("text converter: %s is not a TextMarshaler", v.Type())
	}
	b, err := m.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("text converter: %w", err)
	}
	return string(b), nil
}

func (textConverter) ToEntity(v any, t reflect.Type) (reflect.Value, error) {
	s, ok := v.(string)
	if !ok {
		return reflect.Value{}, fmt.Errorf("text converter: expected string, got %T", v)
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	p := reflect.New(base)
	u, ok := p.Interface().(encoding.TextUnmarshaler)
	if !ok {
		return reflect.Value{}, fmt.Errorf("text converter: %s is not a TextUnmarshaler", base)
	}
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return reflect.Value{}, fmt.Errorf("text converter: %w", err)
	}
	if t.Kind() == reflect.Pointer {
		return p, nil
	}
	return p.Elem(), nil
}

func deref(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

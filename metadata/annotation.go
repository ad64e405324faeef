package metadata

import (
	"fmt"
	"strings"

	"github.com/syssam/ogm"
)

// AnnotationSet is the parsed form of an `ogm` struct tag or a method
// annotation. The zero value means the member carries no annotation.
type AnnotationSet struct {
	Identity  bool
	Transient bool

	// Property is set by `property` or `property=name`.
	Property     bool
	PropertyName string

	// Relationship is set by `relationship=TYPE` (alias `rel`).
	Relationship     bool
	RelationshipType string
	Direction        ogm.Direction
	HasDirection     bool

	// Start and End mark the endpoints of a relationship entity.
	Start bool
	End   bool

	// Converter names a registered property converter.
	Converter string

	// Label and Type are read from the embedded entity markers.
	Label string
	Type  string
}

// Empty reports whether no annotation was declared.
func (a AnnotationSet) Empty() bool {
	return a == AnnotationSet{}
}

// Marks reports whether the set explicitly declares the given role.
func (a AnnotationSet) Marks(r Role) bool {
	switch r {
	case RoleIdentity:
		return a.Identity
	case RoleScalar:
		return a.Property || a.Converter != ""
	case RoleRelationship:
		return a.Relationship || a.Start || a.End
	case RoleTransient:
		return a.Transient
	default:
		return false
	}
}

// ParseAnnotations parses the tag grammar shared by struct tags and
// ogm.MethodAnnotator entries:
//
//	-                          transient
//	id                         identity
//	property[=name]            scalar property
//	relationship=TYPE          relationship (rel=TYPE is accepted)
//	direction=INCOMING         relationship direction
//	start, end                 relationship entity endpoints
//	convert=name               property converter
//	label=Name, type=TYPE      entity markers
//
// Options are separated by commas.
func ParseAnnotations(tag string) (AnnotationSet, error) {
	var a AnnotationSet
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return a, nil
	}
	if tag == "-" {
		a.Transient = true
		return a, nil
	}
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, value, hasValue := strings.Cut(opt, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "-", "transient":
			a.Transient = true
		case "id":
			a.Identity = true
		case "property":
			a.Property = true
			a.PropertyName = value
		case "relationship", "rel":
			a.Relationship = true
			a.RelationshipType = value
		case "direction":
			d, err := ogm.ParseDirection(value)
			if err != nil {
				return a, err
			}
			a.Direction, a.HasDirection = d, true
		case "start":
			a.Start = true
		case "end":
			a.End = true
		case "convert":
			if value == "" {
				return a, fmt.Errorf("ogm: convert option requires a converter name")
			}
			a.Converter = value
		case "label":
			a.Label = value
		case "type":
			a.Type = value
		default:
			if hasValue {
				return a, fmt.Errorf("ogm: unknown tag option %q", key)
			}
			return a, fmt.Errorf("ogm: unknown tag flag %q", key)
		}
	}
	if a.HasDirection && !a.Relationship {
		a.Relationship = true
	}
	return a, nil
}

// String renders the set back into tag grammar.
func (a AnnotationSet) String() string {
	var opts []string
	if a.Transient {
		opts = append(opts, "-")
	}
	if a.Identity {
		opts = append(opts, "id")
	}
	if a.Property {
		opts = append(opts, keyValue("property", a.PropertyName))
	}
	if a.Relationship {
		opts = append(opts, keyValue("relationship", a.RelationshipType))
	}
	if a.HasDirection {
		opts = append(opts, "direction="+a.Direction.String())
	}
	if a.Start {
		opts = append(opts, "start")
	}
	if a.End {
		opts = append(opts, "end")
	}
	if a.Converter != "" {
		opts = append(opts, "convert="+a.Converter)
	}
	if a.Label != "" {
		opts = append(opts, "label="+a.Label)
	}
	if a.Type != "" {
		opts = append(opts, "type="+a.Type)
	}
	return strings.Join(opts, ",")
}

func keyValue(k, v string) string {
	if v == "" {
		return k
	}
	return k + "=" + v
}

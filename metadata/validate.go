package metadata

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/ogm"
)

// ValidationIssue is one problem found in a class descriptor.
type ValidationIssue struct {
	Class   string
	Member  string
	Message string
}

func (e *ValidationIssue) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s.%s: %s", e.Class, e.Member, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// ValidationResult holds the results of validating one class.
type ValidationResult struct {
	Class    string
	Errors   []*ValidationIssue
	Warnings []*ValidationIssue
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the errors as an *ogm.ValidationError, or nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return ogm.NewValidationError(r.Class, errors.Join(errs...))
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found.\n")
	}
	return sb.String()
}

func (r *ValidationResult) addError(member, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationIssue{Class: r.Class, Member: member, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(member, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationIssue{Class: r.Class, Member: member, Message: fmt.Sprintf(format, args...)})
}

// Validate runs the metadata-only consistency checks of a class. classes
// maps struct types to the registered descriptors and is used to check
// relationship targets.
func Validate(cd *ClassDescriptor, classes map[reflect.Type]*ClassDescriptor) *ValidationResult {
	res := &ValidationResult{Class: cd.Name}
	members := make([]*Member, 0, len(cd.Fields)+len(cd.Methods))
	for _, f := range cd.Fields {
		members = append(members, &f.Member)
	}
	for _, m := range cd.Methods {
		members = append(members, &m.Member)
	}

	validateIdentity(cd, res)

	var starts, ends []string
	props := make(map[string]string)
	for _, m := range members {
		a := m.Annotations
		if a.Start && a.End {
			res.addError(m.Name, "member is tagged both start and end")
		}
		if (a.Start || a.End) && !isField(cd, m) {
			res.addError(m.Name, "start and end must be declared on fields")
		}
		if a.Start {
			starts = append(starts, m.Name)
		}
		if a.End {
			ends = append(ends, m.Name)
		}
		if a.Converter != "" && m.Converter == nil {
			res.addError(m.Name, "unknown converter %q", a.Converter)
		}
		if a.Identity && (a.Relationship || a.Property || a.Start || a.End) {
			res.addError(m.Name, "identity member declares other roles")
		}
		if m.Role == RoleScalar && isField(cd, m) {
			if prev, ok := props[m.Property]; ok {
				res.addError(m.Name, "property %q is already mapped by %s", m.Property, prev)
			}
			props[m.Property] = m.Name
		}
		if m.Role == RoleRelationship && m.Endpoint == EndpointNone {
			if _, ok := classes[m.Type.Elem]; !ok {
				res.addWarning(m.Name, "relationship %s refers to unregistered type %s", m.Relationship, m.Type.Elem)
			}
			if m.Relationship == "" {
				res.addError(m.Name, "relationship member has no type")
			}
		}
	}

	if cd.IsRelationshipEntity() {
		switch len(starts) {
		case 1:
		case 0:
			res.addError("", "relationship entity has no start member")
		default:
			res.addError("", "relationship entity has %d start members (%s), want exactly one", len(starts), strings.Join(starts, ", "))
		}
		switch len(ends) {
		case 1:
		case 0:
			res.addError("", "relationship entity has no end member")
		default:
			res.addError("", "relationship entity has %d end members (%s), want exactly one", len(ends), strings.Join(ends, ", "))
		}
		if len(starts) == 1 && len(ends) == 1 && starts[0] == ends[0] {
			res.addError(starts[0], "start and end must be different members")
		}
		for _, e := range []Endpoint{EndpointStart, EndpointEnd} {
			if f := cd.EndpointField(e); f != nil {
				target, ok := classes[f.Type.Elem]
				switch {
				case f.Type.Collection():
					res.addError(f.Name, "relationship endpoint must refer to a single node")
				case !ok:
					res.addError(f.Name, "relationship endpoint refers to unregistered type %s", f.Type.Elem)
				case target.IsRelationshipEntity():
					res.addError(f.Name, "relationship endpoint refers to relationship entity %s", target.Name)
				}
			}
		}
		if len(cd.RelationshipKeys()) > 0 {
			res.addWarning("", "relationship entity declares relationship members that are never mapped")
		}
	} else if len(starts)+len(ends) > 0 {
		res.addError(strings.Join(append(starts, ends...), ", "), "start and end members are only allowed on relationship entities")
	}
	return res
}

func validateIdentity(cd *ClassDescriptor, res *ValidationResult) {
	ids := cd.FieldsWith(RoleIdentity)
	switch len(ids) {
	case 0:
		res.addError("", "no identity member: tag an integer field `ogm:\"id\"` or name it ID")
	case 1:
		if !ids[0].Type.Integer() {
			res.addError(ids[0].Name, "identity must be an integer, got %s", ids[0].Type.Type)
		}
	default:
		names := make([]string, len(ids))
		for i, f := range ids {
			names[i] = f.Name
		}
		res.addError("", "multiple identity members (%s)", strings.Join(names, ", "))
	}
	for _, kind := range []MethodKind{Getter, Setter} {
		ms := cd.MethodsWith(RoleIdentity, kind)
		if len(ms) > 1 {
			res.addError("", "multiple identity %ss", kind)
		}
		for _, m := range ms {
			if !m.Type.Integer() {
				res.addError(m.Name, "identity must be an integer, got %s", m.Type.Type)
			}
		}
	}
}

func isField(cd *ClassDescriptor, m *Member) bool {
	f := cd.Field(m.Name)
	return f != nil && &f.Member == m
}

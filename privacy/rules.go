package privacy

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// Viewer represents the authenticated user running session operations.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant, or "" when not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context.
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("ogm/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of
// roles, and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// OnClass evaluates rule only for requests on the entity class with the
// given qualified name, such as "example.com/model.Movie". Requests without
// a class are skipped.
func OnClass(name string, rule QueryMutationRule) QueryMutationRule {
	return classRule{name: name, rule: rule}
}

type classRule struct {
	name string
	rule QueryMutationRule
}

func (c classRule) EvalQuery(ctx context.Context, r Request) error {
	if r.Class == nil || r.Class.Name != c.name {
		return Skip
	}
	return c.rule.EvalQuery(ctx, r)
}

func (c classRule) EvalMutation(ctx context.Context, r Request) error {
	if r.Class == nil || r.Class.Name != c.name {
		return Skip
	}
	return c.rule.EvalMutation(ctx, r)
}

// IsOwner returns a mutation rule that allows writing an entity whose field
// holds the viewer's ID. Requests without an entity or field skip.
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner("OwnerID"),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, r Request) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := fieldString(r.Entity, field)
		if !ok {
			return Skip
		}
		if value == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule returns a mutation rule that allows writing an entity whose
// field holds the viewer's tenant, and denies any other tenant.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, r Request) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		value, ok := fieldString(r.Entity, field)
		if !ok {
			return Skip
		}
		if value == viewer.GetTenantID() {
			return Allow
		}
		return Denyf("ogm/privacy: tenant mismatch")
	})
}

// TenantQueryRule returns a query rule that denies reads when the viewer or
// its tenant is missing.
func TenantQueryRule() QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ Request) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("ogm/privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("ogm/privacy: tenant required")
		}
		return Skip
	})
}

// fieldString reads the named struct field of entity as a string.
func fieldString(entity any, field string) (string, bool) {
	if entity == nil {
		return "", false
	}
	v := reflect.Indirect(reflect.ValueOf(entity))
	if v.Kind() != reflect.Struct {
		return "", false
	}
	f := v.FieldByName(field)
	if !f.IsValid() {
		return "", false
	}
	for f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return "", false
		}
		f = f.Elem()
	}
	switch f.Kind() {
	case reflect.String:
		return f.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", f.Int()), true
	}
	return fmt.Sprint(f.Interface()), true
}

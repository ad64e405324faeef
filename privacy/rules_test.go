package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ogm/metadata"
	"github.com/syssam/ogm/privacy"
)

type document struct {
	ID       *int64
	OwnerID  string
	Tenant   *string
	Revision int
}

func TestViewerContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Nil(t, privacy.ViewerFromContext(ctx))

	v := &privacy.SimpleViewer{UserID: "7", Roles: []string{"editor"}, TenantID: "acme"}
	got := privacy.ViewerFromContext(privacy.WithViewer(ctx, v))
	require.NotNil(t, got)
	assert.Equal(t, "7", got.GetID())
	assert.Equal(t, []string{"editor"}, got.GetRoles())
	assert.Equal(t, "acme", got.GetTenantID())
}

func TestDenyIfNoViewer(t *testing.T) {
	t.Parallel()
	rule := privacy.DenyIfNoViewer()
	err := rule.EvalQuery(context.Background(), privacy.Request{Op: privacy.OpLoad})
	require.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "viewer required")

	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1"})
	assert.ErrorIs(t, rule.EvalMutation(ctx, privacy.Request{Op: privacy.OpSave}), privacy.Skip)
}

func TestHasAnyRole(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		viewer privacy.Viewer
		rule   privacy.QueryMutationRule
		want   error
	}{
		{name: "no_viewer", rule: privacy.HasRole("admin"), want: privacy.Skip},
		{name: "has_role", viewer: &privacy.SimpleViewer{Roles: []string{"user", "admin"}}, rule: privacy.HasRole("admin"), want: privacy.Allow},
		{name: "missing_role", viewer: &privacy.SimpleViewer{Roles: []string{"user"}}, rule: privacy.HasRole("admin"), want: privacy.Skip},
		{name: "any_role", viewer: &privacy.SimpleViewer{Roles: []string{"moderator"}}, rule: privacy.HasAnyRole("admin", "moderator"), want: privacy.Allow},
		{name: "no_roles", viewer: &privacy.SimpleViewer{}, rule: privacy.HasAnyRole("admin", "moderator"), want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			if tt.viewer != nil {
				ctx = privacy.WithViewer(ctx, tt.viewer)
			}
			assert.ErrorIs(t, tt.rule.EvalQuery(ctx, privacy.Request{}), tt.want)
			assert.ErrorIs(t, tt.rule.EvalMutation(ctx, privacy.Request{}), tt.want)
		})
	}
}

func TestOnClass(t *testing.T) {
	t.Parallel()
	rule := privacy.OnClass("Document", privacy.AlwaysDenyRule())
	ctx := context.Background()
	doc := &metadata.ClassDescriptor{Name: "Document"}
	other := &metadata.ClassDescriptor{Name: "Movie"}

	assert.ErrorIs(t, rule.EvalQuery(ctx, privacy.Request{Class: doc}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(ctx, privacy.Request{Class: doc}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalQuery(ctx, privacy.Request{Class: other}), privacy.Skip)
	assert.ErrorIs(t, rule.EvalMutation(ctx, privacy.Request{}), privacy.Skip)
}

func TestIsOwner(t *testing.T) {
	t.Parallel()
	viewer := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "42"})
	tests := []struct {
		name  string
		ctx   context.Context
		field string
		doc   any
		want  error
	}{
		{name: "owner", ctx: viewer, field: "OwnerID", doc: &document{OwnerID: "42"}, want: privacy.Allow},
		{name: "not_owner", ctx: viewer, field: "OwnerID", doc: &document{OwnerID: "7"}, want: privacy.Skip},
		{name: "int_field", ctx: viewer, field: "Revision", doc: document{Revision: 42}, want: privacy.Allow},
		{name: "nil_pointer_field", ctx: viewer, field: "ID", doc: &document{}, want: privacy.Skip},
		{name: "pointer_field", ctx: viewer, field: "ID", doc: &document{ID: ptr(int64(42))}, want: privacy.Allow},
		{name: "missing_field", ctx: viewer, field: "Author", doc: &document{}, want: privacy.Skip},
		{name: "no_entity", ctx: viewer, field: "OwnerID", want: privacy.Skip},
		{name: "not_a_struct", ctx: viewer, field: "OwnerID", doc: "42", want: privacy.Skip},
		{name: "no_viewer", ctx: context.Background(), field: "OwnerID", doc: &document{OwnerID: "42"}, want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rule := privacy.IsOwner(tt.field)
			assert.ErrorIs(t, rule.EvalMutation(tt.ctx, privacy.Request{Op: privacy.OpSave, Entity: tt.doc}), tt.want)
		})
	}
}

func TestTenantRule(t *testing.T) {
	t.Parallel()
	acme := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", TenantID: "acme"})
	noTenant := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1"})
	rule := privacy.TenantRule("Tenant")

	assert.ErrorIs(t, rule.EvalMutation(acme, privacy.Request{Entity: &document{Tenant: ptr("acme")}}), privacy.Allow)
	err := rule.EvalMutation(acme, privacy.Request{Entity: &document{Tenant: ptr("globex")}})
	require.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "tenant mismatch")
	assert.ErrorIs(t, rule.EvalMutation(acme, privacy.Request{Entity: &document{}}), privacy.Skip)
	assert.ErrorIs(t, rule.EvalMutation(noTenant, privacy.Request{Entity: &document{Tenant: ptr("acme")}}), privacy.Skip)
	assert.ErrorIs(t, rule.EvalMutation(context.Background(), privacy.Request{}), privacy.Skip)
}

func TestTenantQueryRule(t *testing.T) {
	t.Parallel()
	rule := privacy.TenantQueryRule()
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), privacy.Request{}), privacy.Deny)
	noTenant := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1"})
	err := rule.EvalQuery(noTenant, privacy.Request{})
	require.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "tenant required")
	acme := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", TenantID: "acme"})
	assert.ErrorIs(t, rule.EvalQuery(acme, privacy.Request{}), privacy.Skip)
}

func TestPolicyChain(t *testing.T) {
	t.Parallel()
	policy := privacy.Policy{
		Query: privacy.QueryPolicy{privacy.DenyIfNoViewer()},
		Mutation: privacy.MutationPolicy{
			privacy.DenyIfNoViewer(),
			privacy.DenyMutationOperationRule(privacy.OpPurge),
			privacy.HasRole("admin"),
			privacy.IsOwner("OwnerID"),
			privacy.AlwaysDenyRule(),
		},
	}
	admin := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", Roles: []string{"admin"}})
	owner := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "42"})
	doc := &document{OwnerID: "42"}

	tests := []struct {
		name string
		ctx  context.Context
		r    privacy.Request
		deny bool
	}{
		{name: "anonymous_read", ctx: context.Background(), r: privacy.Request{Op: privacy.OpLoad}, deny: true},
		{name: "anonymous_write", ctx: context.Background(), r: privacy.Request{Op: privacy.OpSave, Entity: doc}, deny: true},
		{name: "viewer_read", ctx: owner, r: privacy.Request{Op: privacy.OpQuery}},
		{name: "admin_save", ctx: admin, r: privacy.Request{Op: privacy.OpSave, Entity: &document{}}},
		{name: "admin_purge", ctx: admin, r: privacy.Request{Op: privacy.OpPurge}, deny: true},
		{name: "owner_delete", ctx: owner, r: privacy.Request{Op: privacy.OpDelete, Entity: doc}},
		{name: "other_delete", ctx: owner, r: privacy.Request{Op: privacy.OpDelete, Entity: &document{OwnerID: "7"}}, deny: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := policy.Eval(tt.ctx, tt.r)
			if tt.deny {
				assert.ErrorIs(t, err, privacy.Deny)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func ptr[T any](v T) *T { return &v }

package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ogm/metadata"
	"github.com/syssam/ogm/privacy"
)

func TestDecisionErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		decision error
		want     error
		msg      string
	}{
		{name: "allow", decision: privacy.Allow, want: privacy.Allow, msg: "ogm/privacy: allow rule"},
		{name: "deny", decision: privacy.Deny, want: privacy.Deny, msg: "ogm/privacy: deny rule"},
		{name: "skip", decision: privacy.Skip, want: privacy.Skip, msg: "ogm/privacy: skip rule"},
		{name: "allowf", decision: privacy.Allowf("user %d", 1), want: privacy.Allow, msg: "user 1: ogm/privacy: allow rule"},
		{name: "denyf", decision: privacy.Denyf("label %s", "Movie"), want: privacy.Deny, msg: "label Movie: ogm/privacy: deny rule"},
		{name: "skipf", decision: privacy.Skipf("no viewer"), want: privacy.Skip, msg: "no viewer: ogm/privacy: skip rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.decision, tt.want)
			assert.EqualError(t, tt.decision, tt.msg)
		})
	}
}

func TestOp(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Load", privacy.OpLoad.String())
	assert.Equal(t, "Save|Purge", (privacy.OpSave | privacy.OpPurge).String())
	assert.Equal(t, "Op(0)", privacy.Op(0).String())
	assert.True(t, privacy.OpCount.Is(privacy.OpRead))
	assert.False(t, privacy.OpCount.Is(privacy.OpWrite))
	assert.True(t, privacy.OpExecute.Is(privacy.OpWrite))
}

func TestAlwaysRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	allow, deny := privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()
	assert.ErrorIs(t, allow.EvalQuery(ctx, privacy.Request{}), privacy.Allow)
	assert.ErrorIs(t, allow.EvalMutation(ctx, privacy.Request{}), privacy.Allow)
	assert.ErrorIs(t, deny.EvalQuery(ctx, privacy.Request{}), privacy.Deny)
	assert.ErrorIs(t, deny.EvalMutation(ctx, privacy.Request{}), privacy.Deny)
}

func TestContextQueryMutationRule(t *testing.T) {
	t.Parallel()
	type key struct{}
	rule := privacy.ContextQueryMutationRule(func(ctx context.Context) error {
		if ctx.Value(key{}) != nil {
			return privacy.Allow
		}
		return privacy.Skip
	})
	ctx := context.Background()
	assert.ErrorIs(t, rule.EvalQuery(ctx, privacy.Request{}), privacy.Skip)
	ctx = context.WithValue(ctx, key{}, true)
	assert.ErrorIs(t, rule.EvalMutation(ctx, privacy.Request{}), privacy.Allow)
}

func TestOnMutationOperation(t *testing.T) {
	t.Parallel()
	rule := privacy.OnMutationOperation(privacy.AlwaysDenyRule(), privacy.OpDelete|privacy.OpDeleteAll)
	tests := []struct {
		op   privacy.Op
		want error
	}{
		{privacy.OpDelete, privacy.Deny},
		{privacy.OpDeleteAll, privacy.Deny},
		{privacy.OpSave, privacy.Skip},
		{privacy.OpPurge, privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, rule.EvalMutation(context.Background(), privacy.Request{Op: tt.op}), tt.want)
		})
	}
}

func TestOperationRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deny := privacy.DenyMutationOperationRule(privacy.OpPurge)
	err := deny.EvalMutation(ctx, privacy.Request{Op: privacy.OpPurge})
	require.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "operation Purge is not allowed")
	assert.ErrorIs(t, deny.EvalMutation(ctx, privacy.Request{Op: privacy.OpSave}), privacy.Skip)

	allow := privacy.AllowMutationOperationRule(privacy.OpSave)
	assert.ErrorIs(t, allow.EvalMutation(ctx, privacy.Request{Op: privacy.OpSave}), privacy.Allow)
	assert.ErrorIs(t, allow.EvalMutation(ctx, privacy.Request{Op: privacy.OpDelete}), privacy.Skip)
}

func TestDecisionContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, ok := privacy.DecisionFromContext(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, privacy.DecisionContext(ctx, nil))
	assert.Equal(t, ctx, privacy.DecisionContext(ctx, privacy.Skip))

	decision, ok := privacy.DecisionFromContext(privacy.DecisionContext(ctx, privacy.Allow))
	assert.True(t, ok)
	assert.NoError(t, decision)

	decision, ok = privacy.DecisionFromContext(privacy.DecisionContext(ctx, privacy.Denyf("maintenance")))
	assert.True(t, ok)
	assert.ErrorIs(t, decision, privacy.Deny)
}

func TestQueryPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name   string
		policy privacy.QueryPolicy
		want   error
	}{
		{name: "empty", policy: nil},
		{name: "skip_only", policy: privacy.QueryPolicy{skipQuery(), skipQuery()}},
		{name: "nil_is_skip", policy: privacy.QueryPolicy{privacy.QueryRuleFunc(func(context.Context, privacy.Request) error { return nil })}},
		{name: "first_decision_wins", policy: privacy.QueryPolicy{skipQuery(), privacy.AlwaysDenyRule(), privacy.AlwaysAllowRule()}, want: privacy.Deny},
		{name: "allow", policy: privacy.QueryPolicy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()}, want: privacy.Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.policy.EvalQuery(ctx, privacy.Request{Op: privacy.OpLoad})
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMutationPolicy(t *testing.T) {
	t.Parallel()
	var calls int
	count := privacy.MutationRuleFunc(func(context.Context, privacy.Request) error {
		calls++
		return privacy.Skip
	})
	policy := privacy.MutationPolicy{count, privacy.AlwaysDenyRule(), count}
	assert.ErrorIs(t, policy.EvalMutation(context.Background(), privacy.Request{Op: privacy.OpSave}), privacy.Deny)
	assert.Equal(t, 1, calls)
}

func TestPolicyEval(t *testing.T) {
	t.Parallel()
	movie := &metadata.ClassDescriptor{Name: "Movie"}
	policy := privacy.Policy{
		Query:    privacy.QueryPolicy{privacy.AlwaysAllowRule()},
		Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()},
	}
	ctx := context.Background()

	t.Run("Read", func(t *testing.T) {
		t.Parallel()
		for _, op := range []privacy.Op{privacy.OpLoad, privacy.OpCount, privacy.OpQuery} {
			assert.NoError(t, policy.Eval(ctx, privacy.Request{Op: op, Class: movie}), op)
		}
	})
	t.Run("Write", func(t *testing.T) {
		t.Parallel()
		for _, op := range []privacy.Op{privacy.OpSave, privacy.OpDelete, privacy.OpDeleteAll, privacy.OpPurge, privacy.OpExecute} {
			assert.ErrorIs(t, policy.Eval(ctx, privacy.Request{Op: op, Class: movie}), privacy.Deny, op)
		}
	})
	t.Run("ContextDecision", func(t *testing.T) {
		t.Parallel()
		allowed := privacy.DecisionContext(ctx, privacy.Allow)
		assert.NoError(t, policy.Eval(allowed, privacy.Request{Op: privacy.OpPurge}))
		denied := privacy.DecisionContext(ctx, privacy.Deny)
		assert.ErrorIs(t, policy.Eval(denied, privacy.Request{Op: privacy.OpLoad}), privacy.Deny)
	})
	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, privacy.Policy{}.Eval(ctx, privacy.Request{Op: privacy.OpPurge}))
	})
	t.Run("CustomError", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		p := privacy.Policy{Mutation: privacy.MutationPolicy{
			privacy.MutationRuleFunc(func(context.Context, privacy.Request) error { return boom }),
		}}
		assert.ErrorIs(t, p.Eval(ctx, privacy.Request{Op: privacy.OpSave}), boom)
	})
}

func skipQuery() privacy.QueryRule {
	return privacy.QueryRuleFunc(func(context.Context, privacy.Request) error {
		return privacy.Skip
	})
}

func BenchmarkPolicyEval(b *testing.B) {
	policy := privacy.Policy{
		Mutation: privacy.MutationPolicy{
			privacy.DenyIfNoViewer(),
			privacy.DenyMutationOperationRule(privacy.OpPurge),
			privacy.HasRole("admin"),
			privacy.AlwaysDenyRule(),
		},
	}
	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", Roles: []string{"admin"}})
	r := privacy.Request{Op: privacy.OpSave}
	b.ReportAllocs()
	for b.Loop() {
		_ = policy.Eval(ctx, r)
	}
}

// Package privacy provides authorization rules that a session evaluates
// before an operation reaches the transport.
//
// A Policy holds a QueryPolicy, evaluated for Load, Count and Query, and a
// MutationPolicy, evaluated for Save, Delete, DeleteAll, Purge and Execute.
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow grants access and stops evaluation
//   - Deny denies access and stops evaluation
//   - Skip continues with the next rule
//
// When every rule skips, the operation is allowed. End a policy with
// AlwaysDenyRule to deny by default.
//
//	policy := privacy.Policy{
//	    Query: privacy.QueryPolicy{
//	        privacy.DenyIfNoViewer(),
//	    },
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.DenyMutationOperationRule(privacy.OpPurge | privacy.OpExecute),
//	        privacy.HasRole("admin"),
//	        privacy.IsOwner("OwnerID"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}
//	factory, err := session.NewFactory(ctx, cfg, source, session.WithPolicy(policy))
//
// The viewer is carried by the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "42", Roles: []string{"admin"}})
//
// A decision attached with DecisionContext bypasses the policy, for example
// in system jobs:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy

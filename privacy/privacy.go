// Package privacy provides authorization rules evaluated by a session before
// an operation reaches the transport.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/ogm/metadata"
)

// Policy decision sentinel errors.
//
// Rules return them to decide how evaluation proceeds. Use errors.Is to
// check for them:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow terminates evaluation with an allow decision.
	Allow = errors.New("ogm/privacy: allow rule")

	// Deny terminates evaluation with a deny decision.
	Deny = errors.New("ogm/privacy: deny rule")

	// Skip continues evaluation with the next rule.
	Skip = errors.New("ogm/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Op is a session operation, or a set of them.
type Op uint16

// Session operations.
const (
	OpLoad Op = 1 << iota
	OpCount
	OpQuery
	OpSave
	OpDelete
	OpDeleteAll
	OpPurge
	OpExecute

	// OpRead is every operation that only reads the graph.
	OpRead = OpLoad | OpCount | OpQuery
	// OpWrite is every operation that may write the graph.
	OpWrite = OpSave | OpDelete | OpDeleteAll | OpPurge | OpExecute
)

var opNames = []string{"Load", "Count", "Query", "Save", "Delete", "DeleteAll", "Purge", "Execute"}

// Is reports whether op is one of the operations in o.
func (op Op) Is(o Op) bool { return op&o != 0 }

// String returns the operation names joined by '|'.
func (op Op) String() string {
	var names []string
	for i, name := range opNames {
		if op&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", uint16(op))
	}
	return strings.Join(names, "|")
}

// Request describes the operation a rule decides on.
type Request struct {
	Op Op
	// Class is the entity class the operation works on. It is nil for
	// Purge and for raw Cypher.
	Class *metadata.ClassDescriptor
	// Entity is the entity passed to Save or Delete.
	Entity any
	// Cypher is the statement passed to Query or Execute.
	Cypher string
}

type (
	// QueryRule decides whether a read is allowed.
	QueryRule interface {
		EvalQuery(context.Context, Request) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a write is allowed.
	MutationRule interface {
		EvalMutation(context.Context, Request) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of ordinary
// functions as query rules.
type QueryRuleFunc func(context.Context, Request) error

// EvalQuery returns f(ctx, r).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, r Request) error {
	return f(ctx, r)
}

// MutationRuleFunc type is an adapter which allows the use of ordinary
// functions as mutation rules.
type MutationRuleFunc func(context.Context, Request) error

// EvalMutation returns f(ctx, r).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, r Request) error {
	return f(ctx, r)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a rule from a context evaluation
// function. Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

// OnMutationOperation evaluates rule only on the given operations.
func OnMutationOperation(rule MutationRule, op Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, r Request) error {
		if r.Op.Is(op) {
			return rule.EvalMutation(ctx, r)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given operations.
func DenyMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, r Request) error {
		return Denyf("ogm/privacy: operation %s is not allowed", r.Op)
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing the given operations.
func AllowMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, Request) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// Policy groups query and mutation policies. Reads are evaluated by Query,
// writes by Mutation. When every rule skips, the operation is allowed.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// Eval evaluates the request against the policy matching its operation. A
// decision attached to ctx with DecisionContext takes precedence. It returns
// nil when the operation is allowed.
func (p Policy) Eval(ctx context.Context, r Request) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	var decision error
	if r.Op.Is(OpRead) {
		decision = p.Query.EvalQuery(ctx, r)
	} else {
		decision = p.Mutation.EvalMutation(ctx, r)
	}
	if errors.Is(decision, Allow) {
		return nil
	}
	return decision
}

// EvalQuery evaluates a read against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, r Request) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a write against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, r Request) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, Request) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, Request) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ Request) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ Request) error {
	return c.eval(ctx)
}

package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.opsgate.authz.allow"

// DefaultPolicy admits the operator role to every privileged route.
const DefaultPolicy = `package opsgate.authz

default allow := false

privileged_roles := {"operator"}

allow if {
	input.subject.id != ""
	privileged_roles[input.subject.role]
}
`

// OPAEvaluator evaluates a Rego authorization policy compiled once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultPolicy when empty). A policy that fails to compile is an error.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	pq, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("authz.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authorization policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// Allow evaluates the policy for subject and req. An undefined result denies.
func (e *OPAEvaluator) Allow(ctx context.Context, subject Subject, req Request) (bool, error) {
	input := map[string]any{
		"subject": map[string]any{"id": subject.ID, "role": subject.Role},
		"request": map[string]any{"method": req.Method, "route": req.Route},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: non-boolean result %T", ErrPolicyUnavailable, rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck evaluates the compiled policy against a fixed probe input. Used by readiness.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	if _, err := e.Allow(ctx, Subject{ID: "readiness-probe", Role: "operator"}, Request{Method: "GET", Route: "/readyz"}); err != nil {
		return err
	}
	return nil
}

// Package engine evaluates the role authorization policy applied to privileged endpoints.
package engine

import (
	"context"
	"errors"
)

// ErrPolicyUnavailable is returned when the policy cannot be evaluated. Callers deny.
var ErrPolicyUnavailable = errors.New("authorization policy unavailable")

// Subject is the authenticated caller.
type Subject struct {
	ID   string
	Role string
}

// Request is the endpoint being accessed.
type Request struct {
	Method string
	Route  string
}

// Evaluator decides whether a subject may access a request.
type Evaluator interface {
	Allow(ctx context.Context, subject Subject, req Request) (bool, error)
}

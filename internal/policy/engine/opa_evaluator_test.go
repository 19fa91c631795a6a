package engine

import (
	"context"
	"testing"
)

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e, err := NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tests := []struct {
		name    string
		subject Subject
		want    bool
	}{
		{"operator", Subject{ID: "op-1", Role: "operator"}, true},
		{"unknown role", Subject{ID: "op-1", Role: "viewer"}, false},
		{"empty role", Subject{ID: "op-1"}, false},
		{"missing subject id", Subject{Role: "operator"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Allow(context.Background(), tt.subject, Request{Method: "GET", Route: "/auth/profile"})
			if err != nil {
				t.Fatalf("Allow: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	policy := `package opsgate.authz

allow if {
	input.request.method == "GET"
	input.subject.role == "operator"
}
`
	e, err := NewOPAEvaluator(context.Background(), policy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	sub := Subject{ID: "op-1", Role: "operator"}
	if ok, _ := e.Allow(context.Background(), sub, Request{Method: "GET", Route: "/auth/profile"}); !ok {
		t.Error("GET should be allowed")
	}
	// no default: undefined result denies
	if ok, err := e.Allow(context.Background(), sub, Request{Method: "POST", Route: "/auth/logout"}); ok || err != nil {
		t.Errorf("POST: allowed=%v err=%v, want denied without error", ok, err)
	}
}

func TestOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package opsgate.authz\nallow if {"); err == nil {
		t.Fatal("invalid policy should fail to compile")
	}
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e, err := NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

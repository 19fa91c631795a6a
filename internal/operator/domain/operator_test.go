package domain

import "testing"

func TestOperator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operator
		wantErr bool
	}{
		{"valid", Operator{ID: "1", Email: " Ops@Example.com ", SecretHash: "h"}, false},
		{"missing id", Operator{Email: "a@b.c", SecretHash: "h"}, true},
		{"bad email", Operator{ID: "1", Email: "nope", SecretHash: "h"}, true},
		{"missing hash", Operator{ID: "1", Email: "a@b.c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if tt.op.Email != "ops@example.com" {
					t.Errorf("Email not normalized: %q", tt.op.Email)
				}
				if tt.op.Role != RoleOperator {
					t.Errorf("Role default = %q, want operator", tt.op.Role)
				}
			}
		})
	}
}

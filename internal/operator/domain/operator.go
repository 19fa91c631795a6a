package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the authorization role of an operator account.
type Role string

// RoleOperator is the single privileged role.
const RoleOperator Role = "operator"

// Operator is a privileged account that can obtain credentials.
type Operator struct {
	ID          string
	Email       string
	SecretHash  string
	DisplayName string
	Role        Role
	Active      bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeEmail trims and lower-cases an email for lookup and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the operator for persistence. Returns an error describing the first validation failure.
func (o *Operator) Validate() error {
	if o.ID == "" {
		return errors.New("id is required")
	}
	o.Email = NormalizeEmail(o.Email)
	if o.Email == "" || !strings.Contains(o.Email, "@") {
		return errors.New("valid email is required")
	}
	if o.SecretHash == "" {
		return errors.New("secret hash is required")
	}
	if o.Role == "" {
		o.Role = RoleOperator
	}
	return nil
}

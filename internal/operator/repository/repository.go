package repository

import (
	"context"
	"errors"
	"time"

	"opsgate/internal/operator/domain"
)

// ErrEmailTaken is returned by Create when another operator already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for operator accounts.
// Lookups return (nil, nil) when no row matches; errors are storage failures only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	// GetByEmail matches case-insensitively on the normalized email.
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
	Create(ctx context.Context, o *domain.Operator) error
	// UpdateSecretHash replaces the secret hash. Returns false when no operator has id.
	UpdateSecretHash(ctx context.Context, id, secretHash string, at time.Time) (bool, error)
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

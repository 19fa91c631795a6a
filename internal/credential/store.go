// Package credential authenticates operators and manages their secrets.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opsgate/internal/operator/domain"
	"opsgate/internal/operator/repository"
	"opsgate/internal/security"
)

var (
	// ErrInvalidCredentials is the only authentication failure callers see.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled is matched by an *AuthError whose cause is a disabled account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrNotFound is returned when an operator id does not exist.
	ErrNotFound = errors.New("operator not found")
)

// Cause is the internal reason an authentication attempt failed. It is logged, never returned to clients.
type Cause string

const (
	CauseUnknownEmail    Cause = "unknown_email"
	CauseAccountDisabled Cause = "account_disabled"
	CauseSecretMismatch  Cause = "secret_mismatch"
)

// AuthError carries the precise failure cause. It matches ErrInvalidCredentials for every cause
// and ErrAccountDisabled for a disabled account.
type AuthError struct {
	Cause      Cause
	OperatorID string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + string(e.Cause)
}

// Is reports whether target is one of the sentinels this failure matches.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return true
	case ErrAccountDisabled:
		return e.Cause == CauseAccountDisabled
	}
	return false
}

// Store authenticates operators against their stored secret hash.
type Store struct {
	repo   repository.Repository
	hasher *security.Hasher
	policy *security.SecretPolicy
	now    func() time.Time
}

// NewStore returns a credential store over repo.
func NewStore(repo repository.Repository, hasher *security.Hasher, policy *security.SecretPolicy) *Store {
	if policy == nil {
		policy = security.DefaultSecretPolicy()
	}
	return &Store{repo: repo, hasher: hasher, policy: policy, now: time.Now}
}

// Authenticate returns the operator whose email and secret match. Email lookup is case-insensitive and trimmed.
// Unknown email, disabled account and wrong secret all return an *AuthError; storage failures are returned as is.
func (s *Store) Authenticate(ctx context.Context, email, secret string) (*domain.Operator, error) {
	op, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if op == nil {
		s.hasher.CompareDummy([]byte(secret))
		return nil, &AuthError{Cause: CauseUnknownEmail}
	}
	if err := s.hasher.Compare(op.SecretHash, []byte(secret)); err != nil {
		return nil, &AuthError{Cause: CauseSecretMismatch, OperatorID: op.ID}
	}
	if !op.Active {
		return nil, &AuthError{Cause: CauseAccountDisabled, OperatorID: op.ID}
	}
	return op, nil
}

// VerifySecret checks secret against the stored hash of operator id.
func (s *Store) VerifySecret(ctx context.Context, id, secret string) (*domain.Operator, error) {
	op, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hasher.Compare(op.SecretHash, []byte(secret)); err != nil {
		return nil, &AuthError{Cause: CauseSecretMismatch, OperatorID: op.ID}
	}
	if !op.Active {
		return nil, &AuthError{Cause: CauseAccountDisabled, OperatorID: op.ID}
	}
	return op, nil
}

// CheckSecret applies the secret policy without touching storage.
func (s *Store) CheckSecret(secret string) error {
	return s.policy.Check(secret)
}

// ChangeSecret replaces the secret of operator id. Returns a *security.WeakSecretError when the secret fails
// the policy and ErrNotFound when the operator does not exist.
func (s *Store) ChangeSecret(ctx context.Context, id, newSecret string) error {
	if err := s.policy.Check(newSecret); err != nil {
		return err
	}
	hash, err := s.hasher.Hash([]byte(newSecret))
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	ok, err := s.repo.UpdateSecretHash(ctx, id, hash, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Touch records at as the operator's last login time.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	return s.repo.SetLastLogin(ctx, id, at.UTC())
}

// Get returns operator id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*domain.Operator, error) {
	op, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrNotFound
	}
	return op, nil
}

// Provision creates an active operator account with the given secret.
func (s *Store) Provision(ctx context.Context, email, displayName, secret string) (*domain.Operator, error) {
	if err := s.policy.Check(secret); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}
	now := s.now().UTC()
	op := &domain.Operator{
		ID:          uuid.New().String(),
		Email:       email,
		SecretHash:  hash,
		DisplayName: displayName,
		Role:        domain.RoleOperator,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// SetActive enables or disables operator id.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, active, s.now().UTC())
}

package repository

import (
	"context"
	"sync"
	"time"

	"opsgate/internal/operator/domain"
)

// MemoryRepository keeps operators in process memory. For development mode and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Operator
}

// NewMemoryRepository returns an empty in-memory operator repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Operator)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	email = domain.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.byID {
		if o.Email == email {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, o *domain.Operator) error {
	if err := o.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == o.Email {
			return ErrEmailTaken
		}
	}
	cp := *o
	r.byID[o.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateSecretHash(_ context.Context, id, secretHash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	o.SecretHash = secretHash
	o.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byID[id]; ok {
		t := at
		o.LastLoginAt = &t
	}
	return nil
}

func (r *MemoryRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byID[id]; ok {
		o.Active = active
		o.UpdatedAt = at
	}
	return nil
}

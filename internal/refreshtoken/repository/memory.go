package repository

import (
	"context"
	"sync"
	"time"

	"opsgate/internal/refreshtoken/domain"
)

// MemoryRepository keeps records in process memory. Rotate holds the lock for the whole
// check-delete-insert, so it is linearizable per record. For development mode and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	records  map[string]domain.Record
	consumed map[string]time.Time
}

// NewMemoryRepository returns an empty in-memory refresh token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]domain.Record), consumed: make(map[string]time.Time)}
}

func (r *MemoryRepository) Insert(_ context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = *rec
	return nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, _ string, id string, fn RotateFunc) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.records[id]
	if !ok {
		if _, seen := r.consumed[id]; seen {
			return nil, ErrRecordConsumed
		}
		return nil, ErrRecordNotFound
	}
	next, err := fn(ctx, &old)
	if err != nil {
		return nil, err
	}
	delete(r.records, id)
	r.consumed[id] = old.ExpiresAt
	r.records[next.ID] = *next
	return next, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, ownerID, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.OwnerID != ownerID || rec.TokenHash != tokenHash {
		return false, nil
	}
	delete(r.records, id)
	return true, nil
}

func (r *MemoryRepository) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.OwnerID == ownerID {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.ExpiresAt.Before(before) {
			delete(r.records, id)
			n++
		}
	}
	for id, exp := range r.consumed {
		if exp.Before(before) {
			delete(r.consumed, id)
		}
	}
	return n, nil
}

func (r *MemoryRepository) CountActive(_ context.Context, ownerID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if rec.OwnerID == ownerID && !rec.Expired(now) {
			n++
		}
	}
	return n, nil
}

// consumedCount reports how many consumed-id markers are held.
func (r *MemoryRepository) consumedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumed)
}

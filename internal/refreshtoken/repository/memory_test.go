package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsgate/internal/refreshtoken/domain"
)

func successor(now time.Time) RotateFunc {
	return func(_ context.Context, old *domain.Record) (*domain.Record, error) {
		return &domain.Record{ID: uuid.New().String(), OwnerID: old.OwnerID, TokenHash: "next",
			ParentID: old.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
	}
}

func TestMemoryRepository_ConsumedChain(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.Record{ID: uuid.New().String(), OwnerID: "op-1", TokenHash: "a", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Insert(ctx, a))

	b, err := repo.Rotate(ctx, "op-1", a.ID, successor(now))
	require.NoError(t, err)
	c, err := repo.Rotate(ctx, "op-1", b.ID, successor(now))
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, "op-1", a.ID, successor(now))
	assert.ErrorIs(t, err, ErrRecordConsumed)

	ok, err := repo.Delete(ctx, c.ID, "op-1", c.TokenHash)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = repo.Rotate(ctx, "op-1", b.ID, successor(now))
	assert.ErrorIs(t, err, ErrRecordConsumed)
	_, err = repo.Rotate(ctx, "op-1", c.ID, successor(now))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryRepository_SweepPrunesConsumed(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := &domain.Record{ID: uuid.New().String(), OwnerID: "op-1", TokenHash: "s", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, repo.Insert(ctx, stale))
	_, err := repo.Rotate(ctx, "op-1", stale.ID, successor(now))
	require.NoError(t, err)
	require.Equal(t, 1, repo.consumedCount())

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n, "the live successor is not expired")
	assert.Zero(t, repo.consumedCount())

	_, err = repo.Rotate(ctx, "op-1", stale.ID, successor(now))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryRepository_RejectedRotationKeepsRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.Record{ID: uuid.New().String(), OwnerID: "op-1", TokenHash: "a", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Insert(ctx, a))

	_, err := repo.Rotate(ctx, "op-1", a.ID, func(context.Context, *domain.Record) (*domain.Record, error) {
		return nil, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, repo.consumedCount())
	n, err := repo.CountActive(ctx, "op-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

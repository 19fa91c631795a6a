package repository

import (
	"context"
	"errors"
	"time"

	"opsgate/internal/refreshtoken/domain"
)

var (
	// ErrRecordNotFound is returned by Rotate when the record was never issued or was revoked without rotation.
	ErrRecordNotFound = errors.New("refresh record not found")
	// ErrRecordConsumed is returned by Rotate when the record was already rotated. Consumed ids are
	// remembered until the record would have expired, however many rotations followed.
	ErrRecordConsumed = errors.New("refresh record already rotated")
)

// RotateFunc validates the consumed record and builds its replacement. ctx carries the rotation's
// unit of work. An error aborts the rotation and leaves the consumed record in place.
type RotateFunc func(ctx context.Context, old *domain.Record) (*domain.Record, error)

// Repository defines persistence for refresh token records.
type Repository interface {
	Insert(ctx context.Context, rec *domain.Record) error
	// Rotate atomically deletes record id, remembers it as consumed and inserts the record fn returns.
	// It serializes with DeleteByOwner for the same ownerID.
	Rotate(ctx context.Context, ownerID, id string, fn RotateFunc) (*domain.Record, error)
	// Delete removes record id when it belongs to ownerID and carries tokenHash.
	Delete(ctx context.Context, id, ownerID, tokenHash string) (bool, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
	// DeleteExpired removes records, and consumed-id markers, whose expiry is strictly before the
	// given time. The count covers records only.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	CountActive(ctx context.Context, ownerID string, now time.Time) (int64, error)
}

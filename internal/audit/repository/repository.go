package repository

import (
	"context"
	"time"

	"opsgate/internal/audit/domain"
)

// Filter narrows List. Zero fields match everything; Limit 0 means 100.
type Filter struct {
	ActorID string
	Action  domain.Action
	Since   time.Time
	Limit   int
}

// Repository defines append-only persistence for audit events.
type Repository interface {
	Append(ctx context.Context, e *domain.Event) error
	// List returns events ordered by CreatedAt, then ID.
	List(ctx context.Context, f Filter) ([]*domain.Event, error)
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Package producer mirrors audit events to a message broker.
package producer

import (
	"context"

	"opsgate/internal/audit/domain"
)

// Producer publishes audit events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit publishes a single event. Implementations may block briefly.
	Emit(ctx context.Context, event *domain.Event) error
	// Close flushes and releases resources. Safe to call if already closed.
	Close() error
}

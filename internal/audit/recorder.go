// Package audit records security-relevant state changes to the append-only audit trail.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsgate/internal/audit/domain"
	auditrepo "opsgate/internal/audit/repository"
	"opsgate/internal/db"
	"opsgate/internal/telemetry"
)

// ErrInvalidEvent is returned by Append for events missing an action or entity type.
var ErrInvalidEvent = errors.New("invalid audit event")

// Recorder writes audit events. Append is durable and synchronous; Record is best-effort.
// Once an insert is committed the event is mirrored to the configured sinks without blocking the caller.
type Recorder struct {
	repo   auditrepo.Repository
	mirror telemetry.EventEmitter
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMirror adds best-effort sinks (OTel logs, Kafka). nil emitters are ignored.
func WithMirror(emitters ...telemetry.EventEmitter) Option {
	return func(r *Recorder) {
		var fan telemetry.Fanout
		for _, em := range emitters {
			if em != nil {
				fan = append(fan, em)
			}
		}
		if len(fan) > 0 {
			r.mirror = fan
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns a Recorder persisting to repo.
func NewRecorder(repo auditrepo.Repository, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append validates and durably inserts e. Called with a unit-of-work context it joins that transaction,
// and the mirror fires only after commit. Storage errors wrap db.ErrStorageFailure.
func (r *Recorder) Append(ctx context.Context, e *domain.Event) error {
	if e == nil {
		return ErrInvalidEvent
	}
	if err := e.Validate(r.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := r.repo.Append(ctx, e); err != nil {
		return db.Wrap("append audit event", err)
	}
	if r.mirror != nil {
		snapshot := *e
		db.AfterCommit(ctx, func() {
			telemetry.EmitAsync(r.mirror, r.logger, &snapshot)
		})
	}
	return nil
}

// Record is Append for routine events: failures are logged with the event's action and swallowed.
func (r *Recorder) Record(ctx context.Context, e *domain.Event) {
	if err := r.Append(ctx, e); err != nil {
		attrs := []any{"error", err}
		if e != nil {
			attrs = append(attrs, "action", string(e.Action), "actor_id", e.ActorID)
		}
		r.logger.ErrorContext(ctx, "audit record failed", attrs...)
	}
}

// List returns stored events matching f, ordered by CreatedAt then ID.
func (r *Recorder) List(ctx context.Context, f auditrepo.Filter) ([]*domain.Event, error) {
	events, err := r.repo.List(ctx, f)
	if err != nil {
		return nil, db.Wrap("list audit events", err)
	}
	return events, nil
}

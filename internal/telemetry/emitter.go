// Package telemetry mirrors audit events to external sinks without blocking the caller.
package telemetry

import (
	"context"

	"opsgate/internal/audit/domain"
)

// EventEmitter mirrors one audit event to an external sink (OTel logs, Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Fanout emits to every emitter in order and returns the first error after trying all of them.
type Fanout []EventEmitter

// Emit implements EventEmitter.
func (f Fanout) Emit(ctx context.Context, event *domain.Event) error {
	var first error
	for _, em := range f {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Observed wraps em so onError runs once for every failed emit. A nil em stays nil.
func Observed(em EventEmitter, onError func()) EventEmitter {
	if em == nil || onError == nil {
		return em
	}
	return observed{inner: em, onError: onError}
}

type observed struct {
	inner   EventEmitter
	onError func()
}

func (o observed) Emit(ctx context.Context, event *domain.Event) error {
	err := o.inner.Emit(ctx, event)
	if err != nil {
		o.onError()
	}
	return err
}

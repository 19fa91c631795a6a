package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"opsgate/internal/audit/domain"
	"opsgate/internal/telemetry"
)

const instrumentationName = "opsgate.audit"

// recordEmitter is the subset of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends audit events as OTel log records via provider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger is NewEventEmitter over an explicit record sink.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the audit event to an OTel log record. The body carries old and new values as JSON.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName("audit." + string(event.Action))
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)

	if len(event.OldValues) > 0 || len(event.NewValues) > 0 {
		body, err := json.Marshal(struct {
			Old map[string]any `json:"old,omitempty"`
			New map[string]any `json:"new,omitempty"`
		}{event.OldValues, event.NewValues})
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}

	for _, kv := range []struct{ key, val string }{
		{"event_id", event.ID},
		{"action", string(event.Action)},
		{"entity_type", event.EntityType},
		{"entity_id", event.EntityID},
		{"actor_id", event.ActorID},
		{"client_ip", event.ClientIP},
		{"user_agent", event.UserAgent},
		{"description", event.Description},
	} {
		if kv.val != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.val))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}

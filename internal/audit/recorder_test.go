package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsgate/internal/audit/domain"
	auditrepo "opsgate/internal/audit/repository"
	"opsgate/internal/db"
)

type failingRepo struct{}

func (failingRepo) Append(context.Context, *domain.Event) error {
	return errors.New("connection reset")
}
func (failingRepo) List(context.Context, auditrepo.Filter) ([]*domain.Event, error) {
	return nil, errors.New("connection reset")
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
	got    chan struct{}
}

func newCapture() *captureEmitter {
	return &captureEmitter{got: make(chan struct{}, 8)}
}

func (c *captureEmitter) Emit(_ context.Context, e *domain.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func fixedClock() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestRecorder_AppendFillsIDAndTime(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	r := NewRecorder(repo, nil, WithClock(fixedClock))

	e := &domain.Event{Action: domain.ActionLogin, EntityType: domain.EntityOperator, ActorID: "op-1"}
	if err := r.Append(context.Background(), e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.ID == "" {
		t.Error("ID should be assigned")
	}
	if !e.CreatedAt.Equal(fixedClock()) {
		t.Errorf("CreatedAt = %v", e.CreatedAt)
	}
	events, err := r.List(context.Background(), auditrepo.Filter{ActorID: "op-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}

func TestRecorder_AppendRejectsInvalid(t *testing.T) {
	r := NewRecorder(auditrepo.NewMemoryRepository(), nil)
	if err := r.Append(context.Background(), nil); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("nil event: got %v", err)
	}
	if err := r.Append(context.Background(), &domain.Event{Action: "rename", EntityType: "operator"}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("unknown action: got %v", err)
	}
	if err := r.Append(context.Background(), &domain.Event{Action: domain.ActionLogin}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing entity type: got %v", err)
	}
}

func TestRecorder_AppendStorageFailure(t *testing.T) {
	r := NewRecorder(failingRepo{}, nil)
	err := r.Append(context.Background(), &domain.Event{Action: domain.ActionUpdate, EntityType: domain.EntityOperator})
	if !errors.Is(err, db.ErrStorageFailure) {
		t.Fatalf("Append error = %v, want ErrStorageFailure", err)
	}
	if _, err := r.List(context.Background(), auditrepo.Filter{}); !errors.Is(err, db.ErrStorageFailure) {
		t.Errorf("List error = %v, want ErrStorageFailure", err)
	}
}

func TestRecorder_RecordSwallowsFailure(t *testing.T) {
	r := NewRecorder(failingRepo{}, nil)
	// must not panic or block
	r.Record(context.Background(), &domain.Event{Action: domain.ActionLogout, EntityType: domain.EntityOperator})
	r.Record(context.Background(), nil)
}

func TestRecorder_MirrorsAfterInsert(t *testing.T) {
	cap := newCapture()
	r := NewRecorder(auditrepo.NewMemoryRepository(), nil, WithMirror(nil, cap))
	if err := r.Append(context.Background(), &domain.Event{Action: domain.ActionLogin, EntityType: domain.EntityOperator}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	select {
	case <-cap.got:
	case <-time.After(time.Second):
		t.Fatal("event was not mirrored")
	}
}

func TestRecorder_MirrorWaitsForCommit(t *testing.T) {
	cap := newCapture()
	repo := auditrepo.NewMemoryRepository()
	r := NewRecorder(repo, nil, WithMirror(cap))
	var tr db.MemoryTransactor

	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := r.Append(ctx, &domain.Event{Action: domain.ActionUpdate, EntityType: domain.EntityOperator}); err != nil {
			return err
		}
		return errors.New("later step failed")
	})
	if err == nil {
		t.Fatal("WithinTx should fail")
	}
	time.Sleep(50 * time.Millisecond)
	if cap.count() != 0 {
		t.Errorf("mirrored %d events from a failed unit of work", cap.count())
	}

	err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
		return r.Append(ctx, &domain.Event{Action: domain.ActionUpdate, EntityType: domain.EntityOperator})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	select {
	case <-cap.got:
	case <-time.After(time.Second):
		t.Fatal("committed event was not mirrored")
	}
}

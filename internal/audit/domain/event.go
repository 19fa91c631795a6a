package domain

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Action is the kind of state change an audit event records.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionStatusChange Action = "status_change"
	ActionReview       Action = "review"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout,
		ActionStatusChange, ActionReview, ActionApprove, ActionReject:
		return true
	}
	return false
}

// EntityOperator is the entity type of events about operator accounts and their sessions.
const EntityOperator = "operator"

// Event is one append-only audit record. Events are ordered by CreatedAt, then ID.
// Values never carry secrets or token material.
type Event struct {
	ID          string         `json:"id"`
	Action      Action         `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId,omitempty"`
	OldValues   map[string]any `json:"oldValues,omitempty"`
	NewValues   map[string]any `json:"newValues,omitempty"`
	ActorID     string         `json:"actorId,omitempty"`
	ClientIP    string         `json:"clientIp,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewID returns a time-ordered event id.
func NewID() string {
	return ulid.Make().String()
}

// Validate fills ID and CreatedAt when unset and checks required fields.
func (e *Event) Validate(now time.Time) error {
	if !e.Action.Valid() {
		return errors.New("unknown audit action")
	}
	if e.EntityType == "" {
		return errors.New("entity type is required")
	}
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	return nil
}

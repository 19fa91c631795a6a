package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"opsgate/internal/audit/domain"
	"opsgate/internal/db"
)

// PostgresRepository stores events in audit_events. The table rejects UPDATE and DELETE.
type PostgresRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: conn, timeout: timeout}
}

// Append inserts e. Inside a transaction carried by ctx the insert commits or rolls back with it.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Event) error {
	oldValues, err := marshalValues(e.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalValues(e.NewValues)
	if err != nil {
		return err
	}
	actor := sql.NullString{String: e.ActorID, Valid: e.ActorID != ""}

	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err = db.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO audit_events (id, action, entity_type, entity_id, old_values, new_values,
			actor_id, client_ip, user_agent, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, string(e.Action), e.EntityType, e.EntityID, oldValues, newValues,
		actor, e.ClientIP, e.UserAgent, e.Description, e.CreatedAt)
	return db.Wrap("append audit event", err)
}

// List returns events matching f ordered by created_at, id.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*domain.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.ActorID != "" {
		add("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since)
	}
	query := `SELECT id, action, entity_type, entity_id, old_values, new_values, actor_id,
		client_ip, user_agent, description, created_at FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += " ORDER BY created_at, id LIMIT $" + strconv.Itoa(len(args))

	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Wrap("list audit events", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			e              domain.Event
			action         string
			oldRaw, newRaw []byte
			actor          sql.NullString
		)
		if err := rows.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &oldRaw, &newRaw, &actor,
			&e.ClientIP, &e.UserAgent, &e.Description, &e.CreatedAt); err != nil {
			return nil, db.Wrap("scan audit event", err)
		}
		e.Action = domain.Action(action)
		e.ActorID = actor.String
		if e.OldValues, err = unmarshalValues(oldRaw); err != nil {
			return nil, err
		}
		if e.NewValues, err = unmarshalValues(newRaw); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, db.Wrap("list audit events", rows.Err())
}

func marshalValues(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalValues(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

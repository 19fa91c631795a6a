package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"opsgate/internal/db"
	"opsgate/internal/refreshtoken/domain"
)

// PostgresRepository stores records in refresh_tokens and consumed ids in refresh_tokens_consumed.
// Rotation holds the owner's operators row FOR SHARE and DeleteByOwner holds it FOR UPDATE, so a
// revocation never misses a successor inserted by a rotation running beside it. Within one owner,
// DELETE ... RETURNING takes the record's row lock, so concurrent rotations of a record serialize.
type PostgresRepository struct {
	db      *sql.DB
	tx      db.Transactor
	timeout time.Duration
}

const (
	lockOwnerShared    = `SELECT 1 FROM operators WHERE id = $1 FOR SHARE`
	lockOwnerExclusive = `SELECT 1 FROM operators WHERE id = $1 FOR UPDATE`
)

// NewPostgresRepository returns a refresh token repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: conn, tx: db.NewSQLTransactor(conn), timeout: timeout}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *domain.Record) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return db.Wrap("insert refresh record", insert(ctx, db.Conn(ctx, r.db), rec))
}

func (r *PostgresRepository) Rotate(ctx context.Context, ownerID, id string, fn RotateFunc) (*domain.Record, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	var next *domain.Record
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.db)
		var one int
		err := q.QueryRowContext(ctx, lockOwnerShared, ownerID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return db.Wrap("lock refresh owner", err)
		}

		old, err := scanRecord(q.QueryRowContext(ctx, `
			DELETE FROM refresh_tokens WHERE id = $1
			RETURNING id, owner_id, token_hash, parent_id, issued_at, expires_at`, id))
		if errors.Is(err, sql.ErrNoRows) {
			var consumed bool
			if err := q.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM refresh_tokens_consumed WHERE id = $1)`, id).Scan(&consumed); err != nil {
				return db.Wrap("lookup consumed refresh record", err)
			}
			if consumed {
				return ErrRecordConsumed
			}
			return ErrRecordNotFound
		}
		if err != nil {
			return db.Wrap("consume refresh record", err)
		}
		next, err = fn(ctx, old)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO refresh_tokens_consumed (id, owner_id, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`, old.ID, old.OwnerID, old.ExpiresAt); err != nil {
			return db.Wrap("mark refresh record consumed", err)
		}
		return db.Wrap("insert refresh record", insert(ctx, q, next))
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID, tokenHash string) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE id = $1 AND owner_id = $2 AND token_hash = $3`, id, ownerID, tokenHash)
	if err != nil {
		return false, db.Wrap("delete refresh record", err)
	}
	n, err := res.RowsAffected()
	return n == 1, db.Wrap("delete refresh record", err)
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int64
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var one int
		err := db.Conn(ctx, r.db).QueryRowContext(ctx, lockOwnerExclusive, ownerID).Scan(&one)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return db.Wrap("lock refresh owner", err)
		}
		n, err = r.execCount(ctx, "revoke owner refresh records", `DELETE FROM refresh_tokens WHERE owner_id = $1`, ownerID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.execCount(ctx, "sweep refresh records", `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	if _, err := r.execCount(ctx, "sweep consumed refresh records",
		`DELETE FROM refresh_tokens_consumed WHERE expires_at < $1`, before); err != nil {
		return n, err
	}
	return n, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	var n int64
	err := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT count(*) FROM refresh_tokens WHERE owner_id = $1 AND expires_at > $2`, ownerID, now).Scan(&n)
	return n, db.Wrap("count refresh records", err)
}

func (r *PostgresRepository) execCount(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, db.Wrap(op, err)
	}
	n, err := res.RowsAffected()
	return n, db.Wrap(op, err)
}

func insert(ctx context.Context, q db.Querier, rec *domain.Record) error {
	parent := sql.NullString{String: rec.ParentID, Valid: rec.ParentID != ""}
	_, err := q.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, owner_id, token_hash, parent_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.OwnerID, rec.TokenHash, parent, rec.IssuedAt, rec.ExpiresAt)
	return err
}

func scanRecord(row *sql.Row) (*domain.Record, error) {
	var (
		rec    domain.Record
		parent sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.TokenHash, &parent, &rec.IssuedAt, &rec.ExpiresAt); err != nil {
		return nil, err
	}
	rec.ParentID = parent.String
	return &rec, nil
}

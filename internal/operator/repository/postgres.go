package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"opsgate/internal/db"
	"opsgate/internal/operator/domain"
)

const operatorColumns = `id, email, secret_hash, display_name, role, active, last_login_at, created_at, updated_at`

// PostgresRepository stores operators in the operators table.
type PostgresRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRepository returns an operator repository that uses the given db for persistence.
// timeout bounds each statement; zero disables the bound.
func NewPostgresRepository(conn *sql.DB, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: conn, timeout: timeout}
}

// GetByID returns the operator for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = $1`, id)
	o, err := scanOperator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, db.Wrap("get operator", err)
}

// GetByEmail returns the operator with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	row := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE lower(email) = $1`, domain.NormalizeEmail(email))
	o, err := scanOperator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, db.Wrap("get operator by email", err)
}

// Create persists the operator. The operator must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, o *domain.Operator) error {
	if err := o.Validate(); err != nil {
		return err
	}
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO operators (`+operatorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.Email, o.SecretHash, o.DisplayName, string(o.Role), o.Active, o.LastLoginAt, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return db.Wrap("create operator", err)
}

// UpdateSecretHash replaces the stored secret hash and bumps updated_at.
func (r *PostgresRepository) UpdateSecretHash(ctx context.Context, id, secretHash string, at time.Time) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE operators SET secret_hash = $2, updated_at = $3 WHERE id = $1`, id, secretHash, at)
	if err != nil {
		return false, db.Wrap("update operator secret", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.Wrap("update operator secret", err)
	}
	return n == 1, nil
}

// SetLastLogin records the time of the latest successful login.
func (r *PostgresRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `UPDATE operators SET last_login_at = $2 WHERE id = $1`, id, at)
	return db.Wrap("set operator last login", err)
}

// SetActive enables or disables the account.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE operators SET active = $2, updated_at = $3 WHERE id = $1`, id, active, at)
	return db.Wrap("set operator active", err)
}

func scanOperator(row *sql.Row) (*domain.Operator, error) {
	var (
		o         domain.Operator
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.Email, &o.SecretHash, &o.DisplayName, &role, &o.Active, &lastLogin, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Role = domain.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		o.LastLoginAt = &t
	}
	return &o, nil
}

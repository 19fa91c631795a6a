package db

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// Querier is the subset of *sql.DB and *sql.Tx used by the Postgres repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream repository usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// TxFrom extracts a SQL transaction from context if present.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx, or conn when there is none.
func Conn(ctx context.Context, conn *sql.DB) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return conn
}

// Transactor runs fn inside a single unit of work. Repositories called with the ctx passed to fn
// join that unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type hooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *commitHooks) run() {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AfterCommit defers fn until the unit of work carried by ctx commits. fn is dropped on rollback.
// Outside a unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	h, ok := ctx.Value(hooksKey{}).(*commitHooks)
	if !ok {
		fn()
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func withHooks(ctx context.Context) (context.Context, *commitHooks) {
	h := &commitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// SQLTransactor runs units of work as Postgres transactions.
type SQLTransactor struct {
	db *sql.DB
}

// NewSQLTransactor returns a Transactor backed by conn.
func NewSQLTransactor(conn *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: conn}
}

// WithinTx begins a transaction, runs fn and commits. Any error from fn, or a panic, rolls back.
// Nested calls reuse the outer transaction.
func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap("begin tx", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	txCtx, hooks := withHooks(WithTx(ctx, tx))
	if err = fn(txCtx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return Wrap("commit tx", err)
	}
	hooks.run()
	return nil
}

// MemoryTransactor serializes units of work over the in-memory repositories.
// It does not roll back partial writes; in-memory mode is for development and tests.
type MemoryTransactor struct {
	mu sync.Mutex
}

type memTxKey struct{}

// WithinTx runs fn while holding the transactor lock. Nested calls run inline.
func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	txCtx, hooks := withHooks(context.WithValue(ctx, memTxKey{}, true))
	err := func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		return fn(txCtx)
	}()
	if err != nil {
		return err
	}
	hooks.run()
	return nil
}

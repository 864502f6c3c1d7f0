package database

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxManager runs units of work in a Postgres transaction carried by the context.
type TxManager struct {
	db        *sql.DB
	isolation sql.IsolationLevel
	lockWait  string
}

// TxOption configures the manager.
type TxOption func(*TxManager)

// WithIsolation overrides the default READ COMMITTED isolation level.
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(m *TxManager) {
		m.isolation = level
	}
}

// WithLockTimeout sets a per-transaction lock_timeout, e.g. "2s".
func WithLockTimeout(timeout string) TxOption {
	return func(m *TxManager) {
		m.lockWait = timeout
	}
}

// NewTxManager constructs a transaction manager.
func NewTxManager(db *sql.DB, opts ...TxOption) *TxManager {
	m := &TxManager{db: db, isolation: sql.LevelReadCommitted}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunInTx executes fn inside a transaction. Nested calls join the outer one.
// The transaction commits only when fn returns nil and ctx is still live.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if m == nil || m.db == nil {
		return errors.New("tx manager: nil db")
	}
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: m.isolation})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if m.lockWait != "" {
		if _, err = tx.ExecContext(ctx, "SELECT set_config('lock_timeout', $1, true)", m.lockWait); err != nil {
			return err
		}
	}
	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	return tx.Commit()
}

// Conn returns the transaction bound to ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

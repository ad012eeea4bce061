package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
)

// Runner is the common query surface of *sql.DB and *sql.Tx. Engine
// operations receive a Runner so that nested calls share the transaction
// they were started under.
type Runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor wraps a database connection with statement logging.
type Executor struct {
	db *sql.DB
}

// NewExecutor creates a new database executor.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// DB exposes the underlying connection.
func (e *Executor) DB() *sql.DB {
	return e.db
}

// Query executes a SELECT statement and returns rows.
func (e *Executor) Query(ctx context.Context, r Runner, query string, args ...any) (*sql.Rows, error) {
	logx.WithContext(ctx).Debugf("query: %s args: %v", query, args)
	return r.QueryContext(ctx, query, args...)
}

// Exec executes a non-SELECT statement.
func (e *Executor) Exec(ctx context.Context, r Runner, query string, args ...any) (sql.Result, error) {
	logx.WithContext(ctx).Debugf("exec: %s args: %v", query, args)
	return r.ExecContext(ctx, query, args...)
}

// Close closes the database connection.
func (e *Executor) Close() error {
	return e.db.Close()
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logx.WithContext(ctx).Errorf("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// OpenDB opens a driver://uri DSN the way the CLI accepts it.
func OpenDB(dsn string) (*sql.DB, error) {
	split := strings.SplitN(dsn, "://", 2)
	if len(split) != 2 {
		return nil, fmt.Errorf("invalid dsn %q, expected driver://uri", dsn)
	}
	driver, uri := split[0], split[1]
	if driver == "postgres" {
		// lib/pq expects the full URL including the scheme.
		uri = dsn
	}
	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Package store implements the relational-store side of the pipeline: the
// pgx connection wrapper, the table descriptors, the bulk loader and the
// partition compactor.
package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is a single result row.
type Row interface {
	Scan(dest ...any) error
}

// Conn is the store surface the loader and the pipeline depend on. *DB is
// the production implementation; tests substitute fakes.
type Conn interface {
	// Exec runs a statement.
	Exec(ctx context.Context, sql string, args ...any) error
	// ExecAll runs the statements inside a single transaction.
	ExecAll(ctx context.Context, sqls ...string) error
	// Query streams rows to fn.
	Query(ctx context.Context, sql string, fn func(Row) error, args ...any) error
	// CopyFrom bulk-loads delimited text into the table.
	CopyFrom(ctx context.Context, table string, r io.Reader) error
}

// DB is the pgx-backed store connection.
type DB struct {
	pool *pgxpool.Pool
}

var _ Conn = (*DB)(nil)

// New connects to the relational store.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Exec runs a statement, annotating errors with the SQL.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := db.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("unable to execute update %q: %w", sql, err)
	}
	return nil
}

// ExecAll runs the statements inside one transaction.
func (db *DB) ExecAll(ctx context.Context, sqls ...string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, sql := range sqls {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("unable to execute update %q: %w", sql, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unable to commit transaction: %w", err)
	}
	return nil
}

// Query streams result rows to fn. pgx delivers rows incrementally, so
// memory stays bounded for arbitrarily large result sets.
func (db *DB) Query(ctx context.Context, sql string, fn func(Row) error, args ...any) error {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("unable to execute query %q: %w", sql, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("unable to execute query %q: %w", sql, err)
	}
	return nil
}

// CopyFrom bulk-loads tab-delimited text into table using the store's
// native COPY path.
func (db *DB) CopyFrom(ctx context.Context, table string, r io.Reader) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("unable to acquire connection: %w", err)
	}
	defer conn.Release()

	sql := fmt.Sprintf("COPY %s FROM STDIN", table)
	if _, err := conn.Conn().PgConn().CopyFrom(ctx, r, sql); err != nil {
		return fmt.Errorf("unable to execute %q: %w", sql, err)
	}
	return nil
}

// QueryTime runs a single-row, single-column timestamp query. The second
// return value is false when the query yields no rows.
func QueryTime(ctx context.Context, c Conn, sql string, args ...any) (time.Time, bool, error) {
	var t time.Time
	found := false
	err := c.Query(ctx, sql, func(row Row) error {
		if err := row.Scan(&t); err != nil {
			return err
		}
		found = true
		return nil
	}, args...)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, found, nil
}

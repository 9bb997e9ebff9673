// Package db provides shared Postgres helpers: connection setup and bulk
// COPY loading used by the checkpoint store.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the stores use. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// Connect opens a pgxpool against the given connection string.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "db: connect")
	}
	return pool, nil
}

// CopyInto bulk-inserts rows into a table using the PostgreSQL COPY protocol.
func CopyInto(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// ReplaceRows deletes the rows matching keyColumn = keyValue and bulk-loads
// the replacements. Callers use it to refresh a table partition atomically
// enough for single-writer pipelines.
func ReplaceRows(ctx context.Context, pool Pool, table, keyColumn string, keyValue any, columns []string, rows [][]any) (int64, error) {
	del := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, keyColumn)
	if _, err := pool.Exec(ctx, del, keyValue); err != nil {
		return 0, eris.Wrapf(err, "db: clear %s rows", table)
	}
	return CopyInto(ctx, pool, table, columns, rows)
}

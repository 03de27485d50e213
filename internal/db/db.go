// Package db holds the pgx repositories behind CourseFlow's scheduling,
// outbox and content stores. Every repository is constructed over a DBTX,
// so callers decide whether a method runs on the pool directly or joins an
// open transaction.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface common to *pgxpool.Pool and pgx.Tx. Repository
// methods never begin or commit transactions themselves; whoever owns the
// DBTX does.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the repositories use. pgxmock pools
// satisfy it as well.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const advisoryLockQuery = `SELECT pg_advisory_xact_lock($1)`

// withThreadLocks runs fn in a transaction holding the advisory lock of every
// thread id. Locks are taken in ascending order so concurrent callers cannot
// deadlock on overlapping id sets.
func withThreadLocks(ctx context.Context, db DBTX, threadIDs []int64, fn func(tx pgx.Tx) error) error {
	ids := append([]int64(nil), threadIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning conversation transaction: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx, advisoryLockQuery, id); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("locking thread %d: %w", id, err)
		}
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing conversation transaction: %w", err)
	}
	return nil
}

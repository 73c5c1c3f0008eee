// Package postgres implements the store contracts on Postgres through pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitysync/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository provides Postgres-backed persistence for connections, sync runs, activities,
// planned sessions and athlete profiles.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ domain.ConnectionStore = (*Repository)(nil)
	_ domain.SyncRunStore    = (*Repository)(nil)
	_ domain.ActivityStore   = (*Repository)(nil)
	_ domain.SessionStore    = (*Repository)(nil)
	_ domain.ProfileStore    = (*Repository)(nil)
)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// withTx runs fn inside a transaction and commits when it returns nil.
func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

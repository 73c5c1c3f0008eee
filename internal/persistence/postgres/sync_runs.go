package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/activitysync/internal/domain"
)

const syncRunColumns = `sync_run_id::text, athlete_id, provider, status, queued_at, started_at, finished_at, reason, activity_count, link_from`

// CreateSyncRun implements domain.SyncRunStore.
func (r *Repository) CreateSyncRun(ctx context.Context, run domain.SyncRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_runs (sync_run_id, athlete_id, provider, status, queued_at, started_at, finished_at, reason, activity_count, link_from)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		run.ID, run.AthleteID, run.Provider, string(run.Status), run.QueuedAt, run.StartedAt, run.FinishedAt, run.Reason, run.ActivityCount, run.LinkFrom,
	)
	return err
}

// GetSyncRun implements domain.SyncRunStore. Ids that are not UUIDs cannot exist.
func (r *Repository) GetSyncRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE sync_run_id=$1`, id)
	run, err := scanSyncRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// TransitionSyncRun implements domain.SyncRunStore.
func (r *Repository) TransitionSyncRun(ctx context.Context, id string, t domain.SyncRunTransition) error {
	var startedAt, finishedAt *time.Time
	if t.Status == domain.SyncStatusRunning {
		startedAt = &t.At
	}
	if t.Status.Terminal() {
		finishedAt = &t.At
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE sync_runs
            SET status=$2, reason=$3, activity_count=$4,
                started_at=COALESCE($5, started_at),
                finished_at=COALESCE($6, finished_at),
                link_from=COALESCE($7, link_from)
          WHERE sync_run_id=$1 AND status NOT IN ('success', 'failed')`,
		id, string(t.Status), t.Reason, t.Count, startedAt, finishedAt, t.LinkFrom,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := r.GetSyncRun(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrSyncRunNotFound
	}
	return domain.ErrSyncRunTerminal
}

// ListSyncRuns implements domain.SyncRunStore, newest first.
func (r *Repository) ListSyncRuns(ctx context.Context, athleteID, provider string, cursor *domain.SyncRunCursor, limit int) ([]domain.SyncRun, *domain.SyncRunCursor, error) {
	args := []any{athleteID, limit}
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE athlete_id=$1`

	if provider != "" {
		args = append(args, provider)
		query += ` AND provider=$3`
	}
	if cursor != nil {
		n := len(args)
		args = append(args, cursor.QueuedAt, cursor.ID)
		query += ` AND (queued_at, sync_run_id::text) < ($` + strconv.Itoa(n+1) + `, $` + strconv.Itoa(n+2) + `)`
	}
	query += ` ORDER BY queued_at DESC, sync_run_id::text DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.SyncRun, 0, limit)
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.SyncRunCursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.SyncRunCursor{QueuedAt: last.QueuedAt, ID: last.ID}
	}
	return results, next, nil
}

func scanSyncRun(row pgx.Row) (domain.SyncRun, error) {
	var (
		run    domain.SyncRun
		status string
	)
	if err := row.Scan(&run.ID, &run.AthleteID, &run.Provider, &status, &run.QueuedAt, &run.StartedAt, &run.FinishedAt, &run.Reason, &run.ActivityCount, &run.LinkFrom); err != nil {
		return domain.SyncRun{}, err
	}
	run.Status = domain.SyncStatus(status)
	return run, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/activitysync/internal/domain"
)

const activityColumns = `activity_id, athlete_id, provider, external_id, sport, started_at, start_utc_offset_seconds, duration_seconds,
        distance_meters, elevation_gain_meters, raw_payload, planned_session_id, deleted_at, created_at, updated_at`

// FindActivityByKey implements domain.ActivityStore.
func (r *Repository) FindActivityByKey(ctx context.Context, athleteID, provider, externalID string) (*domain.ExternalActivity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM external_activities WHERE athlete_id=$1 AND provider=$2 AND external_id=$3`,
		athleteID, provider, externalID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// InsertActivity implements domain.ActivityStore. A concurrent insert of the same key turns
// into an overwrite that also revives and unlinks the row, matching Persister semantics.
func (r *Repository) InsertActivity(ctx context.Context, activity *domain.ExternalActivity) error {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO external_activities (athlete_id, provider, external_id, sport, started_at, start_utc_offset_seconds,
                duration_seconds, distance_meters, elevation_gain_meters, raw_payload, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
         ON CONFLICT (athlete_id, provider, external_id) DO UPDATE
            SET sport=EXCLUDED.sport,
                started_at=EXCLUDED.started_at,
                start_utc_offset_seconds=EXCLUDED.start_utc_offset_seconds,
                duration_seconds=EXCLUDED.duration_seconds,
                distance_meters=EXCLUDED.distance_meters,
                elevation_gain_meters=EXCLUDED.elevation_gain_meters,
                raw_payload=EXCLUDED.raw_payload,
                planned_session_id=NULL,
                deleted_at=NULL,
                updated_at=EXCLUDED.updated_at
         RETURNING activity_id, created_at`,
		activity.AthleteID, activity.Provider, activity.ExternalID, activity.Sport,
		nullTime(activity.StartedAt), domain.UTCOffset(activity.StartedAt),
		activity.DurationSeconds, activity.DistanceMeters, activity.ElevationGainMeters,
		payloadParam(activity.RawPayload), activity.CreatedAt, activity.UpdatedAt,
	)
	if err := row.Scan(&activity.ID, &activity.CreatedAt); err != nil {
		return fmt.Errorf("insert external activity: %w", err)
	}
	activity.PlannedSessionID = nil
	activity.DeletedAt = nil
	return nil
}

// UpdateActivity implements domain.ActivityStore.
func (r *Repository) UpdateActivity(ctx context.Context, activity *domain.ExternalActivity) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE external_activities
            SET sport=$2, started_at=$3, start_utc_offset_seconds=$4, duration_seconds=$5,
                distance_meters=$6, elevation_gain_meters=$7, raw_payload=$8,
                planned_session_id=$9, deleted_at=$10, updated_at=$11
          WHERE activity_id=$1`,
		activity.ID, activity.Sport, nullTime(activity.StartedAt), domain.UTCOffset(activity.StartedAt),
		activity.DurationSeconds, activity.DistanceMeters, activity.ElevationGainMeters,
		payloadParam(activity.RawPayload), activity.PlannedSessionID, activity.DeletedAt, activity.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// ListUnlinkedActivities implements domain.ActivityStore.
func (r *Repository) ListUnlinkedActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.ExternalActivity, error) {
	args := []any{filter.AthleteID}
	query := `SELECT ` + activityColumns + ` FROM external_activities
         WHERE athlete_id=$1 AND planned_session_id IS NULL AND deleted_at IS NULL AND started_at IS NOT NULL`

	if filter.Provider != "" {
		args = append(args, filter.Provider)
		query += ` AND provider=$` + strconv.Itoa(len(args))
	}
	if filter.After != nil {
		args = append(args, *filter.After)
		query += ` AND started_at > $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY started_at ASC, activity_id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ExternalActivity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, activity)
	}
	return results, rows.Err()
}

// LinkActivity implements domain.ActivityStore. The partial unique index on
// planned_session_id rejects a second live link to the same session.
func (r *Repository) LinkActivity(ctx context.Context, activityID, sessionID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE external_activities a
            SET planned_session_id=$2, updated_at=NOW()
          WHERE a.activity_id=$1
            AND a.planned_session_id IS NULL
            AND a.deleted_at IS NULL
            AND EXISTS (SELECT 1 FROM planned_sessions s WHERE s.session_id=$2 AND s.athlete_id=a.athlete_id)`,
		activityID, sessionID,
	)
	if err != nil {
		switch pgErrorCode(err) {
		case uniqueViolation, foreignKeyViolation:
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanActivity(row pgx.Row) (domain.ExternalActivity, error) {
	var (
		a         domain.ExternalActivity
		startedAt *time.Time
		offset    int
		payload   []byte
	)
	if err := row.Scan(&a.ID, &a.AthleteID, &a.Provider, &a.ExternalID, &a.Sport, &startedAt, &offset, &a.DurationSeconds,
		&a.DistanceMeters, &a.ElevationGainMeters, &payload, &a.PlannedSessionID, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.ExternalActivity{}, err
	}
	if startedAt != nil {
		a.StartedAt = startedAt.In(domain.FixedZone(offset))
	}
	if len(payload) > 0 {
		a.RawPayload = json.RawMessage(payload)
	}
	return a, nil
}

// payloadParam stores an empty payload as NULL.
func payloadParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/activitysync/internal/domain"
)

const sessionColumns = `s.session_id, s.athlete_id, s.scheduled_on, s.sport, s.planned_duration_minutes, s.actual_duration_minutes, s.actual_tss`

// ListSessionsOn implements domain.SessionStore.
func (r *Repository) ListSessionsOn(ctx context.Context, athleteID, date string) ([]domain.PlannedSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`, a.activity_id
           FROM planned_sessions s
           LEFT JOIN external_activities a ON a.planned_session_id = s.session_id AND a.deleted_at IS NULL
          WHERE s.athlete_id=$1 AND s.scheduled_on=$2::date
          ORDER BY s.session_id`,
		athleteID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.PlannedSession, 0)
	for rows.Next() {
		var s domain.PlannedSession
		if err := rows.Scan(&s.ID, &s.AthleteID, &s.ScheduledOn, &s.Sport, &s.PlannedDurationMinutes,
			&s.ActualDurationMinutes, &s.ActualTSS, &s.LinkedActivityID); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession implements domain.SessionStore.
func (r *Repository) GetSession(ctx context.Context, athleteID string, sessionID int64) (*domain.PlannedSession, error) {
	var s domain.PlannedSession
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM planned_sessions s WHERE s.athlete_id=$1 AND s.session_id=$2`,
		athleteID, sessionID,
	).Scan(&s.ID, &s.AthleteID, &s.ScheduledOn, &s.Sport, &s.PlannedDurationMinutes, &s.ActualDurationMinutes, &s.ActualTSS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM external_activities WHERE planned_session_id=$1 AND deleted_at IS NULL`,
		sessionID)
	activity, err := scanActivity(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		s.LinkedActivity = &activity
		s.LinkedActivityID = &activity.ID
	}
	return &s, nil
}

// GetProfile implements domain.ProfileStore.
func (r *Repository) GetProfile(ctx context.Context, athleteID string) (*domain.AthleteProfile, error) {
	var p domain.AthleteProfile
	err := r.pool.QueryRow(ctx,
		`SELECT athlete_id, ftp_watts, threshold_heart_rate, max_heart_rate FROM athletes WHERE athlete_id=$1`,
		athleteID,
	).Scan(&p.AthleteID, &p.FTPWatts, &p.ThresholdHeartRate, &p.MaxHeartRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

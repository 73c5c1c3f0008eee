package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/activitysync/internal/domain"
)

const connectionColumns = `athlete_id, provider, access_token, refresh_token, token_expires_at, last_synced_at, last_sync_status, last_sync_reason, created_at, updated_at`

// legacyTokenColumns names the athletes columns that held a provider's credentials before
// provider_connections existed.
type legacyTokenColumns struct {
	access  string
	refresh string
	expires string
}

var legacyColumns = map[string]legacyTokenColumns{
	"strava": {access: "strava_access_token", refresh: "strava_refresh_token", expires: "strava_token_expires_at"},
}

// EnsureFromLegacy implements domain.ConnectionStore. The legacy columns are cleared in the
// same transaction that copies them, so the migration happens at most once per athlete.
func (r *Repository) EnsureFromLegacy(ctx context.Context, athleteID, provider string) (domain.Connection, error) {
	var conn domain.Connection
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		existing, err := findConnection(ctx, tx, athleteID, provider, true)
		if err != nil {
			return err
		}
		if existing != nil {
			conn = *existing
			return nil
		}

		access, refresh, expires, err := takeLegacyTokens(ctx, tx, athleteID, provider)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO provider_connections (athlete_id, provider, access_token, refresh_token, token_expires_at)
             VALUES ($1,$2,$3,$4,$5)
             ON CONFLICT (athlete_id, provider) DO NOTHING`,
			athleteID, provider, access, refresh, expires,
		); err != nil {
			return fmt.Errorf("insert connection: %w", err)
		}

		created, err := findConnection(ctx, tx, athleteID, provider, false)
		if err != nil {
			return err
		}
		if created == nil {
			return domain.ErrConnectionNotFound
		}
		conn = *created
		return nil
	})
	return conn, err
}

// takeLegacyTokens reads and clears the provider's legacy credentials, if any.
func takeLegacyTokens(ctx context.Context, tx pgx.Tx, athleteID, provider string) (string, string, *time.Time, error) {
	cols, ok := legacyColumns[provider]
	if !ok {
		return "", "", nil, nil
	}

	var (
		access, refresh *string
		expires         *time.Time
	)
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM athletes WHERE athlete_id=$1 FOR UPDATE`, cols.access, cols.refresh, cols.expires)
	if err := tx.QueryRow(ctx, query, athleteID).Scan(&access, &refresh, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil, nil
		}
		return "", "", nil, fmt.Errorf("read legacy tokens: %w", err)
	}
	if access == nil || *access == "" {
		return "", "", nil, nil
	}

	stmt := fmt.Sprintf(`UPDATE athletes SET %s=NULL, %s=NULL, %s=NULL, updated_at=NOW() WHERE athlete_id=$1`, cols.access, cols.refresh, cols.expires)
	if _, err := tx.Exec(ctx, stmt, athleteID); err != nil {
		return "", "", nil, fmt.Errorf("clear legacy tokens: %w", err)
	}

	var refreshToken string
	if refresh != nil {
		refreshToken = *refresh
	}
	return *access, refreshToken, expires, nil
}

// Find implements domain.ConnectionStore.
func (r *Repository) Find(ctx context.Context, athleteID, provider string) (*domain.Connection, error) {
	return findConnection(ctx, r.pool, athleteID, provider, false)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findConnection(ctx context.Context, q queryRower, athleteID, provider string, forUpdate bool) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections WHERE athlete_id=$1 AND provider=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		conn   domain.Connection
		status string
	)
	err := q.QueryRow(ctx, query, athleteID, provider).Scan(
		&conn.AthleteID, &conn.Provider, &conn.AccessToken, &conn.RefreshToken, &conn.TokenExpiresAt,
		&conn.LastSyncedAt, &status, &conn.LastSyncReason, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conn.LastSyncStatus = domain.SyncStatus(status)
	return &conn, nil
}

// Upsert implements domain.ConnectionStore. Only the credentials of an existing row change.
func (r *Repository) Upsert(ctx context.Context, conn domain.Connection) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO provider_connections (athlete_id, provider, access_token, refresh_token, token_expires_at)
         VALUES ($1,$2,$3,$4,$5)
         ON CONFLICT (athlete_id, provider) DO UPDATE
            SET access_token=EXCLUDED.access_token,
                refresh_token=EXCLUDED.refresh_token,
                token_expires_at=EXCLUDED.token_expires_at,
                updated_at=NOW()`,
		conn.AthleteID, conn.Provider, conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt,
	)
	return err
}

// MarkSyncQueued implements domain.ConnectionStore.
func (r *Repository) MarkSyncQueued(ctx context.Context, athleteID, provider string) error {
	return r.updateConnection(ctx,
		`UPDATE provider_connections SET last_sync_status='queued', last_sync_reason='', updated_at=NOW()
          WHERE athlete_id=$1 AND provider=$2`,
		athleteID, provider)
}

// MarkSyncRunning implements domain.ConnectionStore.
func (r *Repository) MarkSyncRunning(ctx context.Context, athleteID, provider string) error {
	return r.updateConnection(ctx,
		`UPDATE provider_connections SET last_sync_status='running', last_sync_reason='', updated_at=NOW()
          WHERE athlete_id=$1 AND provider=$2`,
		athleteID, provider)
}

// MarkSyncSuccess implements domain.ConnectionStore.
func (r *Repository) MarkSyncSuccess(ctx context.Context, athleteID, provider string, syncedAt time.Time) error {
	return r.updateConnection(ctx,
		`UPDATE provider_connections SET last_sync_status='success', last_sync_reason='', last_synced_at=$3, updated_at=NOW()
          WHERE athlete_id=$1 AND provider=$2`,
		athleteID, provider, syncedAt)
}

// MarkSyncFailure implements domain.ConnectionStore.
func (r *Repository) MarkSyncFailure(ctx context.Context, athleteID, provider, reason string) error {
	return r.updateConnection(ctx,
		`UPDATE provider_connections SET last_sync_status='failed', last_sync_reason=$3, updated_at=NOW()
          WHERE athlete_id=$1 AND provider=$2`,
		athleteID, provider, reason)
}

// Disconnect implements domain.ConnectionStore.
func (r *Repository) Disconnect(ctx context.Context, athleteID, provider string) error {
	return r.updateConnection(ctx,
		`UPDATE provider_connections SET access_token='', refresh_token='', token_expires_at=NULL, updated_at=NOW()
          WHERE athlete_id=$1 AND provider=$2`,
		athleteID, provider)
}

func (r *Repository) updateConnection(ctx context.Context, stmt string, args ...any) error {
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// Package memory provides an in-process implementation of every store contract, used for
// local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"example.com/activitysync/internal/domain"
)

type connKey struct {
	athleteID string
	provider  string
}

type activityKey struct {
	athleteID  string
	provider   string
	externalID string
}

// Store keeps all state in maps guarded by a single mutex.
type Store struct {
	mu          sync.RWMutex
	connections map[connKey]domain.Connection
	legacy      map[connKey]domain.TokenGrant
	runs        map[string]domain.SyncRun
	activities  map[int64]domain.ExternalActivity
	byKey       map[activityKey]int64
	sessions    map[int64]domain.PlannedSession
	profiles    map[string]domain.AthleteProfile
	nextID      int64
	nextSession int64
	now         func() time.Time
}

var (
	_ domain.ConnectionStore = (*Store)(nil)
	_ domain.SyncRunStore    = (*Store)(nil)
	_ domain.ActivityStore   = (*Store)(nil)
	_ domain.SessionStore    = (*Store)(nil)
	_ domain.ProfileStore    = (*Store)(nil)
)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		connections: make(map[connKey]domain.Connection),
		legacy:      make(map[connKey]domain.TokenGrant),
		runs:        make(map[string]domain.SyncRun),
		activities:  make(map[int64]domain.ExternalActivity),
		byKey:       make(map[activityKey]int64),
		sessions:    make(map[int64]domain.PlannedSession),
		profiles:    make(map[string]domain.AthleteProfile),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetLegacyTokens stores credentials in the legacy per-athlete slot.
func (s *Store) SetLegacyTokens(athleteID, provider string, grant domain.TokenGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy[connKey{athleteID, provider}] = grant
}

// LegacyTokens reports the legacy credentials still stored for the athlete.
func (s *Store) LegacyTokens(athleteID, provider string) (domain.TokenGrant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.legacy[connKey{athleteID, provider}]
	return grant, ok
}

// EnsureFromLegacy implements domain.ConnectionStore.
func (s *Store) EnsureFromLegacy(ctx context.Context, athleteID, provider string) (domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := connKey{athleteID, provider}
	if conn, ok := s.connections[key]; ok {
		return conn, nil
	}

	now := s.now()
	conn := domain.Connection{AthleteID: athleteID, Provider: provider, CreatedAt: now, UpdatedAt: now}
	if grant, ok := s.legacy[key]; ok {
		conn.AccessToken = grant.AccessToken
		conn.RefreshToken = grant.RefreshToken
		if !grant.ExpiresAt.IsZero() {
			expires := grant.ExpiresAt
			conn.TokenExpiresAt = &expires
		}
		delete(s.legacy, key)
	}
	s.connections[key] = conn
	return conn, nil
}

// Find implements domain.ConnectionStore.
func (s *Store) Find(ctx context.Context, athleteID, provider string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[connKey{athleteID, provider}]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

// Upsert implements domain.ConnectionStore. Existing rows only take the credentials.
func (s *Store) Upsert(ctx context.Context, conn domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connKey{conn.AthleteID, conn.Provider}
	now := s.now()
	if existing, ok := s.connections[key]; ok {
		existing.AccessToken = conn.AccessToken
		existing.RefreshToken = conn.RefreshToken
		existing.TokenExpiresAt = conn.TokenExpiresAt
		existing.UpdatedAt = now
		s.connections[key] = existing
		return nil
	}
	conn.CreatedAt = now
	conn.UpdatedAt = now
	s.connections[key] = conn
	return nil
}

// MarkSyncQueued implements domain.ConnectionStore.
func (s *Store) MarkSyncQueued(ctx context.Context, athleteID, provider string) error {
	return s.updateConnection(athleteID, provider, func(c *domain.Connection) {
		c.LastSyncStatus = domain.SyncStatusQueued
		c.LastSyncReason = ""
	})
}

// MarkSyncRunning implements domain.ConnectionStore.
func (s *Store) MarkSyncRunning(ctx context.Context, athleteID, provider string) error {
	return s.updateConnection(athleteID, provider, func(c *domain.Connection) {
		c.LastSyncStatus = domain.SyncStatusRunning
		c.LastSyncReason = ""
	})
}

// MarkSyncSuccess implements domain.ConnectionStore.
func (s *Store) MarkSyncSuccess(ctx context.Context, athleteID, provider string, syncedAt time.Time) error {
	return s.updateConnection(athleteID, provider, func(c *domain.Connection) {
		c.LastSyncStatus = domain.SyncStatusSuccess
		c.LastSyncReason = ""
		c.LastSyncedAt = &syncedAt
	})
}

// MarkSyncFailure implements domain.ConnectionStore.
func (s *Store) MarkSyncFailure(ctx context.Context, athleteID, provider, reason string) error {
	return s.updateConnection(athleteID, provider, func(c *domain.Connection) {
		c.LastSyncStatus = domain.SyncStatusFailed
		c.LastSyncReason = reason
	})
}

// Disconnect implements domain.ConnectionStore.
func (s *Store) Disconnect(ctx context.Context, athleteID, provider string) error {
	return s.updateConnection(athleteID, provider, func(c *domain.Connection) {
		c.AccessToken = ""
		c.RefreshToken = ""
		c.TokenExpiresAt = nil
	})
}

func (s *Store) updateConnection(athleteID, provider string, mutate func(*domain.Connection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connKey{athleteID, provider}
	conn, ok := s.connections[key]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	mutate(&conn)
	conn.UpdatedAt = s.now()
	s.connections[key] = conn
	return nil
}

// CreateSyncRun implements domain.SyncRunStore.
func (s *Store) CreateSyncRun(ctx context.Context, run domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// GetSyncRun implements domain.SyncRunStore.
func (s *Store) GetSyncRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// TransitionSyncRun implements domain.SyncRunStore.
func (s *Store) TransitionSyncRun(ctx context.Context, id string, t domain.SyncRunTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ErrSyncRunNotFound
	}
	if run.Status.Terminal() {
		return domain.ErrSyncRunTerminal
	}
	at := t.At
	run.Status = t.Status
	run.Reason = t.Reason
	run.ActivityCount = t.Count
	if t.LinkFrom != nil {
		from := *t.LinkFrom
		run.LinkFrom = &from
	}
	if t.Status == domain.SyncStatusRunning {
		run.StartedAt = &at
	}
	if t.Status.Terminal() {
		run.FinishedAt = &at
	}
	s.runs[id] = run
	return nil
}

// ListSyncRuns implements domain.SyncRunStore, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, athleteID, provider string, cursor *domain.SyncRunCursor, limit int) ([]domain.SyncRun, *domain.SyncRunCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.SyncRun, 0)
	for _, run := range s.runs {
		if run.AthleteID != athleteID || (provider != "" && run.Provider != provider) {
			continue
		}
		if cursor != nil && !runBefore(run, cursor.QueuedAt, cursor.ID) {
			continue
		}
		matched = append(matched, run)
	}
	sort.Slice(matched, func(i, j int) bool {
		return runBefore(matched[j], matched[i].QueuedAt, matched[i].ID)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	var next *domain.SyncRunCursor
	if limit > 0 && len(matched) == limit {
		last := matched[len(matched)-1]
		next = &domain.SyncRunCursor{QueuedAt: last.QueuedAt, ID: last.ID}
	}
	return matched, next, nil
}

// runBefore reports whether run sorts strictly before (queuedAt, id) in descending order.
func runBefore(run domain.SyncRun, queuedAt time.Time, id string) bool {
	if run.QueuedAt.Equal(queuedAt) {
		return run.ID < id
	}
	return run.QueuedAt.Before(queuedAt)
}

// FindActivityByKey implements domain.ActivityStore.
func (s *Store) FindActivityByKey(ctx context.Context, athleteID, provider, externalID string) (*domain.ExternalActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[activityKey{athleteID, provider, externalID}]
	if !ok {
		return nil, nil
	}
	activity := cloneActivity(s.activities[id])
	return &activity, nil
}

// InsertActivity implements domain.ActivityStore.
func (s *Store) InsertActivity(ctx context.Context, activity *domain.ExternalActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activityKey{activity.AthleteID, activity.Provider, activity.ExternalID}
	if id, ok := s.byKey[key]; ok {
		// Concurrent insert of the same key converges on the existing row.
		activity.ID = id
		activity.CreatedAt = s.activities[id].CreatedAt
	} else {
		s.nextID++
		activity.ID = s.nextID
	}
	s.activities[activity.ID] = cloneActivity(*activity)
	s.byKey[key] = activity.ID
	return nil
}

// UpdateActivity implements domain.ActivityStore.
func (s *Store) UpdateActivity(ctx context.Context, activity *domain.ExternalActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[activity.ID]; !ok {
		return domain.ErrActivityNotFound
	}
	s.activities[activity.ID] = cloneActivity(*activity)
	return nil
}

// ListUnlinkedActivities implements domain.ActivityStore.
func (s *Store) ListUnlinkedActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.ExternalActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ExternalActivity, 0)
	for _, activity := range s.activities {
		if activity.AthleteID != filter.AthleteID || activity.Deleted() || activity.Linked() || !activity.HasStartTime() {
			continue
		}
		if filter.Provider != "" && activity.Provider != filter.Provider {
			continue
		}
		if filter.After != nil && !activity.StartedAt.After(*filter.After) {
			continue
		}
		out = append(out, cloneActivity(activity))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// LinkActivity implements domain.ActivityStore. A missing session or one owned by another
// athlete leaves the activity unlinked.
func (s *Store) LinkActivity(ctx context.Context, activityID, sessionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, ok := s.activities[activityID]
	if !ok || activity.Linked() || activity.Deleted() {
		return false, nil
	}
	session, ok := s.sessions[sessionID]
	if !ok || session.AthleteID != activity.AthleteID {
		return false, nil
	}
	if s.linkedActivityLocked(sessionID) != nil {
		return false, nil
	}
	activity.PlannedSessionID = &sessionID
	activity.UpdatedAt = s.now()
	s.activities[activityID] = activity
	return true, nil
}

// ActivityByID returns a copy of the stored activity.
func (s *Store) ActivityByID(id int64) (domain.ExternalActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, ok := s.activities[id]
	return cloneActivity(activity), ok
}

// SoftDeleteActivity marks an activity deleted.
func (s *Store) SoftDeleteActivity(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activity, ok := s.activities[id]; ok {
		activity.DeletedAt = &at
		s.activities[id] = activity
	}
}

// CountActivities returns the number of stored activity rows, soft-deleted included.
func (s *Store) CountActivities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activities)
}

// AddSession stores a planned session, assigning the next id when ID is zero.
func (s *Store) AddSession(session domain.PlannedSession) domain.PlannedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == 0 {
		s.nextSession++
		session.ID = s.nextSession
	}
	session.LinkedActivityID = nil
	session.LinkedActivity = nil
	s.sessions[session.ID] = session
	return session
}

// ListSessionsOn implements domain.SessionStore.
func (s *Store) ListSessionsOn(ctx context.Context, athleteID, date string) ([]domain.PlannedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PlannedSession, 0)
	for _, session := range s.sessions {
		if session.AthleteID != athleteID || domain.CalendarDate(session.ScheduledOn) != date {
			continue
		}
		out = append(out, s.withLinkLocked(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSession implements domain.SessionStore.
func (s *Store) GetSession(ctx context.Context, athleteID string, sessionID int64) (*domain.PlannedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.AthleteID != athleteID {
		return nil, nil
	}
	session = s.withLinkLocked(session)
	return &session, nil
}

func (s *Store) withLinkLocked(session domain.PlannedSession) domain.PlannedSession {
	if activity := s.linkedActivityLocked(session.ID); activity != nil {
		id := activity.ID
		session.LinkedActivityID = &id
		session.LinkedActivity = activity
	}
	return session
}

func (s *Store) linkedActivityLocked(sessionID int64) *domain.ExternalActivity {
	for _, activity := range s.activities {
		if activity.PlannedSessionID != nil && *activity.PlannedSessionID == sessionID && !activity.Deleted() {
			clone := cloneActivity(activity)
			return &clone
		}
	}
	return nil
}

// SetProfile stores an athlete profile.
func (s *Store) SetProfile(profile domain.AthleteProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.AthleteID] = profile
}

// GetProfile implements domain.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, athleteID string) (*domain.AthleteProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[athleteID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func cloneActivity(a domain.ExternalActivity) domain.ExternalActivity {
	if a.RawPayload != nil {
		a.RawPayload = append(json.RawMessage(nil), a.RawPayload...)
	}
	if a.PlannedSessionID != nil {
		id := *a.PlannedSessionID
		a.PlannedSessionID = &id
	}
	return a
}

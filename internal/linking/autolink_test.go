package linking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/observability"
	"example.com/activitysync/internal/persistence/memory"
)

var mayFirst = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func insertActivity(t *testing.T, store *memory.Store, externalID, sport string, startedAt time.Time, minutes int) domain.ExternalActivity {
	t.Helper()
	activity := domain.ExternalActivity{
		AthleteID:       "athlete-1",
		Provider:        "strava",
		ExternalID:      externalID,
		Sport:           sport,
		StartedAt:       startedAt,
		DurationSeconds: minutes * 60,
	}
	require.NoError(t, store.InsertActivity(context.Background(), &activity))
	return activity
}

func TestAutoLinkSingleActivityLinksWithinTolerance(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	session := store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "bike", PlannedDurationMinutes: 60})
	activity := insertActivity(t, store, "a1", "ride", mayFirst.Add(7*time.Hour), 58)

	before := testutil.ToFloat64(observability.LinkDecisions().WithLabelValues(ReasonMatched))
	linker := NewAutoLinker(store, store)
	linked, err := linker.AutoLinkSingleActivity(ctx, "athlete-1", activity)
	require.NoError(t, err)
	require.True(t, linked)
	require.Equal(t, before+1, testutil.ToFloat64(observability.LinkDecisions().WithLabelValues(ReasonMatched)))

	got, err := store.GetSession(ctx, "athlete-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, activity.ID, *got.LinkedActivityID)
}

func TestAutoLinkSingleActivityRejects(t *testing.T) {
	ctx := context.Background()
	sessionLinked := int64(99)

	cases := []struct {
		name    string
		session domain.PlannedSession
		mutate  func(*domain.ExternalActivity)
		athlete string
	}{
		{
			name:    "outside tolerance",
			session: domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "bike", PlannedDurationMinutes: 10},
		},
		{
			name:    "different sport",
			session: domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "run", PlannedDurationMinutes: 60},
		},
		{
			name:    "different day",
			session: domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst.AddDate(0, 0, 1), Sport: "bike", PlannedDurationMinutes: 60},
		},
		{
			name:    "other athlete",
			session: domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "bike", PlannedDurationMinutes: 60},
			athlete: "athlete-2",
		},
		{
			name:    "already linked",
			session: domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "bike", PlannedDurationMinutes: 60},
			mutate:  func(a *domain.ExternalActivity) { a.PlannedSessionID = &sessionLinked },
		},
		{
			name:    "no start time",
			session: domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "bike", PlannedDurationMinutes: 60},
			mutate:  func(a *domain.ExternalActivity) { a.StartedAt = time.Time{} },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			store.AddSession(tc.session)
			activity := insertActivity(t, store, "a1", "ride", mayFirst.Add(7*time.Hour), 58)
			if tc.mutate != nil {
				tc.mutate(&activity)
			}
			athlete := tc.athlete
			if athlete == "" {
				athlete = "athlete-1"
			}

			linked, err := NewAutoLinker(store, store).AutoLinkSingleActivity(ctx, athlete, activity)
			require.NoError(t, err)
			require.False(t, linked)
		})
	}
}

func TestAutoLinkUsesActivityLocalDate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "run", PlannedDurationMinutes: 45})

	// 23:30 local on May 1st is already May 2nd in UTC.
	zone := time.FixedZone("UTC-05:00", -5*60*60)
	activity := insertActivity(t, store, "late", "run", time.Date(2024, 5, 1, 23, 30, 0, 0, zone), 45)

	linked, err := NewAutoLinker(store, store).AutoLinkSingleActivity(ctx, "athlete-1", activity)
	require.NoError(t, err)
	require.True(t, linked)
}

func TestAutoLinkSkipsLinkedSessions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "run", PlannedDurationMinutes: 40})
	first := insertActivity(t, store, "a1", "run", mayFirst.Add(6*time.Hour), 40)
	second := insertActivity(t, store, "a2", "run", mayFirst.Add(18*time.Hour), 40)

	linker := NewAutoLinker(store, store)
	linked, err := linker.AutoLinkSingleActivity(ctx, "athlete-1", first)
	require.NoError(t, err)
	require.True(t, linked)

	linked, err = linker.AutoLinkSingleActivity(ctx, "athlete-1", second)
	require.NoError(t, err)
	require.False(t, linked)
}

func TestAutoLinkRecentActivities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mayTwo := mayFirst.AddDate(0, 0, 1)
	store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "bike", PlannedDurationMinutes: 60})
	store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayTwo, Sport: "swim", PlannedDurationMinutes: 30})
	store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayTwo, Sport: "gym", PlannedDurationMinutes: 45})

	insertActivity(t, store, "ride", "Ride", mayFirst.Add(7*time.Hour), 58)
	insertActivity(t, store, "swim", "Swim", mayTwo.Add(7*time.Hour), 35)
	insertActivity(t, store, "hike", "Hike", mayTwo.Add(9*time.Hour), 120)
	undated := domain.ExternalActivity{AthleteID: "athlete-1", Provider: "strava", ExternalID: "undated", Sport: "ride", DurationSeconds: 3600}
	require.NoError(t, store.InsertActivity(ctx, &undated))

	linker := NewAutoLinker(store, store)
	count, err := linker.AutoLinkRecentActivities(ctx, "athlete-1", "strava", nil)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = linker.AutoLinkRecentActivities(ctx, "athlete-1", "strava", nil)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAutoLinkRecentActivitiesHonoursAfter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: mayFirst, Sport: "run", PlannedDurationMinutes: 30})
	insertActivity(t, store, "old", "run", mayFirst.Add(6*time.Hour), 30)

	after := mayFirst.Add(12 * time.Hour)
	count, err := NewAutoLinker(store, store).AutoLinkRecentActivities(ctx, "athlete-1", "", &after)
	require.NoError(t, err)
	require.Zero(t, count)
}

type failingSessions struct{}

func (failingSessions) ListSessionsOn(ctx context.Context, athleteID, date string) ([]domain.PlannedSession, error) {
	return nil, errors.New("database is down")
}

func (failingSessions) GetSession(ctx context.Context, athleteID string, sessionID int64) (*domain.PlannedSession, error) {
	return nil, errors.New("database is down")
}

func TestAutoLinkPropagatesStoreErrors(t *testing.T) {
	store := memory.NewStore()
	activity := insertActivity(t, store, "a1", "run", mayFirst.Add(6*time.Hour), 30)

	_, err := NewAutoLinker(store, failingSessions{}).AutoLinkSingleActivity(context.Background(), "athlete-1", activity)
	require.ErrorContains(t, err, "database is down")
}

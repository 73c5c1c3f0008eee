package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/persistence/memory"
)

func TestPersistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	persister := NewPersister(store, WithClock(fixedClock))

	first, err := persister.Persist(ctx, "athlete-1", normalized("42", testNow, 1800))
	require.NoError(t, err)

	update := normalized("42", testNow, 2400)
	update.Sport = "ride"
	second, err := persister.Persist(ctx, "athlete-1", update)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, store.CountActivities())

	stored, ok := store.ActivityByID(first.ID)
	require.True(t, ok)
	require.Equal(t, 2400, stored.DurationSeconds)
	require.Equal(t, "ride", stored.Sport)
}

func TestPersistRevivesAndUnlinks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	persister := NewPersister(store, WithClock(fixedClock))

	session := store.AddSession(domain.PlannedSession{AthleteID: "athlete-1", ScheduledOn: testNow, Sport: "run", PlannedDurationMinutes: 30})
	activity, err := persister.Persist(ctx, "athlete-1", normalized("42", testNow, 1800))
	require.NoError(t, err)

	linked, err := store.LinkActivity(ctx, activity.ID, session.ID)
	require.NoError(t, err)
	require.True(t, linked)

	resynced, err := persister.Persist(ctx, "athlete-1", normalized("42", testNow, 1800))
	require.NoError(t, err)
	require.Nil(t, resynced.PlannedSessionID)

	store.SoftDeleteActivity(activity.ID, testNow.Add(-time.Hour))
	revived, err := persister.Persist(ctx, "athlete-1", normalized("42", testNow, 1800))
	require.NoError(t, err)
	require.Equal(t, activity.ID, revived.ID)
	require.False(t, revived.Deleted())

	stored, _ := store.ActivityByID(activity.ID)
	require.Nil(t, stored.DeletedAt)
	require.Nil(t, stored.PlannedSessionID)
}

func TestPersistKeysByAthlete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	persister := NewPersister(store, WithClock(fixedClock))

	a, err := persister.Persist(ctx, "athlete-1", normalized("42", testNow, 600))
	require.NoError(t, err)
	b, err := persister.Persist(ctx, "athlete-2", normalized("42", testNow, 600))
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, store.CountActivities())
}

func TestPersistManyReturnsPartialOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingActivityStore{Store: memory.NewStore(), failOn: "b"}
	persister := NewPersister(store, WithClock(fixedClock))

	items := []domain.NormalizedActivity{
		normalized("a", testNow, 600),
		normalized("b", testNow, 600),
		normalized("c", testNow, 600),
	}
	persisted, err := persister.PersistMany(ctx, "athlete-1", items)
	require.Error(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, "a", persisted[0].ExternalID)
}

type failingActivityStore struct {
	*memory.Store
	failOn string
}

func (s *failingActivityStore) InsertActivity(ctx context.Context, activity *domain.ExternalActivity) error {
	if activity.ExternalID == s.failOn {
		return context.DeadlineExceeded
	}
	return s.Store.InsertActivity(ctx, activity)
}

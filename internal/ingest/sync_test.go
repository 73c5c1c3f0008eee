package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/provider"
)

func TestSyncPagesUntilShortPage(t *testing.T) {
	ctx := context.Background()
	client := newPagedClient(200, 200, 57)
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")

	result, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 457, result.Count)
	require.Equal(t, domain.SyncStatusSuccess, result.Status)
	require.Equal(t, 3, client.calls())
	require.Equal(t, 457, store.CountActivities())

	for i, params := range client.params {
		require.Equal(t, i+1, params.Page)
		require.Equal(t, PageSize, params.PerPage)
		require.Equal(t, "token-athlete-1", client.tokens[i])
	}

	conn, err := store.Find(ctx, "athlete-1", "strava")
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusSuccess, conn.LastSyncStatus)
	require.NotNil(t, conn.LastSyncedAt)
	require.True(t, conn.LastSyncedAt.Equal(testNow))
}

func TestSyncEmptyFirstPage(t *testing.T) {
	client := newPagedClient(0)
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")

	result, err := service.Sync(context.Background(), "athlete-1", "strava", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, result.Count)
	require.Nil(t, result.LinkFrom)
	require.Equal(t, 1, client.calls())
}

func TestSyncIsIdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	client := newPagedClient(3)
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")

	_, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
	require.NoError(t, err)
	_, err = service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
	require.NoError(t, err)

	require.Equal(t, 3, store.CountActivities())
}

func TestSyncWatermark(t *testing.T) {
	ctx := context.Background()
	explicit := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lastSynced := time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)

	t.Run("default lookback", func(t *testing.T) {
		client := newPagedClient(0)
		store, service := newSyncFixture(client)
		connect(store, "athlete-1")

		_, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
		require.NoError(t, err)
		require.True(t, client.params[0].After.Equal(testNow.AddDate(0, 0, -domain.DefaultLookbackDays)))
	})

	t.Run("configured lookback below floor", func(t *testing.T) {
		client := newPagedClient(0)
		store, _ := newSyncFixture(client)
		connect(store, "athlete-1")
		manager := provider.NewManager()
		manager.Register("strava", client)
		tokens := NewTokenManager(store, manager, WithClock(fixedClock))
		service := NewSyncService(store, store, tokens, manager, NewPersister(store), 7, WithClock(fixedClock))

		_, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
		require.NoError(t, err)
		require.True(t, client.params[0].After.Equal(testNow.AddDate(0, 0, -domain.MinLookbackDays)))
	})

	t.Run("last synced", func(t *testing.T) {
		client := newPagedClient(0)
		store, service := newSyncFixture(client)
		connect(store, "athlete-1")
		require.NoError(t, store.MarkSyncSuccess(ctx, "athlete-1", "strava", lastSynced))

		_, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
		require.NoError(t, err)
		require.True(t, client.params[0].After.Equal(lastSynced))
	})

	t.Run("explicit after wins", func(t *testing.T) {
		client := newPagedClient(0)
		store, service := newSyncFixture(client)
		connect(store, "athlete-1")
		require.NoError(t, store.MarkSyncSuccess(ctx, "athlete-1", "strava", lastSynced))

		_, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{After: &explicit})
		require.NoError(t, err)
		require.True(t, client.params[0].After.Equal(explicit))
	})
}

func TestLookbackDays(t *testing.T) {
	require.Equal(t, domain.DefaultLookbackDays, LookbackDays(0))
	require.Equal(t, domain.MinLookbackDays, LookbackDays(7))
	require.Equal(t, 120, LookbackDays(120))
}

func TestSyncFailureKeepsEarlierPages(t *testing.T) {
	ctx := context.Background()
	client := newPagedClient(200, 200, 10)
	client.failOn = 2
	client.err = errors.New("connection reset by peer")
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")
	require.NoError(t, store.CreateSyncRun(ctx, domain.SyncRun{ID: "run-1", AthleteID: "athlete-1", Provider: "strava", Status: domain.SyncStatusQueued, QueuedAt: testNow}))

	result, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{SyncRunID: "run-1"})
	require.ErrorIs(t, err, domain.ErrProviderRequest)
	require.True(t, domain.IsRetryable(err))
	require.Equal(t, domain.SyncStatusFailed, result.Status)
	require.Equal(t, 200, result.Count)
	require.Equal(t, 200, store.CountActivities())

	conn, err := store.Find(ctx, "athlete-1", "strava")
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusFailed, conn.LastSyncStatus)
	require.Contains(t, conn.LastSyncReason, "fetch page 2")
	require.Contains(t, conn.LastSyncReason, "connection reset by peer")
	require.Nil(t, conn.LastSyncedAt)

	run, err := store.GetSyncRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusFailed, run.Status)
	require.Equal(t, 200, run.ActivityCount)
	require.Equal(t, conn.LastSyncReason, run.Reason)
}

func TestSyncUnauthorizedRequiresReconnect(t *testing.T) {
	client := newPagedClient(200)
	client.failOn = 1
	client.err = domain.ErrProviderUnauthorized
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")

	_, err := service.Sync(context.Background(), "athlete-1", "strava", SyncOptions{})
	require.ErrorIs(t, err, domain.ErrProviderUnauthorized)
	require.True(t, domain.IsReconnectRequired(err))
	require.False(t, domain.IsRetryable(err))
}

func TestSyncWithoutConnectionFails(t *testing.T) {
	ctx := context.Background()
	client := newPagedClient(1)
	store, service := newSyncFixture(client)
	_, err := store.EnsureFromLegacy(ctx, "athlete-1", "strava")
	require.NoError(t, err)

	_, err = service.Sync(ctx, "athlete-1", "strava", SyncOptions{})
	require.ErrorIs(t, err, domain.ErrTokenMissing)
	require.Equal(t, 0, client.calls())

	conn, err := store.Find(ctx, "athlete-1", "strava")
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusFailed, conn.LastSyncStatus)
}

func TestSyncTracksRun(t *testing.T) {
	ctx := context.Background()
	client := newPagedClient(5)
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")
	require.NoError(t, store.CreateSyncRun(ctx, domain.SyncRun{ID: "run-1", AthleteID: "athlete-1", Provider: "strava", Status: domain.SyncStatusQueued, QueuedAt: testNow}))

	result, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{SyncRunID: "run-1"})
	require.NoError(t, err)
	earliest := testNow.Add(-4 * time.Hour)
	require.NotNil(t, result.LinkFrom)
	require.True(t, result.LinkFrom.Equal(earliest))

	run, err := store.GetSyncRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusSuccess, run.Status)
	require.Equal(t, 5, run.ActivityCount)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	require.NotNil(t, run.LinkFrom)
	require.True(t, run.LinkFrom.Equal(earliest))
}

func TestSyncSkipsFinishedRun(t *testing.T) {
	ctx := context.Background()
	linkFrom := testNow.Add(-30 * time.Hour)
	client := newPagedClient(5)
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")
	require.NoError(t, store.CreateSyncRun(ctx, domain.SyncRun{ID: "run-1", AthleteID: "athlete-1", Provider: "strava", Status: domain.SyncStatusSuccess, QueuedAt: testNow, ActivityCount: 9, LinkFrom: &linkFrom}))

	result, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{SyncRunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, 9, result.Count)
	require.Equal(t, &linkFrom, result.LinkFrom)
	require.Equal(t, 0, client.calls())
}

func TestSyncSingleActivity(t *testing.T) {
	ctx := context.Background()
	paged := newPagedClient(200)
	paged.single = map[string]domain.NormalizedActivity{"777": normalized("777", testNow, 900)}
	client := singleClient{paged}
	store, service := newSyncFixture(client)
	connect(store, "athlete-1")

	result, err := service.Sync(ctx, "athlete-1", "strava", SyncOptions{ExternalActivityID: "777"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Equal(t, 0, paged.calls())
	require.Equal(t, []string{"777"}, paged.singles)

	activity, err := store.FindActivityByKey(ctx, "athlete-1", "strava", "777")
	require.NoError(t, err)
	require.NotNil(t, activity)
}

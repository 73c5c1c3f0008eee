package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/persistence/memory"
	"example.com/activitysync/internal/provider"
)

var testNow = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// pagedClient serves pre-built pages and records every request.
type pagedClient struct {
	mu      sync.Mutex
	pages   [][]domain.NormalizedActivity
	failOn  int
	err     error
	params  []provider.FetchParams
	tokens  []string
	single  map[string]domain.NormalizedActivity
	singles []string
}

func newPagedClient(sizes ...int) *pagedClient {
	client := &pagedClient{}
	for page, size := range sizes {
		batch := make([]domain.NormalizedActivity, 0, size)
		for i := 0; i < size; i++ {
			batch = append(batch, normalized(fmt.Sprintf("p%d-%d", page+1, i), testNow.Add(-time.Duration(i)*time.Hour), 3600))
		}
		client.pages = append(client.pages, batch)
	}
	return client
}

func (c *pagedClient) FetchActivities(ctx context.Context, accessToken string, params provider.FetchParams) ([]domain.NormalizedActivity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = append(c.params, params)
	c.tokens = append(c.tokens, accessToken)
	if c.failOn == params.Page {
		return nil, c.err
	}
	if params.Page > len(c.pages) {
		return nil, nil
	}
	return c.pages[params.Page-1], nil
}

func (c *pagedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.params)
}

// singleClient also supports fetching one activity by id.
type singleClient struct {
	*pagedClient
}

func (c singleClient) FetchActivity(ctx context.Context, accessToken, externalID string) (domain.NormalizedActivity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singles = append(c.singles, externalID)
	activity, ok := c.single[externalID]
	if !ok {
		return domain.NormalizedActivity{}, fmt.Errorf("activity %s: %w", externalID, domain.ErrProviderRequest)
	}
	return activity, nil
}

// oauthStub returns a fixed grant or error.
type oauthStub struct {
	grant     domain.TokenGrant
	err       error
	refreshed []string
	exchanged []string
}

func (o *oauthStub) FetchActivities(ctx context.Context, accessToken string, params provider.FetchParams) ([]domain.NormalizedActivity, error) {
	return nil, nil
}

func (o *oauthStub) ExchangeToken(ctx context.Context, code string) (domain.TokenGrant, error) {
	o.exchanged = append(o.exchanged, code)
	return o.grant, o.err
}

func (o *oauthStub) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	o.refreshed = append(o.refreshed, refreshToken)
	return o.grant, o.err
}

type recordingQueue struct {
	jobs []domain.SyncJob
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func normalized(externalID string, startedAt time.Time, seconds int) domain.NormalizedActivity {
	return domain.NormalizedActivity{
		Provider:        "strava",
		ExternalID:      externalID,
		Sport:           "run",
		StartedAt:       startedAt,
		DurationSeconds: seconds,
		RawPayload:      []byte(`{"id":"` + externalID + `"}`),
	}
}

func connect(store *memory.Store, athleteID string) {
	expires := testNow.Add(6 * time.Hour)
	_ = store.Upsert(context.Background(), domain.Connection{
		AthleteID:      athleteID,
		Provider:       "strava",
		AccessToken:    "token-" + athleteID,
		RefreshToken:   "refresh-" + athleteID,
		TokenExpiresAt: &expires,
	})
}

func newSyncFixture(client provider.Client) (*memory.Store, *SyncService) {
	store := memory.NewStore()
	manager := provider.NewManager()
	manager.Register("strava", client)
	tokens := NewTokenManager(store, manager, WithClock(fixedClock))
	persister := NewPersister(store, WithClock(fixedClock))
	service := NewSyncService(store, store, tokens, manager, persister, 0, WithClock(fixedClock))
	return store, service
}

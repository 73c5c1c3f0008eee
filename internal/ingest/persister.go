package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/observability"
)

// Persister idempotently writes normalized provider activities.
type Persister struct {
	store  domain.ActivityStore
	now    func() time.Time
	logger *zap.Logger
}

// NewPersister constructs a Persister.
func NewPersister(store domain.ActivityStore, opts ...Option) *Persister {
	o := buildOptions(opts)
	return &Persister{store: store, now: o.now, logger: o.logger}
}

// Persist upserts the activity keyed by (athlete, provider, external id). An existing row,
// soft-deleted or not, is overwritten in place, revived and unlinked so that auto-linking
// re-evaluates it.
func (p *Persister) Persist(ctx context.Context, athleteID string, n domain.NormalizedActivity) (domain.ExternalActivity, error) {
	existing, err := p.store.FindActivityByKey(ctx, athleteID, n.Provider, n.ExternalID)
	if err != nil {
		return domain.ExternalActivity{}, fmt.Errorf("find activity %s/%s: %w", n.Provider, n.ExternalID, err)
	}

	now := p.now()
	if existing != nil {
		outcome := "updated"
		if existing.Deleted() {
			outcome = "restored"
		}
		existing.Apply(n)
		existing.DeletedAt = nil
		existing.PlannedSessionID = nil
		existing.UpdatedAt = now
		if err := p.store.UpdateActivity(ctx, existing); err != nil {
			return domain.ExternalActivity{}, fmt.Errorf("update activity %s/%s: %w", n.Provider, n.ExternalID, err)
		}
		observability.RecordActivityPersisted(n.Provider, outcome, now)
		return *existing, nil
	}

	activity := domain.ExternalActivity{
		AthleteID: athleteID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	activity.Apply(n)
	if err := p.store.InsertActivity(ctx, &activity); err != nil {
		return domain.ExternalActivity{}, fmt.Errorf("insert activity %s/%s: %w", n.Provider, n.ExternalID, err)
	}
	observability.RecordActivityPersisted(n.Provider, "inserted", now)
	return activity, nil
}

// PersistMany persists each item independently. On failure it returns the activities written
// before the failing item together with the error.
func (p *Persister) PersistMany(ctx context.Context, athleteID string, items []domain.NormalizedActivity) ([]domain.ExternalActivity, error) {
	out := make([]domain.ExternalActivity, 0, len(items))
	for _, item := range items {
		activity, err := p.Persist(ctx, athleteID, item)
		if err != nil {
			return out, err
		}
		out = append(out, activity)
	}
	return out, nil
}

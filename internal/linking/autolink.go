// Package linking attaches synced activities to the athlete's planned sessions.
package linking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/observability"
)

// Option configures an AutoLinker.
type Option func(*AutoLinker)

// WithLogger sets the logger that receives every match decision.
func WithLogger(logger *zap.Logger) Option {
	return func(l *AutoLinker) { l.logger = logger }
}

// AutoLinker matches activities to same-day, same-sport planned sessions by duration.
type AutoLinker struct {
	activities domain.ActivityStore
	sessions   domain.SessionStore
	logger     *zap.Logger
}

// NewAutoLinker constructs an AutoLinker.
func NewAutoLinker(activities domain.ActivityStore, sessions domain.SessionStore, opts ...Option) *AutoLinker {
	l := &AutoLinker{activities: activities, sessions: sessions, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AutoLinkSingleActivity links the activity to its best planned session. It returns false
// without error when the activity is ineligible or nothing matches.
func (l *AutoLinker) AutoLinkSingleActivity(ctx context.Context, athleteID string, activity domain.ExternalActivity) (bool, error) {
	decision, err := l.match(ctx, athleteID, activity)
	if err != nil {
		return false, err
	}
	l.record(athleteID, decision)
	return decision.Matched, nil
}

// AutoLinkRecentActivities runs single-activity matching over every unlinked, dated activity
// of the athlete in ascending start order, optionally narrowed to a provider and to activities
// started after the given time. It returns the number of new links.
func (l *AutoLinker) AutoLinkRecentActivities(ctx context.Context, athleteID, provider string, after *time.Time) (int, error) {
	activities, err := l.activities.ListUnlinkedActivities(ctx, domain.ActivityFilter{
		AthleteID: athleteID,
		Provider:  provider,
		After:     after,
	})
	if err != nil {
		return 0, fmt.Errorf("list unlinked activities: %w", err)
	}

	linked := 0
	for _, activity := range activities {
		ok, err := l.AutoLinkSingleActivity(ctx, athleteID, activity)
		if err != nil {
			return linked, err
		}
		if ok {
			linked++
		}
	}
	return linked, nil
}

func (l *AutoLinker) match(ctx context.Context, athleteID string, activity domain.ExternalActivity) (MatchDecision, error) {
	if activity.AthleteID != athleteID || activity.Linked() || activity.Deleted() || !activity.HasStartTime() {
		return MatchDecision{ActivityID: activity.ID, Reason: ReasonIneligible}, nil
	}

	sport := NormalizeSport(activity.Sport)
	date := domain.CalendarDate(activity.StartedAt)
	sessions, err := l.sessions.ListSessionsOn(ctx, athleteID, date)
	if err != nil {
		return MatchDecision{}, fmt.Errorf("list sessions on %s: %w", date, err)
	}

	candidates := make([]domain.PlannedSession, 0, len(sessions))
	for _, session := range sessions {
		if session.Linked() || NormalizeSport(session.Sport) != sport {
			continue
		}
		candidates = append(candidates, session)
	}

	decision := Decide(activity, candidates)
	if !decision.Matched {
		return decision, nil
	}

	ok, err := l.activities.LinkActivity(ctx, activity.ID, decision.SessionID)
	if err != nil {
		return MatchDecision{}, fmt.Errorf("link activity %d to session %d: %w", activity.ID, decision.SessionID, err)
	}
	if !ok {
		decision.Matched = false
		decision.Reason = ReasonLinkConflict
	}
	return decision, nil
}

func (l *AutoLinker) record(athleteID string, d MatchDecision) {
	observability.RecordLinkDecision(d.Reason)
	l.logger.Debug("auto-link decision",
		zap.String("athlete_id", athleteID),
		zap.Int64("activity_id", d.ActivityID),
		zap.String("sport", string(d.Sport)),
		zap.String("date", d.Date),
		zap.Int("activity_minutes", d.ActivityMinutes),
		zap.Int("candidates", d.Candidates),
		zap.Int64("session_id", d.SessionID),
		zap.Int("difference", d.Difference),
		zap.Int("tolerance", d.Tolerance),
		zap.Bool("matched", d.Matched),
		zap.String("reason", d.Reason))
}

package linking

import (
	"math"

	"example.com/activitysync/internal/domain"
)

// MinToleranceMinutes is the smallest accepted duration difference.
const MinToleranceMinutes = 20

// Reasons recorded on a MatchDecision.
const (
	ReasonMatched       = "matched"
	ReasonNoCandidates  = "no_candidates"
	ReasonOutsideWindow = "outside_tolerance"
	ReasonLinkConflict  = "link_conflict"
	ReasonIneligible    = "ineligible"
)

// MatchDecision explains the outcome of one match attempt.
type MatchDecision struct {
	ActivityID      int64
	Sport           Sport
	Date            string
	ActivityMinutes int
	Candidates      int
	SessionID       int64
	Difference      int
	Tolerance       int
	Matched         bool
	Reason          string
}

// Tolerance returns max(20, round(0.5 * activityMinutes)).
func Tolerance(activityMinutes int) int {
	half := int(math.Round(0.5 * float64(activityMinutes)))
	return max(MinToleranceMinutes, half)
}

// Decide picks the closest candidate by planned duration, breaking ties by lowest session id,
// and accepts it only within tolerance. Candidates must already be same-day, same-sport and
// unlinked.
func Decide(activity domain.ExternalActivity, candidates []domain.PlannedSession) MatchDecision {
	minutes := domain.MinutesFromSeconds(activity.DurationSeconds)
	decision := MatchDecision{
		ActivityID:      activity.ID,
		Sport:           NormalizeSport(activity.Sport),
		Date:            domain.CalendarDate(activity.StartedAt),
		ActivityMinutes: minutes,
		Candidates:      len(candidates),
		Tolerance:       Tolerance(minutes),
	}
	if len(candidates) == 0 {
		decision.Reason = ReasonNoCandidates
		return decision
	}

	best := candidates[0]
	bestDiff := absDiff(best.PlannedDurationMinutes, minutes)
	for _, candidate := range candidates[1:] {
		diff := absDiff(candidate.PlannedDurationMinutes, minutes)
		if diff < bestDiff || (diff == bestDiff && candidate.ID < best.ID) {
			best, bestDiff = candidate, diff
		}
	}

	decision.SessionID = best.ID
	decision.Difference = bestDiff
	if bestDiff > decision.Tolerance {
		decision.Reason = ReasonOutsideWindow
		return decision
	}
	decision.Matched = true
	decision.Reason = ReasonMatched
	return decision
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

package linking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
)

func bikeActivity(minutes int) domain.ExternalActivity {
	return domain.ExternalActivity{
		ID:              1,
		AthleteID:       "athlete-1",
		Sport:           "ride",
		StartedAt:       time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC),
		DurationSeconds: minutes * 60,
	}
}

func TestTolerance(t *testing.T) {
	require.Equal(t, 20, Tolerance(1))
	require.Equal(t, 20, Tolerance(40))
	require.Equal(t, 29, Tolerance(58))
	require.Equal(t, 30, Tolerance(59))
	require.Equal(t, 60, Tolerance(120))
}

func TestDecideWithinTolerance(t *testing.T) {
	decision := Decide(bikeActivity(58), []domain.PlannedSession{{ID: 7, Sport: "bike", PlannedDurationMinutes: 60}})
	require.True(t, decision.Matched)
	require.Equal(t, int64(7), decision.SessionID)
	require.Equal(t, 2, decision.Difference)
	require.Equal(t, 29, decision.Tolerance)
	require.Equal(t, "2024-05-01", decision.Date)
}

func TestDecideOutsideTolerance(t *testing.T) {
	decision := Decide(bikeActivity(58), []domain.PlannedSession{{ID: 7, Sport: "bike", PlannedDurationMinutes: 10}})
	require.False(t, decision.Matched)
	require.Equal(t, ReasonOutsideWindow, decision.Reason)
	require.Equal(t, 48, decision.Difference)
}

func TestDecideTieBreaksOnLowestID(t *testing.T) {
	candidates := []domain.PlannedSession{
		{ID: 12, PlannedDurationMinutes: 70},
		{ID: 9, PlannedDurationMinutes: 50},
		{ID: 15, PlannedDurationMinutes: 50},
	}
	decision := Decide(bikeActivity(60), candidates)
	require.True(t, decision.Matched)
	require.Equal(t, int64(9), decision.SessionID)
}

func TestDecidePrefersClosest(t *testing.T) {
	candidates := []domain.PlannedSession{
		{ID: 1, PlannedDurationMinutes: 90},
		{ID: 2, PlannedDurationMinutes: 45},
	}
	decision := Decide(bikeActivity(50), candidates)
	require.Equal(t, int64(2), decision.SessionID)
	require.Equal(t, 5, decision.Difference)
}

func TestDecideNoCandidates(t *testing.T) {
	decision := Decide(bikeActivity(30), nil)
	require.False(t, decision.Matched)
	require.Equal(t, ReasonNoCandidates, decision.Reason)
}

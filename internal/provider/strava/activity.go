package strava

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"example.com/activitysync/internal/domain"
)

// activity holds the summary fields read from a Strava activity. The full document is kept
// verbatim as the raw payload.
type activity struct {
	ID                 json.Number `json:"id"`
	SportType          string      `json:"sport_type"`
	Type               string      `json:"type"`
	StartDate          *time.Time  `json:"start_date"`
	UTCOffset          *float64    `json:"utc_offset"`
	MovingTime         int         `json:"moving_time"`
	ElapsedTime        int         `json:"elapsed_time"`
	Distance           *float64    `json:"distance"`
	TotalElevationGain *float64    `json:"total_elevation_gain"`
}

func normalize(raw json.RawMessage) (domain.NormalizedActivity, error) {
	var a activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.NormalizedActivity{}, err
	}
	id := strings.TrimSpace(a.ID.String())
	if id == "" {
		return domain.NormalizedActivity{}, errors.New("activity without id")
	}

	sport := a.SportType
	if sport == "" {
		sport = a.Type
	}

	duration := a.MovingTime
	if duration <= 0 {
		duration = a.ElapsedTime
	}

	var startedAt time.Time
	if a.StartDate != nil {
		startedAt = a.StartDate.UTC()
		if a.UTCOffset != nil {
			startedAt = startedAt.In(domain.FixedZone(int(*a.UTCOffset)))
		}
	}

	return domain.NormalizedActivity{
		Provider:            Name,
		ExternalID:          id,
		Sport:               strings.ToLower(strings.TrimSpace(sport)),
		StartedAt:           startedAt,
		DurationSeconds:     duration,
		DistanceMeters:      a.Distance,
		ElevationGainMeters: a.TotalElevationGain,
		RawPayload:          append(json.RawMessage(nil), raw...),
	}, nil
}

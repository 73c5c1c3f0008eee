package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// NormalizedActivity is a provider activity mapped onto the fields the service understands.
// Optional metrics are nil when the provider omitted them.
type NormalizedActivity struct {
	Provider            string
	ExternalID          string
	Sport               string
	StartedAt           time.Time
	DurationSeconds     int
	DistanceMeters      *float64
	ElevationGainMeters *float64
	RawPayload          json.RawMessage
}

// ExternalActivity is the persisted form of a provider activity. The
// (AthleteID, Provider, ExternalID) triple is unique, soft-deleted rows included.
type ExternalActivity struct {
	ID                  int64
	AthleteID           string
	Provider            string
	ExternalID          string
	Sport               string
	StartedAt           time.Time
	DurationSeconds     int
	DistanceMeters      *float64
	ElevationGainMeters *float64
	RawPayload          json.RawMessage
	PlannedSessionID    *int64
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasStartTime reports whether the provider supplied a start timestamp.
func (a ExternalActivity) HasStartTime() bool {
	return !a.StartedAt.IsZero()
}

// Linked reports whether the activity is attached to a planned session.
func (a ExternalActivity) Linked() bool {
	return a.PlannedSessionID != nil
}

// Deleted reports whether the row is soft-deleted.
func (a ExternalActivity) Deleted() bool {
	return a.DeletedAt != nil
}

// DurationMinutes converts the activity duration to whole minutes, never less than one.
// The second return value is false when the duration is unknown.
func (a ExternalActivity) DurationMinutes() (int, bool) {
	if a.DurationSeconds <= 0 {
		return 0, false
	}
	return MinutesFromSeconds(a.DurationSeconds), true
}

// MinutesFromSeconds returns max(1, round(seconds/60)).
func MinutesFromSeconds(seconds int) int {
	minutes := (seconds + 30) / 60
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Apply overwrites every provider-owned field with the values from n.
func (a *ExternalActivity) Apply(n NormalizedActivity) {
	a.Provider = n.Provider
	a.ExternalID = n.ExternalID
	a.Sport = n.Sport
	a.StartedAt = n.StartedAt
	a.DurationSeconds = n.DurationSeconds
	a.DistanceMeters = n.DistanceMeters
	a.ElevationGainMeters = n.ElevationGainMeters
	a.RawPayload = n.RawPayload
}

// ActivityFilter narrows the unlinked-activity scan used by batch auto-linking.
type ActivityFilter struct {
	AthleteID string
	Provider  string
	After     *time.Time
}

// FixedZone returns a location for a UTC offset in seconds, named like "UTC+02:00".
func FixedZone(offsetSeconds int) *time.Location {
	sign, abs := '+', offsetSeconds
	if abs < 0 {
		sign, abs = '-', -abs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, abs%3600/60)
	return time.FixedZone(name, offsetSeconds)
}

// UTCOffset returns the offset in seconds of t's location at t.
func UTCOffset(t time.Time) int {
	_, offset := t.Zone()
	return offset
}

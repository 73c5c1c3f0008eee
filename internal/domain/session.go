package domain

import "time"

// PlannedSession is a training session from the athlete's plan. LinkedActivityID and
// LinkedActivity are populated by the store from the activity that references the session.
type PlannedSession struct {
	ID                     int64
	AthleteID              string
	ScheduledOn            time.Time
	Sport                  string
	PlannedDurationMinutes int
	ActualDurationMinutes  *int
	ActualTSS              *int
	LinkedActivityID       *int64
	LinkedActivity         *ExternalActivity
	Athlete                *AthleteProfile
}

// Linked reports whether an activity is attached to the session.
func (s PlannedSession) Linked() bool {
	return s.LinkedActivityID != nil || s.LinkedActivity != nil
}

// AthleteProfile supplies estimation inputs. Zero means the value is not set.
type AthleteProfile struct {
	AthleteID          string
	FTPWatts           int
	ThresholdHeartRate int
	MaxHeartRate       int
}

// CalendarDate returns the wall-clock date of t in its own location.
func CalendarDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

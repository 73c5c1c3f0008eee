// Package actuals derives a planned session's realized duration and training load from manual
// overrides, the linked activity and the athlete profile.
package actuals

import (
	"math"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/observability"
)

// MaxTSS is the upper bound applied to every derived training load.
const MaxTSS = 2000

// Source names the rule that produced a resolved value.
type Source string

const (
	SourceOverride  Source = "session_override"
	SourceActivity  Source = "linked_activity"
	SourcePayload   Source = "provider_payload"
	SourcePower     Source = "power_estimate"
	SourceHeartRate Source = "heart_rate_estimate"
)

// Resolution is a resolved value and the rule that produced it. Detail names the payload key
// or profile rule involved, when any.
type Resolution struct {
	Value  int
	Source Source
	Detail string
}

// Resolver computes actual metrics. It only reads what it is given and never loads data.
type Resolver struct{}

// NewResolver constructs a Resolver.
func NewResolver() Resolver {
	return Resolver{}
}

// ActualDurationMinutes returns the realized duration, or false when unknown.
func (r Resolver) ActualDurationMinutes(session domain.PlannedSession) (int, bool) {
	res, ok := r.ResolveDuration(session)
	return res.Value, ok
}

// ActualTSS returns the realized training load, or false when unknown. athlete supplies the
// profile when the session does not carry one.
func (r Resolver) ActualTSS(session domain.PlannedSession, athlete *domain.AthleteProfile) (int, bool) {
	res, ok := r.ResolveTSS(session, athlete)
	return res.Value, ok
}

// ResolveDuration is ActualDurationMinutes with the producing rule.
func (r Resolver) ResolveDuration(session domain.PlannedSession) (Resolution, bool) {
	if session.ActualDurationMinutes != nil && *session.ActualDurationMinutes > 0 {
		return Resolution{Value: *session.ActualDurationMinutes, Source: SourceOverride}, true
	}
	if session.LinkedActivity != nil {
		if minutes, ok := session.LinkedActivity.DurationMinutes(); ok {
			return Resolution{Value: minutes, Source: SourceActivity}, true
		}
	}
	return Resolution{}, false
}

// ResolveTSS is ActualTSS with the producing rule.
func (r Resolver) ResolveTSS(session domain.PlannedSession, athlete *domain.AthleteProfile) (Resolution, bool) {
	res, ok := r.resolveTSS(session, athlete)
	if ok {
		observability.RecordTSSResolution(string(res.Source))
	} else {
		observability.RecordTSSResolution("unresolved")
	}
	return res, ok
}

func (r Resolver) resolveTSS(session domain.PlannedSession, athlete *domain.AthleteProfile) (Resolution, bool) {
	if session.ActualTSS != nil && *session.ActualTSS >= 0 {
		return Resolution{Value: *session.ActualTSS, Source: SourceOverride}, true
	}

	activity := session.LinkedActivity
	if activity == nil {
		return Resolution{}, false
	}
	if athlete == nil {
		athlete = session.Athlete
	}
	p := decodePayload(activity.RawPayload)

	if v, key, ok := p.first(trainingLoadFields); ok {
		if tss, ok := bound(v); ok {
			return Resolution{Value: tss, Source: SourcePayload, Detail: key}, true
		}
	}

	seconds := float64(activity.DurationSeconds)
	if seconds <= 0 {
		return Resolution{}, false
	}

	if tss, detail, ok := powerEstimate(p, athlete, seconds); ok {
		return Resolution{Value: tss, Source: SourcePower, Detail: detail}, true
	}
	if tss, detail, ok := heartRateEstimate(p, athlete, seconds); ok {
		return Resolution{Value: tss, Source: SourceHeartRate, Detail: detail}, true
	}
	return Resolution{}, false
}

// powerEstimate computes seconds * P * IF / (FTP * 3600) * 100 with IF = P / FTP.
func powerEstimate(p payload, athlete *domain.AthleteProfile, seconds float64) (int, string, bool) {
	power, key, ok := p.first(powerFields)
	if !ok {
		return 0, "", false
	}
	ftp, _, ok := resolveThreshold(athlete, ftpRules)
	if !ok {
		return 0, "", false
	}
	intensity := power / ftp
	tss, ok := bound(seconds * power * intensity / (ftp * 3600) * 100)
	return tss, key, ok
}

// heartRateEstimate computes seconds / 3600 * IF^2 * 100 with IF = avgHR / thresholdHR.
func heartRateEstimate(p payload, athlete *domain.AthleteProfile, seconds float64) (int, string, bool) {
	heartRate, _, ok := p.first(heartRateFields)
	if !ok {
		return 0, "", false
	}
	threshold, rule, ok := resolveThreshold(athlete, thresholdHeartRateRules)
	if !ok {
		return 0, "", false
	}
	intensity := heartRate / threshold
	tss, ok := bound(seconds / 3600 * intensity * intensity * 100)
	return tss, rule, ok
}

// bound rounds v and caps it at MaxTSS. Negative or non-finite values are rejected.
func bound(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	rounded := math.Round(v)
	if rounded < 0 {
		return 0, false
	}
	if rounded > MaxTSS {
		return MaxTSS, true
	}
	return int(rounded), true
}

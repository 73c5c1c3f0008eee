package actuals

import "example.com/activitysync/internal/domain"

// maxHeartRateThresholdRatio approximates threshold heart rate from max heart rate.
const maxHeartRateThresholdRatio = 0.9

// profileRule derives one threshold from an athlete profile.
type profileRule struct {
	name  string
	value func(domain.AthleteProfile) float64
}

var ftpRules = []profileRule{
	{name: "ftp_watts", value: func(p domain.AthleteProfile) float64 { return float64(p.FTPWatts) }},
}

var thresholdHeartRateRules = []profileRule{
	{name: "threshold_heart_rate", value: func(p domain.AthleteProfile) float64 { return float64(p.ThresholdHeartRate) }},
	{name: "max_heart_rate", value: func(p domain.AthleteProfile) float64 {
		return maxHeartRateThresholdRatio * float64(p.MaxHeartRate)
	}},
}

// resolveThreshold returns the first positive value produced by rules.
func resolveThreshold(profile *domain.AthleteProfile, rules []profileRule) (float64, string, bool) {
	if profile == nil {
		return 0, "", false
	}
	for _, rule := range rules {
		if v := rule.value(*profile); v > 0 {
			return v, rule.name, true
		}
	}
	return 0, "", false
}

package linking

import "strings"

// Sport is the closed vocabulary activities and planned sessions are compared in.
type Sport string

const (
	SportSwim  Sport = "swim"
	SportBike  Sport = "bike"
	SportRun   Sport = "run"
	SportGym   Sport = "gym"
	SportOther Sport = "other"
)

var sportAliases = map[string]Sport{
	"swim":              SportSwim,
	"swimming":          SportSwim,
	"pool_swim":         SportSwim,
	"open_water_swim":   SportSwim,
	"openwaterswim":     SportSwim,
	"bike":              SportBike,
	"biking":            SportBike,
	"ride":              SportBike,
	"cycling":           SportBike,
	"indoor_cycling":    SportBike,
	"virtualride":       SportBike,
	"virtual_ride":      SportBike,
	"ebikeride":         SportBike,
	"gravelride":        SportBike,
	"mountainbikeride":  SportBike,
	"run":               SportRun,
	"running":           SportRun,
	"trailrun":          SportRun,
	"trail_run":         SportRun,
	"virtualrun":        SportRun,
	"virtual_run":       SportRun,
	"treadmill":         SportRun,
	"gym":               SportGym,
	"strength":          SportGym,
	"strength_training": SportGym,
	"weighttraining":    SportGym,
	"weight_training":   SportGym,
	"crossfit":          SportGym,
	"workout":           SportGym,
}

// NormalizeSport maps a provider or plan sport label onto the closed vocabulary.
// Unknown labels map to SportOther.
func NormalizeSport(label string) Sport {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if sport, ok := sportAliases[key]; ok {
		return sport
	}
	return SportOther
}

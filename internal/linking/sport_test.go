package linking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSport(t *testing.T) {
	cases := map[string]Sport{
		"ride":              SportBike,
		"cycling":           SportBike,
		"VirtualRide":       SportBike,
		"Run":               SportRun,
		"trail-run":         SportRun,
		"swim":              SportSwim,
		"open water swim":   SportSwim,
		"strength":          SportGym,
		"WeightTraining":    SportGym,
		"hiking":            SportOther,
		"":                  SportOther,
		"  ride  ":          SportBike,
		"strength_training": SportGym,
	}
	for label, want := range cases {
		require.Equal(t, want, NormalizeSport(label), label)
	}
}

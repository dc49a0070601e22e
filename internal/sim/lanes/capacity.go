// Package lanes runs lane traffic: capacity, congestion, tap queues,
// transit advance and region health.
package lanes

import (
	"math"

	"starlanes.ai/internal/sim/model"
)

// floorEps absorbs float noise so 10 × 0.7 floors to 7, not 6.
const floorEps = 1e-9

// HealthMultiplier steps region health into a capacity multiplier.
func HealthMultiplier(health float64) float64 {
	switch {
	case health >= 80:
		return 1.25
	case health >= 60:
		return 1.0
	default:
		return 0.7
	}
}

// Capacity is floor(base × coreWidth/referenceWidth × healthMultiplier).
func Capacity(e model.LaneEdge, health, referenceWidth float64) float64 {
	ratio := 1.0
	if referenceWidth > 0 {
		ratio = e.CoreWidth / referenceWidth
	}
	return math.Max(0, math.Floor(e.BaseCapacity*ratio*HealthMultiplier(health)+floorEps))
}

// Rho is the load ratio. A lane with no capacity is infinitely congested as
// soon as anything is on it.
func Rho(load, capacity float64) float64 {
	if capacity <= 0 {
		if load > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return load / capacity
}

// SpeedMultiplier steps the load ratio into a speed factor. The 0.8 band
// is open at 1.5, so a lane at exactly 1.5 already runs at 0.6.
func SpeedMultiplier(rho float64) float64 {
	switch {
	case rho <= 1:
		return 1.0
	case rho < 1.5:
		return 0.8
	case rho <= 2:
		return 0.6
	default:
		return 0.4
	}
}

// EffectiveSpeed is the edge's nominal speed under congestion.
func EffectiveSpeed(e model.LaneEdge, rho float64) float64 {
	return e.NominalSpeed * SpeedMultiplier(rho)
}

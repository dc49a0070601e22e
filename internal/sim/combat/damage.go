package combat

import (
	"math"

	"starlanes.ai/internal/sim/tuning"
)

// Shot is everything the damage pipeline needs about one attack.
type Shot struct {
	Base     float64
	Distance float64
	Range    float64
	Optimal  float64
	Falloff  float64

	AttackerClass int
	DefenderClass int
	PointDefense  bool

	// Attacker-side size penalty relief: a fraction in [0,1] or a full bypass.
	SizeMitigation float64
	IgnoreSize     bool

	// Defender-side evasion: status effects plus innate bonus.
	Evasion    float64
	Resilience bool
}

// Breakdown records each multiplier applied to a shot.
type Breakdown struct {
	InRange    bool    `json:"in_range"`
	Falloff    float64 `json:"falloff"`
	Size       float64 `json:"size"`
	Evasion    float64 `json:"evasion"`
	Resilience float64 `json:"resilience"`
	Damage     int     `json:"damage"`
}

// FalloffMultiplier is the triangular penalty around the optimal distance.
func FalloffMultiplier(distance, optimal, rate float64) float64 {
	if rate <= 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(distance-optimal)*rate)
}

// SizeMultiplier penalizes a larger attacker firing at a smaller defender.
func SizeMultiplier(attacker, defender int, pointDefense bool, mitigation float64, ignore bool, t tuning.CombatTuning) float64 {
	diff := attacker - defender
	if diff <= 0 || ignore {
		return 1
	}
	var p float64
	if pointDefense {
		p = math.Max(t.PointDefensePenaltyFloor, math.Pow(t.PointDefensePenaltyBase, float64(diff)))
	} else {
		p = math.Pow(t.SizePenaltyBase, float64(diff))
	}
	m := math.Max(0, math.Min(1, mitigation))
	return p + (1-p)*m
}

func EvasionMultiplier(total float64, t tuning.CombatTuning) float64 {
	return math.Max(0, 1-math.Max(0, math.Min(t.EvasionCap, total)))
}

// Damage runs the full pipeline. The result is never negative.
func Damage(s Shot, t tuning.CombatTuning) Breakdown {
	b := Breakdown{Falloff: 1, Size: 1, Evasion: 1, Resilience: 1}
	if s.Distance > s.Range {
		return b
	}
	b.InRange = true
	b.Falloff = FalloffMultiplier(s.Distance, s.Optimal, s.Falloff)
	b.Size = SizeMultiplier(s.AttackerClass, s.DefenderClass, s.PointDefense, s.SizeMitigation, s.IgnoreSize, t)
	b.Evasion = EvasionMultiplier(s.Evasion, t)
	if s.Resilience {
		b.Resilience = 1 - t.ResilienceMitigation
	}
	d := math.Floor(s.Base * b.Falloff * b.Size * b.Evasion * b.Resilience)
	if d > 0 {
		b.Damage = int(d)
	}
	return b
}

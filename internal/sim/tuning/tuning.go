package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Turn cadence used by the scheduler when no lock completes earlier.
	TurnSeconds        int `yaml:"turn_seconds"`
	SnapshotEveryTurns int `yaml:"snapshot_every_turns"`
	StaleOrderTurns    int `yaml:"stale_order_turns"`

	Movement MovementTuning `yaml:"movement"`
	Combat   CombatTuning   `yaml:"combat"`
	Mining   MiningTuning   `yaml:"mining"`
	Vision   VisionTuning   `yaml:"vision"`
	Lanes    LaneTuning     `yaml:"lanes"`
	Planner  PlannerTuning  `yaml:"planner"`
	Regions  RegionTuning   `yaml:"regions"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type MovementTuning struct {
	WarpPrepTurns int `yaml:"warp_prep_turns"`
}

type CombatTuning struct {
	SizePenaltyBase          float64 `yaml:"size_penalty_base"`
	PointDefensePenaltyBase  float64 `yaml:"point_defense_penalty_base"`
	PointDefensePenaltyFloor float64 `yaml:"point_defense_penalty_floor"`
	EvasionCap               float64 `yaml:"evasion_cap"`
	ResilienceMitigation     float64 `yaml:"resilience_mitigation"`
	RespawnDelayTurns        int     `yaml:"respawn_delay_turns"`
	WreckDecayTurns          int     `yaml:"wreck_decay_turns"`
	SalvageFraction          float64 `yaml:"salvage_fraction"`
}

type MiningTuning struct {
	BaseRate      float64 `yaml:"base_rate"`
	Ramp          float64 `yaml:"ramp"`
	Cap           float64 `yaml:"cap"`
	EnergyPerTick int     `yaml:"energy_per_tick"`
	Range         float64 `yaml:"range"`
}

type VisionTuning struct {
	DetailFraction float64 `yaml:"detail_fraction"`
}

type LaneTuning struct {
	ReferenceWidth     float64 `yaml:"reference_width"`
	ReferenceDistance  float64 `yaml:"reference_distance"`
	SlotsPerTurn       int     `yaml:"slots_per_turn"`
	CUPerSlot          float64 `yaml:"cu_per_slot"`
	DefaultCU          float64 `yaml:"default_cu"`
	WildcatMergeTurns  int     `yaml:"wildcat_merge_turns"`
	WildcatMaxRho      float64 `yaml:"wildcat_max_rho"`
	EntryRadius        float64 `yaml:"entry_radius"`
	ItineraryFreshness int     `yaml:"itinerary_freshness_turns"`
}

type PlannerTuning struct {
	ImpulseSpeed    float64 `yaml:"impulse_speed"`
	TransferRadius  float64 `yaml:"transfer_radius"`
	TransferPenalty float64 `yaml:"transfer_penalty"`
	OffRampPenalty  float64 `yaml:"off_ramp_penalty"`
	GateRadius      float64 `yaml:"gate_radius"`
	GateCost        float64 `yaml:"gate_cost"`
	MaxRoutes       int     `yaml:"max_routes"`
}

type RegionTuning struct {
	HealthRecovery float64 `yaml:"health_recovery"`
	HealthWear     float64 `yaml:"health_wear"`
	WearRho        float64 `yaml:"wear_rho"`
}

type RateLimits struct {
	OrdersPerSecond float64 `yaml:"orders_per_second"`
	OrdersBurst     int     `yaml:"orders_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TurnSeconds:        60,
		SnapshotEveryTurns: 10,
		StaleOrderTurns:    3,
		Movement:           MovementTuning{WarpPrepTurns: 2},
		Combat: CombatTuning{
			SizePenaltyBase:          0.4,
			PointDefensePenaltyBase:  0.85,
			PointDefensePenaltyFloor: 0.6,
			EvasionCap:               0.9,
			ResilienceMitigation:     0.25,
			RespawnDelayTurns:        3,
			WreckDecayTurns:          5,
			SalvageFraction:          0.3,
		},
		Mining: MiningTuning{BaseRate: 1, Ramp: 0.5, Cap: 4, EnergyPerTick: 2, Range: 3},
		Vision: VisionTuning{DetailFraction: 0.5},
		Lanes: LaneTuning{
			ReferenceWidth:     1,
			ReferenceDistance:  100,
			SlotsPerTurn:       2,
			CUPerSlot:          1,
			DefaultCU:          1,
			WildcatMergeTurns:  2,
			WildcatMaxRho:      1.5,
			EntryRadius:        2,
			ItineraryFreshness: 10,
		},
		Planner: PlannerTuning{
			ImpulseSpeed:    5,
			TransferRadius:  4,
			TransferPenalty: 1,
			OffRampPenalty:  0.5,
			GateRadius:      3,
			GateCost:        1,
			MaxRoutes:       3,
		},
		Regions:    RegionTuning{HealthRecovery: 1, HealthWear: 2, WearRho: 1.5},
		RateLimits: RateLimits{OrdersPerSecond: 5, OrdersBurst: 10},
	}
}

// Load reads a tuning file on top of Defaults, so a file only needs the
// values it overrides.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.Movement.WarpPrepTurns <= 0 {
		return fmt.Errorf("movement.warp_prep_turns must be > 0")
	}
	if t.Lanes.ReferenceWidth <= 0 {
		return fmt.Errorf("lanes.reference_width must be > 0")
	}
	if t.Lanes.ReferenceDistance <= 0 {
		return fmt.Errorf("lanes.reference_distance must be > 0")
	}
	if t.Lanes.SlotsPerTurn < 0 || t.Lanes.CUPerSlot < 0 {
		return fmt.Errorf("lanes.slots_per_turn and lanes.cu_per_slot must be >= 0")
	}
	if t.Planner.ImpulseSpeed <= 0 {
		return fmt.Errorf("planner.impulse_speed must be > 0")
	}
	if t.Planner.MaxRoutes <= 0 {
		return fmt.Errorf("planner.max_routes must be > 0")
	}
	if t.Combat.EvasionCap < 0 || t.Combat.EvasionCap >= 1 {
		return fmt.Errorf("combat.evasion_cap must be in [0,1)")
	}
	if t.Combat.SizePenaltyBase <= 0 || t.Combat.SizePenaltyBase > 1 {
		return fmt.Errorf("combat.size_penalty_base must be in (0,1]")
	}
	if t.Mining.Cap < t.Mining.BaseRate {
		return fmt.Errorf("mining.cap must be >= mining.base_rate")
	}
	return nil
}

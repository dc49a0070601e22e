package model

import "math"

type EntityKind string

const (
	KindShip     EntityKind = "ship"
	KindStation  EntityKind = "station"
	KindResource EntityKind = "resource"
	KindPod      EntityKind = "pod"
)

// Effect keys with engine-level meaning.
const (
	EffectEvasion           = "evasion"
	EffectSizeMitigation    = "size_mitigation"
	EffectIgnoreSizePenalty = "ignore_size_penalty"
	EffectHold              = "hold"
	EffectScanBoost         = "scan_boost"
	EffectSpeedMult         = "speed_mult"
	EffectSpeedFlat         = "speed_flat"
	EffectMiningRate        = "mining_rate"
)

type Stats struct {
	HP            int     `json:"hp"`
	MaxHP         int     `json:"max_hp"`
	Energy        int     `json:"energy"`
	MaxEnergy     int     `json:"max_energy"`
	EnergyRegen   int     `json:"energy_regen"`
	ScanRange     float64 `json:"scan_range"`
	DetailRange   float64 `json:"detail_range,omitempty"`
	Speed         int     `json:"speed"`
	WarpPrepTurns int     `json:"warp_prep_turns,omitempty"`
	InnateEvasion float64 `json:"innate_evasion,omitempty"`
}

type CombatState struct {
	// ResilienceReady is armed when HP is topped off after damage and is
	// consumed by the next incoming hit.
	ResilienceReady bool `json:"resilience_ready,omitempty"`
	WasDamaged      bool `json:"was_damaged,omitempty"`
}

type WreckState struct {
	SinceTurn  int64          `json:"since_turn"`
	DecayTurn  int64          `json:"decay_turn"`
	Salvage    map[string]int `json:"salvage,omitempty"`
	Killer     string         `json:"killer,omitempty"`
	PriorClass int            `json:"prior_class,omitempty"`
}

type Entity struct {
	ID       string         `json:"id"`
	Kind     EntityKind     `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Owner    string         `json:"owner,omitempty"`
	Class    int            `json:"class"`
	Sector   string         `json:"sector,omitempty"`
	Pos      Tile           `json:"pos"`
	Stats    Stats          `json:"stats"`
	Effects  []StatusEffect `json:"effects,omitempty"`
	Combat   CombatState    `json:"combat"`
	Cargo    map[string]int `json:"cargo,omitempty"`
	Material int            `json:"material,omitempty"`
	Wreck    *WreckState    `json:"wreck,omitempty"`
}

func (e Entity) Key() string { return e.ID }

func (e *Entity) IsWreck() bool { return e != nil && e.Wreck != nil }

// StatusEffect is an active modifier. ExpiresTurn nil means it lasts until
// explicitly cleared.
type StatusEffect struct {
	Key         string             `json:"key"`
	Magnitude   float64            `json:"magnitude"`
	Data        map[string]float64 `json:"data,omitempty"`
	AppliedTurn int64              `json:"applied_turn"`
	ExpiresTurn *int64             `json:"expires_turn,omitempty"`
	Source      string             `json:"source,omitempty"`
}

func (s StatusEffect) ActiveAt(turn int64) bool {
	return s.ExpiresTurn == nil || turn < *s.ExpiresTurn
}

func ExpiresAt(turn int64) *int64 { return &turn }

func (e *Entity) ActiveEffects(turn int64, key string) []StatusEffect {
	var out []StatusEffect
	for _, s := range e.Effects {
		if s.Key == key && s.ActiveAt(turn) {
			out = append(out, s)
		}
	}
	return out
}

func (e *Entity) HasEffect(turn int64, key string) bool {
	return len(e.ActiveEffects(turn, key)) > 0
}

// SumEffect adds the magnitudes of every active effect with key.
func (e *Entity) SumEffect(turn int64, key string) float64 {
	total := 0.0
	for _, s := range e.ActiveEffects(turn, key) {
		total += s.Magnitude
	}
	return total
}

// ProductEffect multiplies the magnitudes of every active effect with key.
// Returns 1 when none are active.
func (e *Entity) ProductEffect(turn int64, key string) float64 {
	p := 1.0
	for _, s := range e.ActiveEffects(turn, key) {
		p *= s.Magnitude
	}
	return p
}

// MaxEffect returns the largest active magnitude for key, or 0.
func (e *Entity) MaxEffect(turn int64, key string) float64 {
	m := 0.0
	for _, s := range e.ActiveEffects(turn, key) {
		m = math.Max(m, s.Magnitude)
	}
	return m
}

// SetEffect replaces every effect with the same key and source.
func (e *Entity) SetEffect(s StatusEffect) {
	e.RemoveEffect(s.Key, s.Source)
	e.Effects = append(e.Effects, s)
}

func (e *Entity) RemoveEffect(key, source string) {
	out := e.Effects[:0]
	for _, s := range e.Effects {
		if s.Key == key && s.Source == source {
			continue
		}
		out = append(out, s)
	}
	e.Effects = out
}

// PruneEffects drops effects expired at turn and returns them.
func (e *Entity) PruneEffects(turn int64) []StatusEffect {
	var expired []StatusEffect
	out := e.Effects[:0]
	for _, s := range e.Effects {
		if !s.ActiveAt(turn) {
			expired = append(expired, s)
			continue
		}
		out = append(out, s)
	}
	e.Effects = out
	return expired
}

type Cooldown struct {
	Entity    string `json:"entity"`
	Ability   string `json:"ability"`
	ReadyTurn int64  `json:"ready_turn"`
}

func CooldownKey(entity, ability string) string { return entity + "/" + ability }

func (c Cooldown) Key() string { return CooldownKey(c.Entity, c.Ability) }

type HarvestTask struct {
	Entity      string  `json:"entity"`
	Target      string  `json:"target"`
	Rate        float64 `json:"rate"`
	Carry       float64 `json:"carry,omitempty"`
	Paused      bool    `json:"paused,omitempty"`
	StartedTurn int64   `json:"started_turn"`
}

func (h HarvestTask) Key() string { return h.Entity }

type Respawn struct {
	Player string `json:"player"`
	Entity string `json:"entity"`
	AtTurn int64  `json:"at_turn"`
	Pos    Tile   `json:"pos"`
	Sector string `json:"sector,omitempty"`
}

func (r Respawn) Key() string { return r.Entity }

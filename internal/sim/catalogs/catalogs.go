package catalogs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

type AbilityKind string

const (
	KindRepair         AbilityKind = "repair"
	KindEvasion        AbilityKind = "evasion"
	KindSizeMitigation AbilityKind = "size_mitigation"
	KindHold           AbilityKind = "hold"
	KindScanBoost      AbilityKind = "scan_boost"
	KindSpeedBoost     AbilityKind = "speed_boost"
	KindMine           AbilityKind = "mine"
	KindWeapon         AbilityKind = "weapon"
)

// Kinds lists every ability kind the engine knows how to dispatch.
var Kinds = []AbilityKind{
	KindRepair, KindEvasion, KindSizeMitigation, KindHold,
	KindScanBoost, KindSpeedBoost, KindMine, KindWeapon,
}

// Offensive reports whether abilities of this kind resolve in the offense
// sub-phase.
func (k AbilityKind) Offensive() bool { return k == KindWeapon }

type TargetKind string

const (
	TargetSelf     TargetKind = "self"
	TargetAlly     TargetKind = "ally"
	TargetEnemy    TargetKind = "enemy"
	TargetAny      TargetKind = "any"
	TargetResource TargetKind = "resource"
)

const TagPointDefense = "point_defense"

type AbilityDef struct {
	Key         string      `yaml:"key" json:"key"`
	Kind        AbilityKind `yaml:"kind" json:"kind"`
	Passive     bool        `yaml:"passive,omitempty" json:"passive,omitempty"`
	Target      TargetKind  `yaml:"target" json:"target"`
	Range       float64     `yaml:"range,omitempty" json:"range,omitempty"`
	Optimal     float64     `yaml:"optimal,omitempty" json:"optimal,omitempty"`
	FalloffRate float64     `yaml:"falloff_rate,omitempty" json:"falloff_rate,omitempty"`
	Damage      float64     `yaml:"damage,omitempty" json:"damage,omitempty"`
	Magnitude   float64     `yaml:"magnitude,omitempty" json:"magnitude,omitempty"`
	Duration    int         `yaml:"duration,omitempty" json:"duration,omitempty"`
	EnergyCost  int         `yaml:"energy_cost,omitempty" json:"energy_cost,omitempty"`
	Cooldown    int         `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	IgnoreSize  bool        `yaml:"ignore_size,omitempty" json:"ignore_size,omitempty"`
	Tags        []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
}

func (d AbilityDef) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type Catalog struct {
	ByKey  map[string]AbilityDef
	Digest string
}

func (c *Catalog) Get(key string) (AbilityDef, bool) {
	if c == nil {
		return AbilityDef{}, false
	}
	d, ok := c.ByKey[key]
	return d, ok
}

type catalogFile struct {
	Abilities []AbilityDef `yaml:"abilities"`
}

// Load reads an abilities.yaml catalog.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("abilities.yaml: %w", err)
	}
	c, err := New(f.Abilities)
	if err != nil {
		return nil, fmt.Errorf("abilities.yaml: %w", err)
	}
	return c, nil
}

func New(defs []AbilityDef) (*Catalog, error) {
	known := map[AbilityKind]bool{}
	for _, k := range Kinds {
		known[k] = true
	}
	c := &Catalog{ByKey: make(map[string]AbilityDef, len(defs))}
	for i, d := range defs {
		d.Key = strings.TrimSpace(d.Key)
		if d.Key == "" {
			return nil, fmt.Errorf("abilities[%d]: empty key", i)
		}
		if _, dup := c.ByKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate ability key: %s", d.Key)
		}
		if !known[d.Kind] {
			return nil, fmt.Errorf("ability %s: unknown kind %q", d.Key, d.Kind)
		}
		if d.Target == "" {
			d.Target = TargetSelf
		}
		if d.Range < 0 || d.EnergyCost < 0 || d.Cooldown < 0 {
			return nil, fmt.Errorf("ability %s: negative range/energy/cooldown", d.Key)
		}
		c.ByKey[d.Key] = d
	}
	c.Digest = digest(c.ByKey)
	return c, nil
}

func digest(m map[string]AbilityDef) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	defs := make([]AbilityDef, 0, len(keys))
	for _, k := range keys {
		defs = append(defs, m[k])
	}
	b, _ := json.Marshal(defs)
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Defaults is the built-in catalog used when no abilities.yaml is given.
func Defaults() *Catalog {
	c, err := New([]AbilityDef{
		{Key: "laser", Kind: KindWeapon, Target: TargetEnemy, Range: 8, Optimal: 4, FalloffRate: 0.1, Damage: 30, EnergyCost: 10, Cooldown: 1},
		{Key: "railgun", Kind: KindWeapon, Target: TargetEnemy, Range: 14, Optimal: 10, FalloffRate: 0.05, Damage: 60, EnergyCost: 25, Cooldown: 3},
		{Key: "flak", Kind: KindWeapon, Target: TargetEnemy, Range: 4, Optimal: 2, FalloffRate: 0.2, Damage: 15, EnergyCost: 5, Cooldown: 0, Tags: []string{TagPointDefense}},
		{Key: "repair", Kind: KindRepair, Target: TargetAlly, Range: 5, Magnitude: 40, EnergyCost: 15, Cooldown: 2},
		{Key: "evasive_maneuvers", Kind: KindEvasion, Target: TargetSelf, Magnitude: 0.3, Duration: 2, EnergyCost: 10, Cooldown: 4},
		{Key: "fire_control_link", Kind: KindSizeMitigation, Target: TargetAlly, Range: 6, Magnitude: 0.5, Duration: 2, EnergyCost: 12, Cooldown: 4},
		{Key: "precision_lock", Kind: KindSizeMitigation, Target: TargetSelf, IgnoreSize: true, Duration: 1, EnergyCost: 30, Cooldown: 6},
		{Key: "tractor_hold", Kind: KindHold, Target: TargetEnemy, Range: 5, Duration: 1, EnergyCost: 20, Cooldown: 5},
		{Key: "sensor_sweep", Kind: KindScanBoost, Target: TargetSelf, Magnitude: 1.5, Duration: 1, EnergyCost: 8, Cooldown: 2},
		{Key: "afterburner", Kind: KindSpeedBoost, Target: TargetSelf, Magnitude: 2, Duration: 1, EnergyCost: 12, Cooldown: 3},
		{Key: "mining_laser", Kind: KindMine, Target: TargetResource, Range: 3, EnergyCost: 0},
		{Key: "hull_plating", Kind: KindRepair, Passive: true},
	})
	if err != nil {
		panic(err)
	}
	return c
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
)

// scenario is the YAML fixture a fresh game is seeded from.
type scenario struct {
	Game     string       `yaml:"game"`
	Turn     int64        `yaml:"turn"`
	Entities []entitySpec `yaml:"entities"`
	Edges    []edgeSpec   `yaml:"edges"`
	Taps     []tapSpec    `yaml:"taps"`
	Gates    []gateSpec   `yaml:"gates"`
	Regions  []regionSpec `yaml:"regions"`
}

type entitySpec struct {
	ID          string           `yaml:"id"`
	Kind        model.EntityKind `yaml:"kind"`
	Name        string           `yaml:"name"`
	Owner       string           `yaml:"owner"`
	Class       int              `yaml:"class"`
	Sector      string           `yaml:"sector"`
	Pos         [2]int           `yaml:"pos"`
	HP          int              `yaml:"hp"`
	Energy      int              `yaml:"energy"`
	EnergyRegen int              `yaml:"energy_regen"`
	ScanRange   float64          `yaml:"scan_range"`
	DetailRange float64          `yaml:"detail_range"`
	Speed       int              `yaml:"speed"`
	WarpPrep    int              `yaml:"warp_prep_turns"`
	Evasion     float64          `yaml:"evasion"`
	Material    int              `yaml:"material"`
	Cargo       map[string]int   `yaml:"cargo"`
}

type edgeSpec struct {
	ID            string       `yaml:"id"`
	Region        string       `yaml:"region"`
	Sector        string       `yaml:"sector"`
	Polyline      [][2]float64 `yaml:"polyline"`
	CoreWidth     float64      `yaml:"core_width"`
	ShoulderWidth float64      `yaml:"shoulder_width"`
	NominalSpeed  float64      `yaml:"nominal_speed"`
	BaseCapacity  float64      `yaml:"base_capacity"`
	Headway       float64      `yaml:"headway"`
}

type tapSpec struct {
	ID   string  `yaml:"id"`
	Edge string  `yaml:"edge"`
	S    float64 `yaml:"s"`
}

type gateSpec struct {
	ID     string     `yaml:"id"`
	Sector string     `yaml:"sector"`
	Pos    [2]float64 `yaml:"pos"`
	Pair   string     `yaml:"pair"`
}

type regionSpec struct {
	ID     string   `yaml:"id"`
	Sector string   `yaml:"sector"`
	Health *float64 `yaml:"health"`
}

func loadScenario(path string) (scenario, error) {
	var sc scenario
	raw, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("%s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return sc, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func (sc scenario) startTurn() int64 {
	if sc.Turn > 0 {
		return sc.Turn
	}
	return 1
}

func (sc scenario) validate() error {
	if sc.Game == "" {
		return fmt.Errorf("game is required")
	}
	ids := map[string]bool{}
	for _, e := range sc.Entities {
		if e.ID == "" || ids[e.ID] {
			return fmt.Errorf("entity id %q is empty or duplicated", e.ID)
		}
		ids[e.ID] = true
		switch e.Kind {
		case model.KindShip, model.KindStation, model.KindResource, model.KindPod:
		default:
			return fmt.Errorf("entity %s: unknown kind %q", e.ID, e.Kind)
		}
	}
	edges := map[string]edgeSpec{}
	for _, e := range sc.Edges {
		if e.ID == "" || len(e.Polyline) < 2 {
			return fmt.Errorf("edge %q needs an id and at least two polyline points", e.ID)
		}
		if e.NominalSpeed <= 0 || e.BaseCapacity <= 0 {
			return fmt.Errorf("edge %s: nominal_speed and base_capacity must be > 0", e.ID)
		}
		edges[e.ID] = e
	}
	for _, t := range sc.Taps {
		e, ok := edges[t.Edge]
		if !ok {
			return fmt.Errorf("tap %s: unknown edge %q", t.ID, t.Edge)
		}
		if length := model.PolylineLength(points(e.Polyline)); t.S < 0 || t.S > length {
			return fmt.Errorf("tap %s: s=%.2f outside edge %s (length %.2f)", t.ID, t.S, e.ID, length)
		}
	}
	gates := map[string]bool{}
	for _, g := range sc.Gates {
		gates[g.ID] = true
	}
	for _, g := range sc.Gates {
		if !gates[g.Pair] || g.Pair == g.ID {
			return fmt.Errorf("gate %s: pair %q not found", g.ID, g.Pair)
		}
	}
	return nil
}

func points(raw [][2]float64) []model.Point {
	out := make([]model.Point, len(raw))
	for i, p := range raw {
		out[i] = model.Point{X: p[0], Y: p[1]}
	}
	return out
}

func (e entitySpec) entity() model.Entity {
	return model.Entity{
		ID:     e.ID,
		Kind:   e.Kind,
		Name:   e.Name,
		Owner:  e.Owner,
		Class:  e.Class,
		Sector: e.Sector,
		Pos:    model.Tile{X: e.Pos[0], Y: e.Pos[1]},
		Stats: model.Stats{
			HP:            e.HP,
			MaxHP:         e.HP,
			Energy:        e.Energy,
			MaxEnergy:     e.Energy,
			EnergyRegen:   e.EnergyRegen,
			ScanRange:     e.ScanRange,
			DetailRange:   e.DetailRange,
			Speed:         e.Speed,
			WarpPrepTurns: e.WarpPrep,
			InnateEvasion: e.Evasion,
		},
		Cargo:    e.Cargo,
		Material: e.Material,
	}
}

// seed writes the scenario as a new game. Seeding a game that already has
// turns is refused.
func seed(ctx context.Context, s store.Store, sc scenario, now time.Time) error {
	return store.Update(ctx, s, sc.Game, func(tx *store.Tx) error {
		if turns, err := tx.Turns().List(ctx); err != nil {
			return err
		} else if len(turns) > 0 {
			return fmt.Errorf("game %q already exists (turn %d)", sc.Game, turns[len(turns)-1].Number)
		}
		if err := tx.Turns().Put(ctx, model.Turn{Game: sc.Game, Number: sc.startTurn(), Status: model.TurnWaiting, CreatedAt: now}); err != nil {
			return err
		}
		for _, e := range sc.Entities {
			if err := tx.Entities().Put(ctx, e.entity()); err != nil {
				return err
			}
		}
		polys := map[string][]model.Point{}
		for _, e := range sc.Edges {
			poly := points(e.Polyline)
			polys[e.ID] = poly
			err := tx.Edges().Put(ctx, model.LaneEdge{
				ID:            e.ID,
				Region:        e.Region,
				Sector:        e.Sector,
				Polyline:      poly,
				CoreWidth:     e.CoreWidth,
				ShoulderWidth: e.ShoulderWidth,
				NominalSpeed:  e.NominalSpeed,
				BaseCapacity:  e.BaseCapacity,
				Headway:       e.Headway,
			})
			if err != nil {
				return err
			}
		}
		for _, t := range sc.Taps {
			tap := model.LaneTap{ID: t.ID, Edge: t.Edge, S: t.S, Pos: model.PointAt(polys[t.Edge], t.S)}
			if err := tx.Taps().Put(ctx, tap); err != nil {
				return err
			}
		}
		for _, g := range sc.Gates {
			if err := tx.Gates().Put(ctx, model.Gate{ID: g.ID, Sector: g.Sector, Pos: model.Point{X: g.Pos[0], Y: g.Pos[1]}, Pair: g.Pair}); err != nil {
				return err
			}
		}
		for _, r := range sc.Regions {
			health := 100.0
			if r.Health != nil {
				health = *r.Health
			}
			if err := tx.Regions().Put(ctx, model.Region{ID: r.ID, Sector: r.Sector, Health: health}); err != nil {
				return err
			}
		}
		return nil
	})
}

package combat

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"

	"lukechampine.com/blake3"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
)

const materialKey = "material"

var podStats = model.Stats{
	HP: 20, MaxHP: 20,
	Energy: 10, MaxEnergy: 20, EnergyRegen: 2,
	ScanRange: 6, Speed: 3,
}

// wreck converts a destroyed entity in place.
func (r *round) wreck(tgt, killer *model.Entity) {
	st := r.st
	ct := r.Tuning.Combat
	salvage := rollSalvage(st.Game, st.Turn, tgt, ct.SalvageFraction)

	tgt.Effects = nil
	tgt.Cargo = nil
	tgt.Material = 0
	tgt.Stats.Energy = 0
	tgt.Combat = model.CombatState{}
	tgt.Wreck = &model.WreckState{
		SinceTurn:  st.Turn,
		DecayTurn:  st.Turn + int64(ct.WreckDecayTurns),
		Salvage:    salvage,
		Killer:     killer.ID,
		PriorClass: tgt.Class,
	}
	delete(st.Harvest, tgt.ID)
	delete(st.Orders, model.Order{Kind: model.OrderMove, Entity: tgt.ID}.Slot())

	if tgt.Owner != "" && (tgt.Kind == model.KindShip || tgt.Kind == model.KindPod) {
		st.Respawns[tgt.ID] = &model.Respawn{
			Player: tgt.Owner,
			Entity: tgt.ID,
			AtTurn: st.Turn + int64(ct.RespawnDelayTurns),
			Pos:    spawnPoint(st, tgt),
			Sector: tgt.Sector,
		}
	}
	st.Log(killer.ID, model.LogKill, map[string]any{"target": tgt.ID, "salvage": salvage},
		"%s destroyed %s", killer.ID, tgt.ID)
	st.Log(tgt.ID, model.LogKill, map[string]any{"killer": killer.ID},
		"%s was destroyed by %s", tgt.ID, killer.ID)
}

// rollSalvage keeps between half and all of salvage_fraction of every
// cargo stack. The roll is seeded from game, turn and entity.
func rollSalvage(game string, turn int64, e *model.Entity, fraction float64) map[string]int {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s/%d/%s", game, turn, e.ID)))
	rng := rand.New(rand.NewPCG(binary.LittleEndian.Uint64(sum[:8]), binary.LittleEndian.Uint64(sum[8:16])))

	stacks := map[string]int{}
	for k, v := range e.Cargo {
		stacks[k] = v
	}
	if e.Material > 0 {
		stacks[materialKey] += e.Material
	}
	out := map[string]int{}
	for _, k := range state.Keys(stacks) {
		most := int(math.Floor(float64(stacks[k]) * fraction))
		if most <= 0 {
			continue
		}
		least := most / 2
		out[k] = least + rng.IntN(most-least+1)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// spawnPoint is the owner's first live station, or the wreck itself.
func spawnPoint(st *state.State, wreck *model.Entity) model.Tile {
	for _, id := range state.Keys(st.Entities) {
		e := st.Entities[id]
		if e.Kind == model.KindStation && e.Owner == wreck.Owner && !e.IsWreck() {
			return e.Pos
		}
	}
	return wreck.Pos
}

// freeTileNear searches rings of growing radius around p for a tile nobody
// stands on.
func freeTileNear(occ map[model.Tile]string, p model.Tile) model.Tile {
	if _, taken := occ[p]; !taken {
		return p
	}
	for radius := 1; radius <= 8; radius++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if max(abs(dx), abs(dy)) != radius {
					continue
				}
				t := model.Tile{X: p.X + dx, Y: p.Y + dy}
				if _, taken := occ[t]; !taken {
					return t
				}
			}
		}
	}
	return p
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Cleanup prunes effects that expire before next turn, decays old wrecks,
// spawns due pilots and forgets elapsed cooldowns.
func (e *Engine) Cleanup(st *state.State) {
	next := st.Turn + 1
	for _, id := range state.Keys(st.Entities) {
		ent := st.Entities[id]
		for _, fx := range ent.PruneEffects(next) {
			st.Log(ent.ID, model.LogEffect, map[string]any{"effect": fx.Key, "source": fx.Source},
				"%s on %s expired", fx.Key, ent.ID)
		}
		if ent.IsWreck() && ent.Wreck.DecayTurn <= st.Turn {
			st.Log(ent.ID, model.LogWreckDecay, map[string]any{"since_turn": ent.Wreck.SinceTurn},
				"wreck of %s decayed", ent.ID)
			delete(st.Entities, id)
		}
	}

	occ := st.Occupancy()
	for _, key := range state.Keys(st.Respawns) {
		rs := st.Respawns[key]
		if rs.AtTurn > st.Turn {
			continue
		}
		id := fmt.Sprintf("pod-%s-%d", rs.Entity, st.Turn)
		pos := freeTileNear(occ, rs.Pos)
		occ[pos] = id
		st.Entities[id] = &model.Entity{
			ID:     id,
			Kind:   model.KindPod,
			Name:   "escape pod",
			Owner:  rs.Player,
			Class:  1,
			Sector: rs.Sector,
			Pos:    pos,
			Stats:  podStats,
		}
		delete(st.Respawns, key)
		st.Log(id, model.LogEffect, map[string]any{"player": rs.Player, "from": rs.Entity},
			"pilot of %s respawned as %s", rs.Entity, id)
	}

	for _, key := range state.Keys(st.Cooldowns) {
		if st.Cooldowns[key].ReadyTurn <= next {
			delete(st.Cooldowns, key)
		}
	}
}

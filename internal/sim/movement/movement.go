// Package movement advances path-following and warp orders.
package movement

import (
	"errors"
	"math"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
)

var errEmptyPath = errors.New("move order has an empty path")

type Engine struct {
	// WarpPrepTurns applies to entities that do not set their own.
	WarpPrepTurns int
}

// Speed is recomputed from base stats and active effects every tick:
// floor((base + Σflat) × Πmult), never negative, 0 while held.
func Speed(e *model.Entity, turn int64) int {
	if e.HasEffect(turn, model.EffectHold) {
		return 0
	}
	base := float64(e.Stats.Speed) + e.SumEffect(turn, model.EffectSpeedFlat)
	v := math.Floor(base * e.ProductEffect(turn, model.EffectSpeedMult))
	if v < 0 {
		return 0
	}
	return int(v)
}

func (e Engine) prepTurns(ent *model.Entity) int {
	if ent.Stats.WarpPrepTurns > 0 {
		return ent.Stats.WarpPrepTurns
	}
	if e.WarpPrepTurns > 0 {
		return e.WarpPrepTurns
	}
	return 2
}

// Tick advances every navigation order once. Orders whose entity is gone
// or wrecked are dropped; entities travelling a lane keep their order
// untouched until they leave it.
func (e Engine) Tick(st *state.State) {
	occ := st.Occupancy()
	for _, key := range state.Keys(st.Orders) {
		o := st.Orders[key]
		if !o.IsNavigation() {
			continue
		}
		ent, ok := st.Entities[o.Entity]
		if !ok || ent.IsWreck() {
			delete(st.Orders, key)
			continue
		}
		if st.InLane(ent.ID) {
			continue
		}
		switch o.Kind {
		case model.OrderMove:
			if o.Move == nil {
				st.LogError(ent.ID, errEmptyPath)
				delete(st.Orders, key)
				continue
			}
			if seg, moved := e.advanceMove(ent, o.Move, Speed(ent, st.Turn), occ, st.Turn); moved {
				st.History = append(st.History, seg)
			}
		case model.OrderWarp:
			if o.Warp == nil {
				delete(st.Orders, key)
				continue
			}
			if seg, done := e.advanceWarp(ent, o.Warp, occ, st.Turn); done {
				st.History = append(st.History, seg)
				delete(st.Orders, key)
			}
		}
	}
}

// advanceMove steps the entity up to speed tiles along its path. Stepping
// onto an occupied tile stops the order in blocked state.
func (e Engine) advanceMove(ent *model.Entity, m *model.MoveOrder, speed int, occ map[model.Tile]string, turn int64) (model.MovementSegment, bool) {
	seg := model.MovementSegment{Entity: ent.ID, Turn: turn, From: ent.Pos, To: ent.Pos}
	if m.Status != model.MoveActive && m.Status != "" {
		return seg, false
	}
	m.Status = model.MoveActive
	m.UpdatedTurn = turn
	if m.Remaining() == 0 {
		m.Status = model.MoveCompleted
		return seg, false
	}
	steps := min(speed, m.Remaining())
	moved := 0
	for i := 0; i < steps; i++ {
		next := m.Path[m.Step+1]
		if who, taken := occ[next]; taken && who != ent.ID {
			m.Status = model.MoveBlocked
			m.BlockedBy = who
			break
		}
		if occ[ent.Pos] == ent.ID {
			delete(occ, ent.Pos)
		}
		ent.Pos = next
		occ[next] = ent.ID
		m.Step++
		moved++
		seg.Tiles = append(seg.Tiles, next)
	}
	if m.Remaining() == 0 {
		m.Status = model.MoveCompleted
	}
	seg.To = ent.Pos
	return seg, moved > 0
}

// advanceWarp accumulates one preparation tick and relocates the entity
// once enough have accumulated. An occupied destination holds the jump
// until it clears.
func (e Engine) advanceWarp(ent *model.Entity, w *model.WarpOrder, occ map[model.Tile]string, turn int64) (model.MovementSegment, bool) {
	need := e.prepTurns(ent)
	if w.PrepTicks < need {
		w.PrepTicks++
	}
	if w.PrepTicks < need {
		return model.MovementSegment{}, false
	}
	if who, taken := occ[w.Destination]; taken && who != ent.ID {
		return model.MovementSegment{}, false
	}
	seg := model.MovementSegment{Entity: ent.ID, Turn: turn, From: ent.Pos, To: w.Destination, Warp: true}
	if occ[ent.Pos] == ent.ID {
		delete(occ, ent.Pos)
	}
	ent.Pos = w.Destination
	occ[ent.Pos] = ent.ID
	return seg, true
}

// Package visibility recomputes what every player can currently see and
// remembers what they have seen before.
package visibility

import (
	"math"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
)

type Sensor struct {
	Entity string
	Pos    model.Point
	Scan   float64
	Detail float64
}

// Sensors returns a player's live entities that have a scan range.
func Sensors(st *state.State, player string, detailFraction float64) []Sensor {
	var out []Sensor
	for _, id := range state.Keys(st.Entities) {
		e := st.Entities[id]
		if e.Owner != player || e.IsWreck() || e.Stats.ScanRange <= 0 {
			continue
		}
		boost := 1.0
		if b := e.MaxEffect(st.Turn, model.EffectScanBoost); b > 0 {
			boost = b
		}
		detail := e.Stats.DetailRange
		if detail <= 0 {
			detail = e.Stats.ScanRange * detailFraction
		}
		out = append(out, Sensor{
			Entity: e.ID,
			Pos:    e.Pos.Point(),
			Scan:   e.Stats.ScanRange * boost,
			Detail: detail * boost,
		})
	}
	return out
}

type box struct{ minX, minY, maxX, maxY float64 }

func (b box) contains(p model.Point) bool {
	return p.X >= b.minX && p.X <= b.maxX && p.Y >= b.minY && p.Y <= b.maxY
}

// bounds is the sensors' bounding box grown by the largest scan range.
func bounds(sensors []Sensor) box {
	b := box{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	reach := 0.0
	for _, s := range sensors {
		b.minX = math.Min(b.minX, s.Pos.X)
		b.minY = math.Min(b.minY, s.Pos.Y)
		b.maxX = math.Max(b.maxX, s.Pos.X)
		b.maxY = math.Max(b.maxY, s.Pos.Y)
		reach = math.Max(reach, s.Scan)
	}
	b.minX -= reach
	b.minY -= reach
	b.maxX += reach
	b.maxY += reach
	return b
}

// Level is the finest detection any sensor achieves on p.
func Level(sensors []Sensor, p model.Point) model.DetectionLevel {
	best := model.Unseen
	for _, s := range sensors {
		d := model.Dist(s.Pos, p)
		switch {
		case d <= s.Detail:
			return model.Detailed
		case d <= s.Scan:
			best = model.Detected
		}
	}
	return best
}

// Recompute refreshes every player's visibility records for this turn.
// Records of objects out of range are kept with CurrentLevel 0; records of
// objects that no longer exist are dropped.
func Recompute(st *state.State, detailFraction float64) {
	for _, key := range state.Keys(st.Visibility) {
		v := st.Visibility[key]
		if _, ok := st.Entities[v.Object]; !ok {
			delete(st.Visibility, key)
			continue
		}
		v.CurrentLevel = model.Unseen
	}

	for _, player := range st.Players() {
		sensors := Sensors(st, player, detailFraction)
		if len(sensors) == 0 {
			continue
		}
		region := bounds(sensors)
		for _, id := range state.Keys(st.Entities) {
			obj := st.Entities[id]
			if obj.Owner == player {
				continue
			}
			p := obj.Pos.Point()
			if !region.contains(p) {
				continue
			}
			lvl := Level(sensors, p)
			if lvl == model.Unseen {
				continue
			}
			rec := model.Visibility{Player: player, Object: id}
			key := rec.Key()
			if prev, ok := st.Visibility[key]; ok {
				rec = *prev
			}
			rec.CurrentLevel = lvl
			rec.BestLevel = max(rec.BestLevel, lvl)
			rec.LastSeenTurn = st.Turn
			st.Visibility[key] = &rec
		}
	}
}

package lanes

import (
	"errors"
	"fmt"
	"math"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
	"starlanes.ai/internal/sim/tuning"
)

var ErrLoadMismatch = errors.New("lanes: edge load does not match transits")

const loadEps = 1e-6

type Sim struct {
	Lanes   tuning.LaneTuning
	Regions tuning.RegionTuning
}

// Report summarizes one traffic tick per edge.
type Report struct {
	Prior   map[string]float64
	Entered map[string]float64
	Exited  map[string]float64

	Queued   int
	Admitted int
	Refused  int
	Released int
	Arrived  int
	Removed  int
}

func newReport() *Report {
	return &Report{Prior: map[string]float64{}, Entered: map[string]float64{}, Exited: map[string]float64{}}
}

// tick is the scratch state of one Tick call.
type tick struct {
	Sim
	st       *state.State
	rep      *Report
	capacity map[string]float64
	current  map[string]float64
	seq      int64
}

func loadByEdge(st *state.State) map[string]float64 {
	out := map[string]float64{}
	for _, tr := range st.Transits {
		out[tr.Edge] += tr.CU
	}
	return out
}

func (t *tick) rho(edge string) float64 { return Rho(t.current[edge], t.capacity[edge]) }

func (t *tick) enter(edge string, cu float64) {
	t.current[edge] += cu
	t.rep.Entered[edge] += cu
}

func (t *tick) exit(edge string, cu float64) {
	t.current[edge] -= cu
	t.rep.Exited[edge] += cu
}

// Tick runs admission, advance and arrival, FIFO tap release and finally
// writes one LaneLoad per edge. A load that does not reconcile is fatal.
func (s Sim) Tick(st *state.State) (*Report, error) {
	t := &tick{Sim: s, st: st, rep: newReport(), capacity: map[string]float64{}}
	for _, key := range state.Keys(st.TapQueue) {
		if st.TapQueue[key].Status == model.QueueLaunched {
			delete(st.TapQueue, key)
		}
	}
	t.current = loadByEdge(st)
	for _, id := range state.Keys(st.Edges) {
		e := st.Edges[id]
		t.capacity[id] = Capacity(e, st.RegionHealth(e), s.Lanes.ReferenceWidth)
		t.rep.Prior[id] = t.current[id]
		if rec, ok := st.Loads[id]; ok && math.Abs(rec.LoadCU-t.current[id]) > loadEps {
			return t.rep, fmt.Errorf("edge %s: recorded load %.3f, transits carry %.3f: %w", id, rec.LoadCU, t.current[id], ErrLoadMismatch)
		}
	}
	for edge := range t.current {
		if _, ok := st.Edges[edge]; !ok {
			return t.rep, fmt.Errorf("transit on unknown edge %q", edge)
		}
	}

	t.admit()
	t.advance()
	t.release()
	return t.rep, t.writeLoads()
}

func (t *tick) admit() {
	st := t.st
	for _, id := range state.Keys(st.Itineraries) {
		it := st.Itineraries[id]
		if it.Status != model.ItineraryActive {
			continue
		}
		ent, ok := st.Entities[it.Entity]
		if !ok || ent.IsWreck() {
			it.Status = model.ItineraryStale
			continue
		}
		if st.InLane(ent.ID) {
			continue
		}
		if it.Current >= len(it.Legs) {
			it.Status = model.ItineraryCompleted
			continue
		}
		if !it.Fresh(st.Turn) {
			it.Status = model.ItineraryStale
			st.Log(ent.ID, model.LogEffect, map[string]any{"created_turn": it.CreatedTurn}, "itinerary of %s went stale", ent.ID)
			continue
		}
		leg := it.Legs[it.Current]
		edge, ok := st.Edges[leg.Edge]
		if !ok {
			it.Status = model.ItineraryStale
			st.LogError(ent.ID, fmt.Errorf("itinerary leg on unknown edge %q", leg.Edge))
			continue
		}
		entry := model.PointAt(edge.Polyline, leg.SStart)
		var tap model.LaneTap
		if leg.Entry == model.EntryTap {
			tap, ok = st.Taps[leg.TapID]
			if !ok || tap.Edge != edge.ID {
				it.Status = model.ItineraryStale
				st.LogError(ent.ID, fmt.Errorf("itinerary leg references unknown tap %q on %s", leg.TapID, edge.ID))
				continue
			}
			entry = tap.Pos
		}
		// The first leg waits until the ship has flown to its entry point.
		if it.Current == 0 && model.Dist(ent.Pos.Point(), entry) > t.Lanes.EntryRadius {
			continue
		}

		switch leg.Entry {
		case model.EntryTap:
			t.seq++
			q := &model.TapQueueEntry{
				Tap:          tap.ID,
				Entity:       ent.ID,
				CU:           t.Lanes.DefaultCU,
				EnqueuedTurn: st.Turn,
				Seq:          t.seq,
				Status:       model.QueueQueued,
				Itinerary:    it.Entity,
				Leg:          it.Current,
			}
			st.TapQueue[q.Key()] = q
			t.rep.Queued++
		case model.EntryWildcat:
			if r := t.rho(edge.ID); r >= t.Lanes.WildcatMaxRho {
				t.rep.Refused++
				st.Log(ent.ID, model.LogEffect, map[string]any{"edge": edge.ID, "rho": r, "result": "refused"},
					"wildcat merge onto %s refused: lane at %.2f load", edge.ID, r)
				continue
			}
			merge := leg.MergeTurns
			if merge <= 0 {
				merge = t.Lanes.WildcatMergeTurns
			}
			st.Transits[ent.ID] = &model.LaneTransit{
				Edge:        edge.ID,
				Entity:      ent.ID,
				CU:          t.Lanes.DefaultCU,
				Mode:        model.ModeShoulder,
				MergeTurns:  merge,
				SStart:      leg.SStart,
				SEnd:        leg.SEnd,
				Itinerary:   it.Entity,
				Leg:         it.Current,
				EnteredTurn: st.Turn,
			}
			ent.Pos = entry.Tile()
			t.enter(edge.ID, t.Lanes.DefaultCU)
			t.rep.Admitted++
		default:
			it.Status = model.ItineraryStale
			st.LogError(ent.ID, fmt.Errorf("unknown lane entry %q", leg.Entry))
			continue
		}
		delete(st.Orders, model.Order{Kind: model.OrderMove, Entity: ent.ID}.Slot())
	}
}

func (t *tick) advance() {
	st := t.st
	mult := map[string]float64{}
	for id := range st.Edges {
		mult[id] = SpeedMultiplier(t.rho(id))
	}
	for _, id := range state.Keys(st.Transits) {
		tr := st.Transits[id]
		edge := st.Edges[tr.Edge]
		ent, ok := st.Entities[tr.Entity]
		if !ok || ent.IsWreck() {
			delete(st.Transits, id)
			t.exit(tr.Edge, tr.CU)
			t.rep.Removed++
			if it, ok := st.Itineraries[tr.Itinerary]; ok {
				it.Status = model.ItineraryStale
			}
			continue
		}
		if tr.Mode == model.ModeShoulder {
			if tr.MergeTurns > 0 {
				tr.MergeTurns--
			}
			if tr.MergeTurns == 0 {
				tr.Mode = model.ModeCore
			}
		}
		tr.Progress = math.Min(1, tr.Progress+edge.NominalSpeed*mult[edge.ID]/t.Lanes.ReferenceDistance)
		ent.Pos = model.PointAt(edge.Polyline, tr.SStart+(tr.SEnd-tr.SStart)*tr.Progress).Tile()
		if tr.Progress < 1 {
			continue
		}

		delete(st.Transits, id)
		t.exit(tr.Edge, tr.CU)
		t.rep.Arrived++
		st.History = append(st.History, model.MovementSegment{
			Entity: ent.ID,
			Turn:   st.Turn,
			From:   model.PointAt(edge.Polyline, tr.SStart).Tile(),
			To:     ent.Pos,
			Lane:   edge.ID,
		})
		if it, ok := st.Itineraries[tr.Itinerary]; ok && it.Current == tr.Leg {
			it.Current++
			if it.Current >= len(it.Legs) {
				it.Status = model.ItineraryCompleted
			}
		}
	}
}

// release launches queued entries per tap in FIFO order until the slot
// budget is spent. An entry that does not fit blocks the ones behind it.
func (t *tick) release() {
	st := t.st
	budget := float64(t.Lanes.SlotsPerTurn) * t.Lanes.CUPerSlot
	byTap := map[string][]string{}
	for _, key := range state.Keys(st.TapQueue) {
		q := st.TapQueue[key]
		if q.Status == model.QueueQueued {
			byTap[q.Tap] = append(byTap[q.Tap], key)
		}
	}
	for _, tapID := range state.Keys(byTap) {
		remaining := budget
		tap, tapOK := st.Taps[tapID]
		for _, key := range byTap[tapID] {
			q := st.TapQueue[key]
			ent, alive := st.Entities[q.Entity]
			if !tapOK || !alive || ent.IsWreck() {
				delete(st.TapQueue, key)
				continue
			}
			if q.CU > remaining+loadEps {
				break
			}
			it, ok := st.Itineraries[q.Itinerary]
			if !ok || q.Leg >= len(it.Legs) {
				delete(st.TapQueue, key)
				st.LogError(ent.ID, fmt.Errorf("queued at %s without a matching itinerary leg", tapID))
				continue
			}
			leg := it.Legs[q.Leg]
			st.Transits[ent.ID] = &model.LaneTransit{
				Edge:        tap.Edge,
				Entity:      ent.ID,
				CU:          q.CU,
				Mode:        model.ModeCore,
				SStart:      tap.S,
				SEnd:        leg.SEnd,
				Itinerary:   q.Itinerary,
				Leg:         q.Leg,
				EnteredTurn: st.Turn,
			}
			ent.Pos = tap.Pos.Tile()
			q.Status = model.QueueLaunched
			t.enter(tap.Edge, q.CU)
			remaining -= q.CU
			t.rep.Released++
		}
	}
}

func (t *tick) writeLoads() error {
	st := t.st
	final := loadByEdge(st)
	for _, id := range state.Keys(st.Edges) {
		want := t.rep.Prior[id] + t.rep.Entered[id] - t.rep.Exited[id]
		got := final[id]
		if got < -loadEps || math.Abs(got-want) > loadEps {
			return fmt.Errorf("edge %s: load %.3f, expected %.3f: %w", id, got, want, ErrLoadMismatch)
		}
		r := Rho(got, t.capacity[id])
		st.Loads[id] = &model.LaneLoad{
			Edge:      id,
			LoadCU:    got,
			Capacity:  t.capacity[id],
			Rho:       r,
			SpeedMult: SpeedMultiplier(r),
			Turn:      st.Turn,
		}
	}
	return nil
}

// RegionHealth recovers every region a little each turn and wears down the
// ones with an edge that ended the last tick over the wear threshold.
func (s Sim) RegionHealth(st *state.State) {
	worn := map[string]bool{}
	for id, e := range st.Edges {
		if l, ok := st.Loads[id]; ok && l.Rho > s.Regions.WearRho {
			worn[e.Region] = true
		}
	}
	for _, id := range state.Keys(st.Regions) {
		r := st.Regions[id]
		h := r.Health + s.Regions.HealthRecovery
		if worn[id] {
			h -= s.Regions.HealthWear
		}
		r.Health = math.Max(0, math.Min(100, h))
	}
}

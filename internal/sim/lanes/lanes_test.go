package lanes

import (
	"errors"
	"math"
	"testing"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
	"starlanes.ai/internal/sim/tuning"
)

func testSim() Sim {
	t := tuning.Defaults()
	return Sim{Lanes: t.Lanes, Regions: t.Regions}
}

// world has one straight 100-unit lane with a tap at each end.
func world(turn int64, health float64) *state.State {
	st := state.New("g", turn)
	st.Edges["e1"] = model.LaneEdge{
		ID: "e1", Region: "r1", Sector: "s1",
		Polyline:  []model.Point{{X: 0, Y: 0}, {X: 100, Y: 0}},
		CoreWidth: 1, ShoulderWidth: 0.5, NominalSpeed: 10, BaseCapacity: 10, Headway: 1,
	}
	st.Taps["t1"] = model.LaneTap{ID: "t1", Edge: "e1", S: 0, Pos: model.Point{X: 0, Y: 0}}
	st.Taps["t2"] = model.LaneTap{ID: "t2", Edge: "e1", S: 100, Pos: model.Point{X: 100, Y: 0}}
	st.Regions["r1"] = &model.Region{ID: "r1", Sector: "s1", Health: health}
	return st
}

func addShip(st *state.State, id string, x, y int) *model.Entity {
	e := &model.Entity{ID: id, Kind: model.KindShip, Owner: "p1", Pos: model.Tile{X: x, Y: y}}
	st.Entities[id] = e
	return e
}

func addItinerary(st *state.State, entity string, legs ...model.Leg) *model.LaneItinerary {
	it := &model.LaneItinerary{Entity: entity, Sector: "s1", CreatedTurn: st.Turn, FreshnessTurns: 10, Status: model.ItineraryActive, Legs: legs}
	st.Itineraries[entity] = it
	return it
}

func tapLeg() model.Leg {
	return model.Leg{Edge: "e1", Entry: model.EntryTap, TapID: "t1", SStart: 0, SEnd: 100}
}

func TestWorkedCapacityExample(t *testing.T) {
	e := model.LaneEdge{BaseCapacity: 10, CoreWidth: 1}
	if c := Capacity(e, 70, 1); c != 10 {
		t.Fatalf("capacity at health 70 = %v, want 10", c)
	}
	c := Capacity(e, 50, 1)
	if c != 7 {
		t.Fatalf("capacity at health 50 = %v, want 7", c)
	}
	r := Rho(10.5, c)
	if r != 1.5 {
		t.Fatalf("rho = %v, want 1.5", r)
	}
	if m := SpeedMultiplier(r); m != 0.6 {
		t.Fatalf("speed multiplier = %v, want 0.6", m)
	}
}

func TestMultiplierSteps(t *testing.T) {
	for _, tc := range []struct{ health, want float64 }{{100, 1.25}, {80, 1.25}, {79, 1}, {60, 1}, {59.9, 0.7}, {0, 0.7}} {
		if got := HealthMultiplier(tc.health); got != tc.want {
			t.Fatalf("health %v: %v, want %v", tc.health, got, tc.want)
		}
	}
	for _, tc := range []struct{ rho, want float64 }{{0, 1}, {0.99, 1}, {1, 1}, {1.01, 0.8}, {1.49, 0.8}, {1.5, 0.6}, {2, 0.6}, {2.01, 0.4}, {math.Inf(1), 0.4}} {
		if got := SpeedMultiplier(tc.rho); got != tc.want {
			t.Fatalf("rho %v: %v, want %v", tc.rho, got, tc.want)
		}
	}
	if Rho(1, 0) != math.Inf(1) || Rho(0, 0) != 0 {
		t.Fatalf("zero capacity rho")
	}
}

func TestTapReleaseIsFIFOWithinBudget(t *testing.T) {
	sim := testSim()
	st := world(1, 100)
	for i, id := range []string{"a", "b", "c"} {
		addShip(st, id, i%2, i/2)
		addItinerary(st, id, tapLeg())
	}
	rep, err := sim.Tick(st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Queued != 3 || rep.Released != 2 {
		t.Fatalf("queued=%d released=%d", rep.Queued, rep.Released)
	}
	if _, ok := st.Transits["a"]; !ok {
		t.Fatalf("first in line not launched")
	}
	if _, ok := st.Transits["c"]; ok {
		t.Fatalf("third launched past the slot budget")
	}
	if st.Loads["e1"].LoadCU != 2 || st.Loads["e1"].Capacity != 12 {
		t.Fatalf("load record: %+v", st.Loads["e1"])
	}

	st.Turn = 2
	rep, err = sim.Tick(st)
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if rep.Released != 1 || st.Transits["c"] == nil {
		t.Fatalf("c not released on tick 2")
	}
	if p := st.Transits["a"].Progress; math.Abs(p-0.1) > 1e-9 {
		t.Fatalf("progress = %v, want 0.1", p)
	}
	for _, q := range st.TapQueue {
		if q.Status == model.QueueQueued {
			t.Fatalf("entry still queued: %+v", q)
		}
	}
}

func TestReleaseStopsAtFirstEntryThatDoesNotFit(t *testing.T) {
	sim := testSim()
	st := world(3, 100)
	for i, id := range []string{"big", "small"} {
		addShip(st, id, 0, i)
		addItinerary(st, id, tapLeg())
		q := &model.TapQueueEntry{Tap: "t1", Entity: id, CU: []float64{3, 1}[i], EnqueuedTurn: 2, Seq: int64(i + 1), Status: model.QueueQueued, Itinerary: id}
		st.TapQueue[q.Key()] = q
	}
	rep, err := sim.Tick(st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Released != 0 || len(st.Transits) != 0 {
		t.Fatalf("released %d past a blocked head of line", rep.Released)
	}
}

func TestWildcatRefusedWhenCongested(t *testing.T) {
	sim := testSim()
	st := world(1, 100)
	addShip(st, "hauler", 10, 0)
	st.Transits["hauler"] = &model.LaneTransit{Edge: "e1", Entity: "hauler", CU: 18, Mode: model.ModeCore, SStart: 0, SEnd: 100, Progress: 0.1}
	w := addShip(st, "w", 50, 1)
	it := addItinerary(st, "w", model.Leg{Edge: "e1", Entry: model.EntryWildcat, SStart: 50, SEnd: 100})

	rep, err := sim.Tick(st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Refused != 1 || st.Transits["w"] != nil || it.Status != model.ItineraryActive {
		t.Fatalf("wildcat at rho 1.5 not refused: %+v", rep)
	}

	st.Turn = 2
	st.Transits["hauler"].CU = 6
	st.Loads["e1"].LoadCU = 6
	rep, err = sim.Tick(st)
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	tr := st.Transits["w"]
	if rep.Admitted != 1 || tr == nil {
		t.Fatalf("wildcat not admitted below threshold")
	}
	if tr.Mode != model.ModeShoulder || tr.MergeTurns != 1 {
		t.Fatalf("merge countdown: %+v", tr)
	}
	if w.Pos.X < 50 {
		t.Fatalf("wildcat did not join at its entry point: %v", w.Pos)
	}

	st.Turn = 3
	if _, err := sim.Tick(st); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if tr.Mode != model.ModeCore {
		t.Fatalf("shoulder transit did not merge: %+v", tr)
	}
}

func TestProgressStepIsSpeedOverReferenceDistance(t *testing.T) {
	sim := testSim()
	st := world(1, 100)
	ship := addShip(st, "w", 40, 0)
	addItinerary(st, "w", model.Leg{Edge: "e1", Entry: model.EntryWildcat, SStart: 40, SEnd: 60})

	if _, err := sim.Tick(st); err != nil {
		t.Fatalf("tick: %v", err)
	}
	tr := st.Transits["w"]
	if tr == nil {
		t.Fatalf("wildcat not admitted")
	}
	// nominal speed 10 over reference distance 100, whatever the leg span
	if math.Abs(tr.Progress-0.1) > 1e-9 {
		t.Fatalf("progress after one tick = %v, want 0.1", tr.Progress)
	}
	if ship.Pos != (model.Tile{X: 42}) {
		t.Fatalf("ship at %v, want (42,0)", ship.Pos)
	}

	st.Turn = 2
	if _, err := sim.Tick(st); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if math.Abs(tr.Progress-0.2) > 1e-9 {
		t.Fatalf("progress after two ticks = %v, want 0.2", tr.Progress)
	}
}

func TestArrivalPlacesEntityAndAdvancesItinerary(t *testing.T) {
	sim := testSim()
	st := world(4, 100)
	ship := addShip(st, "s", 95, 0)
	it := addItinerary(st, "s", tapLeg())
	st.Transits["s"] = &model.LaneTransit{Edge: "e1", Entity: "s", CU: 1, Mode: model.ModeCore, SStart: 0, SEnd: 100, Progress: 0.95, Itinerary: "s"}
	st.Loads["e1"] = &model.LaneLoad{Edge: "e1", LoadCU: 1}

	rep, err := sim.Tick(st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Arrived != 1 || st.Transits["s"] != nil {
		t.Fatalf("transit not removed on arrival")
	}
	if ship.Pos != (model.Tile{X: 100}) {
		t.Fatalf("entity at %v, want lane end", ship.Pos)
	}
	if it.Current != 1 || it.Status != model.ItineraryCompleted {
		t.Fatalf("itinerary: %+v", it)
	}
	if st.Loads["e1"].LoadCU != 0 {
		t.Fatalf("load not released: %+v", st.Loads["e1"])
	}
	if len(st.History) != 1 || st.History[0].Lane != "e1" {
		t.Fatalf("lane segment missing: %+v", st.History)
	}
}

func TestLoadAccountingOverManyTicks(t *testing.T) {
	sim := testSim()
	st := world(1, 65)
	for i := 0; i < 9; i++ {
		id := string(rune('a' + i))
		addShip(st, id, 0, i%3)
		if i%3 == 2 {
			addShip(st, id, 40, 1)
			addItinerary(st, id, model.Leg{Edge: "e1", Entry: model.EntryWildcat, SStart: 40, SEnd: 90})
			continue
		}
		addItinerary(st, id, tapLeg())
	}
	for turn := int64(1); turn <= 15; turn++ {
		st.Turn = turn
		prior := 0.0
		for _, tr := range st.Transits {
			prior += tr.CU
		}
		rep, err := sim.Tick(st)
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		load := st.Loads["e1"].LoadCU
		if load < 0 {
			t.Fatalf("turn %d: negative load", turn)
		}
		want := prior + rep.Entered["e1"] - rep.Exited["e1"]
		if math.Abs(load-want) > 1e-9 {
			t.Fatalf("turn %d: load %v, want %v", turn, load, want)
		}
	}
	for _, it := range st.Itineraries {
		if it.Status != model.ItineraryCompleted {
			t.Fatalf("itinerary of %s not completed: %+v", it.Entity, it)
		}
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	sim := testSim()
	st := world(1, 100)
	addShip(st, "s", 0, 0)
	addItinerary(st, "s", tapLeg())
	last := -1.0
	for turn := int64(1); turn <= 12; turn++ {
		st.Turn = turn
		if _, err := sim.Tick(st); err != nil {
			t.Fatalf("tick: %v", err)
		}
		tr, ok := st.Transits["s"]
		if !ok {
			break
		}
		if tr.Progress < last {
			t.Fatalf("progress went backwards: %v < %v", tr.Progress, last)
		}
		last = tr.Progress
	}
}

func TestStaleItinerary(t *testing.T) {
	sim := testSim()
	st := world(20, 100)
	addShip(st, "s", 0, 0)
	it := addItinerary(st, "s", tapLeg())
	it.CreatedTurn = 5
	if _, err := sim.Tick(st); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if it.Status != model.ItineraryStale || len(st.TapQueue) != 0 {
		t.Fatalf("stale itinerary admitted: %+v", it)
	}
}

func TestApproachingShipWaits(t *testing.T) {
	sim := testSim()
	st := world(1, 100)
	addShip(st, "s", 30, 30)
	addItinerary(st, "s", tapLeg())
	rep, err := sim.Tick(st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Queued != 0 {
		t.Fatalf("ship far from its tap was queued")
	}
}

func TestRecordedLoadDriftIsFatal(t *testing.T) {
	st := world(1, 100)
	st.Loads["e1"] = &model.LaneLoad{Edge: "e1", LoadCU: 5}
	if _, err := testSim().Tick(st); !errors.Is(err, ErrLoadMismatch) {
		t.Fatalf("expected ErrLoadMismatch, got %v", err)
	}
}

func TestRegionHealth(t *testing.T) {
	sim := testSim()
	st := world(1, 50)
	st.Regions["r2"] = &model.Region{ID: "r2", Health: 99.5}
	st.Loads["e1"] = &model.LaneLoad{Edge: "e1", Rho: 2}
	sim.RegionHealth(st)
	if h := st.Regions["r1"].Health; h != 49 {
		t.Fatalf("worn region health = %v, want 49", h)
	}
	if h := st.Regions["r2"].Health; h != 100 {
		t.Fatalf("health not clamped: %v", h)
	}
}

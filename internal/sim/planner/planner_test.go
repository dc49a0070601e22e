package planner

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/tuning"
)

func testParams() Params { return ParamsFrom(tuning.Defaults()) }

func straight(id string, speed float64, a, b model.Point) model.LaneEdge {
	return model.LaneEdge{ID: id, Sector: "s", Polyline: []model.Point{a, b}, NominalSpeed: speed, CoreWidth: 1, BaseCapacity: 10}
}

func bruteForce(g *graph, src, dst int) (float64, bool) {
	best := math.Inf(1)
	seen := make([]bool, len(g.adj))
	var walk func(u int, cost float64)
	walk = func(u int, cost float64) {
		if cost >= best {
			return
		}
		if u == dst {
			best = cost
			return
		}
		seen[u] = true
		for _, a := range g.adj[u] {
			if !seen[a.to] {
				walk(a.to, cost+a.cost)
			}
		}
		seen[u] = false
	}
	walk(src, 0)
	return best, !math.IsInf(best, 1)
}

func TestShortest_MatchesBruteForce(t *testing.T) {
	for seed := uint64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, 11))
		g := &graph{}
		n := 3 + rng.IntN(6)
		for i := 0; i < n; i++ {
			g.addNode()
		}
		for i := 0; i < n*2; i++ {
			g.addArc(rng.IntN(n), rng.IntN(n), float64(rng.IntN(20))+rng.Float64())
		}
		want, wantOK := bruteForce(g, 0, n-1)
		path, got, ok := g.shortest(0, n-1)
		if ok != wantOK {
			t.Fatalf("seed %d: reachable=%v want %v", seed, ok, wantOK)
		}
		if !ok {
			continue
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("seed %d: cost %v want %v", seed, got, want)
		}
		if path[0] != 0 || path[len(path)-1] != n-1 {
			t.Fatalf("seed %d: path endpoints %v", seed, path)
		}
	}
}

func randomScenario(rng *rand.Rand) (Topology, Congestion, Query) {
	pt := func() model.Point { return model.Point{X: rng.Float64() * 20, Y: rng.Float64() * 20} }
	mults := []float64{1, 0.8, 0.6, 0.4}
	cong := Congestion{Edges: map[string]EdgeLoad{}, Backlog: map[string]float64{}}
	var topo Topology
	for i := 0; i < 2; i++ {
		e := straight(fmt.Sprintf("e%d", i), 2+rng.Float64()*10, pt(), pt())
		topo.Edges = append(topo.Edges, e)
		for j := 0; j < 1+rng.IntN(2); j++ {
			s := rng.Float64() * e.Length()
			id := fmt.Sprintf("%s-t%d", e.ID, j)
			topo.Taps = append(topo.Taps, model.LaneTap{ID: id, Edge: e.ID, S: s, Pos: model.PointAt(e.Polyline, s)})
			cong.Backlog[id] = float64(rng.IntN(5))
		}
		cong.Edges[e.ID] = EdgeLoad{Rho: rng.Float64() * 2, SpeedMult: mults[rng.IntN(len(mults))]}
	}
	return topo, cong, Query{Origin: pt(), Destination: pt(), OriginSector: "s"}
}

func TestPlan_MatchesBruteForceOnLaneNetworks(t *testing.T) {
	p := testParams()
	p.TransferRadius = 8
	for seed := uint64(1); seed <= 60; seed++ {
		topo, cong, q := randomScenario(rand.New(rand.NewPCG(seed, 3)))
		nw := build(topo, cong, q, p)
		want, ok := bruteForce(&nw.graph, nw.source, nw.sink)
		if !ok {
			t.Fatalf("seed %d: sink unreachable", seed)
		}
		routes := Plan(topo, cong, q, p)
		if len(routes) == 0 {
			t.Fatalf("seed %d: no routes", seed)
		}
		if math.Abs(routes[0].Cost-want) > 1e-9 {
			t.Fatalf("seed %d: best cost %v want %v", seed, routes[0].Cost, want)
		}
		for _, r := range Enumerate(topo, cong, q, p) {
			if r.Cost+1e-9 < want {
				t.Fatalf("seed %d: enumerated route %+v beats optimum %v", seed, r, want)
			}
		}
		if len(routes) > p.MaxRoutes {
			t.Fatalf("seed %d: %d routes exceeds max", seed, len(routes))
		}
	}
}

func TestPlan_PrefersLaneOverLongFlight(t *testing.T) {
	e := straight("e1", 20, model.Point{X: 0, Y: 0}, model.Point{X: 100, Y: 0})
	topo := Topology{
		Edges: []model.LaneEdge{e},
		Taps: []model.LaneTap{
			{ID: "t0", Edge: "e1", S: 0, Pos: model.Point{X: 0, Y: 0}},
			{ID: "t1", Edge: "e1", S: 100, Pos: model.Point{X: 100, Y: 0}},
		},
	}
	q := Query{Origin: model.Point{X: 0, Y: 1}, Destination: model.Point{X: 100, Y: 1}, OriginSector: "s"}
	routes := Plan(topo, Congestion{}, q, testParams())
	if len(routes) != 2 {
		t.Fatalf("routes: got %d want 2: %+v", len(routes), routes)
	}
	best := routes[0]
	if best.ETA != 6 || math.Abs(best.Cost-5.9) > 1e-9 || best.Risk != 1 {
		t.Fatalf("best route: %+v", best)
	}
	if len(best.Legs) != 1 || best.Legs[0].Entry != model.EntryTap || best.Legs[0].TapID != "t0" || best.Legs[0].SEnd != 100 {
		t.Fatalf("best legs: %+v", best.Legs)
	}
	if !routes[1].Direct || routes[1].ETA != 20 {
		t.Fatalf("second route should be direct flight: %+v", routes[1])
	}
}

func TestPlan_AvoidsCongestedLane(t *testing.T) {
	a, b := model.Point{X: 0, Y: 0}, model.Point{X: 100, Y: 0}
	topo := Topology{
		Edges: []model.LaneEdge{straight("e1", 20, a, b), straight("e2", 20, a, b)},
		Taps: []model.LaneTap{
			{ID: "t1", Edge: "e1", S: 0, Pos: a},
			{ID: "t2", Edge: "e2", S: 0, Pos: a},
		},
	}
	cong := Congestion{Edges: map[string]EdgeLoad{
		"e1": {Rho: 2.5, SpeedMult: 0.4},
		"e2": {Rho: 0.2, SpeedMult: 1},
	}}
	q := Query{Origin: model.Point{X: 0, Y: 1}, Destination: model.Point{X: 100, Y: 1}, OriginSector: "s"}
	routes := Plan(topo, cong, q, testParams())
	if len(routes) != 3 {
		t.Fatalf("routes: got %d want 3: %+v", len(routes), routes)
	}
	if routes[0].Legs[0].Edge != "e2" || routes[0].Risk != 1 || routes[0].PeakRho != 0.2 {
		t.Fatalf("best route should use the clear lane: %+v", routes[0])
	}
	if routes[1].Legs[0].Edge != "e1" || routes[1].Risk != 3 || routes[1].ETA != 14 {
		t.Fatalf("congested alternative: %+v", routes[1])
	}
	if !routes[2].Direct {
		t.Fatalf("last route should be direct: %+v", routes[2])
	}
}

func TestPlan_WildcatOnlyBelowThreshold(t *testing.T) {
	topo := Topology{Edges: []model.LaneEdge{straight("e1", 50, model.Point{X: 0, Y: 0}, model.Point{X: 100, Y: 0})}}
	q := Query{Origin: model.Point{X: 0, Y: 0}, Destination: model.Point{X: 100, Y: 0}, OriginSector: "s"}

	open := Congestion{Edges: map[string]EdgeLoad{"e1": {Rho: 1.0, SpeedMult: 0.8}}}
	routes := Plan(topo, open, q, testParams())
	leg := routes[0].Legs
	if len(leg) != 1 || leg[0].Entry != model.EntryWildcat || leg[0].MergeTurns != 2 {
		t.Fatalf("expected wildcat leg, got %+v", routes[0])
	}
	if routes[0].ETA != 5 || routes[0].Risk != 2 {
		t.Fatalf("wildcat route: %+v", routes[0])
	}

	jammed := Congestion{Edges: map[string]EdgeLoad{"e1": {Rho: 1.5, SpeedMult: 0.6}}}
	routes = Plan(topo, jammed, q, testParams())
	if len(routes) != 1 || !routes[0].Direct || routes[0].ETA != 20 {
		t.Fatalf("wildcat must be refused at rho 1.5: %+v", routes)
	}
}

func TestPlan_DirectWhenNoLanes(t *testing.T) {
	q := Query{Origin: model.Point{X: 0, Y: 0}, Destination: model.Point{X: 3, Y: 4}, OriginSector: "s"}
	routes := Plan(Topology{}, Congestion{}, q, testParams())
	if len(routes) != 1 || !routes[0].Direct || routes[0].ETA != 1 || routes[0].Cost != 1 {
		t.Fatalf("direct route: %+v", routes)
	}
}

func TestPlan_GateCrossesSectors(t *testing.T) {
	topo := Topology{Gates: []model.Gate{
		{ID: "ga", Sector: "a", Pos: model.Point{X: 10, Y: 0}, Pair: "gb"},
		{ID: "gb", Sector: "b", Pos: model.Point{X: 0, Y: 0}, Pair: "ga"},
	}}
	q := Query{Origin: model.Point{X: 0, Y: 0}, Destination: model.Point{X: 5, Y: 0}, OriginSector: "a", DestSector: "b"}
	routes := Plan(topo, Congestion{}, q, testParams())
	if len(routes) != 1 {
		t.Fatalf("routes: %+v", routes)
	}
	r := routes[0]
	if r.Direct || r.ETA != 4 || len(r.Gates) != 2 || r.Gates[0] != "ga" || r.Gates[1] != "gb" {
		t.Fatalf("gate route: %+v", r)
	}
}

func TestEnumerate_TwoLegTransfer(t *testing.T) {
	topo := Topology{
		Edges: []model.LaneEdge{
			straight("e1", 25, model.Point{X: 0, Y: 0}, model.Point{X: 50, Y: 0}),
			straight("e2", 25, model.Point{X: 50, Y: 2}, model.Point{X: 100, Y: 2}),
		},
		Taps: []model.LaneTap{
			{ID: "t1", Edge: "e1", S: 50, Pos: model.Point{X: 50, Y: 0}},
			{ID: "t2", Edge: "e2", S: 0, Pos: model.Point{X: 50, Y: 2}},
		},
	}
	q := Query{Origin: model.Point{X: 0, Y: 0}, Destination: model.Point{X: 100, Y: 2}, OriginSector: "s"}
	p := testParams()
	var found bool
	for _, r := range Enumerate(topo, Congestion{}, q, p) {
		if len(r.Legs) == 2 && r.Legs[0].Edge == "e1" && r.Legs[1].TapID == "t2" && r.Legs[1].SEnd == 50 {
			found = true
		}
	}
	if !found {
		t.Fatalf("two-leg transfer candidate missing")
	}
	best := Plan(topo, Congestion{}, q, p)[0]
	if len(best.Legs) != 2 {
		t.Fatalf("best route should transfer between lanes: %+v", best)
	}
}

func TestMerge_DedupesAndRanks(t *testing.T) {
	leg := []model.Leg{{Edge: "e1", Entry: model.EntryTap, TapID: "t1", SStart: 0, SEnd: 10}}
	a := []Route{{ETA: 6, Cost: 5.2, Legs: leg, Source: SourceGraph}}
	b := []Route{
		{ETA: 5, Cost: 4.9, Legs: leg, Source: SourceEnumerator},
		{ETA: 9, Cost: 8.1, Direct: true},
		{ETA: 7, Cost: 6.5, Legs: []model.Leg{{Edge: "e2", Entry: model.EntryWildcat, SStart: 0, SEnd: 10}}},
	}
	got := Merge(a, b, 2)
	if len(got) != 2 {
		t.Fatalf("merge length: %d", len(got))
	}
	if got[0].Cost != 4.9 || got[0].Source != SourceEnumerator {
		t.Fatalf("duplicate should keep cheaper copy: %+v", got[0])
	}
	if got[1].Legs[0].Edge != "e2" {
		t.Fatalf("second route: %+v", got[1])
	}
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tx, err := s.Begin(ctx, "g")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	_ = tx.Edges().Put(ctx, straight("e1", 10, model.Point{}, model.Point{X: 10}))
	_ = tx.Taps().Put(ctx, model.LaneTap{ID: "t1", Edge: "e1"})
	_ = tx.Loads().Put(ctx, model.LaneLoad{Edge: "e1", Rho: 1.2, SpeedMult: 0.8})
	for i, st := range []model.QueueStatus{model.QueueQueued, model.QueueQueued, model.QueueLaunched} {
		_ = tx.TapQueue().Put(ctx, model.TapQueueEntry{Tap: "t1", Entity: fmt.Sprintf("s%d", i), CU: 1.5, Seq: int64(i), Status: st})
	}

	topo, cong, err := LoadSnapshot(ctx, tx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(topo.Edges) != 1 || len(topo.Taps) != 1 {
		t.Fatalf("topology: %+v", topo)
	}
	if cong.Edges["e1"].Rho != 1.2 || cong.Backlog["t1"] != 3 {
		t.Fatalf("congestion: %+v", cong)
	}
}

package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"starlanes.ai/internal/sim/model"
)

// Plan returns up to p.MaxRoutes routes ordered by ETA. The first is the
// graph optimum whenever the destination is reachable.
func Plan(topo Topology, cong Congestion, q Query, p Params) []Route {
	var best []Route
	nw := build(topo, cong, q, p)
	if path, cost, ok := nw.shortest(nw.source, nw.sink); ok {
		best = append(best, finish(nw.route(path, cost, p), cong))
	}
	return Merge(best, Enumerate(topo, cong, q, p), p.MaxRoutes)
}

// Merge combines candidate lists, keeps the cheaper of any two routes with
// the same legs and gates, and returns at most max routes by ETA then cost.
func Merge(a, b []Route, max int) []Route {
	if max <= 0 {
		max = 3
	}
	bySig := map[string]Route{}
	var order []string
	for _, r := range append(append([]Route(nil), a...), b...) {
		sig := signature(r)
		prev, seen := bySig[sig]
		if !seen {
			order = append(order, sig)
		}
		if !seen || r.Cost < prev.Cost {
			bySig[sig] = r
		}
	}
	out := make([]Route, 0, len(order))
	for _, sig := range order {
		out = append(out, bySig[sig])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ETA != out[j].ETA {
			return out[i].ETA < out[j].ETA
		}
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return signature(out[i]) < signature(out[j])
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func signature(r Route) string {
	var sb strings.Builder
	if r.Direct {
		sb.WriteString("direct")
	}
	for _, l := range r.Legs {
		fmt.Fprintf(&sb, "|%s:%s:%s:%.3f:%.3f", l.Edge, l.Entry, l.TapID, l.SStart, l.SEnd)
	}
	for _, g := range r.Gates {
		sb.WriteString("|gate:" + g)
	}
	return sb.String()
}

type entry struct {
	s    float64
	cost float64
	leg  model.Leg
}

// Enumerate proposes up to three simple candidates without a graph search:
// direct flight, one leg on a single edge, and two legs joined by a tap
// transfer.
func Enumerate(topo Topology, cong Congestion, q Query, p Params) []Route {
	var out []Route
	destSector := q.destSector()
	if q.OriginSector == destSector {
		out = append(out, finish(Route{Cost: p.fly(q.Origin, q.Destination), Direct: true, Source: SourceEnumerator}, cong))
	}

	taps := tapsByEdge(topo)
	edges := sortedEdges(topo)
	var single, double []Route
	for _, e := range edges {
		if e.Sector != q.OriginSector {
			continue
		}
		speed := cong.speed(e)
		if speed <= 0 {
			continue
		}
		entries := entriesFor(e, taps[e.ID], cong, q, p)
		if e.Sector == destSector {
			if r, ok := bestSingle(e, entries, speed, cong, q, p); ok {
				single = append(single, r)
			}
		}
		for _, e2 := range edges {
			if e2.ID == e.ID || e2.Sector != destSector || cong.speed(e2) <= 0 {
				continue
			}
			if r, ok := bestDouble(e, e2, entries, taps, cong, q, p); ok {
				double = append(double, r)
			}
		}
	}
	byCost := func(rs []Route) {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Cost < rs[j].Cost })
	}
	byCost(single)
	byCost(double)
	if len(single) > 0 {
		out = append(out, single[0])
	}
	if len(double) > 0 {
		out = append(out, double[0])
	}
	for _, rs := range [][]Route{single, double} {
		for i := 1; i < len(rs) && len(out) < 3; i++ {
			out = append(out, rs[i])
		}
	}
	byCost(out)
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func entriesFor(e model.LaneEdge, taps []model.LaneTap, cong Congestion, q Query, p Params) []entry {
	var out []entry
	for _, t := range taps {
		out = append(out, entry{
			s:    t.S,
			cost: p.fly(q.Origin, t.Pos) + p.wait(cong, t.ID),
			leg:  model.Leg{Edge: e.ID, Entry: model.EntryTap, TapID: t.ID, SStart: t.S},
		})
	}
	if cong.rho(e.ID) < p.WildcatMaxRho {
		s, _ := model.Project(e.Polyline, q.Origin)
		out = append(out, entry{
			s:    s,
			cost: p.fly(q.Origin, model.PointAt(e.Polyline, s)) + float64(p.MergeTurns),
			leg:  model.Leg{Edge: e.ID, Entry: model.EntryWildcat, MergeTurns: p.MergeTurns, SStart: s},
		})
	}
	return out
}

func exitCost(e model.LaneEdge, q Query, p Params) (float64, float64) {
	s, _ := model.Project(e.Polyline, q.Destination)
	return s, p.fly(model.PointAt(e.Polyline, s), q.Destination) + p.OffRampPenalty
}

func bestSingle(e model.LaneEdge, entries []entry, speed float64, cong Congestion, q Query, p Params) (Route, bool) {
	sOut, exit := exitCost(e, q, p)
	best := Route{Cost: math.Inf(1)}
	for _, en := range entries {
		if en.s == sOut {
			continue
		}
		c := en.cost + math.Abs(sOut-en.s)/speed + exit
		if c < best.Cost {
			leg := en.leg
			leg.SEnd = sOut
			best = Route{Cost: c, Legs: []model.Leg{leg}, Source: SourceEnumerator}
		}
	}
	if math.IsInf(best.Cost, 1) {
		return Route{}, false
	}
	return finish(best, cong), true
}

func bestDouble(e1, e2 model.LaneEdge, entries []entry, taps map[string][]model.LaneTap, cong Congestion, q Query, p Params) (Route, bool) {
	speed1, speed2 := cong.speed(e1), cong.speed(e2)
	sOut, exit := exitCost(e2, q, p)
	best := Route{Cost: math.Inf(1)}
	for _, t1 := range taps[e1.ID] {
		for _, t2 := range taps[e2.ID] {
			if model.Dist(t1.Pos, t2.Pos) > p.TransferRadius || t2.S == sOut {
				continue
			}
			second := p.TransferPenalty + p.wait(cong, t2.ID) + math.Abs(sOut-t2.S)/speed2 + exit
			for _, en := range entries {
				if en.s == t1.S {
					continue
				}
				c := en.cost + math.Abs(t1.S-en.s)/speed1 + second
				if c >= best.Cost {
					continue
				}
				first := en.leg
				first.SEnd = t1.S
				best = Route{
					Cost: c,
					Legs: []model.Leg{
						first,
						{Edge: e2.ID, Entry: model.EntryTap, TapID: t2.ID, SStart: t2.S, SEnd: sOut},
					},
					Source: SourceEnumerator,
				}
			}
		}
	}
	if math.IsInf(best.Cost, 1) {
		return Route{}, false
	}
	return finish(best, cong), true
}

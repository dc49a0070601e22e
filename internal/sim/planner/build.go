package planner

import (
	"math"
	"sort"

	"starlanes.ai/internal/sim/model"
)

type nodeKind int

const (
	nodeSource nodeKind = iota
	nodeSink
	nodeTap
	nodeWildcatIn
	nodeWildcatOut
	nodeGate
)

type node struct {
	kind nodeKind
	edge string
	tap  string
	gate string
	s    float64
	pos  model.Point
}

func (n node) onLane() bool {
	return n.kind == nodeTap || n.kind == nodeWildcatIn || n.kind == nodeWildcatOut
}

// network is the ephemeral search graph for one query.
type network struct {
	graph
	nodes  []node
	source int
	sink   int
	edges  map[string]model.LaneEdge
}

func (nw *network) add(n node) int {
	nw.nodes = append(nw.nodes, n)
	return nw.addNode()
}

func sortedEdges(topo Topology) []model.LaneEdge {
	edges := append([]model.LaneEdge(nil), topo.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}

func tapsByEdge(topo Topology) map[string][]model.LaneTap {
	out := map[string][]model.LaneTap{}
	for _, t := range topo.Taps {
		out[t.Edge] = append(out[t.Edge], t)
	}
	for _, ts := range out {
		sort.Slice(ts, func(i, j int) bool {
			if ts[i].S != ts[j].S {
				return ts[i].S < ts[j].S
			}
			return ts[i].ID < ts[j].ID
		})
	}
	return out
}

func build(topo Topology, cong Congestion, q Query, p Params) *network {
	nw := &network{edges: map[string]model.LaneEdge{}}
	nw.source = nw.add(node{kind: nodeSource, pos: q.Origin})
	nw.sink = nw.add(node{kind: nodeSink, pos: q.Destination})
	destSector := q.destSector()

	if q.OriginSector == destSector {
		nw.addArc(nw.source, nw.sink, p.fly(q.Origin, q.Destination))
	}

	taps := tapsByEdge(topo)
	var laneNodes []int
	for _, e := range sortedEdges(topo) {
		nw.edges[e.ID] = e
		var ids []int
		for _, t := range taps[e.ID] {
			ids = append(ids, nw.add(node{kind: nodeTap, edge: e.ID, tap: t.ID, s: t.S, pos: t.Pos}))
		}
		if e.Sector == q.OriginSector {
			s, _ := model.Project(e.Polyline, q.Origin)
			ids = append(ids, nw.add(node{kind: nodeWildcatIn, edge: e.ID, s: s, pos: model.PointAt(e.Polyline, s)}))
		}
		if e.Sector == destSector {
			s, _ := model.Project(e.Polyline, q.Destination)
			ids = append(ids, nw.add(node{kind: nodeWildcatOut, edge: e.ID, s: s, pos: model.PointAt(e.Polyline, s)}))
		}
		sort.SliceStable(ids, func(i, j int) bool { return nw.nodes[ids[i]].s < nw.nodes[ids[j]].s })

		speed := cong.speed(e)
		for i := 1; i < len(ids) && speed > 0; i++ {
			a, b := ids[i-1], ids[i]
			hop := math.Abs(nw.nodes[b].s-nw.nodes[a].s) / speed
			nw.addArc(a, b, hop)
			nw.addArc(b, a, hop)
		}

		for _, id := range ids {
			n := nw.nodes[id]
			if e.Sector == q.OriginSector {
				if c, ok := nw.entryCost(n, cong, p); ok {
					nw.addArc(nw.source, id, p.fly(q.Origin, n.pos)+c)
				}
			}
			if e.Sector == destSector {
				nw.addArc(id, nw.sink, p.fly(n.pos, q.Destination)+p.OffRampPenalty)
			}
		}
		laneNodes = append(laneNodes, ids...)
	}

	for _, a := range laneNodes {
		for _, b := range laneNodes {
			na, nb := nw.nodes[a], nw.nodes[b]
			if na.edge == nb.edge || model.Dist(na.pos, nb.pos) > p.TransferRadius {
				continue
			}
			if c, ok := nw.entryCost(nb, cong, p); ok {
				nw.addArc(a, b, p.TransferPenalty+c)
			}
		}
	}

	nw.addGates(topo, q, p, laneNodes)
	return nw
}

// entryCost is the cost of joining a lane at n, excluding the flight there.
func (nw *network) entryCost(n node, cong Congestion, p Params) (float64, bool) {
	switch n.kind {
	case nodeTap:
		return p.wait(cong, n.tap), true
	case nodeWildcatIn:
		if cong.rho(n.edge) >= p.WildcatMaxRho {
			return 0, false
		}
		return float64(p.MergeTurns), true
	default:
		return 0, false
	}
}

func (nw *network) addGates(topo Topology, q Query, p Params, laneNodes []int) {
	if len(topo.Gates) == 0 {
		return
	}
	gates := append([]model.Gate(nil), topo.Gates...)
	sort.Slice(gates, func(i, j int) bool { return gates[i].ID < gates[j].ID })
	index := map[string]int{}
	for _, g := range gates {
		index[g.ID] = nw.add(node{kind: nodeGate, gate: g.ID, pos: g.Pos})
	}
	destSector := q.destSector()
	for _, g := range gates {
		id := index[g.ID]
		if pair, ok := index[g.Pair]; ok {
			nw.addArc(id, pair, p.GateCost)
		}
		if g.Sector == q.OriginSector {
			nw.addArc(nw.source, id, p.fly(q.Origin, g.Pos))
		}
		if g.Sector == destSector {
			nw.addArc(id, nw.sink, p.fly(g.Pos, q.Destination))
		}
		for _, ln := range laneNodes {
			n := nw.nodes[ln]
			if e := nw.edges[n.edge]; e.Sector != g.Sector || model.Dist(n.pos, g.Pos) > p.GateRadius {
				continue
			}
			nw.addArc(ln, id, p.fly(n.pos, g.Pos)+p.OffRampPenalty)
			if n.kind == nodeTap {
				nw.addArc(id, ln, p.fly(g.Pos, n.pos))
			}
		}
	}
}

// route turns a node path into legs. Consecutive nodes on one edge form a
// single leg; legs with no span are dropped.
func (nw *network) route(path []int, cost float64, p Params) Route {
	r := Route{Cost: cost, Source: SourceGraph, Direct: len(path) == 2}
	for i := 0; i < len(path); {
		n := nw.nodes[path[i]]
		if n.kind == nodeGate {
			if len(r.Gates) == 0 || r.Gates[len(r.Gates)-1] != n.gate {
				r.Gates = append(r.Gates, n.gate)
			}
		}
		if !n.onLane() {
			i++
			continue
		}
		j := i
		for j+1 < len(path) && nw.nodes[path[j+1]].onLane() && nw.nodes[path[j+1]].edge == n.edge {
			j++
		}
		last := nw.nodes[path[j]]
		if last.s != n.s {
			leg := model.Leg{Edge: n.edge, SStart: n.s, SEnd: last.s}
			if n.kind == nodeTap {
				leg.Entry = model.EntryTap
				leg.TapID = n.tap
			} else {
				leg.Entry = model.EntryWildcat
				leg.MergeTurns = p.MergeTurns
			}
			r.Legs = append(r.Legs, leg)
		}
		i = j + 1
	}
	return r
}

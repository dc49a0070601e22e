// Package planner answers route queries over the lane network. Plan is a
// pure function of a topology snapshot, a congestion snapshot and a query.
package planner

import (
	"math"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/tuning"
)

type Topology struct {
	Edges []model.LaneEdge
	Taps  []model.LaneTap
	Gates []model.Gate
}

type EdgeLoad struct {
	Rho       float64 `json:"rho"`
	SpeedMult float64 `json:"speed_mult"`
}

type Congestion struct {
	Edges map[string]EdgeLoad
	// Backlog is the queued CU waiting at each tap.
	Backlog map[string]float64
}

func (c Congestion) rho(edge string) float64 { return c.Edges[edge].Rho }

func (c Congestion) speed(e model.LaneEdge) float64 {
	m := 1.0
	if l, ok := c.Edges[e.ID]; ok && l.SpeedMult > 0 {
		m = l.SpeedMult
	}
	return e.NominalSpeed * m
}

type Query struct {
	Origin       model.Point `json:"origin"`
	Destination  model.Point `json:"destination"`
	OriginSector string      `json:"origin_sector"`
	DestSector   string      `json:"dest_sector,omitempty"`
}

func (q Query) destSector() string {
	if q.DestSector == "" {
		return q.OriginSector
	}
	return q.DestSector
}

type Params struct {
	ImpulseSpeed    float64
	TransferRadius  float64
	TransferPenalty float64
	OffRampPenalty  float64
	GateRadius      float64
	GateCost        float64
	MaxRoutes       int

	ReleasePerTurn float64
	MergeTurns     int
	WildcatMaxRho  float64
}

func ParamsFrom(t tuning.Tuning) Params {
	return Params{
		ImpulseSpeed:    t.Planner.ImpulseSpeed,
		TransferRadius:  t.Planner.TransferRadius,
		TransferPenalty: t.Planner.TransferPenalty,
		OffRampPenalty:  t.Planner.OffRampPenalty,
		GateRadius:      t.Planner.GateRadius,
		GateCost:        t.Planner.GateCost,
		MaxRoutes:       t.Planner.MaxRoutes,
		ReleasePerTurn:  float64(t.Lanes.SlotsPerTurn) * t.Lanes.CUPerSlot,
		MergeTurns:      t.Lanes.WildcatMergeTurns,
		WildcatMaxRho:   t.Lanes.WildcatMaxRho,
	}
}

func (p Params) fly(a, b model.Point) float64 {
	if p.ImpulseSpeed <= 0 {
		return math.Inf(1)
	}
	return model.Dist(a, b) / p.ImpulseSpeed
}

// wait estimates the turns spent in a tap's queue from its backlog.
func (p Params) wait(c Congestion, tap string) float64 {
	if p.ReleasePerTurn <= 0 {
		return 0
	}
	return c.Backlog[tap] / p.ReleasePerTurn
}

type Route struct {
	ETA     int         `json:"eta"`
	Cost    float64     `json:"cost"`
	PeakRho float64     `json:"peak_rho"`
	Risk    int         `json:"risk"`
	Legs    []model.Leg `json:"legs"`
	Gates   []string    `json:"gates,omitempty"`
	Direct  bool        `json:"direct"`
	Source  string      `json:"source"`
}

const (
	SourceGraph      = "graph"
	SourceEnumerator = "enumerator"
)

// RiskTier buckets peak congestion into 1 (clear), 2 (busy) or 3 (jammed).
func RiskTier(peakRho float64) int {
	switch {
	case peakRho < 1:
		return 1
	case peakRho < 1.5:
		return 2
	default:
		return 3
	}
}

func finish(r Route, c Congestion) Route {
	r.ETA = int(math.Ceil(r.Cost - 1e-9))
	for _, l := range r.Legs {
		r.PeakRho = math.Max(r.PeakRho, c.rho(l.Edge))
	}
	r.Risk = RiskTier(r.PeakRho)
	return r
}

package planner

import (
	"context"
	"fmt"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
)

// LoadSnapshot reads the lane topology and the latest congestion records
// from tx. Callers normally pass a read-only transaction via store.View.
func LoadSnapshot(ctx context.Context, tx *store.Tx) (Topology, Congestion, error) {
	var topo Topology
	var err error
	if topo.Edges, err = tx.Edges().List(ctx); err != nil {
		return topo, Congestion{}, fmt.Errorf("planner edges: %w", err)
	}
	if topo.Taps, err = tx.Taps().List(ctx); err != nil {
		return topo, Congestion{}, fmt.Errorf("planner taps: %w", err)
	}
	if topo.Gates, err = tx.Gates().List(ctx); err != nil {
		return topo, Congestion{}, fmt.Errorf("planner gates: %w", err)
	}

	cong := Congestion{Edges: map[string]EdgeLoad{}, Backlog: map[string]float64{}}
	loads, err := tx.Loads().List(ctx)
	if err != nil {
		return topo, cong, fmt.Errorf("planner loads: %w", err)
	}
	for _, l := range loads {
		cong.Edges[l.Edge] = EdgeLoad{Rho: l.Rho, SpeedMult: l.SpeedMult}
	}
	queue, err := tx.TapQueue().List(ctx)
	if err != nil {
		return topo, cong, fmt.Errorf("planner tap queue: %w", err)
	}
	for _, q := range queue {
		if q.Status == model.QueueQueued {
			cong.Backlog[q.Tap] += q.CU
		}
	}
	return topo, cong, nil
}

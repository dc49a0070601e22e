package state

import (
	"context"
	"testing"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
)

func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	err := store.Update(ctx, s, "g", func(tx *store.Tx) error {
		for _, e := range []model.Entity{
			{ID: "a", Kind: model.KindShip, Owner: "p1", Pos: model.Tile{X: 0, Y: 0}},
			{ID: "b", Kind: model.KindShip, Owner: "p2", Pos: model.Tile{X: 1, Y: 0}},
			{ID: "c", Kind: model.KindResource, Pos: model.Tile{X: 5, Y: 5}, Material: 10},
		} {
			if err := tx.Entities().Put(ctx, e); err != nil {
				return err
			}
		}
		return tx.Edges().Put(ctx, model.LaneEdge{ID: "e1", Polyline: []model.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestLoadSaveWritesOnlyChanges(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)

	err := store.Update(ctx, s, "g", func(tx *store.Tx) error {
		st, err := Load(ctx, tx, 1)
		if err != nil {
			return err
		}
		if len(st.Entities) != 3 || len(st.Edges) != 1 {
			t.Fatalf("loaded %d entities %d edges", len(st.Entities), len(st.Edges))
		}
		st.Entities["a"].Pos = model.Tile{X: 2, Y: 2}
		delete(st.Entities, "c")
		st.Log("a", model.LogEffect, nil, "moved to %v", st.Entities["a"].Pos)
		return st.Save(ctx, tx)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = store.View(ctx, s, "g", func(tx *store.Tx) error {
		a, err := tx.Entities().Get(ctx, "a")
		if err != nil {
			return err
		}
		if a.Pos != (model.Tile{X: 2, Y: 2}) {
			t.Fatalf("position not saved: %+v", a.Pos)
		}
		if _, err := tx.Entities().Get(ctx, "c"); err == nil {
			t.Fatalf("removed entity still stored")
		}
		logs, err := tx.Logs().List(ctx)
		if err != nil {
			return err
		}
		if len(logs) != 1 || logs[0].Summary != "moved to {2 2}" || logs[0].ID == "" {
			t.Fatalf("logs: %+v", logs)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSaveKeepsMoveAndLaneSegmentsOfOneTurn(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)

	err := store.Update(ctx, s, "g", func(tx *store.Tx) error {
		st, err := Load(ctx, tx, 3)
		if err != nil {
			return err
		}
		st.History = append(st.History,
			model.MovementSegment{Entity: "a", Turn: 3, From: model.Tile{}, To: model.Tile{X: 1}},
			model.MovementSegment{Entity: "a", Turn: 3, From: model.Tile{X: 1}, To: model.Tile{X: 6}, Lane: "e1"},
		)
		return st.Save(ctx, tx)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = store.View(ctx, s, "g", func(tx *store.Tx) error {
		segs, err := tx.History().ListPrefix(ctx, "a/")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(segs) != 2 || segs[0].Lane != "e1" || segs[1].Lane != "" {
			t.Fatalf("segments: %+v", segs)
		}
		return nil
	})
}

func TestDigestIsStable(t *testing.T) {
	build := func() *State {
		st := New("g", 4)
		st.Entities["b"] = &model.Entity{ID: "b", Pos: model.Tile{X: 1}}
		st.Entities["a"] = &model.Entity{ID: "a", Pos: model.Tile{Y: 1}}
		st.Log("a", model.LogAttack, map[string]any{"damage": 3}, "hit")
		return st
	}
	d1, err := build().Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, _ := build().Digest()
	if d1 != d2 || len(d1) != 64 {
		t.Fatalf("digest unstable: %s vs %s", d1, d2)
	}
	other := build()
	other.Entities["a"].Pos.X = 9
	if d3, _ := other.Digest(); d3 == d1 {
		t.Fatalf("digest ignores entity state")
	}
}

func TestOccupancyAndPlayers(t *testing.T) {
	st := New("g", 1)
	st.Entities["a"] = &model.Entity{ID: "a", Owner: "p2", Pos: model.Tile{X: 1}}
	st.Entities["b"] = &model.Entity{ID: "b", Owner: "p1", Pos: model.Tile{X: 2}}
	st.Entities["w"] = &model.Entity{ID: "w", Owner: "p3", Wreck: &model.WreckState{}}
	occ := st.Occupancy()
	if occ[model.Tile{X: 1}] != "a" || occ[model.Tile{}] != "w" {
		t.Fatalf("occupancy: %v", occ)
	}
	players := st.Players()
	if len(players) != 2 || players[0] != "p1" || players[1] != "p2" {
		t.Fatalf("players: %v", players)
	}
}

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"starlanes.ai/internal/persistence/store"
)

// Load reads the whole game into a State for resolving turn.
func Load(ctx context.Context, tx *store.Tx, turn int64) (*State, error) {
	s := New(tx.Game(), turn)
	var err error
	if s.Entities, err = loadMap(ctx, s, store.KindEntity, tx.Entities()); err != nil {
		return nil, err
	}
	if s.Orders, err = loadMap(ctx, s, store.KindOrder, tx.Orders()); err != nil {
		return nil, err
	}
	if s.Queued, err = loadMap(ctx, s, store.KindQueued, tx.Queued()); err != nil {
		return nil, err
	}
	if s.Cooldowns, err = loadMap(ctx, s, store.KindCooldown, tx.Cooldowns()); err != nil {
		return nil, err
	}
	if s.Harvest, err = loadMap(ctx, s, store.KindHarvest, tx.Harvest()); err != nil {
		return nil, err
	}
	if s.Respawns, err = loadMap(ctx, s, store.KindRespawn, tx.Respawns()); err != nil {
		return nil, err
	}
	if s.Itineraries, err = loadMap(ctx, s, store.KindItinerary, tx.Itineraries()); err != nil {
		return nil, err
	}
	if s.Transits, err = loadMap(ctx, s, store.KindTransit, tx.Transits()); err != nil {
		return nil, err
	}
	if s.TapQueue, err = loadMap(ctx, s, store.KindTapQueue, tx.TapQueue()); err != nil {
		return nil, err
	}
	if s.Loads, err = loadMap(ctx, s, store.KindLoad, tx.Loads()); err != nil {
		return nil, err
	}
	if s.Regions, err = loadMap(ctx, s, store.KindRegion, tx.Regions()); err != nil {
		return nil, err
	}
	if s.Visibility, err = loadMap(ctx, s, store.KindVisibility, tx.Visibility()); err != nil {
		return nil, err
	}

	edges, err := tx.Edges().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		s.Edges[e.ID] = e
	}
	taps, err := tx.Taps().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range taps {
		s.Taps[t.ID] = t
	}
	gates, err := tx.Gates().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range gates {
		s.Gates[g.ID] = g
	}
	return s, nil
}

func loadMap[T store.Record](ctx context.Context, s *State, kind string, r store.Repo[T]) (map[string]*T, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*T, len(rows))
	seen := make(map[string][]byte, len(rows))
	for i := range rows {
		v := rows[i]
		k := v.Key()
		out[k] = &v
		b, err := fingerprint(v)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s %q: %w", kind, k, err)
		}
		seen[k] = b
	}
	s.loaded[kind] = seen
	return out, nil
}

func fingerprint(v any) ([]byte, error) { return json.Marshal(v) }

// Save writes back every record that changed since Load, deletes the ones
// that were removed, and appends this turn's history and log rows.
func (s *State) Save(ctx context.Context, tx *store.Tx) error {
	steps := []func() error{
		func() error { return saveMap(ctx, s, store.KindEntity, tx.Entities(), s.Entities) },
		func() error { return saveMap(ctx, s, store.KindOrder, tx.Orders(), s.Orders) },
		func() error { return saveMap(ctx, s, store.KindQueued, tx.Queued(), s.Queued) },
		func() error { return saveMap(ctx, s, store.KindCooldown, tx.Cooldowns(), s.Cooldowns) },
		func() error { return saveMap(ctx, s, store.KindHarvest, tx.Harvest(), s.Harvest) },
		func() error { return saveMap(ctx, s, store.KindRespawn, tx.Respawns(), s.Respawns) },
		func() error { return saveMap(ctx, s, store.KindItinerary, tx.Itineraries(), s.Itineraries) },
		func() error { return saveMap(ctx, s, store.KindTransit, tx.Transits(), s.Transits) },
		func() error { return saveMap(ctx, s, store.KindTapQueue, tx.TapQueue(), s.TapQueue) },
		func() error { return saveMap(ctx, s, store.KindLoad, tx.Loads(), s.Loads) },
		func() error { return saveMap(ctx, s, store.KindRegion, tx.Regions(), s.Regions) },
		func() error { return saveMap(ctx, s, store.KindVisibility, tx.Visibility(), s.Visibility) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	sortSegments(s.History)
	for _, h := range s.History {
		if err := tx.History().Put(ctx, h); err != nil {
			return err
		}
	}
	for _, l := range s.Logs {
		if err := tx.Logs().Put(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func saveMap[T store.Record](ctx context.Context, s *State, kind string, r store.Repo[T], m map[string]*T) error {
	before := s.loaded[kind]
	for _, k := range Keys(m) {
		v := *m[k]
		if v.Key() != k {
			return fmt.Errorf("%s %q stored under key %q", kind, v.Key(), k)
		}
		b, err := fingerprint(v)
		if err != nil {
			return fmt.Errorf("fingerprint %s %q: %w", kind, k, err)
		}
		if prev, ok := before[k]; ok && bytes.Equal(prev, b) {
			continue
		}
		if err := r.Put(ctx, v); err != nil {
			return err
		}
	}
	for k := range before {
		if _, ok := m[k]; ok {
			continue
		}
		if err := r.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

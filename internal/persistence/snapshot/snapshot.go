// Package snapshot captures a whole game into one versioned file and
// restores it. Files carry a JSON header line followed by a msgpack body,
// framed with zstd (.snap.zst) or lz4 (.snap.lz4).
package snapshot

import (
	"context"
	"fmt"
	"time"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
)

const Version = 1

type Header struct {
	Version   int       `json:"version"`
	Game      string    `json:"game"`
	Turn      int64     `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
}

type GameSnapshotV1 struct {
	Header Header `json:"header"`

	Turns       []model.Turn            `json:"turns"`
	Entities    []model.Entity          `json:"entities"`
	Orders      []model.Order           `json:"orders,omitempty"`
	Queued      []model.QueuedOrder     `json:"queued,omitempty"`
	Cooldowns   []model.Cooldown        `json:"cooldowns,omitempty"`
	Harvest     []model.HarvestTask     `json:"harvest,omitempty"`
	Respawns    []model.Respawn         `json:"respawns,omitempty"`
	History     []model.MovementSegment `json:"history,omitempty"`
	Edges       []model.LaneEdge        `json:"edges,omitempty"`
	Taps        []model.LaneTap         `json:"taps,omitempty"`
	TapQueue    []model.TapQueueEntry   `json:"tap_queue,omitempty"`
	Transits    []model.LaneTransit     `json:"transits,omitempty"`
	Loads       []model.LaneLoad        `json:"loads,omitempty"`
	Itineraries []model.LaneItinerary   `json:"itineraries,omitempty"`
	Regions     []model.Region          `json:"regions,omitempty"`
	Gates       []model.Gate            `json:"gates,omitempty"`
	Visibility  []model.Visibility      `json:"visibility,omitempty"`
	Logs        []model.EntityLog       `json:"logs,omitempty"`
}

func capture[T store.Record](ctx context.Context, r store.Repo[T], dst *[]T) error {
	v, err := r.List(ctx)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// replace makes the stored records of one kind exactly src.
func replace[T store.Record](ctx context.Context, r store.Repo[T], src []T) error {
	old, err := r.List(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(src))
	for _, v := range src {
		keep[v.Key()] = true
	}
	for _, v := range old {
		if !keep[v.Key()] {
			if err := r.Delete(ctx, v.Key()); err != nil {
				return err
			}
		}
	}
	for _, v := range src {
		if err := r.Put(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

type section struct {
	name    string
	capture func() error
	restore func() error
}

func sections(ctx context.Context, tx *store.Tx, s *GameSnapshotV1) []section {
	return []section{
		{"turns", func() error { return capture(ctx, tx.Turns(), &s.Turns) }, func() error { return replace(ctx, tx.Turns(), s.Turns) }},
		{"entities", func() error { return capture(ctx, tx.Entities(), &s.Entities) }, func() error { return replace(ctx, tx.Entities(), s.Entities) }},
		{"orders", func() error { return capture(ctx, tx.Orders(), &s.Orders) }, func() error { return replace(ctx, tx.Orders(), s.Orders) }},
		{"queued", func() error { return capture(ctx, tx.Queued(), &s.Queued) }, func() error { return replace(ctx, tx.Queued(), s.Queued) }},
		{"cooldowns", func() error { return capture(ctx, tx.Cooldowns(), &s.Cooldowns) }, func() error { return replace(ctx, tx.Cooldowns(), s.Cooldowns) }},
		{"harvest", func() error { return capture(ctx, tx.Harvest(), &s.Harvest) }, func() error { return replace(ctx, tx.Harvest(), s.Harvest) }},
		{"respawns", func() error { return capture(ctx, tx.Respawns(), &s.Respawns) }, func() error { return replace(ctx, tx.Respawns(), s.Respawns) }},
		{"history", func() error { return capture(ctx, tx.History(), &s.History) }, func() error { return replace(ctx, tx.History(), s.History) }},
		{"edges", func() error { return capture(ctx, tx.Edges(), &s.Edges) }, func() error { return replace(ctx, tx.Edges(), s.Edges) }},
		{"taps", func() error { return capture(ctx, tx.Taps(), &s.Taps) }, func() error { return replace(ctx, tx.Taps(), s.Taps) }},
		{"tap_queue", func() error { return capture(ctx, tx.TapQueue(), &s.TapQueue) }, func() error { return replace(ctx, tx.TapQueue(), s.TapQueue) }},
		{"transits", func() error { return capture(ctx, tx.Transits(), &s.Transits) }, func() error { return replace(ctx, tx.Transits(), s.Transits) }},
		{"loads", func() error { return capture(ctx, tx.Loads(), &s.Loads) }, func() error { return replace(ctx, tx.Loads(), s.Loads) }},
		{"itineraries", func() error { return capture(ctx, tx.Itineraries(), &s.Itineraries) }, func() error { return replace(ctx, tx.Itineraries(), s.Itineraries) }},
		{"regions", func() error { return capture(ctx, tx.Regions(), &s.Regions) }, func() error { return replace(ctx, tx.Regions(), s.Regions) }},
		{"gates", func() error { return capture(ctx, tx.Gates(), &s.Gates) }, func() error { return replace(ctx, tx.Gates(), s.Gates) }},
		{"visibility", func() error { return capture(ctx, tx.Visibility(), &s.Visibility) }, func() error { return replace(ctx, tx.Visibility(), s.Visibility) }},
		{"logs", func() error { return capture(ctx, tx.Logs(), &s.Logs) }, func() error { return replace(ctx, tx.Logs(), s.Logs) }},
	}
}

// Capture reads every record of the transaction's game.
func Capture(ctx context.Context, tx *store.Tx, now time.Time) (GameSnapshotV1, error) {
	var s GameSnapshotV1
	for _, sec := range sections(ctx, tx, &s) {
		if err := sec.capture(); err != nil {
			return s, fmt.Errorf("snapshot %s: %w", sec.name, err)
		}
	}
	s.Header = Header{Version: Version, Game: tx.Game(), CreatedAt: now.UTC()}
	if n := len(s.Turns); n > 0 {
		s.Header.Turn = s.Turns[n-1].Number
	}
	return s, nil
}

// Restore replaces the transaction's game with the snapshot contents.
func Restore(ctx context.Context, tx *store.Tx, s GameSnapshotV1) error {
	if s.Header.Version != Version {
		return fmt.Errorf("snapshot version %d not supported", s.Header.Version)
	}
	if len(s.Turns) == 0 {
		return fmt.Errorf("snapshot of %q has no turns", s.Header.Game)
	}
	for _, sec := range sections(ctx, tx, &s) {
		if err := sec.restore(); err != nil {
			return fmt.Errorf("restore %s: %w", sec.name, err)
		}
	}
	return nil
}

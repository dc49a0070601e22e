package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/snapshot"
	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/resolver"
)

// snapshotter writes a full game snapshot after every Nth resolved turn.
type snapshotter struct {
	store store.Store
	dir   string
	every int64
	ext   string
	log   *zap.Logger
	now   func() time.Time
}

func (s *snapshotter) AfterResolve(ctx context.Context, res resolver.Result) {
	if s.every <= 0 || res.NextTurn%s.every != 0 {
		return
	}
	path, err := s.write(ctx, res.Game, res.NextTurn)
	if err != nil {
		s.log.Warn("snapshot failed", zap.String("game", res.Game), zap.Int64("turn", res.NextTurn), zap.Error(err))
		return
	}
	s.log.Info("snapshot written", zap.String("path", path))
}

func (s *snapshotter) write(ctx context.Context, game string, turn int64) (string, error) {
	var snap snapshot.GameSnapshotV1
	err := store.View(ctx, s.store, game, func(tx *store.Tx) error {
		var err error
		snap, err = snapshot.Capture(ctx, tx, s.now().UTC())
		return err
	})
	if err != nil {
		return "", err
	}
	path := snapshot.Path(s.dir, game, turn, s.ext)
	return path, snapshot.WriteSnapshot(path, snap)
}

// Package scheduler decides when a turn resolves: as soon as every player
// has locked in, or when the turn's deadline passes.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/resolver"
)

type TurnResolver interface {
	ResolveTurn(ctx context.Context, game string, turn int64) (resolver.Result, error)
}

type Scheduler struct {
	store    store.Store
	resolver TurnResolver
	locks    *Locks
	turnLen  time.Duration
	log      *zap.Logger
	now      func() time.Time

	// AfterResolve runs after every committed resolution.
	AfterResolve func(ctx context.Context, res resolver.Result)

	mu     sync.Mutex
	gameMu map[string]*sync.Mutex
}

func New(s store.Store, r TurnResolver, turnLen time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:    s,
		resolver: r,
		locks:    NewLocks(),
		turnLen:  turnLen,
		log:      log,
		now:      time.Now,
		gameMu:   map[string]*sync.Mutex{},
	}
}

func (s *Scheduler) gameLock(game string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.gameMu[game]
	if !ok {
		m = &sync.Mutex{}
		s.gameMu[game] = m
	}
	return m
}

// Trigger resolves the given turn of a game. Triggers for one game are
// serialized; a trigger for a turn that already resolved is skipped by
// the resolver.
func (s *Scheduler) Trigger(ctx context.Context, game string, turn int64) (resolver.Result, error) {
	m := s.gameLock(game)
	m.Lock()
	defer m.Unlock()

	res, err := s.resolver.ResolveTurn(ctx, game, turn)
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		s.locks.Clear(game, turn)
		if s.AfterResolve != nil {
			s.AfterResolve(ctx, res)
		}
	}
	return res, nil
}

type LockStatus struct {
	Turn     int64
	Locked   []string
	Pending  []string
	Resolved bool
}

// Lock records a player's lock for the waiting turn and resolves the turn
// once every player with a live entity has locked.
func (s *Scheduler) Lock(ctx context.Context, game, player string) (LockStatus, error) {
	var cur model.Turn
	var roster []string
	err := store.View(ctx, s.store, game, func(tx *store.Tx) error {
		var err error
		if cur, err = tx.CurrentTurn(ctx); err != nil {
			return err
		}
		roster, err = players(ctx, tx)
		return err
	})
	if err != nil {
		return LockStatus{}, err
	}

	status := LockStatus{Turn: cur.Number, Locked: s.locks.Lock(game, cur.Number, player)}
	locked := map[string]bool{}
	for _, p := range status.Locked {
		locked[p] = true
	}
	for _, p := range roster {
		if !locked[p] {
			status.Pending = append(status.Pending, p)
		}
	}
	if len(status.Pending) > 0 || cur.Status != model.TurnWaiting {
		return status, nil
	}
	res, err := s.Trigger(ctx, game, cur.Number)
	if err != nil {
		return status, err
	}
	status.Resolved = !res.Skipped
	return status, nil
}

func players(ctx context.Context, tx *store.Tx) ([]string, error) {
	ents, err := tx.Entities().List(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range ents {
		if e.Owner == "" || e.IsWreck() || seen[e.Owner] {
			continue
		}
		seen[e.Owner] = true
		out = append(out, e.Owner)
	}
	sort.Strings(out)
	return out, nil
}

// Sweep resolves every game whose waiting turn is past its deadline. A
// turn left resolving by an interrupted run is retried on the same rule.
func (s *Scheduler) Sweep(ctx context.Context) error {
	games, err := s.store.Games(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, game := range games {
		var cur model.Turn
		err := store.View(ctx, s.store, game, func(tx *store.Tx) error {
			var err error
			cur, err = tx.CurrentTurn(ctx)
			return err
		})
		if err != nil {
			s.log.Warn("sweep: read turn", zap.String("game", game), zap.Error(err))
			continue
		}
		open := cur.Status == model.TurnWaiting || cur.Status == model.TurnResolving
		if !open || now.Before(cur.CreatedAt.Add(s.turnLen)) {
			continue
		}
		if _, err := s.Trigger(ctx, game, cur.Number); err != nil {
			s.log.Error("deadline resolution failed", zap.String("game", game), zap.Int64("turn", cur.Number), zap.Error(err))
		}
	}
	return nil
}

// Run sweeps on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

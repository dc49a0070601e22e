// Package resolver runs one game turn as a single unit of work: every
// phase mutates one in-memory state loaded from a store transaction, and
// the transaction commits only when all phases succeed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/catalogs"
	"starlanes.ai/internal/sim/combat"
	"starlanes.ai/internal/sim/lanes"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/movement"
	"starlanes.ai/internal/sim/orders"
	"starlanes.ai/internal/sim/state"
	"starlanes.ai/internal/sim/tuning"
	"starlanes.ai/internal/sim/visibility"
)

var ErrTurnNotFound = errors.New("resolver: turn not found")

type Resolver struct {
	store    store.Store
	guard    Guard
	tune     tuning.Tuning
	movement movement.Engine
	combat   *combat.Engine
	lanes    lanes.Sim
	sinks    []Sink
	log      *zap.Logger
	now      func() time.Time

	Stats Stats
}

type Option func(*Resolver)

func WithGuard(g Guard) Option              { return func(r *Resolver) { r.guard = g } }
func WithSinks(s ...Sink) Option            { return func(r *Resolver) { r.sinks = append(r.sinks, s...) } }
func WithLogger(l *zap.Logger) Option       { return func(r *Resolver) { r.log = l } }
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

func New(s store.Store, cat *catalogs.Catalog, tune tuning.Tuning, opts ...Option) *Resolver {
	r := &Resolver{
		store:    s,
		guard:    NewInflightGuard(),
		tune:     tune,
		movement: movement.Engine{WarpPrepTurns: tune.Movement.WarpPrepTurns},
		combat:   &combat.Engine{Catalog: cat, Tuning: tune},
		lanes:    lanes.Sim{Lanes: tune.Lanes, Regions: tune.Regions},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type Result struct {
	Game            string
	Turn            int64
	NextTurn        int64
	Skipped         bool
	OrdersProcessed int
	Digest          string
	Duration        time.Duration
	Lanes           *lanes.Report
}

type phase struct {
	name string
	run  func(st *state.State) error
}

func (r *Resolver) phases(res *Result) []phase {
	var attacks []combat.PendingAttack
	return []phase{
		{"abilities", func(st *state.State) error { attacks = r.combat.Abilities(st); return nil }},
		{"movement", func(st *state.State) error { r.movement.Tick(st); return nil }},
		{"visibility", func(st *state.State) error { visibility.Recompute(st, r.tune.Vision.DetailFraction); return nil }},
		{"stale_cleanup", func(st *state.State) error { cleanupStale(st, r.tune.StaleOrderTurns); return nil }},
		{"harvest", func(st *state.State) error { r.combat.Harvest(st); return nil }},
		{"combat", func(st *state.State) error { r.combat.Combat(st, attacks); return nil }},
		{"region_health", func(st *state.State) error { r.lanes.RegionHealth(st); return nil }},
		{"queued_orders", func(st *state.State) error { orders.Materialize(st); return nil }},
		{"lane_traffic", func(st *state.State) error {
			rep, err := r.lanes.Tick(st)
			res.Lanes = rep
			return err
		}},
	}
}

// ResolveTurn resolves the given waiting turn of a game exactly once. A
// duplicate trigger while the turn is in flight, or for a turn that is
// already completed, returns a skipped result and no error. The turn is
// marked resolving before any phase runs so order intake closes for it.
// Cancelling ctx does not interrupt a resolution that has started.
func (r *Resolver) ResolveTurn(ctx context.Context, game string, turn int64) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	res := Result{Game: game, Turn: turn}
	log := r.log.With(zap.String("game", game), zap.Int64("turn", turn))

	release, ok := r.guard.TryAcquire(game, turn)
	if !ok {
		r.Stats.skipped.Add(1)
		log.Debug("resolution already in flight")
		res.Skipped = true
		return res, nil
	}
	defer release()

	start := r.now()
	open, err := r.markResolving(ctx, game, turn, log)
	if errors.Is(err, ErrTurnNotFound) {
		return res, err
	}
	if err != nil {
		return res, r.fail(log, res, err)
	}
	if !open {
		r.Stats.skipped.Add(1)
		res.Skipped = true
		return res, nil
	}

	var rows []model.EntityLog
	if err := r.resolve(ctx, game, turn, &res, &rows, log); err != nil {
		r.reopen(ctx, game, turn, log)
		return res, r.fail(log, res, err)
	}

	res.Duration = r.now().Sub(start)
	r.Stats.resolved.Add(1)
	r.Stats.lastDurationMs.Store(res.Duration.Milliseconds())
	log.Info("turn resolved",
		zap.Int64("next_turn", res.NextTurn),
		zap.Int("orders", res.OrdersProcessed),
		zap.String("digest", res.Digest),
		zap.Duration("took", res.Duration))
	r.emitCompleted(log, res, rows)
	return res, nil
}

// markResolving commits the waiting to resolving transition. It reports
// false when the turn is already completed. A turn found resolving was
// left behind by an interrupted run and is taken over.
func (r *Resolver) markResolving(ctx context.Context, game string, turn int64, log *zap.Logger) (bool, error) {
	tx, err := r.store.Begin(ctx, game)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := tx.Turns().Get(ctx, model.TurnKey(turn))
	if errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("game %q turn %d: %w", game, turn, ErrTurnNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("read turn: %w", err)
	}
	switch cur.Status {
	case model.TurnWaiting:
	case model.TurnResolving:
		log.Warn("resuming interrupted resolution")
	default:
		log.Debug("turn not waiting", zap.String("status", string(cur.Status)))
		return false, nil
	}
	cur.Status = model.TurnResolving
	if err := tx.Turns().Put(ctx, cur); err != nil {
		return false, fmt.Errorf("mark resolving: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("mark resolving: %w", err)
	}
	return true, nil
}

func (r *Resolver) resolve(ctx context.Context, game string, turn int64, res *Result, rows *[]model.EntityLog, log *zap.Logger) error {
	tx, err := r.store.Begin(ctx, game)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := tx.Turns().Get(ctx, model.TurnKey(turn))
	if err != nil {
		return fmt.Errorf("read turn: %w", err)
	}
	if err := r.run(ctx, tx, cur, res, rows, log); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// reopen puts a failed turn back to waiting so intake and the scheduler
// can pick it up again. When this fails too the turn stays resolving and
// the next sweep retries it.
func (r *Resolver) reopen(ctx context.Context, game string, turn int64, log *zap.Logger) {
	err := store.Update(ctx, r.store, game, func(tx *store.Tx) error {
		cur, err := tx.Turns().Get(ctx, model.TurnKey(turn))
		if err != nil {
			return err
		}
		if cur.Status != model.TurnResolving {
			return nil
		}
		cur.Status = model.TurnWaiting
		return tx.Turns().Put(ctx, cur)
	})
	if err != nil {
		log.Warn("reopen failed turn", zap.Error(err))
	}
}

func (r *Resolver) run(ctx context.Context, tx *store.Tx, cur model.Turn, res *Result, rows *[]model.EntityLog, log *zap.Logger) error {
	st, err := state.Load(ctx, tx, cur.Number)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	res.OrdersProcessed = liveOrders(st)

	for _, p := range r.phases(res) {
		t0 := r.now()
		if err := p.run(st); err != nil {
			return fmt.Errorf("phase %s: %w", p.name, err)
		}
		log.Debug("phase done", zap.String("phase", p.name), zap.Duration("took", r.now().Sub(t0)))
	}

	if err := st.Save(ctx, tx); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	digest, err := st.Digest()
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}

	now := r.now().UTC()
	cur.Status = model.TurnCompleted
	cur.ResolvedAt = &now
	cur.Digest = digest
	cur.OrdersProcessed = res.OrdersProcessed
	if err := tx.Turns().Put(ctx, cur); err != nil {
		return fmt.Errorf("rollover: %w", err)
	}
	next := model.Turn{Game: cur.Game, Number: cur.Number + 1, Status: model.TurnWaiting, CreatedAt: now}
	if next.Game == "" {
		next.Game = tx.Game()
	}
	if err := tx.Turns().Put(ctx, next); err != nil {
		return fmt.Errorf("rollover: %w", err)
	}

	res.NextTurn = next.Number
	res.Digest = digest
	*rows = st.Logs
	return nil
}

// liveOrders counts the orders this turn consumes or advances: abilities
// due this turn, active moves and pending warps. Completed or blocked moves
// kept for reference and abilities for later turns are not counted.
func liveOrders(st *state.State) int {
	n := 0
	for _, o := range st.Orders {
		switch o.Kind {
		case model.OrderAbility:
			if o.Turn == st.Turn {
				n++
			}
		case model.OrderMove:
			if o.Move != nil && o.Move.Status == model.MoveActive {
				n++
			}
		case model.OrderWarp:
			n++
		}
	}
	return n
}

func (r *Resolver) fail(log *zap.Logger, res Result, err error) error {
	r.Stats.failed.Add(1)
	log.Error("turn failed", zap.Error(err))
	msg := protocol.NewTurnFailed(res.Game, res.Turn, err.Error())
	for _, s := range r.sinks {
		if serr := s.TurnFailed(msg); serr != nil {
			log.Warn("sink failed", zap.Error(serr))
		}
	}
	return err
}

func (r *Resolver) emitCompleted(log *zap.Logger, res Result, rows []model.EntityLog) {
	msg := protocol.NewTurnCompleted(res.Game, res.Turn, res.NextTurn, res.Duration.Milliseconds(), res.OrdersProcessed, res.Digest)
	for _, s := range r.sinks {
		if err := s.TurnCompleted(msg); err != nil {
			log.Warn("sink failed", zap.Error(err))
		}
		if ls, ok := s.(LogSink); ok && len(rows) > 0 {
			if err := ls.EntityLogs(rows); err != nil {
				log.Warn("log sink failed", zap.Error(err))
			}
		}
	}
}

// CurrentTurn returns the number of the game's waiting turn.
func (r *Resolver) CurrentTurn(ctx context.Context, game string) (model.Turn, error) {
	var t model.Turn
	err := store.View(ctx, r.store, game, func(tx *store.Tx) error {
		var err error
		t, err = tx.CurrentTurn(ctx)
		return err
	})
	return t, err
}

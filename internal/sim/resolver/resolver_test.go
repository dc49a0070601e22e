package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/catalogs"
	"starlanes.ai/internal/sim/lanes"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/orders"
	"starlanes.ai/internal/sim/tuning"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu        sync.Mutex
	completed []protocol.TurnCompletedMsg
	failed    []protocol.TurnFailedMsg
	rows      []model.EntityLog
}

func (r *recorder) TurnCompleted(m protocol.TurnCompletedMsg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, m)
	return nil
}

func (r *recorder) TurnFailed(m protocol.TurnFailedMsg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, m)
	return nil
}

func (r *recorder) EntityLogs(rows []model.EntityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

func ship(id, owner string, x int) model.Entity {
	return model.Entity{
		ID: id, Kind: model.KindShip, Owner: owner, Class: 2, Sector: "s1", Pos: model.Tile{X: x},
		Stats: model.Stats{HP: 100, MaxHP: 100, Energy: 50, MaxEnergy: 50, EnergyRegen: 5, ScanRange: 10, Speed: 2},
	}
}

func seed(t *testing.T, s store.Store, game string, extra func(ctx context.Context, tx *store.Tx) error) {
	t.Helper()
	ctx := context.Background()
	err := store.Update(ctx, s, game, func(tx *store.Tx) error {
		if err := tx.Turns().Put(ctx, model.Turn{Game: game, Number: 1, Status: model.TurnWaiting, CreatedAt: t0}); err != nil {
			return err
		}
		for _, e := range []model.Entity{ship("a", "p1", 0), ship("b", "p2", 20)} {
			if err := tx.Entities().Put(ctx, e); err != nil {
				return err
			}
		}
		path := []model.Tile{{X: 0}, {X: 1}, {X: 2}, {X: 3}}
		if err := tx.Orders().Put(ctx, model.Order{ID: "o1", Entity: "a", Turn: 1, Kind: model.OrderMove, SubmittedAt: t0,
			Move: &model.MoveOrder{Path: path, Status: model.MoveActive}}); err != nil {
			return err
		}
		if err := tx.Orders().Put(ctx, model.Order{ID: "o2", Entity: "a", Turn: 1, Kind: model.OrderAbility, SubmittedAt: t0,
			Ability: &model.AbilityOrder{Ability: "laser", Target: "b"}}); err != nil {
			return err
		}
		if extra != nil {
			return extra(ctx, tx)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newResolver(s store.Store, sinks ...Sink) *Resolver {
	return New(s, catalogs.Defaults(), tuning.Defaults(), WithSinks(sinks...), WithClock(func() time.Time { return t0 }))
}

func entity(t *testing.T, s store.Store, game, id string) model.Entity {
	t.Helper()
	var e model.Entity
	err := store.View(context.Background(), s, game, func(tx *store.Tx) error {
		var err error
		e, err = tx.Entities().Get(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("entity %s: %v", id, err)
	}
	return e
}

func TestResolveTurn_AdvancesByOne(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s, "g", nil)
	rec := &recorder{}
	r := newResolver(s, rec)

	res, err := r.ResolveTurn(ctx, "g", 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Skipped || res.NextTurn != 2 || res.Digest == "" || res.OrdersProcessed != 2 {
		t.Fatalf("result: %+v", res)
	}
	if got := entity(t, s, "g", "a").Pos; got != (model.Tile{X: 2}) {
		t.Fatalf("ship should move two tiles, at %v", got)
	}
	_ = store.View(ctx, s, "g", func(tx *store.Tx) error {
		done, err := tx.Turns().Get(ctx, model.TurnKey(1))
		if err != nil || done.Status != model.TurnCompleted || done.ResolvedAt == nil || done.Digest != res.Digest {
			t.Fatalf("turn 1: %+v %v", done, err)
		}
		cur, err := tx.CurrentTurn(ctx)
		if err != nil || cur.Number != 2 || cur.Status != model.TurnWaiting {
			t.Fatalf("current turn: %+v %v", cur, err)
		}
		return nil
	})

	if again, err := r.ResolveTurn(ctx, "g", 1); err != nil || !again.Skipped {
		t.Fatalf("re-resolving a completed turn should be skipped: %+v %v", again, err)
	}
	res, err = r.ResolveTurn(ctx, "g", 2)
	if err != nil || res.NextTurn != 3 {
		t.Fatalf("turn 2: %+v %v", res, err)
	}
	if got := entity(t, s, "g", "a").Pos; got != (model.Tile{X: 3}) {
		t.Fatalf("ship should finish its path, at %v", got)
	}

	if len(rec.completed) != 2 || rec.completed[0].TurnNumber != 1 || rec.completed[0].NextTurn != 2 {
		t.Fatalf("completed events: %+v", rec.completed)
	}
	if len(rec.rows) == 0 {
		t.Fatalf("expected entity log rows from the laser order")
	}
	if r.Stats.Resolved() != 2 || r.Stats.Skipped() != 1 {
		t.Fatalf("stats: resolved %d skipped %d", r.Stats.Resolved(), r.Stats.Skipped())
	}
}

func TestResolveTurn_ConcurrentTriggersMutateOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s, "g", nil)
	rec := &recorder{}
	r := newResolver(s, rec)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = r.ResolveTurn(ctx, "g", 1)
		}(i)
	}
	close(start)
	wg.Wait()

	resolved := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("trigger %d: %v", i, errs[i])
		}
		if !results[i].Skipped {
			resolved++
		}
	}
	if resolved != 1 || len(rec.completed) != 1 {
		t.Fatalf("turn resolved %d times, %d events", resolved, len(rec.completed))
	}
	if got := entity(t, s, "g", "a").Pos; got != (model.Tile{X: 2}) {
		t.Fatalf("ship moved more than once: %v", got)
	}
}

func TestResolveTurn_GuardHeldElsewhere(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "g", nil)
	g := NewInflightGuard()
	r := New(s, catalogs.Defaults(), tuning.Defaults(), WithGuard(g))
	release, ok := g.TryAcquire("g", 1)
	if !ok {
		t.Fatalf("acquire")
	}
	res, err := r.ResolveTurn(context.Background(), "g", 1)
	if err != nil || !res.Skipped {
		t.Fatalf("in-flight duplicate should be a no-op: %+v %v", res, err)
	}
	release()
	release()
	if res, err := r.ResolveTurn(context.Background(), "g", 1); err != nil || res.Skipped {
		t.Fatalf("after release: %+v %v", res, err)
	}
}

func TestResolveTurn_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s, "g", func(ctx context.Context, tx *store.Tx) error {
		if err := tx.Edges().Put(ctx, model.LaneEdge{ID: "e1", Polyline: []model.Point{{X: 0}, {X: 10}}, CoreWidth: 1, BaseCapacity: 10, NominalSpeed: 5}); err != nil {
			return err
		}
		return tx.Loads().Put(ctx, model.LaneLoad{Edge: "e1", LoadCU: 5, Turn: 0})
	})
	rec := &recorder{}
	r := newResolver(s, rec)

	_, err := r.ResolveTurn(ctx, "g", 1)
	if !errors.Is(err, lanes.ErrLoadMismatch) {
		t.Fatalf("got %v, want ErrLoadMismatch", err)
	}
	if got := entity(t, s, "g", "a"); got.Pos != (model.Tile{}) || got.Stats.Energy != 50 {
		t.Fatalf("state must be untouched after rollback: %+v", got)
	}
	_ = store.View(ctx, s, "g", func(tx *store.Tx) error {
		cur, err := tx.CurrentTurn(ctx)
		if err != nil || cur.Number != 1 || cur.Status != model.TurnWaiting {
			t.Fatalf("turn should still be waiting: %+v %v", cur, err)
		}
		return nil
	})
	if len(rec.failed) != 1 || !strings.Contains(rec.failed[0].Reason, "lane_traffic") || len(rec.completed) != 0 {
		t.Fatalf("events: failed %+v completed %+v", rec.failed, rec.completed)
	}
	if r.Stats.Failed() != 1 {
		t.Fatalf("failed counter: %d", r.Stats.Failed())
	}
}

type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) Begin(context.Context, string) (*store.Tx, error) { return nil, b.err }

func TestResolveTurn_BeginFailureIsReported(t *testing.T) {
	down := errors.New("db down")
	rec := &recorder{}
	r := newResolver(brokenStore{Store: store.NewMemory(), err: down}, rec)

	_, err := r.ResolveTurn(context.Background(), "g", 1)
	if !errors.Is(err, down) {
		t.Fatalf("got %v, want db down", err)
	}
	if len(rec.failed) != 1 || !strings.Contains(rec.failed[0].Reason, "db down") {
		t.Fatalf("failed events: %+v", rec.failed)
	}
	if r.Stats.Failed() != 1 {
		t.Fatalf("failed counter: %d", r.Stats.Failed())
	}
}

func TestResolveTurn_IntakeClosedWhileResolving(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s, "g", nil)
	svc := orders.New(s, catalogs.Defaults(), tuning.Defaults(), nil)
	sub := orders.Submission{Player: "p2", Entity: "b", Kind: model.OrderWarp, Warp: &model.WarpOrder{Destination: model.Tile{X: 30}}}

	var tried bool
	var submitErr error
	clock := func() time.Time {
		if tried {
			return t0
		}
		var cur model.Turn
		_ = store.View(ctx, s, "g", func(tx *store.Tx) error {
			cur, _ = tx.CurrentTurn(ctx)
			return nil
		})
		if cur.Status == model.TurnResolving {
			tried = true
			_, submitErr = svc.Submit(ctx, "g", sub)
		}
		return t0
	}
	r := New(s, catalogs.Defaults(), tuning.Defaults(), WithClock(clock))

	res, err := r.ResolveTurn(ctx, "g", 1)
	if err != nil || res.NextTurn != 2 {
		t.Fatalf("resolve: %+v %v", res, err)
	}
	if !tried {
		t.Fatal("turn was never observed as resolving")
	}
	if !errors.Is(submitErr, orders.ErrClosed) {
		t.Fatalf("submission during resolution: got %v, want ErrClosed", submitErr)
	}
	_ = store.View(ctx, s, "g", func(tx *store.Tx) error {
		if _, err := tx.Orders().Get(ctx, "nav/b"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("rejected order was stored: %v", err)
		}
		return nil
	})
	if _, err := svc.Submit(ctx, "g", sub); errors.Is(err, orders.ErrClosed) {
		t.Fatalf("intake should reopen for turn 2: %v", err)
	}
}

func TestResolveTurn_ResumesInterruptedTurn(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s, "g", func(ctx context.Context, tx *store.Tx) error {
		return tx.Turns().Put(ctx, model.Turn{Game: "g", Number: 1, Status: model.TurnResolving, CreatedAt: t0})
	})
	res, err := newResolver(s).ResolveTurn(ctx, "g", 1)
	if err != nil || res.Skipped || res.NextTurn != 2 {
		t.Fatalf("resolving turn should be taken over: %+v %v", res, err)
	}
}

func TestResolveTurn_CountsOnlyLiveOrders(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "g", func(ctx context.Context, tx *store.Tx) error {
		if err := tx.Orders().Put(ctx, model.Order{ID: "o3", Entity: "b", Turn: 1, Kind: model.OrderMove, SubmittedAt: t0,
			Move: &model.MoveOrder{Path: []model.Tile{{X: 20}, {X: 21}}, Step: 1, Status: model.MoveCompleted}}); err != nil {
			return err
		}
		return tx.Orders().Put(ctx, model.Order{ID: "o4", Entity: "a", Turn: 3, Kind: model.OrderAbility, SubmittedAt: t0,
			Ability: &model.AbilityOrder{Ability: "laser", Target: "b"}})
	})
	res, err := newResolver(s).ResolveTurn(context.Background(), "g", 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.OrdersProcessed != 2 {
		t.Fatalf("orders processed = %d, want 2 (finished move and future ability excluded)", res.OrdersProcessed)
	}
}

func TestResolveTurn_UnknownTurn(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "g", nil)
	if _, err := newResolver(s).ResolveTurn(context.Background(), "g", 9); !errors.Is(err, ErrTurnNotFound) {
		t.Fatalf("got %v, want ErrTurnNotFound", err)
	}
}

func TestResolveTurn_DeterministicDigest(t *testing.T) {
	var digests []string
	for i := 0; i < 2; i++ {
		s := store.NewMemory()
		seed(t, s, "g", nil)
		res, err := newResolver(s).ResolveTurn(context.Background(), "g", 1)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		digests = append(digests, res.Digest)
	}
	if digests[0] != digests[1] {
		t.Fatalf("digests differ: %v", digests)
	}
}

func TestStats_WritePrometheus(t *testing.T) {
	var st Stats
	st.resolved.Add(3)
	var sb strings.Builder
	st.WritePrometheus(&sb)
	if !strings.Contains(sb.String(), "starlanes_turns_resolved_total 3") {
		t.Fatalf("metrics output:\n%s", sb.String())
	}
}

// Package orders is the intake side of the turn loop: it validates player
// submissions against the current waiting turn and stores them, and it
// turns queued multistep orders into live orders during resolution.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/catalogs"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/tuning"
)

var (
	ErrInvalid  = errors.New("orders: invalid")
	ErrStale    = errors.New("orders: superseded by a newer submission")
	ErrConflict = errors.New("orders: conflicts with entity state")
	ErrClosed   = errors.New("orders: turn is not accepting orders")
)

type Service struct {
	store   store.Store
	catalog *catalogs.Catalog
	tune    tuning.Tuning
	log     *zap.Logger

	now func() time.Time
}

func New(s store.Store, cat *catalogs.Catalog, tune tuning.Tuning, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, catalog: cat, tune: tune, log: log, now: time.Now}
}

// Submission is one order as received from a player.
type Submission struct {
	ID          string              `json:"id,omitempty"`
	Player      string              `json:"-"`
	Entity      string              `json:"entity_id"`
	Kind        model.OrderKind     `json:"order_type"`
	SubmittedAt time.Time           `json:"submitted_at"`
	Move        *model.MoveOrder    `json:"move,omitempty"`
	Warp        *model.WarpOrder    `json:"warp,omitempty"`
	Ability     *model.AbilityOrder `json:"ability,omitempty"`

	// Queued submissions only.
	Seq           int   `json:"seq,omitempty"`
	NotBeforeTurn int64 `json:"not_before_turn,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (s *Service) stamp(sub *Submission) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now().UTC()
	}
}

// waitingTurn returns the turn orders are currently collected for.
func waitingTurn(ctx context.Context, tx *store.Tx) (model.Turn, error) {
	t, err := tx.CurrentTurn(ctx)
	if err != nil {
		return t, err
	}
	if t.Status != model.TurnWaiting {
		return t, fmt.Errorf("turn %d is %s: %w", t.Number, t.Status, ErrClosed)
	}
	return t, nil
}

func (s *Service) entity(ctx context.Context, tx *store.Tx, id, player string) (model.Entity, error) {
	e, err := tx.Entities().Get(ctx, id)
	if err != nil {
		return e, err
	}
	if e.IsWreck() {
		return e, invalid("entity %s is a wreck", id)
	}
	if player != "" && e.Owner != player {
		return e, invalid("entity %s is not owned by %s", id, player)
	}
	return e, nil
}

// validate checks the payload for its kind. Paths are only anchored to
// the entity position when anchor is set.
func (s *Service) validate(sub Submission, e model.Entity, anchor bool) error {
	switch sub.Kind {
	case model.OrderMove:
		if sub.Move == nil || len(sub.Move.Path) < 2 {
			return invalid("move needs a path of at least two tiles")
		}
		if anchor && sub.Move.Path[0] != e.Pos {
			return invalid("path starts at %v, entity is at %v", sub.Move.Path[0], e.Pos)
		}
		for i := 1; i < len(sub.Move.Path); i++ {
			a, b := sub.Move.Path[i-1], sub.Move.Path[i]
			if max(abs(a.X-b.X), abs(a.Y-b.Y)) != 1 {
				return invalid("path step %d (%v -> %v) is not adjacent", i, a, b)
			}
		}
	case model.OrderWarp:
		if sub.Warp == nil {
			return invalid("warp needs a destination")
		}
		if anchor && sub.Warp.Destination == e.Pos {
			return invalid("warp destination is the current position")
		}
	case model.OrderAbility:
		if sub.Ability == nil || sub.Ability.Ability == "" {
			return invalid("ability order needs an ability key")
		}
		if _, ok := s.catalog.Get(sub.Ability.Ability); !ok {
			return invalid("unknown ability %q", sub.Ability.Ability)
		}
	default:
		return invalid("unknown order type %q", sub.Kind)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func freshMove(m *model.MoveOrder) *model.MoveOrder {
	if m == nil {
		return nil
	}
	return &model.MoveOrder{Path: append([]model.Tile(nil), m.Path...), Status: model.MoveActive}
}

func freshWarp(w *model.WarpOrder) *model.WarpOrder {
	if w == nil {
		return nil
	}
	return &model.WarpOrder{Destination: w.Destination}
}

// Submit stores an order for the waiting turn. The latest submission per
// slot wins; an older one than what is stored returns ErrStale.
func (s *Service) Submit(ctx context.Context, game string, sub Submission) (model.Order, error) {
	s.stamp(&sub)
	var out model.Order
	err := store.Update(ctx, s.store, game, func(tx *store.Tx) error {
		turn, err := waitingTurn(ctx, tx)
		if err != nil {
			return err
		}
		e, err := s.entity(ctx, tx, sub.Entity, sub.Player)
		if err != nil {
			return err
		}
		if err := s.validate(sub, e, true); err != nil {
			return err
		}
		o := model.Order{
			ID:          sub.ID,
			Entity:      sub.Entity,
			Turn:        turn.Number,
			Kind:        sub.Kind,
			SubmittedAt: sub.SubmittedAt,
			Move:        freshMove(sub.Move),
			Warp:        freshWarp(sub.Warp),
			Ability:     sub.Ability,
		}
		if o.IsNavigation() {
			if busy, err := inLane(ctx, tx, e.ID); err != nil {
				return err
			} else if busy {
				return fmt.Errorf("%w: %s is travelling a lane", ErrConflict, e.ID)
			}
		}
		prev, err := tx.Orders().Get(ctx, o.Key())
		switch {
		case err == nil && prev.SubmittedAt.After(o.SubmittedAt):
			return fmt.Errorf("%w: slot %s has a submission from %s", ErrStale, o.Key(), prev.SubmittedAt.Format(time.RFC3339Nano))
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
		out = o
		return tx.Orders().Put(ctx, o)
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Debug("order accepted", zap.String("game", game), zap.String("entity", out.Entity),
		zap.String("kind", string(out.Kind)), zap.Int64("turn", out.Turn))
	return out, nil
}

// Enqueue appends a multistep order to the entity's queue. A zero Seq is
// assigned after the entity's last queued order.
func (s *Service) Enqueue(ctx context.Context, game string, sub Submission) (model.QueuedOrder, error) {
	s.stamp(&sub)
	var out model.QueuedOrder
	err := store.Update(ctx, s.store, game, func(tx *store.Tx) error {
		if _, err := waitingTurn(ctx, tx); err != nil {
			return err
		}
		e, err := s.entity(ctx, tx, sub.Entity, sub.Player)
		if err != nil {
			return err
		}
		if err := s.validate(sub, e, false); err != nil {
			return err
		}
		queue, err := tx.Queued().ListPrefix(ctx, sub.Entity+"/")
		if err != nil {
			return err
		}
		seq := sub.Seq
		if seq <= 0 {
			seq = 1
			if len(queue) > 0 {
				seq = queue[len(queue)-1].Seq + 1
			}
		}
		q := model.QueuedOrder{
			ID:            sub.ID,
			Entity:        sub.Entity,
			Seq:           seq,
			NotBeforeTurn: sub.NotBeforeTurn,
			Kind:          sub.Kind,
			SubmittedAt:   sub.SubmittedAt,
			Move:          freshMove(sub.Move),
			Warp:          freshWarp(sub.Warp),
			Ability:       sub.Ability,
		}
		for _, prev := range queue {
			if prev.Key() == q.Key() && prev.SubmittedAt.After(q.SubmittedAt) {
				return fmt.Errorf("%w: queue slot %s", ErrStale, q.Key())
			}
		}
		out = q
		return tx.Queued().Put(ctx, q)
	})
	if err != nil {
		return model.QueuedOrder{}, err
	}
	return out, nil
}

func inLane(ctx context.Context, tx *store.Tx, entity string) (bool, error) {
	if _, err := tx.Transits().Get(ctx, entity); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	queue, err := tx.TapQueue().List(ctx)
	if err != nil {
		return false, err
	}
	for _, q := range queue {
		if q.Entity == entity && q.Status == model.QueueQueued {
			return true, nil
		}
	}
	return false, nil
}

// Package store is the persistence boundary of the simulation: one generic
// repository per record kind, grouped in a game-scoped unit of work.
package store

import (
	"context"
	"errors"
	"fmt"

	"starlanes.ai/internal/sim/model"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrTxDone   = errors.New("store: transaction already finished")
	// ErrConflict reports a commit that lost a race with a concurrent
	// transaction. The caller may retry from a fresh transaction.
	ErrConflict = errors.New("store: transaction conflict")
)

// Record kinds. They double as table discriminators in the SQL backend.
const (
	KindTurn       = "turn"
	KindOrder      = "order"
	KindQueued     = "queued"
	KindEntity     = "entity"
	KindCooldown   = "cooldown"
	KindHarvest    = "harvest"
	KindRespawn    = "respawn"
	KindHistory    = "history"
	KindEdge       = "edge"
	KindTap        = "tap"
	KindTapQueue   = "tapq"
	KindTransit    = "transit"
	KindLoad       = "load"
	KindItinerary  = "itinerary"
	KindRegion     = "region"
	KindGate       = "gate"
	KindVisibility = "visibility"
	KindLog        = "log"
)

type Record interface {
	Key() string
}

type Repo[T Record] interface {
	Get(ctx context.Context, key string) (T, error)
	// List returns every record of the kind, ordered by key.
	List(ctx context.Context) ([]T, error)
	// ListPrefix returns records whose key starts with prefix, ordered by key.
	ListPrefix(ctx context.Context, prefix string) ([]T, error)
	Put(ctx context.Context, v T) error
	Delete(ctx context.Context, key string) error
}

type Store interface {
	Begin(ctx context.Context, game string) (*Tx, error)
	Games(ctx context.Context) ([]string, error)
	Close() error
}

// backendTx is the raw document surface each backend provides.
type backendTx interface {
	get(ctx context.Context, kind, key string) ([]byte, bool, error)
	list(ctx context.Context, kind, prefix string) ([][]byte, error)
	put(ctx context.Context, kind, key string, doc []byte) error
	del(ctx context.Context, kind, key string) error
	commit() error
	rollback() error
}

// Tx is a game-scoped unit of work. Nothing written through it is visible
// to other transactions until Commit.
type Tx struct {
	game string
	b    backendTx
	done bool
}

func newTx(game string, b backendTx) *Tx { return &Tx{game: game, b: b} }

func (tx *Tx) Game() string { return tx.game }

func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.b.commit()
}

// Rollback discards the transaction. It is a no-op after Commit so it can
// always be deferred.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.b.rollback()
}

func (tx *Tx) Turns() Repo[model.Turn]                { return repo[model.Turn]{tx, KindTurn} }
func (tx *Tx) Orders() Repo[model.Order]              { return repo[model.Order]{tx, KindOrder} }
func (tx *Tx) Queued() Repo[model.QueuedOrder]        { return repo[model.QueuedOrder]{tx, KindQueued} }
func (tx *Tx) Entities() Repo[model.Entity]           { return repo[model.Entity]{tx, KindEntity} }
func (tx *Tx) Cooldowns() Repo[model.Cooldown]        { return repo[model.Cooldown]{tx, KindCooldown} }
func (tx *Tx) Harvest() Repo[model.HarvestTask]       { return repo[model.HarvestTask]{tx, KindHarvest} }
func (tx *Tx) Respawns() Repo[model.Respawn]          { return repo[model.Respawn]{tx, KindRespawn} }
func (tx *Tx) History() Repo[model.MovementSegment]   { return repo[model.MovementSegment]{tx, KindHistory} }
func (tx *Tx) Edges() Repo[model.LaneEdge]            { return repo[model.LaneEdge]{tx, KindEdge} }
func (tx *Tx) Taps() Repo[model.LaneTap]              { return repo[model.LaneTap]{tx, KindTap} }
func (tx *Tx) TapQueue() Repo[model.TapQueueEntry]    { return repo[model.TapQueueEntry]{tx, KindTapQueue} }
func (tx *Tx) Transits() Repo[model.LaneTransit]      { return repo[model.LaneTransit]{tx, KindTransit} }
func (tx *Tx) Loads() Repo[model.LaneLoad]            { return repo[model.LaneLoad]{tx, KindLoad} }
func (tx *Tx) Itineraries() Repo[model.LaneItinerary] { return repo[model.LaneItinerary]{tx, KindItinerary} }
func (tx *Tx) Regions() Repo[model.Region]            { return repo[model.Region]{tx, KindRegion} }
func (tx *Tx) Gates() Repo[model.Gate]                { return repo[model.Gate]{tx, KindGate} }
func (tx *Tx) Visibility() Repo[model.Visibility]     { return repo[model.Visibility]{tx, KindVisibility} }
func (tx *Tx) Logs() Repo[model.EntityLog]            { return repo[model.EntityLog]{tx, KindLog} }

type repo[T Record] struct {
	tx   *Tx
	kind string
}

func (r repo[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	if r.tx.done {
		return v, ErrTxDone
	}
	b, ok, err := r.tx.b.get(ctx, r.kind, key)
	if err != nil {
		return v, fmt.Errorf("get %s %q: %w", r.kind, key, err)
	}
	if !ok {
		return v, fmt.Errorf("%s %q: %w", r.kind, key, ErrNotFound)
	}
	if err := decode(b, &v); err != nil {
		return v, fmt.Errorf("decode %s %q: %w", r.kind, key, err)
	}
	return v, nil
}

func (r repo[T]) List(ctx context.Context) ([]T, error) {
	return r.ListPrefix(ctx, "")
}

func (r repo[T]) ListPrefix(ctx context.Context, prefix string) ([]T, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	docs, err := r.tx.b.list(ctx, r.kind, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.kind, err)
	}
	out := make([]T, 0, len(docs))
	for _, b := range docs {
		var v T
		if err := decode(b, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r repo[T]) Put(ctx context.Context, v T) error {
	if r.tx.done {
		return ErrTxDone
	}
	b, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", r.kind, v.Key(), err)
	}
	if err := r.tx.b.put(ctx, r.kind, v.Key(), b); err != nil {
		return fmt.Errorf("put %s %q: %w", r.kind, v.Key(), err)
	}
	return nil
}

func (r repo[T]) Delete(ctx context.Context, key string) error {
	if r.tx.done {
		return ErrTxDone
	}
	if err := r.tx.b.del(ctx, r.kind, key); err != nil {
		return fmt.Errorf("delete %s %q: %w", r.kind, key, err)
	}
	return nil
}

// CurrentTurn returns the game's highest-numbered turn record.
func (tx *Tx) CurrentTurn(ctx context.Context) (model.Turn, error) {
	turns, err := tx.Turns().List(ctx)
	if err != nil {
		return model.Turn{}, err
	}
	if len(turns) == 0 {
		return model.Turn{}, fmt.Errorf("game %q has no turns: %w", tx.game, ErrNotFound)
	}
	return turns[len(turns)-1], nil
}

// View runs fn in a transaction that is always rolled back.
func View(ctx context.Context, s Store, game string, fn func(*Tx) error) error {
	tx, err := s.Begin(ctx, game)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// Update runs fn in a transaction and commits it when fn succeeds.
func Update(ctx context.Context, s Store, game string, fn func(*Tx) error) error {
	tx, err := s.Begin(ctx, game)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

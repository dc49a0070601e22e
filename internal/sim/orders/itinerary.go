package orders

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
)

// ItineraryRequest commits a planned route for one ship.
type ItineraryRequest struct {
	Player         string      `json:"-"`
	Entity         string      `json:"ship"`
	Sector         string      `json:"sector,omitempty"`
	FreshnessTurns int         `json:"freshness_turns,omitempty"`
	Legs           []model.Leg `json:"legs"`
}

const sEpsilon = 1e-6

// ConfirmItinerary stores the itinerary for the waiting turn. When the
// ship is not yet at the first entry point it also gets a move order
// toward it; admission happens once it arrives.
func (s *Service) ConfirmItinerary(ctx context.Context, game string, req ItineraryRequest) (model.LaneItinerary, error) {
	var out model.LaneItinerary
	err := store.Update(ctx, s.store, game, func(tx *store.Tx) error {
		turn, err := waitingTurn(ctx, tx)
		if err != nil {
			return err
		}
		e, err := s.entity(ctx, tx, req.Entity, req.Player)
		if err != nil {
			return err
		}
		if len(req.Legs) == 0 {
			return invalid("itinerary has no legs")
		}
		if busy, err := inLane(ctx, tx, e.ID); err != nil {
			return err
		} else if busy {
			return fmt.Errorf("%w: %s is already in a lane", ErrConflict, e.ID)
		}

		var entry model.Point
		sector := req.Sector
		for i, leg := range req.Legs {
			edge, err := tx.Edges().Get(ctx, leg.Edge)
			if err != nil {
				return fmt.Errorf("leg %d: %w", i, err)
			}
			if err := checkLeg(ctx, tx, edge, leg); err != nil {
				return fmt.Errorf("leg %d: %w", i, err)
			}
			if i == 0 {
				entry = model.PointAt(edge.Polyline, leg.SStart)
				if sector == "" {
					sector = edge.Sector
				}
			}
		}

		fresh := req.FreshnessTurns
		if fresh <= 0 {
			fresh = s.tune.Lanes.ItineraryFreshness
		}
		it := model.LaneItinerary{
			Entity:         e.ID,
			Sector:         sector,
			CreatedTurn:    turn.Number,
			FreshnessTurns: fresh,
			Status:         model.ItineraryActive,
			Legs:           req.Legs,
		}
		if err := tx.Itineraries().Put(ctx, it); err != nil {
			return err
		}
		out = it

		target := entry.Tile()
		if model.Dist(e.Pos.Point(), entry) <= s.tune.Lanes.EntryRadius || target == e.Pos {
			return nil
		}
		o := model.Order{
			ID:          uuid.NewString(),
			Entity:      e.ID,
			Turn:        turn.Number,
			Kind:        model.OrderMove,
			SubmittedAt: s.now().UTC(),
			Move:        &model.MoveOrder{Path: Line(e.Pos, target), Status: model.MoveActive},
		}
		return tx.Orders().Put(ctx, o)
	})
	if err != nil {
		return model.LaneItinerary{}, err
	}
	s.log.Info("itinerary confirmed", zap.String("game", game), zap.String("entity", out.Entity),
		zap.Int("legs", len(out.Legs)), zap.Int64("turn", out.CreatedTurn))
	return out, nil
}

func checkLeg(ctx context.Context, tx *store.Tx, edge model.LaneEdge, leg model.Leg) error {
	length := edge.Length()
	if leg.SStart < -sEpsilon || leg.SStart > length+sEpsilon || leg.SEnd < -sEpsilon || leg.SEnd > length+sEpsilon {
		return invalid("span [%v, %v] outside edge %s of length %v", leg.SStart, leg.SEnd, edge.ID, length)
	}
	if math.Abs(leg.SEnd-leg.SStart) < sEpsilon {
		return invalid("leg on %s has no span", edge.ID)
	}
	switch leg.Entry {
	case model.EntryTap:
		tap, err := tx.Taps().Get(ctx, leg.TapID)
		if err != nil {
			return err
		}
		if tap.Edge != edge.ID || math.Abs(tap.S-leg.SStart) > sEpsilon {
			return invalid("tap %s is not at the start of the leg on %s", tap.ID, edge.ID)
		}
	case model.EntryWildcat:
	default:
		return invalid("unknown entry %q", leg.Entry)
	}
	return nil
}

// Line returns the tiles from a to b inclusive, each step moving to one of
// the eight neighbours.
func Line(a, b model.Tile) []model.Tile {
	path := []model.Tile{a}
	cur := a
	for cur != b {
		dx, dy := b.X-cur.X, b.Y-cur.Y
		n := max(abs(dx), abs(dy))
		// Step toward the point on the straight line one tile further along.
		next := model.Tile{
			X: cur.X + int(math.Round(float64(dx)/float64(n))),
			Y: cur.Y + int(math.Round(float64(dy)/float64(n))),
		}
		path = append(path, next)
		cur = next
	}
	return path
}

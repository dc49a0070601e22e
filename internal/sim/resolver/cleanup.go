package resolver

import (
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
)

// cleanupStale drops orders and itineraries that can no longer act:
// finished or blocked moves older than staleTurns, ability orders left
// from earlier turns, and itineraries that are done or past freshness.
func cleanupStale(st *state.State, staleTurns int) {
	for _, key := range state.Keys(st.Orders) {
		o := st.Orders[key]
		switch o.Kind {
		case model.OrderAbility:
			if o.Turn < st.Turn {
				delete(st.Orders, key)
			}
		case model.OrderMove:
			if o.Move == nil || o.Move.Status == model.MoveActive || o.Move.Status == "" {
				continue
			}
			since := o.Move.UpdatedTurn
			if since == 0 {
				since = o.Turn
			}
			if st.Turn-since >= int64(staleTurns) {
				delete(st.Orders, key)
			}
		}
	}
	for _, key := range state.Keys(st.Itineraries) {
		it := st.Itineraries[key]
		switch {
		case it.Status == model.ItineraryCompleted || it.Status == model.ItineraryStale:
			delete(st.Itineraries, key)
		case !it.Fresh(st.Turn) && !st.InLane(it.Entity):
			it.Status = model.ItineraryStale
		}
	}
}

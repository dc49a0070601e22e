package orders

import (
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
)

func idle(st *state.State, entity string) bool {
	if st.InLane(entity) {
		return false
	}
	nav := st.NavOrder(entity)
	if nav == nil {
		return true
	}
	return nav.Kind == model.OrderMove && nav.Move != nil && nav.Move.Status != model.MoveActive
}

// Materialize promotes the head of each idle entity's queue into a live
// order for the next turn. Queues of vanished or wrecked entities are
// dropped. It returns the number of orders created.
func Materialize(st *state.State) int {
	next := st.Turn + 1
	done := map[string]bool{}
	created := 0
	for _, key := range state.Keys(st.Queued) {
		q := st.Queued[key]
		if e, ok := st.Entities[q.Entity]; !ok || e.IsWreck() {
			delete(st.Queued, key)
			continue
		}
		if done[q.Entity] {
			continue
		}
		done[q.Entity] = true
		if q.NotBeforeTurn > next || !idle(st, q.Entity) {
			continue
		}
		o := &model.Order{
			ID:          q.ID,
			Entity:      q.Entity,
			Turn:        next,
			Kind:        q.Kind,
			SubmittedAt: q.SubmittedAt,
			Move:        freshMove(q.Move),
			Warp:        freshWarp(q.Warp),
			Ability:     q.Ability,
		}
		if o.IsNavigation() {
			delete(st.Orders, o.Key())
		}
		st.Orders[o.Key()] = o
		delete(st.Queued, key)
		created++
	}
	return created
}

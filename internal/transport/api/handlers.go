package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/orders"
	"starlanes.ai/internal/sim/planner"
)

func submission(player string, req protocol.OrderRequest) orders.Submission {
	sub := orders.Submission{
		ID:            req.ID,
		Player:        player,
		Entity:        req.EntityID,
		Kind:          req.OrderType,
		SubmittedAt:   req.SubmittedAt,
		Seq:           req.Seq,
		NotBeforeTurn: req.NotBeforeTurn,
	}
	p := req.Payload
	switch req.OrderType {
	case model.OrderMove:
		sub.Move = &model.MoveOrder{Path: p.Path}
	case model.OrderWarp:
		if p.Destination != nil {
			sub.Warp = &model.WarpOrder{Destination: *p.Destination}
		}
	case model.OrderAbility:
		sub.Ability = &model.AbilityOrder{Ability: p.Ability, Target: p.Target, TargetPos: p.TargetPos}
	}
	return sub
}

func (s *Server) handleOrder(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.OrderRequest](s, rw, r, protocol.SchemaOrder)
	if !ok {
		return
	}
	o, err := s.Orders.Submit(r.Context(), mux.Vars(r)["game"], submission(r.Header.Get(HeaderPlayer), req))
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, protocol.OrderAck{ID: o.ID, Entity: o.Entity, Turn: o.Turn})
}

func (s *Server) handleQueued(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.OrderRequest](s, rw, r, protocol.SchemaOrder)
	if !ok {
		return
	}
	q, err := s.Orders.Enqueue(r.Context(), mux.Vars(r)["game"], submission(r.Header.Get(HeaderPlayer), req))
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, protocol.OrderAck{ID: q.ID, Entity: q.Entity, Seq: q.Seq})
}

func (s *Server) handleLock(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.LockRequest](s, rw, r, protocol.SchemaLock)
	if !ok {
		return
	}
	st, err := s.Scheduler.Lock(r.Context(), mux.Vars(r)["game"], req.Player)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.LockResponse{Turn: st.Turn, Locked: st.Locked, Pending: st.Pending, Resolved: st.Resolved})
}

func (s *Server) handleResolve(rw http.ResponseWriter, r *http.Request) {
	turn, err := turnParam(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad turn number")
		return
	}
	game := mux.Vars(r)["game"]
	res, err := s.Scheduler.Trigger(r.Context(), game, turn)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	if res.Skipped {
		writeJSON(rw, http.StatusOK, map[string]any{"game": game, "turn_number": turn, "skipped": true})
		return
	}
	writeJSON(rw, http.StatusOK, protocol.NewTurnCompleted(game, res.Turn, res.NextTurn, res.Duration.Milliseconds(), res.OrdersProcessed, res.Digest))
}

func (s *Server) handleTurn(rw http.ResponseWriter, r *http.Request) {
	t, err := s.Resolver.CurrentTurn(r.Context(), mux.Vars(r)["game"])
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.TurnView{
		Game:            t.Game,
		Number:          t.Number,
		Status:          t.Status,
		CreatedAt:       t.CreatedAt,
		ResolvedAt:      t.ResolvedAt,
		Digest:          t.Digest,
		OrdersProcessed: t.OrdersProcessed,
	})
}

func (s *Server) handleRoutes(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.RouteRequest](s, rw, r, protocol.SchemaRoute)
	if !ok {
		return
	}
	ctx := r.Context()
	var (
		turn model.Turn
		topo planner.Topology
		cong planner.Congestion
	)
	err := store.View(ctx, s.Store, mux.Vars(r)["game"], func(tx *store.Tx) error {
		var err error
		if turn, err = tx.CurrentTurn(ctx); err != nil {
			return err
		}
		topo, cong, err = planner.LoadSnapshot(ctx, tx)
		return err
	})
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	q := planner.Query{Origin: req.Origin, Destination: req.Destination, OriginSector: req.OriginSector, DestSector: req.DestSector}
	routes := planner.Plan(topo, cong, q, planner.ParamsFrom(s.Tuning))
	resp := protocol.RouteResponse{Turn: turn.Number, Routes: make([]protocol.RouteView, 0, len(routes))}
	for _, rt := range routes {
		resp.Routes = append(resp.Routes, protocol.RouteView{
			ETA:     rt.ETA,
			Risk:    rt.Risk,
			PeakRho: rt.PeakRho,
			Cost:    rt.Cost,
			Direct:  rt.Direct,
			Gates:   rt.Gates,
			Legs:    rt.Legs,
		})
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleItinerary(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.ItineraryRequest](s, rw, r, protocol.SchemaItinerary)
	if !ok {
		return
	}
	it, err := s.Orders.ConfirmItinerary(r.Context(), mux.Vars(r)["game"], orders.ItineraryRequest{
		Player:         r.Header.Get(HeaderPlayer),
		Entity:         req.Ship,
		Sector:         req.Sector,
		FreshnessTurns: req.FreshnessTurns,
		Legs:           req.Legs,
	})
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, it)
}

func (s *Server) handleEntity(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ent, err := readEntity(r.Context(), s.Store, vars["game"], vars["id"])
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, ent)
}

func readEntity(ctx context.Context, st store.Store, game, id string) (model.Entity, error) {
	var ent model.Entity
	err := store.View(ctx, st, game, func(tx *store.Tx) error {
		var err error
		ent, err = tx.Entities().Get(ctx, id)
		return err
	})
	return ent, err
}

func writeGauge(w io.Writer, name, help string, v int) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %d\n", name, v)
}

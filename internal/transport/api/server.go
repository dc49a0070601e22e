// Package api exposes order intake, turn locks, route queries and state
// reads over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/orders"
	"starlanes.ai/internal/sim/resolver"
	"starlanes.ai/internal/sim/scheduler"
	"starlanes.ai/internal/sim/tuning"
)

// HeaderPlayer carries the submitting player. Authentication happens in
// front of this service.
const HeaderPlayer = "X-Player"

const maxBody = 1 << 20

type Deps struct {
	Store     store.Store
	Orders    *orders.Service
	Scheduler *scheduler.Scheduler
	Resolver  *resolver.Resolver
	Tuning    tuning.Tuning
	Log       *zap.Logger

	// Events serves the websocket stream; nil disables /v1/events.
	Events http.Handler
	// Clients reports connected stream subscribers for /metrics.
	Clients func() int
}

type Server struct {
	Deps
	validator *protocol.Validator

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(d Deps) (*Server, error) {
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{Deps: d, validator: v, limiters: map[string]*rate.Limiter{}}, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	if s.Events != nil {
		r.Handle("/v1/events", s.Events).Methods(http.MethodGet)
	}

	g := r.PathPrefix("/v1/games/{game}").Subrouter()
	g.HandleFunc("/orders", s.limited(s.handleOrder)).Methods(http.MethodPost)
	g.HandleFunc("/queued", s.limited(s.handleQueued)).Methods(http.MethodPost)
	g.HandleFunc("/locks", s.handleLock).Methods(http.MethodPost)
	g.HandleFunc("/turns/{turn:[0-9]+}/resolve", s.handleResolve).Methods(http.MethodPost)
	g.HandleFunc("/turn", s.handleTurn).Methods(http.MethodGet)
	g.HandleFunc("/routes", s.handleRoutes).Methods(http.MethodPost)
	g.HandleFunc("/itineraries", s.limited(s.handleItinerary)).Methods(http.MethodPost)
	g.HandleFunc("/entities/{id}", s.handleEntity).Methods(http.MethodGet)
	return r
}

func (s *Server) limiter(player string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[player]
	if !ok {
		rl := s.Tuning.RateLimits
		l = rate.NewLimiter(rate.Limit(rl.OrdersPerSecond), max(rl.OrdersBurst, 1))
		s.limiters[player] = l
	}
	return l
}

// limited requires a player header and applies the per-player intake
// limit before calling h.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		player := r.Header.Get(HeaderPlayer)
		if player == "" {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "missing "+HeaderPlayer+" header")
			return
		}
		if s.Tuning.RateLimits.OrdersPerSecond > 0 && !s.limiter(player).Allow() {
			writeError(rw, http.StatusTooManyRequests, protocol.ErrRateLimit, "too many requests")
			return
		}
		h(rw, r)
	}
}

func (s *Server) handleMetrics(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if s.Resolver != nil {
		s.Resolver.Stats.WritePrometheus(rw)
	}
	if s.Clients != nil {
		writeGauge(rw, "starlanes_stream_clients", "Connected event stream subscribers.", s.Clients())
	}
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBody))
}

// decode reads and validates a request body against a schema.
func decode[T any](s *Server, rw http.ResponseWriter, r *http.Request, schema string) (T, bool) {
	var zero T
	raw, err := readBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return zero, false
	}
	v, err := protocol.Decode[T](s.validator, schema, raw)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return zero, false
	}
	return v, true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorResponse{Code: code, Message: msg})
}

// fail maps a domain error onto its wire code.
func (s *Server) fail(rw http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orders.ErrInvalid):
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, resolver.ErrTurnNotFound):
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, err.Error())
	case errors.Is(err, orders.ErrStale):
		writeError(rw, http.StatusConflict, protocol.ErrStale, err.Error())
	case errors.Is(err, orders.ErrConflict), errors.Is(err, orders.ErrClosed), errors.Is(err, store.ErrConflict):
		writeError(rw, http.StatusConflict, protocol.ErrConflict, err.Error())
	default:
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "internal error")
	}
}

func turnParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["turn"], 10, 64)
}

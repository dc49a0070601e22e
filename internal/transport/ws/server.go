// Package ws streams turn events to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/model"
)

const outQueue = 64

type client struct {
	game string
	out  chan []byte
}

// Hub fans turn events out to every connected subscriber. A subscriber
// may narrow the stream to one game with ?game=.
type Hub struct {
	log *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[*client]struct{}{},
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{game: r.URL.Query().Get("game"), out: make(chan []byte, outQueue)}
		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
		}()

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       uuid.NewString(),
			Game:            c.game,
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: subscribers do not send anything we act on, but
		// reading keeps control frames flowing and detects close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(game string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.game != "" && c.game != game {
			continue
		}
		select {
		case c.out <- b:
		default:
			h.log.Warn("dropping event for slow subscriber", zap.String("game", game))
		}
	}
	return nil
}

func (h *Hub) TurnCompleted(m protocol.TurnCompletedMsg) error { return h.broadcast(m.Game, m) }
func (h *Hub) TurnFailed(m protocol.TurnFailedMsg) error       { return h.broadcast(m.Game, m) }

func (h *Hub) EntityLogs(rows []model.EntityLog) error {
	if len(rows) == 0 {
		return nil
	}
	msg := protocol.EntityLogsMsg{
		Type:            protocol.TypeEntityLogs,
		ProtocolVersion: protocol.Version,
		Game:            rows[0].Game,
		TurnNumber:      rows[0].Turn,
		Rows:            rows,
	}
	return h.broadcast(msg.Game, msg)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/model"
)

func dial(t *testing.T, srv *httptest.Server, game string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?game=" + game
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome || welcome.Game != game {
		t.Fatalf("welcome: %+v %v", welcome, err)
	}
	return conn
}

func TestHub_BroadcastsByGame(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	g := dial(t, srv, "g")
	other := dial(t, srv, "other")
	if hub.Clients() != 2 {
		t.Fatalf("clients: %d", hub.Clients())
	}

	if err := hub.TurnCompleted(protocol.NewTurnCompleted("g", 3, 4, 10, 2, "d")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	_ = hub.EntityLogs([]model.EntityLog{{Game: "g", Turn: 3, Entity: "a", Kind: model.LogKill, Summary: "boom"}})

	_ = g.SetReadDeadline(time.Now().Add(2 * time.Second))
	var done protocol.TurnCompletedMsg
	if err := g.ReadJSON(&done); err != nil || done.Type != protocol.TypeTurnCompleted || done.NextTurn != 4 {
		t.Fatalf("turn completed: %+v %v", done, err)
	}
	_, raw, err := g.ReadMessage()
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	var logs protocol.EntityLogsMsg
	if err := json.Unmarshal(raw, &logs); err != nil || logs.Type != protocol.TypeEntityLogs || len(logs.Rows) != 1 {
		t.Fatalf("entity logs: %+v %v", logs, err)
	}

	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("subscriber of another game should not receive events")
	}
}

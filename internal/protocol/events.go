package protocol

import "starlanes.ai/internal/sim/model"

// WELCOME (server -> stream subscriber)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Game            string `json:"game,omitempty"`
}

// TURN_COMPLETED (server -> stream, turn log)
type TurnCompletedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Game            string `json:"game"`
	TurnNumber      int64  `json:"turn_number"`
	NextTurn        int64  `json:"next_turn"`
	DurationMs      int64  `json:"duration_ms"`
	OrdersProcessed int    `json:"orders_processed"`
	Digest          string `json:"digest"`
}

// TURN_FAILED (server -> stream, turn log)
type TurnFailedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Game            string `json:"game"`
	TurnNumber      int64  `json:"turn_number"`
	Reason          string `json:"reason"`
}

// ENTITY_LOGS (server -> stream): the log rows a turn produced.
type EntityLogsMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Game            string            `json:"game"`
	TurnNumber      int64             `json:"turn_number"`
	Rows            []model.EntityLog `json:"rows"`
}

func NewTurnCompleted(game string, turn, next, durationMs int64, orders int, digest string) TurnCompletedMsg {
	return TurnCompletedMsg{
		Type:            TypeTurnCompleted,
		ProtocolVersion: Version,
		Game:            game,
		TurnNumber:      turn,
		NextTurn:        next,
		DurationMs:      durationMs,
		OrdersProcessed: orders,
		Digest:          digest,
	}
}

func NewTurnFailed(game string, turn int64, reason string) TurnFailedMsg {
	return TurnFailedMsg{Type: TypeTurnFailed, ProtocolVersion: Version, Game: game, TurnNumber: turn, Reason: reason}
}

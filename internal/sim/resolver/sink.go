package resolver

import (
	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/model"
)

// Sink receives the outcome of every resolution attempt after the unit of
// work has finished. Sink errors are logged and never fail the turn.
type Sink interface {
	TurnCompleted(protocol.TurnCompletedMsg) error
	TurnFailed(protocol.TurnFailedMsg) error
}

// LogSink additionally receives the entity log rows of a committed turn.
type LogSink interface {
	EntityLogs(rows []model.EntityLog) error
}

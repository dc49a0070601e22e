package model

import (
	"fmt"
	"time"
)

type TurnStatus string

const (
	TurnWaiting   TurnStatus = "waiting"
	TurnResolving TurnStatus = "resolving"
	TurnCompleted TurnStatus = "completed"
)

type Turn struct {
	Game            string     `json:"game"`
	Number          int64      `json:"number"`
	Status          TurnStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	Digest          string     `json:"digest,omitempty"`
	OrdersProcessed int        `json:"orders_processed,omitempty"`
}

// TurnKey zero-pads the number so lexical key order matches numeric order.
func TurnKey(n int64) string { return fmt.Sprintf("%012d", n) }

func (t Turn) Key() string { return TurnKey(t.Number) }

package model

import (
	"fmt"
	"time"
)

type OrderKind string

const (
	OrderMove    OrderKind = "move"
	OrderWarp    OrderKind = "warp"
	OrderAbility OrderKind = "ability"
)

type MoveStatus string

const (
	MoveActive    MoveStatus = "active"
	MoveCompleted MoveStatus = "completed"
	MoveBlocked   MoveStatus = "blocked"
)

// Order is a submitted order. Exactly one of Move, Warp, Ability is set,
// matching Kind.
type Order struct {
	ID          string    `json:"id"`
	Entity      string    `json:"entity"`
	Turn        int64     `json:"turn"`
	Kind        OrderKind `json:"kind"`
	SubmittedAt time.Time `json:"submitted_at"`

	Move    *MoveOrder    `json:"move,omitempty"`
	Warp    *WarpOrder    `json:"warp,omitempty"`
	Ability *AbilityOrder `json:"ability,omitempty"`
}

type MoveOrder struct {
	Path        []Tile     `json:"path"`
	Step        int        `json:"step"`
	Status      MoveStatus `json:"status"`
	BlockedBy   string     `json:"blocked_by,omitempty"`
	UpdatedTurn int64      `json:"updated_turn,omitempty"`
}

// Remaining is the number of path steps left before the final tile.
func (m *MoveOrder) Remaining() int {
	if m == nil || len(m.Path) == 0 {
		return 0
	}
	r := len(m.Path) - 1 - m.Step
	if r < 0 {
		return 0
	}
	return r
}

type WarpOrder struct {
	Destination Tile `json:"destination"`
	PrepTicks   int  `json:"prep_ticks"`
}

type AbilityOrder struct {
	Ability   string `json:"ability"`
	Target    string `json:"target,omitempty"`
	TargetPos *Tile  `json:"target_pos,omitempty"`
}

// Slot returns the supersede slot of the order: a later submission for the
// same slot replaces the earlier one. Move and warp share the per-entity
// navigation slot; abilities are slotted per turn and ability key.
func (o Order) Slot() string {
	switch o.Kind {
	case OrderMove, OrderWarp:
		return "nav/" + o.Entity
	case OrderAbility:
		ab := ""
		if o.Ability != nil {
			ab = o.Ability.Ability
		}
		return fmt.Sprintf("ability/%s/%012d/%s", o.Entity, o.Turn, ab)
	default:
		return "other/" + o.Entity + "/" + o.ID
	}
}

func (o Order) Key() string { return o.Slot() }

func (o Order) IsNavigation() bool { return o.Kind == OrderMove || o.Kind == OrderWarp }

// QueuedOrder is one step of a multistep queue. It becomes a regular order
// once the entity is idle and NotBeforeTurn has been reached.
type QueuedOrder struct {
	ID            string        `json:"id"`
	Entity        string        `json:"entity"`
	Seq           int           `json:"seq"`
	NotBeforeTurn int64         `json:"not_before_turn,omitempty"`
	Kind          OrderKind     `json:"kind"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	Move          *MoveOrder    `json:"move,omitempty"`
	Warp          *WarpOrder    `json:"warp,omitempty"`
	Ability       *AbilityOrder `json:"ability,omitempty"`
}

func (q QueuedOrder) Key() string { return fmt.Sprintf("%s/%06d", q.Entity, q.Seq) }

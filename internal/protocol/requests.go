package protocol

import (
	"time"

	"starlanes.ai/internal/sim/model"
)

// OrderRequest is the intake payload for live and queued orders.
type OrderRequest struct {
	ID          string          `json:"id,omitempty"`
	EntityID    string          `json:"entity_id"`
	OrderType   model.OrderKind `json:"order_type"`
	SubmittedAt time.Time       `json:"submitted_at,omitempty"`
	Payload     OrderPayload    `json:"payload"`

	Seq           int   `json:"seq,omitempty"`
	NotBeforeTurn int64 `json:"not_before_turn,omitempty"`
}

type OrderPayload struct {
	Path        []model.Tile `json:"path,omitempty"`
	Destination *model.Tile  `json:"destination,omitempty"`
	Ability     string       `json:"ability,omitempty"`
	Target      string       `json:"target,omitempty"`
	TargetPos   *model.Tile  `json:"target_pos,omitempty"`
}

type OrderAck struct {
	ID     string `json:"id"`
	Entity string `json:"entity_id"`
	Turn   int64  `json:"turn,omitempty"`
	Seq    int    `json:"seq,omitempty"`
}

type LockRequest struct {
	Player string `json:"player"`
}

type LockResponse struct {
	Turn     int64    `json:"turn"`
	Locked   []string `json:"locked"`
	Pending  []string `json:"pending"`
	Resolved bool     `json:"resolved"`
}

type RouteRequest struct {
	Origin       model.Point `json:"origin"`
	Destination  model.Point `json:"destination"`
	OriginSector string      `json:"origin_sector"`
	DestSector   string      `json:"dest_sector,omitempty"`
}

type RouteView struct {
	ETA     int         `json:"eta"`
	Risk    int         `json:"risk"`
	PeakRho float64     `json:"peak_rho"`
	Cost    float64     `json:"cost"`
	Direct  bool        `json:"direct,omitempty"`
	Gates   []string    `json:"gates,omitempty"`
	Legs    []model.Leg `json:"legs"`
}

type RouteResponse struct {
	Turn   int64       `json:"turn"`
	Routes []RouteView `json:"routes"`
}

type ItineraryRequest struct {
	Ship           string      `json:"ship"`
	Sector         string      `json:"sector,omitempty"`
	FreshnessTurns int         `json:"freshness_turns,omitempty"`
	Legs           []model.Leg `json:"legs"`
}

type TurnView struct {
	Game            string           `json:"game"`
	Number          int64            `json:"number"`
	Status          model.TurnStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
	Digest          string           `json:"digest,omitempty"`
	OrdersProcessed int              `json:"orders_processed,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

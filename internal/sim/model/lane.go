package model

import "fmt"

type LaneEdge struct {
	ID            string  `json:"id"`
	Region        string  `json:"region"`
	Sector        string  `json:"sector"`
	Polyline      []Point `json:"polyline"`
	CoreWidth     float64 `json:"core_width"`
	ShoulderWidth float64 `json:"shoulder_width"`
	NominalSpeed  float64 `json:"nominal_speed"`
	BaseCapacity  float64 `json:"base_capacity"`
	Headway       float64 `json:"headway"`
}

func (e LaneEdge) Key() string { return e.ID }

func (e LaneEdge) Length() float64 { return PolylineLength(e.Polyline) }

type LaneTap struct {
	ID   string  `json:"id"`
	Edge string  `json:"edge"`
	S    float64 `json:"s"`
	Pos  Point   `json:"pos"`
}

func (t LaneTap) Key() string { return t.ID }

type QueueStatus string

const (
	QueueQueued   QueueStatus = "queued"
	QueueLaunched QueueStatus = "launched"
)

type TapQueueEntry struct {
	Tap          string      `json:"tap"`
	Entity       string      `json:"entity"`
	CU           float64     `json:"cu"`
	EnqueuedTurn int64       `json:"enqueued_turn"`
	Seq          int64       `json:"seq"`
	Status       QueueStatus `json:"status"`
	Itinerary    string      `json:"itinerary,omitempty"`
	Leg          int         `json:"leg"`
}

// Key orders entries FIFO within a tap.
func (q TapQueueEntry) Key() string {
	return fmt.Sprintf("%s/%012d/%012d/%s", q.Tap, q.EnqueuedTurn, q.Seq, q.Entity)
}

type TransitMode string

const (
	ModeCore     TransitMode = "core"
	ModeShoulder TransitMode = "shoulder"
)

type LaneTransit struct {
	Edge        string      `json:"edge"`
	Entity      string      `json:"entity"`
	Progress    float64     `json:"progress"`
	CU          float64     `json:"cu"`
	Mode        TransitMode `json:"mode"`
	MergeTurns  int         `json:"merge_turns,omitempty"`
	SStart      float64     `json:"s_start"`
	SEnd        float64     `json:"s_end"`
	Itinerary   string      `json:"itinerary,omitempty"`
	Leg         int         `json:"leg"`
	EnteredTurn int64       `json:"entered_turn"`
}

func (t LaneTransit) Key() string { return t.Entity }

// LaneLoad is the per-edge congestion record written at the end of each
// traffic tick and read by the planner.
type LaneLoad struct {
	Edge      string  `json:"edge"`
	LoadCU    float64 `json:"load_cu"`
	Capacity  float64 `json:"capacity"`
	Rho       float64 `json:"rho"`
	SpeedMult float64 `json:"speed_mult"`
	Turn      int64   `json:"turn"`
}

func (l LaneLoad) Key() string { return l.Edge }

type EntryKind string

const (
	EntryTap     EntryKind = "tap"
	EntryWildcat EntryKind = "wildcat"
)

type Leg struct {
	Edge       string    `json:"edge"`
	Entry      EntryKind `json:"entry"`
	SStart     float64   `json:"s_start"`
	SEnd       float64   `json:"s_end"`
	TapID      string    `json:"tap_id,omitempty"`
	MergeTurns int       `json:"merge_turns,omitempty"`
}

type ItineraryStatus string

const (
	ItineraryActive    ItineraryStatus = "active"
	ItineraryCompleted ItineraryStatus = "completed"
	ItineraryStale     ItineraryStatus = "stale"
)

type LaneItinerary struct {
	Entity         string          `json:"entity"`
	Sector         string          `json:"sector"`
	CreatedTurn    int64           `json:"created_turn"`
	FreshnessTurns int             `json:"freshness_turns"`
	Status         ItineraryStatus `json:"status"`
	Legs           []Leg           `json:"legs"`
	Current        int             `json:"current"`
}

func (it LaneItinerary) Key() string { return it.Entity }

// Fresh reports whether the itinerary is still within its freshness horizon.
func (it LaneItinerary) Fresh(turn int64) bool {
	if it.FreshnessTurns <= 0 {
		return true
	}
	return turn-it.CreatedTurn <= int64(it.FreshnessTurns)
}

type Region struct {
	ID     string  `json:"id"`
	Sector string  `json:"sector"`
	Health float64 `json:"health"`
}

func (r Region) Key() string { return r.ID }

// Gate is one end of a cross-sector jump pair.
type Gate struct {
	ID     string `json:"id"`
	Sector string `json:"sector"`
	Pos    Point  `json:"pos"`
	Pair   string `json:"pair"`
}

func (g Gate) Key() string { return g.ID }

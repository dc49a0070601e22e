package model

import "fmt"

type DetectionLevel int

const (
	Unseen   DetectionLevel = 0
	Detected DetectionLevel = 1
	Detailed DetectionLevel = 2
)

type Visibility struct {
	Player       string         `json:"player"`
	Object       string         `json:"object"`
	BestLevel    DetectionLevel `json:"best_level"`
	CurrentLevel DetectionLevel `json:"current_level"`
	LastSeenTurn int64          `json:"last_seen_turn"`
}

func (v Visibility) Key() string { return v.Player + "/" + v.Object }

// Confidence is 1 while the object is in sensor range and decays with the
// number of turns since it was last seen.
func (v Visibility) Confidence(turn int64) float64 {
	if v.CurrentLevel > Unseen {
		return 1
	}
	age := turn - v.LastSeenTurn
	if age < 0 {
		age = 0
	}
	return 1 / (1 + 0.25*float64(age))
}

type LogKind string

const (
	LogAttack     LogKind = "attack"
	LogAbility    LogKind = "ability"
	LogKill       LogKind = "kill"
	LogEffect     LogKind = "effect"
	LogWreckDecay LogKind = "wreck-decay"
	LogError      LogKind = "error"
)

type EntityLog struct {
	ID      string         `json:"id"`
	Game    string         `json:"game"`
	Turn    int64          `json:"turn"`
	Seq     int            `json:"seq"`
	Entity  string         `json:"entity"`
	Kind    LogKind        `json:"kind"`
	Summary string         `json:"summary"`
	Data    map[string]any `json:"data,omitempty"`
}

func (l EntityLog) Key() string { return fmt.Sprintf("%012d/%06d", l.Turn, l.Seq) }

type MovementSegment struct {
	Entity string `json:"entity"`
	Turn   int64  `json:"turn"`
	From   Tile   `json:"from"`
	To     Tile   `json:"to"`
	Tiles  []Tile `json:"tiles,omitempty"`
	Warp   bool   `json:"warp,omitempty"`
	Lane   string `json:"lane,omitempty"`
}

// Key orders segments by entity and turn. The trailing source tag keeps a
// tile move and a lane hop of the same turn apart.
func (m MovementSegment) Key() string {
	return fmt.Sprintf("%s/%012d/%s", m.Entity, m.Turn, m.source())
}

func (m MovementSegment) source() string {
	switch {
	case m.Lane != "":
		return "lane/" + m.Lane
	case m.Warp:
		return "warp"
	default:
		return "move"
	}
}

// Package state holds the in-memory working set of one turn resolution.
// Phases mutate the maps directly; Save writes back only what changed.
package state

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"starlanes.ai/internal/sim/model"
)

type State struct {
	Game string
	Turn int64

	Entities    map[string]*model.Entity
	Orders      map[string]*model.Order
	Queued      map[string]*model.QueuedOrder
	Cooldowns   map[string]*model.Cooldown
	Harvest     map[string]*model.HarvestTask
	Respawns    map[string]*model.Respawn
	Itineraries map[string]*model.LaneItinerary
	Transits    map[string]*model.LaneTransit
	TapQueue    map[string]*model.TapQueueEntry
	Loads       map[string]*model.LaneLoad
	Regions     map[string]*model.Region
	Visibility  map[string]*model.Visibility

	// Read-only topology.
	Edges map[string]model.LaneEdge
	Taps  map[string]model.LaneTap
	Gates map[string]model.Gate

	// Append-only outputs of this turn.
	History []model.MovementSegment
	Logs    []model.EntityLog

	loaded map[string]map[string][]byte
	logSeq int
}

func New(game string, turn int64) *State {
	return &State{
		Game:        game,
		Turn:        turn,
		Entities:    map[string]*model.Entity{},
		Orders:      map[string]*model.Order{},
		Queued:      map[string]*model.QueuedOrder{},
		Cooldowns:   map[string]*model.Cooldown{},
		Harvest:     map[string]*model.HarvestTask{},
		Respawns:    map[string]*model.Respawn{},
		Itineraries: map[string]*model.LaneItinerary{},
		Transits:    map[string]*model.LaneTransit{},
		TapQueue:    map[string]*model.TapQueueEntry{},
		Loads:       map[string]*model.LaneLoad{},
		Regions:     map[string]*model.Region{},
		Visibility:  map[string]*model.Visibility{},
		Edges:       map[string]model.LaneEdge{},
		Taps:        map[string]model.LaneTap{},
		Gates:       map[string]model.Gate{},
		loaded:      map[string]map[string][]byte{},
	}
}

// Keys returns the keys of m in ascending order. Every phase iterates in
// this order so resolution is deterministic.
func Keys[M ~map[string]V, V any](m M) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// SortedValues returns the values of m ordered by key.
func SortedValues[M ~map[string]V, V any](m M) []V {
	keys := Keys(m)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Log appends an entity log row. Row ids are derived from game, turn and
// sequence so replaying a turn produces the same ids.
func (s *State) Log(entity string, kind model.LogKind, data map[string]any, format string, args ...any) {
	s.logSeq++
	s.Logs = append(s.Logs, model.EntityLog{
		ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d/%d", s.Game, s.Turn, s.logSeq))).String(),
		Game:    s.Game,
		Turn:    s.Turn,
		Seq:     s.logSeq,
		Entity:  entity,
		Kind:    kind,
		Summary: fmt.Sprintf(format, args...),
		Data:    data,
	})
}

// LogError records a per-order failure without aborting the phase.
func (s *State) LogError(entity string, err error) {
	s.Log(entity, model.LogError, map[string]any{"error": err.Error()}, "%v", err)
}

// Occupancy maps every tile to the entity standing on it. Wrecks and
// resources occupy tiles like anything else.
func (s *State) Occupancy() map[model.Tile]string {
	occ := make(map[model.Tile]string, len(s.Entities))
	for _, id := range Keys(s.Entities) {
		e := s.Entities[id]
		if _, taken := occ[e.Pos]; !taken {
			occ[e.Pos] = id
		}
	}
	return occ
}

// Players returns the distinct owners of live entities.
func (s *State) Players() []string {
	seen := map[string]bool{}
	for _, e := range s.Entities {
		if e.Owner != "" && !e.IsWreck() {
			seen[e.Owner] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// InLane reports whether the entity is currently travelling a lane or
// waiting in a tap queue.
func (s *State) InLane(entity string) bool {
	if _, ok := s.Transits[entity]; ok {
		return true
	}
	for _, q := range s.TapQueue {
		if q.Entity == entity && q.Status == model.QueueQueued {
			return true
		}
	}
	return false
}

// NavOrder returns the entity's navigation order, if any.
func (s *State) NavOrder(entity string) *model.Order {
	return s.Orders[model.Order{Kind: model.OrderMove, Entity: entity}.Slot()]
}

// RegionHealth returns the health of the edge's region, 100 when unknown.
func (s *State) RegionHealth(edge model.LaneEdge) float64 {
	if r, ok := s.Regions[edge.Region]; ok {
		return r.Health
	}
	return 100
}

func (s *State) Edge(id string) (model.LaneEdge, bool) {
	e, ok := s.Edges[id]
	return e, ok
}

func sortSegments(h []model.MovementSegment) {
	slices.SortStableFunc(h, func(a, b model.MovementSegment) int {
		return cmp.Compare(a.Key(), b.Key())
	})
}

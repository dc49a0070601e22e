package scheduler

import (
	"fmt"
	"sort"
	"sync"
)

// Locks records which players have locked in their orders for a turn.
type Locks struct {
	mu     sync.Mutex
	byTurn map[string]map[string]struct{}
}

func NewLocks() *Locks { return &Locks{byTurn: map[string]map[string]struct{}{}} }

func lockKey(game string, turn int64) string { return fmt.Sprintf("%s/%d", game, turn) }

// Lock marks player as done and returns the sorted set of locked players.
func (l *Locks) Lock(game string, turn int64, player string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := lockKey(game, turn)
	set, ok := l.byTurn[k]
	if !ok {
		set = map[string]struct{}{}
		l.byTurn[k] = set
	}
	set[player] = struct{}{}
	return sortedSet(set)
}

func (l *Locks) Locked(game string, turn int64) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedSet(l.byTurn[lockKey(game, turn)])
}

func (l *Locks) Clear(game string, turn int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byTurn, lockKey(game, turn))
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

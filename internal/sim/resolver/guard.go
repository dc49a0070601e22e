package resolver

import (
	"fmt"
	"sync"
)

// Guard admits one resolution per (game, turn) at a time.
type Guard interface {
	// TryAcquire returns ok=false when the pair is already in flight.
	TryAcquire(game string, turn int64) (release func(), ok bool)
}

type InflightGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewInflightGuard() *InflightGuard {
	return &InflightGuard{inflight: map[string]struct{}{}}
}

func (g *InflightGuard) TryAcquire(game string, turn int64) (func(), bool) {
	key := fmt.Sprintf("%s/%d", game, turn)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return nil, false
	}
	g.inflight[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, true
}

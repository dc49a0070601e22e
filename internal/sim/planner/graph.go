package planner

import (
	"container/heap"
	"math"
)

type arc struct {
	to   int
	cost float64
}

type graph struct {
	adj [][]arc
}

func (g *graph) addNode() int {
	g.adj = append(g.adj, nil)
	return len(g.adj) - 1
}

func (g *graph) addArc(from, to int, cost float64) {
	if from == to || math.IsInf(cost, 0) || math.IsNaN(cost) || cost < 0 {
		return
	}
	g.adj[from] = append(g.adj[from], arc{to: to, cost: cost})
}

type queueItem struct {
	node  int
	dist  float64
	index int
}

type openList []*queueItem

func (ol openList) Len() int { return len(ol) }

func (ol openList) Less(i, j int) bool {
	if ol[i].dist != ol[j].dist {
		return ol[i].dist < ol[j].dist
	}
	return ol[i].node < ol[j].node
}

func (ol openList) Swap(i, j int) {
	ol[i], ol[j] = ol[j], ol[i]
	ol[i].index = i
	ol[j].index = j
}

func (ol *openList) Push(x any) {
	n := x.(*queueItem)
	n.index = len(*ol)
	*ol = append(*ol, n)
}

func (ol *openList) Pop() any {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

// shortest runs Dijkstra from src and returns the node path to dst and
// its cost. ok is false when dst is unreachable.
func (g *graph) shortest(src, dst int) (path []int, cost float64, ok bool) {
	n := len(g.adj)
	dist := make([]float64, n)
	prev := make([]int, n)
	done := make([]bool, n)
	items := make([]*queueItem, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0
	ol := &openList{}
	items[src] = &queueItem{node: src}
	heap.Push(ol, items[src])

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*queueItem)
		u := cur.node
		if done[u] {
			continue
		}
		done[u] = true
		if u == dst {
			break
		}
		for _, a := range g.adj[u] {
			if done[a.to] {
				continue
			}
			nd := dist[u] + a.cost
			if nd >= dist[a.to] {
				continue
			}
			dist[a.to] = nd
			prev[a.to] = u
			if it := items[a.to]; it != nil && it.index >= 0 && it.index < ol.Len() && (*ol)[it.index] == it {
				it.dist = nd
				heap.Fix(ol, it.index)
				continue
			}
			items[a.to] = &queueItem{node: a.to, dist: nd}
			heap.Push(ol, items[a.to])
		}
	}
	if math.IsInf(dist[dst], 1) {
		return nil, 0, false
	}
	for v := dst; v != -1; v = prev[v] {
		path = append(path, v)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[dst], true
}

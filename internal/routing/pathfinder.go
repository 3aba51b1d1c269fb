// Package routing implements shortest paths over the road graph and an
// exact Traveling-Salesman solver on top of the resulting distance matrix.
package routing

import (
	"container/heap"
	"math"

	"floranav/internal/graph"
)

// PathFinder runs Dijkstra over the graph with a uniform traffic factor
// applied to every edge weight. The factor is fixed for the lifetime of the
// finder; one route computation owns one finder.
type PathFinder struct {
	g      *graph.Graph
	factor float64
}

func NewPathFinder(g *graph.Graph, trafficFactor float64) *PathFinder {
	if trafficFactor < 1.0 {
		trafficFactor = 1.0
	}
	return &PathFinder{g: g, factor: trafficFactor}
}

func (p *PathFinder) TrafficFactor() float64 { return p.factor }

// ShortestPath returns the traffic-adjusted distance in meters and the node
// path from 'from' to 'to'. Fails softly: a missing node or no path yields
// (+Inf, nil), which callers must check before use.
func (p *PathFinder) ShortestPath(from, to int64) (float64, []int64) {
	if !p.g.HasNode(from) || !p.g.HasNode(to) {
		return math.Inf(1), nil
	}
	if from == to {
		return 0, []int64{from}
	}

	dist := map[int64]float64{from: 0}
	parent := make(map[int64]int64)
	visited := make(map[int64]struct{})

	pq := &nodeQueue{}
	heap.Init(pq)
	heap.Push(pq, &queueItem{node: from, dist: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*queueItem)
		if _, ok := visited[cur.node]; ok {
			continue
		}
		// Stale entry left behind by a later relaxation.
		if cur.dist > dist[cur.node] {
			continue
		}
		visited[cur.node] = struct{}{}
		if cur.node == to {
			break
		}
		for nb, w := range p.g.Neighbors(cur.node) {
			if _, ok := visited[nb]; ok {
				continue
			}
			nd := cur.dist + w*p.factor
			if old, ok := dist[nb]; !ok || nd < old {
				dist[nb] = nd
				parent[nb] = cur.node
				heap.Push(pq, &queueItem{node: nb, dist: nd})
			}
		}
	}

	d, ok := dist[to]
	if !ok {
		return math.Inf(1), nil
	}

	// Walk the parent map backward and reverse.
	path := []int64{to}
	for n := to; n != from; {
		n = parent[n]
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return d, path
}

type queueItem struct {
	node int64
	dist float64
}

type nodeQueue []*queueItem

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(*queueItem)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

type pairKey struct{ from, to int64 }

// DistanceMatrix caches pairwise traffic-adjusted distances for one route
// computation. Lookups outside the precomputed set fall back to an
// on-demand Dijkstra run.
type DistanceMatrix struct {
	pf *PathFinder
	d  map[pairKey]float64
}

// Matrix precomputes distances for every ordered pair of the given nodes,
// including 0 for identical pairs.
func (p *PathFinder) Matrix(nodes []int64) *DistanceMatrix {
	m := &DistanceMatrix{pf: p, d: make(map[pairKey]float64, len(nodes)*len(nodes))}
	for _, a := range nodes {
		for _, b := range nodes {
			if a == b {
				m.d[pairKey{a, b}] = 0
				continue
			}
			d, _ := p.ShortestPath(a, b)
			m.d[pairKey{a, b}] = d
		}
	}
	return m
}

// Dist returns the traffic-adjusted distance between a and b, computing and
// caching it on a miss.
func (m *DistanceMatrix) Dist(a, b int64) float64 {
	if a == b {
		return 0
	}
	if d, ok := m.d[pairKey{a, b}]; ok {
		return d
	}
	d, _ := m.pf.ShortestPath(a, b)
	m.d[pairKey{a, b}] = d
	return d
}

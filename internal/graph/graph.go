// Package graph holds the road network: an undirected weighted adjacency
// structure plus a node coordinate table.
package graph

import (
	"math"

	"floranav/internal/model"
)

type Graph struct {
	adj    map[int64]map[int64]float64
	coords map[int64]model.GeoPoint
}

func New() *Graph {
	return &Graph{
		adj:    make(map[int64]map[int64]float64),
		coords: make(map[int64]model.GeoPoint),
	}
}

func (g *Graph) AddNode(id int64, pt model.GeoPoint) {
	g.coords[id] = pt
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[int64]float64)
	}
}

// AddEdge inserts an undirected edge. Edges referencing unknown nodes are
// dropped; weights must be finite and non-negative.
func (g *Graph) AddEdge(a, b int64, meters float64) {
	if meters < 0 || math.IsInf(meters, 0) || math.IsNaN(meters) {
		return
	}
	if _, ok := g.coords[a]; !ok {
		return
	}
	if _, ok := g.coords[b]; !ok {
		return
	}
	g.adj[a][b] = meters
	g.adj[b][a] = meters
}

func (g *Graph) HasNode(id int64) bool {
	_, ok := g.adj[id]
	return ok
}

// Neighbors returns the adjacency map of id. Callers must not mutate it.
func (g *Graph) Neighbors(id int64) map[int64]float64 {
	return g.adj[id]
}

// EdgeWeight returns the weight of edge (a,b) and whether it exists.
func (g *Graph) EdgeWeight(a, b int64) (float64, bool) {
	w, ok := g.adj[a][b]
	return w, ok
}

func (g *Graph) Coord(id int64) (model.GeoPoint, bool) {
	pt, ok := g.coords[id]
	return pt, ok
}

func (g *Graph) NodeCount() int { return len(g.coords) }

// Nodes returns all node ids in unspecified order.
func (g *Graph) Nodes() []int64 {
	out := make([]int64, 0, len(g.coords))
	for id := range g.coords {
		out = append(out, id)
	}
	return out
}

// NearestNode finds the node whose coordinate is closest to pt by squared
// degree distance. Returns false when the graph is empty.
func (g *Graph) NearestNode(pt model.GeoPoint) (int64, bool) {
	best := int64(0)
	bestDist := math.Inf(1)
	found := false
	for id, c := range g.coords {
		dLat := pt.Lat - c.Lat
		dLng := pt.Lng - c.Lng
		d := dLat*dLat + dLng*dLng
		if d < bestDist || (d == bestDist && found && id < best) {
			bestDist = d
			best = id
			found = true
		}
	}
	return best, found
}

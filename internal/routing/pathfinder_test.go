package routing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floranav/internal/graph"
	"floranav/internal/model"
)

// lineGraph builds nodes 0..n-1 chained with the given consecutive weights.
func lineGraph(t *testing.T, weights ...float64) *graph.Graph {
	t.Helper()
	g := graph.New()
	for i := 0; i <= len(weights); i++ {
		g.AddNode(int64(i), model.GeoPoint{Lat: float64(i) * 0.001})
	}
	for i, w := range weights {
		g.AddEdge(int64(i), int64(i+1), w)
	}
	return g
}

// cycleGraph builds nodes 0..4 in a ring with weights 1,2,3,4,5.
func cycleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	for i := 0; i < 5; i++ {
		g.AddNode(int64(i), model.GeoPoint{Lat: float64(i) * 0.001})
	}
	w := []float64{1, 2, 3, 4, 5}
	for i := 0; i < 5; i++ {
		g.AddEdge(int64(i), int64((i+1)%5), w[i])
	}
	return g
}

func TestShortestPathIdentity(t *testing.T) {
	g := lineGraph(t, 10, 20)
	pf := NewPathFinder(g, 1.0)
	for id := int64(0); id <= 2; id++ {
		d, path := pf.ShortestPath(id, id)
		assert.Equal(t, 0.0, d)
		assert.Equal(t, []int64{id}, path)
	}
}

func TestShortestPathLine(t *testing.T) {
	g := lineGraph(t, 10, 20, 30)
	pf := NewPathFinder(g, 1.0)
	d, path := pf.ShortestPath(0, 3)
	require.Equal(t, 60.0, d)
	require.Equal(t, []int64{0, 1, 2, 3}, path)
}

func TestShortestPathTrafficFactor(t *testing.T) {
	g := lineGraph(t, 10, 20)
	pf := NewPathFinder(g, 2.5)
	d, path := pf.ShortestPath(0, 2)
	require.InDelta(t, 75.0, d, 1e-9)
	require.Equal(t, []int64{0, 1, 2}, path)
}

func TestShortestPathPicksCheaperSide(t *testing.T) {
	g := cycleGraph(t)
	pf := NewPathFinder(g, 1.0)

	d, path := pf.ShortestPath(0, 2)
	require.Equal(t, 3.0, d)
	require.Equal(t, []int64{0, 1, 2}, path)

	d, path = pf.ShortestPath(0, 4)
	require.Equal(t, 5.0, d)
	require.Equal(t, []int64{0, 4}, path)
}

func TestShortestPathUnreachable(t *testing.T) {
	g := lineGraph(t, 10)
	g.AddNode(99, model.GeoPoint{Lat: 1})
	pf := NewPathFinder(g, 1.0)

	d, path := pf.ShortestPath(0, 99)
	assert.True(t, math.IsInf(d, 1))
	assert.Empty(t, path)

	d, path = pf.ShortestPath(0, 12345)
	assert.True(t, math.IsInf(d, 1))
	assert.Empty(t, path)
}

func TestMatrixPrecomputeAndLazyMiss(t *testing.T) {
	g := lineGraph(t, 10, 20, 30)
	pf := NewPathFinder(g, 1.0)
	m := pf.Matrix([]int64{0, 1, 2})

	assert.Equal(t, 0.0, m.Dist(1, 1))
	assert.Equal(t, 30.0, m.Dist(0, 2))
	// Node 3 was not precomputed; Dist must fall back to Dijkstra.
	assert.Equal(t, 60.0, m.Dist(0, 3))
	assert.Equal(t, 30.0, m.Dist(3, 2))
}

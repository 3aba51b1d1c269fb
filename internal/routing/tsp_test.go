package routing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floranav/internal/graph"
	"floranav/internal/model"
)

func TestSolveEmptyAndSingle(t *testing.T) {
	g := lineGraph(t, 10)
	pf := NewPathFinder(g, 1.0)
	s := NewSolver(pf.Matrix([]int64{0, 1}))

	d, seq, err := s.Solve(0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
	assert.Equal(t, []int64{0}, seq)

	d, seq, err = s.Solve(0, []int64{1}, false)
	require.NoError(t, err)
	assert.Equal(t, 10.0, d)
	assert.Equal(t, []int64{0, 1}, seq)

	d, seq, err = s.Solve(0, []int64{1}, true)
	require.NoError(t, err)
	assert.Equal(t, 20.0, d)
	assert.Equal(t, []int64{0, 1, 0}, seq)
}

func TestSolveFiveNodeCycle(t *testing.T) {
	// Ring 0..4 with weights 1,2,3,4,5. From 0 the cheaper order over
	// stops {2,4} is 0->2 (3) then 2->4 (7), total 10.
	g := cycleGraph(t)
	pf := NewPathFinder(g, 1.0)
	s := NewSolver(pf.Matrix([]int64{0, 2, 4}))

	d, seq, err := s.Solve(0, []int64{2, 4}, false)
	require.NoError(t, err)
	assert.Equal(t, 10.0, d)
	assert.Equal(t, []int64{0, 2, 4}, seq)
}

func TestSolveSizeLimit(t *testing.T) {
	g := lineGraph(t, 10)
	pf := NewPathFinder(g, 1.0)
	s := NewSolver(pf.Matrix(nil))

	stops := make([]int64, MaxStops+1)
	for i := range stops {
		stops[i] = int64(i)
	}
	_, _, err := s.Solve(0, stops, false)
	require.ErrorIs(t, err, ErrTooManyStops)
}

func TestSolveUnreachablePropagates(t *testing.T) {
	g := lineGraph(t, 10)
	g.AddNode(99, model.GeoPoint{Lat: 1})
	pf := NewPathFinder(g, 1.0)
	s := NewSolver(pf.Matrix([]int64{0, 1, 99}))

	d, _, err := s.Solve(0, []int64{1, 99}, false)
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1))
}

// bruteForce is the permutation oracle for small instances.
func bruteForce(m *DistanceMatrix, origin int64, stops []int64, closeCycle bool) float64 {
	best := math.Inf(1)
	perm := append([]int64(nil), stops...)
	var rec func(k int)
	rec = func(k int) {
		if k == len(perm) {
			d := 0.0
			cur := origin
			for _, s := range perm {
				d += m.Dist(cur, s)
				cur = s
			}
			if closeCycle {
				d += m.Dist(cur, origin)
			}
			if d < best {
				best = d
			}
			return
		}
		for i := k; i < len(perm); i++ {
			perm[k], perm[i] = perm[i], perm[k]
			rec(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	rec(0)
	return best
}

func TestSolveMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		// Random complete graph on 7 nodes (origin + up to 6 stops).
		g := graph.New()
		for i := 0; i < 7; i++ {
			g.AddNode(int64(i), model.GeoPoint{Lat: float64(i) * 0.001})
		}
		for i := 0; i < 7; i++ {
			for j := i + 1; j < 7; j++ {
				g.AddEdge(int64(i), int64(j), 1+rng.Float64()*99)
			}
		}
		pf := NewPathFinder(g, 1.0)
		nStops := 2 + rng.Intn(5)
		stops := make([]int64, nStops)
		for i := range stops {
			stops[i] = int64(i + 1)
		}
		all := append([]int64{0}, stops...)
		m := pf.Matrix(all)
		s := NewSolver(m)
		closeCycle := trial%2 == 0

		got, seq, err := s.Solve(0, stops, closeCycle)
		require.NoError(t, err)
		want := bruteForce(m, 0, stops, closeCycle)
		assert.InDelta(t, want, got, 1e-9)

		// The returned sequence must realize the reported distance.
		d := 0.0
		for i := 0; i+1 < len(seq); i++ {
			d += m.Dist(seq[i], seq[i+1])
		}
		assert.InDelta(t, got, d, 1e-9)
		assert.Equal(t, int64(0), seq[0])
		if closeCycle {
			assert.Equal(t, int64(0), seq[len(seq)-1])
		}
	}
}

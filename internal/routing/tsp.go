package routing

import (
	"errors"
	"math"
)

// MaxStops caps the exact solver's input size. Held-Karp is O(n²·2ⁿ);
// beyond this the table no longer fits a reasonable memory and time budget.
const MaxStops = 20

var ErrTooManyStops = errors.New("stop count exceeds exact solver limit")

// Solver computes exact minimum-cost visiting orders with Held-Karp dynamic
// programming over a distance matrix.
type Solver struct {
	m *DistanceMatrix
}

func NewSolver(m *DistanceMatrix) *Solver { return &Solver{m: m} }

// Solve returns the minimal total distance and the full visiting order for
// a path starting at origin and covering every stop exactly once. With
// closeCycle the tour returns to the origin and the order ends with it.
// An unreachable pair propagates as +Inf in the returned distance; callers
// must check before using the sequence.
func (s *Solver) Solve(origin int64, stops []int64, closeCycle bool) (float64, []int64, error) {
	if len(stops) > MaxStops {
		return 0, nil, ErrTooManyStops
	}
	if len(stops) == 0 {
		if closeCycle {
			return 0, []int64{origin, origin}, nil
		}
		return 0, []int64{origin}, nil
	}
	if len(stops) == 1 {
		d := s.m.Dist(origin, stops[0])
		seq := []int64{origin, stops[0]}
		if closeCycle {
			d += s.m.Dist(stops[0], origin)
			seq = append(seq, origin)
		}
		return d, seq, nil
	}

	// Dense remap: stop i is bit i of the subset mask.
	n := len(stops)
	full := (1 << n) - 1

	// cost[mask][last]: min distance of a path from origin visiting exactly
	// the stops in mask and ending at stops[last]. prev holds backpointers.
	cost := make([][]float64, full+1)
	prev := make([][]int, full+1)
	for mask := 1; mask <= full; mask++ {
		cost[mask] = make([]float64, n)
		prev[mask] = make([]int, n)
		for i := range cost[mask] {
			cost[mask][i] = math.Inf(1)
			prev[mask][i] = -1
		}
	}
	for i := 0; i < n; i++ {
		cost[1<<i][i] = s.m.Dist(origin, stops[i])
	}

	// Bottom-up over subsets: every mask reads only strictly smaller masks.
	for mask := 1; mask <= full; mask++ {
		if mask&(mask-1) == 0 {
			continue // singleton, base case
		}
		for last := 0; last < n; last++ {
			if mask&(1<<last) == 0 {
				continue
			}
			rest := mask &^ (1 << last)
			for p := 0; p < n; p++ {
				if rest&(1<<p) == 0 {
					continue
				}
				c := cost[rest][p] + s.m.Dist(stops[p], stops[last])
				if c < cost[mask][last] {
					cost[mask][last] = c
					prev[mask][last] = p
				}
			}
		}
	}

	best := math.Inf(1)
	bestLast := 0
	for last := 0; last < n; last++ {
		c := cost[full][last]
		if closeCycle {
			c += s.m.Dist(stops[last], origin)
		}
		if c < best {
			best = c
			bestLast = last
		}
	}

	// Reconstruct backward from (full, bestLast), then prepend the origin.
	order := make([]int64, 0, n+2)
	mask := full
	last := bestLast
	for last >= 0 {
		order = append(order, stops[last])
		p := prev[mask][last]
		mask &^= 1 << last
		last = p
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	seq := make([]int64, 0, n+2)
	seq = append(seq, origin)
	seq = append(seq, order...)
	if closeCycle {
		seq = append(seq, origin)
	}
	return best, seq, nil
}

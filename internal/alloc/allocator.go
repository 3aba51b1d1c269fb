// Package alloc assigns per-destination, per-item quantities to suppliers
// and decides which resupply stops a route must include.
package alloc

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"floranav/internal/model"
	"floranav/internal/routing"
)

// Policy selects the allocation strategy, fixed per computation.
type Policy string

const (
	PolicyEager     Policy = "eager"
	PolicySimulated Policy = "simulated"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyEager, PolicySimulated:
		return Policy(s), nil
	case "":
		return PolicyEager, nil
	}
	return "", fmt.Errorf("unknown allocation policy %q", s)
}

// Request describes one allocation run. Suppliers are mutated in place on
// success; a failed run leaves them untouched.
type Request struct {
	Origin       *model.Supplier
	Extras       []*model.Supplier // supplementary suppliers in selection order
	Destinations []model.Destination
	Policy       Policy
}

// Result carries the assignment plus, for the simulated policy, the
// resupply stops chosen during sequential assignment.
type Result struct {
	Assignment model.Assignment
	Resupplies []model.ResupplyStop
	// SupplierIDs is the subset of suppliers that hold any allocation,
	// origin first.
	SupplierIDs []string
}

// Allocator runs one allocation at a time. Callers hand it request-local
// supplier copies; durable stock is decremented later by the store commit,
// which re-verifies against current state. One Allocator is shared by every
// computation; the PathFinder is per-call because the traffic factor
// changes between runs.
type Allocator struct {
	mu sync.Mutex
}

func New() *Allocator {
	return &Allocator{}
}

// Allocate runs the requested policy. All stock and capacity mutation is
// all-or-nothing: any failure restores every supplier to its entry state.
func (a *Allocator) Allocate(pf *routing.PathFinder, req Request) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	suppliers := append([]*model.Supplier{req.Origin}, req.Extras...)
	snap := snapshot(suppliers)

	var (
		res *Result
		err error
	)
	switch req.Policy {
	case PolicySimulated:
		res, err = a.simulated(pf, req, suppliers)
	default:
		res, err = a.eager(req, suppliers)
	}
	if err != nil {
		restore(suppliers, snap)
		return nil, err
	}
	return res, nil
}

type supplierState struct {
	stock    map[string]int
	capacity int
}

func snapshot(suppliers []*model.Supplier) []supplierState {
	out := make([]supplierState, len(suppliers))
	for i, s := range suppliers {
		st := make(map[string]int, len(s.Stock))
		for k, v := range s.Stock {
			st[k] = v
		}
		out[i] = supplierState{stock: st, capacity: s.Capacity}
	}
	return out
}

func restore(suppliers []*model.Supplier, snap []supplierState) {
	for i, s := range suppliers {
		s.Stock = snap[i].stock
		s.Capacity = snap[i].capacity
	}
}

// eager accepts destinations one at a time. Each new destination is checked
// against the remaining combined stock, then drained greedily: origin
// first, then supplementary suppliers in selection order, each bounded by
// its own stock and capacity counter.
func (a *Allocator) eager(req Request, suppliers []*model.Supplier) (*Result, error) {
	assignment := make(model.Assignment, len(req.Destinations))
	for _, dst := range req.Destinations {
		if err := checkCombinedStock(suppliers, dst); err != nil {
			return nil, err
		}

		alloc := make(map[string]map[string]int)
		// Per-destination rollback unit: failures between the stock check
		// and full coverage restore only this destination's drains.
		local := snapshot(suppliers)
		covered := true
		var failItem string
		for _, item := range sortedItems(dst.Demand) {
			need := dst.Demand[item]
			for _, sup := range suppliers {
				if need == 0 {
					break
				}
				if sup.Capacity <= 0 {
					continue
				}
				take := sup.Stock[item]
				if take > need {
					take = need
				}
				if take == 0 {
					continue
				}
				sup.Stock[item] -= take
				need -= take
				if alloc[sup.ID] == nil {
					alloc[sup.ID] = make(map[string]int)
				}
				alloc[sup.ID][item] += take
			}
			if need > 0 {
				covered = false
				failItem = item
				break
			}
		}
		if !covered {
			restore(suppliers, local)
			return nil, &DemandError{Item: failItem, Destination: dst.Index}
		}
		// Capacity is spent once per destination served, regardless of how
		// many items came from the supplier.
		for _, sup := range suppliers {
			if _, ok := alloc[sup.ID]; ok {
				sup.Capacity--
			}
		}
		assignment[dst.Index] = alloc
	}
	return &Result{
		Assignment:  assignment,
		SupplierIDs: usedSuppliers(suppliers, assignment),
	}, nil
}

// checkCombinedStock verifies the remaining union stock of usable suppliers
// covers the destination's demand per item.
func checkCombinedStock(suppliers []*model.Supplier, dst model.Destination) error {
	for _, item := range sortedItems(dst.Demand) {
		need := dst.Demand[item]
		have := 0
		for _, sup := range suppliers {
			if sup.Capacity <= 0 {
				continue
			}
			have += sup.Stock[item]
		}
		if have < need {
			return &DemandError{Item: item, Destination: dst.Index}
		}
	}
	return nil
}

// simulated picks the smallest feasible supplier subset containing the
// origin, then assigns destinations nearest-first with whole-destination
// allocations and explicit supplier switches recorded as resupply stops.
func (a *Allocator) simulated(pf *routing.PathFinder, req Request, suppliers []*model.Supplier) (*Result, error) {
	subset, err := selectSubset(pf, req, suppliers)
	if err != nil {
		return nil, err
	}

	assignment := make(model.Assignment, len(req.Destinations))
	var resupplies []model.ResupplyStop

	current := subset[0] // origin
	pos := current.NodeID
	remaining := append([]model.Destination(nil), req.Destinations...)

	for len(remaining) > 0 {
		next := nearestDestination(pf, pos, remaining)
		dst := remaining[next]
		remaining = append(remaining[:next], remaining[next+1:]...)

		if !covers(current, dst.Demand) {
			// Brute-force the other subset members for the nearest one
			// holding the destination's full demand. No splitting, no
			// backtracking on earlier switches.
			sw := nearestCovering(pf, pos, subset, current, dst.Demand)
			if sw == nil {
				return nil, &StuckError{Destination: dst.Index}
			}
			current = sw
			resupplies = append(resupplies, model.ResupplyStop{
				SupplierID:        current.ID,
				NodeID:            current.NodeID,
				BeforeDestination: dst.Index,
			})
		}

		alloc := make(map[string]int, len(dst.Demand))
		for item, qty := range dst.Demand {
			current.Stock[item] -= qty
			alloc[item] = qty
		}
		current.Capacity--
		assignment[dst.Index] = map[string]map[string]int{current.ID: alloc}
		pos = dst.NodeID
	}

	return &Result{
		Assignment:  assignment,
		Resupplies:  resupplies,
		SupplierIDs: usedSuppliers(subset, assignment),
	}, nil
}

// selectSubset enumerates supplier subsets containing the origin in
// increasing size order. Among the smallest feasible size it picks the
// subset with the cheapest estimated tour over subset nodes plus all
// destinations. Origin is always subset[0].
func selectSubset(pf *routing.PathFinder, req Request, suppliers []*model.Supplier) ([]*model.Supplier, error) {
	total := aggregateDemand(req.Destinations)
	destNodes := make([]int64, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		destNodes = append(destNodes, d.NodeID)
	}

	// Depleted suppliers cannot contribute; dropping them up front keeps
	// the subset enumeration small.
	extras := make([]*model.Supplier, 0, len(req.Extras))
	for _, e := range req.Extras {
		if !e.Depleted() {
			extras = append(extras, e)
		}
	}

	nExtras := len(extras)
	for size := 1; size <= nExtras+1; size++ {
		var best []*model.Supplier
		bestCost := math.Inf(1)
		forEachSubset(nExtras, size-1, func(mask int) {
			subset := make([]*model.Supplier, 0, size)
			subset = append(subset, req.Origin)
			for i := 0; i < nExtras; i++ {
				if mask&(1<<i) != 0 {
					subset = append(subset, extras[i])
				}
			}
			if !combinedCovers(subset, total) {
				return
			}
			c := estimateTourCost(pf, subset, destNodes)
			if c < bestCost {
				bestCost = c
				best = subset
			}
		})
		if best != nil {
			return best, nil
		}
	}

	item, dst := firstShortfall(suppliers, req.Destinations)
	return nil, &DemandError{Item: item, Destination: dst}
}

// estimateTourCost runs the exact solver over supplier and destination
// nodes as a ranking signal between candidate subsets.
func estimateTourCost(pf *routing.PathFinder, subset []*model.Supplier, destNodes []int64) float64 {
	nodes := make([]int64, 0, len(subset)+len(destNodes))
	seen := make(map[int64]struct{}, len(subset)+len(destNodes))
	for _, s := range subset[1:] {
		if _, ok := seen[s.NodeID]; !ok {
			seen[s.NodeID] = struct{}{}
			nodes = append(nodes, s.NodeID)
		}
	}
	for _, n := range destNodes {
		if n == subset[0].NodeID {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			nodes = append(nodes, n)
		}
	}
	all := append([]int64{subset[0].NodeID}, nodes...)
	m := pf.Matrix(all)
	d, _, err := routing.NewSolver(m).Solve(subset[0].NodeID, nodes, false)
	if err != nil {
		return math.Inf(1)
	}
	return d
}

func nearestDestination(pf *routing.PathFinder, pos int64, dests []model.Destination) int {
	best := 0
	bestDist := math.Inf(1)
	for i, d := range dests {
		dist, _ := pf.ShortestPath(pos, d.NodeID)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

func nearestCovering(pf *routing.PathFinder, pos int64, subset []*model.Supplier, current *model.Supplier, demand map[string]int) *model.Supplier {
	var best *model.Supplier
	bestDist := math.Inf(1)
	for _, sup := range subset {
		if sup == current {
			continue
		}
		if !covers(sup, demand) {
			continue
		}
		d, _ := pf.ShortestPath(pos, sup.NodeID)
		if d < bestDist {
			bestDist = d
			best = sup
		}
	}
	return best
}

func covers(sup *model.Supplier, demand map[string]int) bool {
	if sup.Capacity <= 0 {
		return false
	}
	for item, qty := range demand {
		if sup.Stock[item] < qty {
			return false
		}
	}
	return true
}

func combinedCovers(suppliers []*model.Supplier, demand map[string]int) bool {
	for item, qty := range demand {
		have := 0
		for _, s := range suppliers {
			have += s.Stock[item]
		}
		if have < qty {
			return false
		}
	}
	return true
}

func aggregateDemand(dests []model.Destination) map[string]int {
	out := make(map[string]int)
	for _, d := range dests {
		for item, qty := range d.Demand {
			out[item] += qty
		}
	}
	return out
}

// firstShortfall names the item and destination that make the full
// supplier set infeasible, for error reporting.
func firstShortfall(suppliers []*model.Supplier, dests []model.Destination) (string, int) {
	have := make(map[string]int)
	for _, s := range suppliers {
		for item, qty := range s.Stock {
			have[item] += qty
		}
	}
	need := make(map[string]int)
	for _, d := range dests {
		for _, item := range sortedItems(d.Demand) {
			need[item] += d.Demand[item]
			if need[item] > have[item] {
				return item, d.Index
			}
		}
	}
	if len(dests) > 0 {
		return "", dests[len(dests)-1].Index
	}
	return "", 0
}

func usedSuppliers(suppliers []*model.Supplier, assignment model.Assignment) []string {
	used := make(map[string]struct{})
	for _, bySup := range assignment {
		for id := range bySup {
			used[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(used))
	for _, s := range suppliers {
		if _, ok := used[s.ID]; ok {
			out = append(out, s.ID)
		}
	}
	return out
}

func sortedItems(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// forEachSubset invokes fn for every k-element subset mask of n elements.
func forEachSubset(n, k int, fn func(mask int)) {
	if k == 0 {
		fn(0)
		return
	}
	if k > n {
		return
	}
	var rec func(start, left, mask int)
	rec = func(start, left, mask int) {
		if left == 0 {
			fn(mask)
			return
		}
		for i := start; i <= n-left; i++ {
			rec(i+1, left-1, mask|1<<i)
		}
	}
	rec(0, k, 0)
}

// Package planner composes allocation, TSP solving, and shortest-path
// expansion into one route computation.
package planner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"floranav/internal/alloc"
	"floranav/internal/graph"
	"floranav/internal/guide"
	"floranav/internal/model"
	"floranav/internal/routing"
)

var (
	// ErrUnreachable: a shortest-path segment between two committed stops
	// has infinite distance. Unrecoverable for the route.
	ErrUnreachable = errors.New("unreachable segment")
	// ErrNodeNotFound: a stop references a node absent from the graph.
	ErrNodeNotFound = errors.New("node not found in graph")
)

// Planner owns the road graph and allocation serialization. One Planner
// serves many route computations; each computation builds its own
// PathFinder and distance matrix and discards them at the end.
type Planner struct {
	g           *graph.Graph
	allocator   *alloc.Allocator
	avgSpeedKmh float64
	maxDests    int
}

type Options struct {
	AvgSpeedKmh     float64 // default 30
	MaxDestinations int     // default routing.MaxStops
}

func New(g *graph.Graph, opts Options) *Planner {
	if opts.AvgSpeedKmh <= 0 {
		opts.AvgSpeedKmh = 30
	}
	if opts.MaxDestinations <= 0 || opts.MaxDestinations > routing.MaxStops {
		opts.MaxDestinations = routing.MaxStops
	}
	return &Planner{g: g, allocator: alloc.New(), avgSpeedKmh: opts.AvgSpeedKmh, maxDests: opts.MaxDestinations}
}

func (p *Planner) Graph() *graph.Graph { return p.g }

// Input is one route computation request with resolved suppliers and
// destinations.
type Input struct {
	Origin        *model.Supplier
	Extras        []*model.Supplier
	Destinations  []model.Destination
	CloseCycle    bool
	Policy        alloc.Policy
	TrafficFactor float64
}

// ComputeRoute allocates stock, orders the mandatory stops with the exact
// solver, and expands the order into a full node path with per-segment
// distance and time.
func (p *Planner) ComputeRoute(in Input) (*model.Route, error) {
	started := time.Now()

	if len(in.Destinations) == 0 {
		return nil, fmt.Errorf("at least one destination required")
	}
	if len(in.Destinations) > p.maxDests {
		return nil, routing.ErrTooManyStops
	}
	if !p.g.HasNode(in.Origin.NodeID) {
		return nil, fmt.Errorf("origin %s: %w", in.Origin.ID, ErrNodeNotFound)
	}
	for _, d := range in.Destinations {
		if !p.g.HasNode(d.NodeID) {
			return nil, fmt.Errorf("destination %d: %w", d.Index, ErrNodeNotFound)
		}
	}

	pf := routing.NewPathFinder(p.g, in.TrafficFactor)
	res, err := p.allocator.Allocate(pf, alloc.Request{
		Origin:       in.Origin,
		Extras:       in.Extras,
		Destinations: in.Destinations,
		Policy:       in.Policy,
	})
	if err != nil {
		return nil, err
	}

	stops := p.assembleStops(in, res)

	// Mandatory-stop nodes, resupply first, deduplicated against the
	// origin and each other.
	nodes := make([]int64, 0, len(stops))
	seen := map[int64]struct{}{in.Origin.NodeID: {}}
	for _, s := range stops[1:] {
		if _, ok := seen[s.NodeID]; ok {
			continue
		}
		seen[s.NodeID] = struct{}{}
		nodes = append(nodes, s.NodeID)
	}

	all := append([]int64{in.Origin.NodeID}, nodes...)
	matrix := pf.Matrix(all)
	total, seq, err := routing.NewSolver(matrix).Solve(in.Origin.NodeID, nodes, in.CloseCycle)
	if err != nil {
		return nil, err
	}
	if math.IsInf(total, 1) {
		return nil, fmt.Errorf("no finite tour over mandatory stops: %w", ErrUnreachable)
	}

	route, err := p.expand(pf, seq)
	if err != nil {
		return nil, err
	}
	route.Policy = string(in.Policy)
	route.CloseCycle = in.CloseCycle
	route.OriginNodeID = in.Origin.NodeID
	route.Stops = orderStops(stops, seq)
	route.TrafficFactor = pf.TrafficFactor()
	route.Assignment = res.Assignment
	route.Resupplies = res.Resupplies
	route.ComputeMs = time.Since(started).Milliseconds()
	return route, nil
}

// BuildGuide derives annotated turn-by-turn instructions for a computed
// route.
func (p *Planner) BuildGuide(r *model.Route) model.Guide {
	b := guide.NewBuilder(p.g, r.TrafficFactor)
	ins, warnings := b.Build(r.Path)
	guide.Annotate(ins, r.Stops)
	total := 0.0
	for _, in := range ins {
		total += in.DistanceKm
	}
	return model.Guide{
		RouteID:      r.ID,
		Instructions: ins,
		TotalKm:      total,
		Warnings:     warnings,
	}
}

// assembleStops builds the abstract stop list: origin, then resupply
// stops, then destinations, in allocation order.
func (p *Planner) assembleStops(in Input, res *alloc.Result) []model.Stop {
	stops := make([]model.Stop, 0, 1+len(res.Resupplies)+len(in.Destinations))
	originPt, _ := p.g.Coord(in.Origin.NodeID)
	stops = append(stops, model.Stop{
		Kind:       model.StopOrigin,
		NodeID:     in.Origin.NodeID,
		SupplierID: in.Origin.ID,
		Location:   originPt,
	})
	for _, r := range res.Resupplies {
		pt, _ := p.g.Coord(r.NodeID)
		stops = append(stops, model.Stop{
			Kind:        model.StopResupply,
			NodeID:      r.NodeID,
			SupplierID:  r.SupplierID,
			Destination: r.BeforeDestination,
			Location:    pt,
		})
	}
	for _, d := range in.Destinations {
		stops = append(stops, model.Stop{
			Kind:        model.StopDelivery,
			NodeID:      d.NodeID,
			Destination: d.Index,
			Location:    d.Location,
		})
	}
	return stops
}

// orderStops reorders the abstract stops to match the solved sequence and
// assigns sequence numbers. Stops sharing a node keep their relative order.
func orderStops(stops []model.Stop, seq []int64) []model.Stop {
	byNode := make(map[int64][]model.Stop, len(stops))
	for _, s := range stops[1:] {
		byNode[s.NodeID] = append(byNode[s.NodeID], s)
	}
	out := make([]model.Stop, 0, len(seq))
	origin := stops[0]
	origin.Seq = 1
	out = append(out, origin)
	// Stops sharing the origin's node are served on departure; the solver
	// never revisits that node except for a closing return.
	for _, s := range byNode[origin.NodeID] {
		s.Seq = len(out) + 1
		out = append(out, s)
	}
	delete(byNode, origin.NodeID)
	for _, node := range seq[1:] {
		if node == origin.NodeID {
			// Closing return to the origin.
			ret := stops[0]
			ret.Seq = len(out) + 1
			out = append(out, ret)
			continue
		}
		for _, s := range byNode[node] {
			s.Seq = len(out) + 1
			out = append(out, s)
		}
		delete(byNode, node)
	}
	return out
}

// expand turns the abstract sequence into the full node path, one shortest
// path per consecutive stop pair, concatenated without duplicating the
// boundary node.
func (p *Planner) expand(pf *routing.PathFinder, seq []int64) (*model.Route, error) {
	kmPerMin := p.avgSpeedKmh / 60.0
	route := &model.Route{Path: []int64{seq[0]}}

	for i := 0; i+1 < len(seq); i++ {
		from, to := seq[i], seq[i+1]
		if from == to {
			continue
		}
		d, segPath := pf.ShortestPath(from, to)
		if math.IsInf(d, 1) {
			return nil, fmt.Errorf("segment %d -> %d: %w", from, to, ErrUnreachable)
		}
		km := d / 1000.0
		seg := model.Segment{
			FromNodeID: from,
			ToNodeID:   to,
			Path:       segPath,
			DistanceKm: km,
			TimeMin:    km / kmPerMin,
		}
		route.Segments = append(route.Segments, seg)
		route.Path = append(route.Path, segPath[1:]...)
		route.DistanceKm += seg.DistanceKm
		route.TimeMin += seg.TimeMin
	}
	return route, nil
}

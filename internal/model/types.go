package model

// Core domain types shared across packages.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Supplier is an inventory-holding location. It can act as a route origin
// or as a mid-route resupply stop. Stock and Capacity are mutated only by
// allocation commits.
type Supplier struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	NodeID   int64          `json:"nodeId"`
	Location GeoPoint       `json:"location"`
	Stock    map[string]int `json:"stock"`
	Capacity int            `json:"capacity"`
}

// Depleted reports whether every stock line is exhausted.
func (s *Supplier) Depleted() bool {
	for _, n := range s.Stock {
		if n > 0 {
			return false
		}
	}
	return true
}

type SupplierIn struct {
	Name     string         `json:"name"`
	NodeID   int64          `json:"nodeId,omitempty"`
	Location *GeoPoint      `json:"location,omitempty"`
	Stock    map[string]int `json:"stock"`
	Capacity int            `json:"capacity"`
}

// Destination is a delivery point with per-item demand. Demand is fixed for
// the duration of one allocation run.
type Destination struct {
	Index    int            `json:"index"`
	Label    string         `json:"label,omitempty"`
	NodeID   int64          `json:"nodeId"`
	Location GeoPoint       `json:"location"`
	Demand   map[string]int `json:"demand"`
}

type DestinationIn struct {
	Label    string         `json:"label,omitempty"`
	NodeID   int64          `json:"nodeId,omitempty"`
	Location *GeoPoint      `json:"location,omitempty"`
	Demand   map[string]int `json:"demand"`
}

type ComputeRequest struct {
	OriginSupplierID string          `json:"originSupplierId"`
	ExtraSupplierIDs []string        `json:"extraSupplierIds,omitempty"`
	Destinations     []DestinationIn `json:"destinations"`
	Policy           string          `json:"policy,omitempty"`
	CloseCycle       bool            `json:"closeCycle,omitempty"`
	DepartureHour    *int            `json:"departureHour,omitempty"`
}

// Assignment maps destination index -> supplier id -> item -> quantity.
// For every destination and item the allocated sum across suppliers equals
// that destination's demand.
type Assignment map[int]map[string]map[string]int

// ResupplyStop records a supplier visited mid-route to replenish carried
// stock before serving the destination at BeforeDestination.
type ResupplyStop struct {
	SupplierID        string `json:"supplierId"`
	NodeID            int64  `json:"nodeId"`
	BeforeDestination int    `json:"beforeDestination"`
}

// Stop is one entry of the abstract stop sequence, before shortest-path
// expansion.
type Stop struct {
	Seq         int      `json:"seq"`
	Kind        string   `json:"kind"` // origin, delivery, resupply
	NodeID      int64    `json:"nodeId"`
	SupplierID  string   `json:"supplierId,omitempty"`
	Destination int      `json:"destination,omitempty"`
	Location    GeoPoint `json:"location"`
}

const (
	StopOrigin   = "origin"
	StopDelivery = "delivery"
	StopResupply = "resupply"
)

// Segment is one leg between consecutive abstract stops, expanded to graph
// nodes. Distances are traffic-adjusted.
type Segment struct {
	FromNodeID int64   `json:"fromNodeId"`
	ToNodeID   int64   `json:"toNodeId"`
	Path       []int64 `json:"path"`
	DistanceKm float64 `json:"distanceKm"`
	TimeMin    float64 `json:"timeMin"`
}

type Route struct {
	ID            string         `json:"id"`
	Policy        string         `json:"policy"`
	CloseCycle    bool           `json:"closeCycle"`
	OriginNodeID  int64          `json:"originNodeId"`
	Stops         []Stop         `json:"stops"`
	Segments      []Segment      `json:"segments"`
	Path          []int64        `json:"path"`
	DistanceKm    float64        `json:"distanceKm"`
	TimeMin       float64        `json:"timeMin"`
	TrafficFactor float64        `json:"trafficFactor"`
	Assignment    Assignment     `json:"assignment,omitempty"`
	Resupplies    []ResupplyStop `json:"resupplies,omitempty"`
	ComputeMs     int64          `json:"computeMs"`
	CreatedAt     string         `json:"createdAt,omitempty"`
}

// DeliveryCount is the number of visited stops excluding the origin and,
// for a closed cycle, the final return leg.
func (r *Route) DeliveryCount() int {
	n := len(r.Stops) - 1
	if r.CloseCycle {
		n--
	}
	if n < 0 {
		n = 0
	}
	return n
}

// Summary derives per-stop averages from route totals.
func (r *Route) Summary() RouteSummary {
	s := RouteSummary{
		ID:         r.ID,
		Policy:     r.Policy,
		Stops:      r.DeliveryCount(),
		DistanceKm: r.DistanceKm,
		TimeMin:    r.TimeMin,
		CreatedAt:  r.CreatedAt,
	}
	if s.Stops > 0 {
		s.AvgKmPerStop = r.DistanceKm / float64(s.Stops)
		s.AvgMinPerStop = r.TimeMin / float64(s.Stops)
	}
	return s
}

// VisitRow is one line of the visit-order export: the stop plus the
// distance and time of the segment arriving at it.
type VisitRow struct {
	Seq       int     `json:"seq"`
	Kind      string  `json:"kind"`
	NodeID    int64   `json:"nodeId"`
	ArriveKm  float64 `json:"arriveKm"`
	ArriveMin float64 `json:"arriveMin"`
}

// VisitOrder walks the ordered stops against the expanded segments. Stops
// sharing the previous stop's node arrive with zero distance.
func (r *Route) VisitOrder() []VisitRow {
	rows := make([]VisitRow, 0, len(r.Stops))
	segIdx := 0
	var prevNode int64
	for i, s := range r.Stops {
		row := VisitRow{Seq: s.Seq, Kind: s.Kind, NodeID: s.NodeID}
		if i > 0 && s.NodeID != prevNode && segIdx < len(r.Segments) {
			row.ArriveKm = r.Segments[segIdx].DistanceKm
			row.ArriveMin = r.Segments[segIdx].TimeMin
			segIdx++
		}
		prevNode = s.NodeID
		rows = append(rows, row)
	}
	return rows
}

type RouteSummary struct {
	ID            string  `json:"id"`
	Policy        string  `json:"policy"`
	Stops         int     `json:"stops"`
	DistanceKm    float64 `json:"distanceKm"`
	TimeMin       float64 `json:"timeMin"`
	AvgKmPerStop  float64 `json:"avgKmPerStop"`
	AvgMinPerStop float64 `json:"avgMinPerStop"`
	CreatedAt     string  `json:"createdAt,omitempty"`
}

// Instruction is one classified turn-by-turn step derived from the expanded
// path.
type Instruction struct {
	Step       int      `json:"step"`
	FromNodeID int64    `json:"fromNodeId"`
	ToNodeID   int64    `json:"toNodeId"`
	From       GeoPoint `json:"from"`
	To         GeoPoint `json:"to"`
	Direction  string   `json:"direction"`
	Text       string   `json:"text"`
	DistanceKm float64  `json:"distanceKm"`
	Waypoint   string   `json:"waypoint,omitempty"` // delivery or resupply at the step's end node
}

type Guide struct {
	RouteID      string        `json:"routeId,omitempty"`
	Instructions []Instruction `json:"instructions"`
	TotalKm      float64       `json:"totalKm"`
	Warnings     []string      `json:"warnings,omitempty"`
}

type ValidateGuideRequest struct {
	Instructions []Instruction `json:"instructions"`
	ExpectedKm   *float64      `json:"expectedKm,omitempty"`
}

type GuideDiagnostics struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// RouteEvent is published on the broker for each compute lifecycle change
// and fanned out to SSE, WebSocket, and webhook subscribers.
type RouteEvent struct {
	Type    string         `json:"type"` // route.computed, route.failed
	RouteID string         `json:"routeId,omitempty"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

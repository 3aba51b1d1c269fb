// Package guide turns an expanded node path into classified turn-by-turn
// navigation instructions.
package guide

import (
	"fmt"
	"math"
	"strings"

	"floranav/internal/graph"
	"floranav/internal/model"
)

// Builder derives instructions from the graph's edge weights and the node
// coordinate table. The traffic factor matches the one used to compute the
// route so instruction distances sum to the route total.
type Builder struct {
	g      *graph.Graph
	factor float64
}

func NewBuilder(g *graph.Graph, trafficFactor float64) *Builder {
	if trafficFactor < 1.0 {
		trafficFactor = 1.0
	}
	return &Builder{g: g, factor: trafficFactor}
}

// Build produces one instruction per consecutive node pair of the expanded
// path. A missing edge yields distance 0 plus a warning rather than a hard
// failure; a missing coordinate does the same.
func (b *Builder) Build(path []int64) ([]model.Instruction, []string) {
	if len(path) < 2 {
		return nil, nil
	}
	var warnings []string
	out := make([]model.Instruction, 0, len(path)-1)
	prevBearing := math.NaN()

	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]

		w, ok := b.g.EdgeWeight(u, v)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("step %d: no edge between %d and %d", i+1, u, v))
			w = 0
		}
		distKm := w * b.factor / 1000.0

		from, okFrom := b.g.Coord(u)
		to, okTo := b.g.Coord(v)
		if !okFrom || !okTo {
			warnings = append(warnings, fmt.Sprintf("step %d: missing coordinates for %d-%d", i+1, u, v))
		}

		brg := Bearing(from, to)
		direction := "departure"
		if i > 0 {
			direction = Classify(TurnAngle(prevBearing, brg))
		}
		prevBearing = brg

		out = append(out, model.Instruction{
			Step:       i + 1,
			FromNodeID: u,
			ToNodeID:   v,
			From:       from,
			To:         to,
			Direction:  direction,
			Text:       instructionText(direction, distKm, v),
			DistanceKm: distKm,
		})
	}
	return out, warnings
}

// Annotate marks instructions whose end node is a delivery or resupply stop.
func Annotate(ins []model.Instruction, stops []model.Stop) {
	kind := make(map[int64]string, len(stops))
	for _, s := range stops {
		if s.Kind == model.StopDelivery || s.Kind == model.StopResupply {
			kind[s.NodeID] = s.Kind
		}
	}
	for i := range ins {
		if k, ok := kind[ins[i].ToNodeID]; ok {
			ins[i].Waypoint = k
		}
	}
}

// Bearing is the compass heading in degrees [0,360) from a to b, 0 = north.
func Bearing(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// TurnAngle normalizes the bearing change to [-180,180].
func TurnAngle(prev, next float64) float64 {
	a := math.Mod(next-prev+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}

// Classify maps a turn angle to one of eight labels. The buckets are
// exhaustive and non-overlapping over [-180,180].
func Classify(angle float64) string {
	switch {
	case angle >= -20 && angle <= 20:
		return "straight"
	case angle > 20 && angle < 70:
		return "slight right"
	case angle >= 70 && angle <= 110:
		return "right"
	case angle > 110 && angle < 160:
		return "sharp right"
	case angle > -70 && angle < -20:
		return "slight left"
	case angle >= -110 && angle <= -70:
		return "left"
	case angle > -160 && angle < -110:
		return "sharp left"
	default:
		return "u-turn"
	}
}

// Haversine returns the great-circle distance in kilometers. Kept as an
// independent cross-check distance, never the authoritative route distance.
func Haversine(a, b model.GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func instructionText(direction string, distKm float64, toNode int64) string {
	meters := distKm * 1000
	switch direction {
	case "departure":
		return fmt.Sprintf("Depart and continue %.0f m toward node %d", meters, toNode)
	case "straight":
		return fmt.Sprintf("Continue straight %.0f m toward node %d", meters, toNode)
	case "u-turn":
		return fmt.Sprintf("Make a U-turn and continue %.0f m toward node %d", meters, toNode)
	default:
		return fmt.Sprintf("Turn %s and continue %.0f m toward node %d", direction, meters, toNode)
	}
}

// Validate checks instruction consistency. Non-contiguous step indices and
// negative distances mark the result invalid; everything else is advisory.
func Validate(ins []model.Instruction, expectedKm *float64) model.GuideDiagnostics {
	d := model.GuideDiagnostics{Valid: true}
	total := 0.0
	for i, in := range ins {
		if in.Step != i+1 {
			d.Valid = false
			d.Errors = append(d.Errors, fmt.Sprintf("step index %d at position %d, want %d", in.Step, i, i+1))
		}
		if in.DistanceKm < 0 {
			d.Valid = false
			d.Errors = append(d.Errors, fmt.Sprintf("step %d: negative distance %.3f km", in.Step, in.DistanceKm))
		}
		total += in.DistanceKm
	}
	if expectedKm != nil && *expectedKm > 0 {
		rel := math.Abs(total-*expectedKm) / *expectedKm
		if rel > 0.05 {
			d.Warnings = append(d.Warnings, fmt.Sprintf(
				"instruction distances sum to %.3f km, expected %.3f km (%.1f%% off)", total, *expectedKm, rel*100))
		}
	}
	return d
}

// ExportText renders a guide as a numbered plain-text listing.
func ExportText(g model.Guide) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Route guide (%d steps, %.2f km)\n", len(g.Instructions), g.TotalKm)
	for _, in := range g.Instructions {
		line := fmt.Sprintf("%3d. %s", in.Step, in.Text)
		switch in.Waypoint {
		case model.StopDelivery:
			line += " [DELIVERY]"
		case model.StopResupply:
			line += " [RESUPPLY]"
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

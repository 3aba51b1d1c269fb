package guide

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floranav/internal/graph"
	"floranav/internal/model"
)

func TestBearingCardinalDirections(t *testing.T) {
	origin := model.GeoPoint{Lat: 0, Lng: 0}

	// Due east near the equator approaches 90 degrees.
	assert.InDelta(t, 90.0, Bearing(origin, model.GeoPoint{Lat: 0, Lng: 0.0001}), 0.01)
	// Due north approaches 0.
	assert.InDelta(t, 0.0, Bearing(origin, model.GeoPoint{Lat: 0.0001, Lng: 0}), 0.01)
	// Due south.
	assert.InDelta(t, 180.0, Bearing(origin, model.GeoPoint{Lat: -0.0001, Lng: 0}), 0.01)
	// Due west.
	assert.InDelta(t, 270.0, Bearing(origin, model.GeoPoint{Lat: 0, Lng: -0.0001}), 0.01)
}

func TestBearingRange(t *testing.T) {
	pts := []model.GeoPoint{
		{Lat: -12.05, Lng: -77.03},
		{Lat: -12.10, Lng: -76.99},
		{Lat: -11.95, Lng: -77.10},
		{Lat: 51.5, Lng: -0.12},
	}
	for _, a := range pts {
		for _, b := range pts {
			if a == b {
				continue
			}
			brg := Bearing(a, b)
			assert.GreaterOrEqual(t, brg, 0.0)
			assert.Less(t, brg, 360.0)
		}
	}
}

func TestTurnAngleNormalization(t *testing.T) {
	cases := []struct {
		prev, next, want float64
	}{
		{0, 0, 0},
		{0, 90, 90},
		{90, 0, -90},
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, -180},
		{270, 90, -180},
	}
	for _, c := range cases {
		got := TurnAngle(c.prev, c.next)
		assert.InDeltaf(t, c.want, got, 1e-9, "prev=%v next=%v", c.prev, c.next)
		assert.GreaterOrEqual(t, got, -180.0)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestClassifyBuckets(t *testing.T) {
	cases := map[float64]string{
		0:     "straight",
		20:    "straight",
		-20:   "straight",
		20.1:  "slight right",
		69.9:  "slight right",
		70:    "right",
		110:   "right",
		110.1: "sharp right",
		159.9: "sharp right",
		160:   "u-turn",
		180:   "u-turn",
		-20.1: "slight left",
		-69.9: "slight left",
		-70:   "left",
		-110:  "left",
		-110.1: "sharp left",
		-159.9: "sharp left",
		-160:   "u-turn",
		-180:   "u-turn",
	}
	for angle, want := range cases {
		assert.Equalf(t, want, Classify(angle), "angle %v", angle)
	}
}

// Every angle in [-180,180] must map to exactly one of the eight labels.
func TestClassifyExhaustive(t *testing.T) {
	labels := map[string]bool{
		"straight": true, "slight right": true, "right": true, "sharp right": true,
		"slight left": true, "left": true, "sharp left": true, "u-turn": true,
	}
	for a := -1800; a <= 1800; a++ {
		angle := float64(a) / 10
		got := Classify(angle)
		require.Truef(t, labels[got], "angle %v mapped to unknown label %q", angle, got)
	}
}

func TestHaversine(t *testing.T) {
	// Lima center to Callao center is roughly 8.3 km great-circle.
	lima := model.GeoPoint{Lat: -12.0464, Lng: -77.0428}
	callao := model.GeoPoint{Lat: -12.0566, Lng: -77.1181}
	d := Haversine(lima, callao)
	assert.InDelta(t, 8.3, d, 0.5)

	assert.Equal(t, 0.0, Haversine(lima, lima))
}

// squareGraph: four nodes forming a left turn then a right turn.
//
//	1 -- 2
//	     |
//	     3 -- 4
func squareGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	g.AddNode(1, model.GeoPoint{Lat: 0, Lng: 0})
	g.AddNode(2, model.GeoPoint{Lat: 0, Lng: 0.001})
	g.AddNode(3, model.GeoPoint{Lat: -0.001, Lng: 0.001})
	g.AddNode(4, model.GeoPoint{Lat: -0.001, Lng: 0.002})
	g.AddEdge(1, 2, 111)
	g.AddEdge(2, 3, 111)
	g.AddEdge(3, 4, 111)
	return g
}

func TestBuildClassifiesTurns(t *testing.T) {
	b := NewBuilder(squareGraph(t), 1.0)
	ins, warnings := b.Build([]int64{1, 2, 3, 4})
	require.Empty(t, warnings)
	require.Len(t, ins, 3)

	assert.Equal(t, "departure", ins[0].Direction)
	// East then south is a right turn; south then east is a left turn.
	assert.Equal(t, "right", ins[1].Direction)
	assert.Equal(t, "left", ins[2].Direction)

	for i, in := range ins {
		assert.Equal(t, i+1, in.Step)
		assert.InDelta(t, 0.111, in.DistanceKm, 1e-9)
	}
}

func TestBuildMissingEdgeWarns(t *testing.T) {
	b := NewBuilder(squareGraph(t), 1.0)
	ins, warnings := b.Build([]int64{1, 2, 4})
	require.Len(t, ins, 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no edge")
	assert.Equal(t, 0.0, ins[1].DistanceKm)
}

func TestBuildAppliesTrafficFactor(t *testing.T) {
	b := NewBuilder(squareGraph(t), 2.0)
	ins, _ := b.Build([]int64{1, 2})
	require.Len(t, ins, 1)
	assert.InDelta(t, 0.222, ins[0].DistanceKm, 1e-9)
}

func TestAnnotate(t *testing.T) {
	b := NewBuilder(squareGraph(t), 1.0)
	ins, _ := b.Build([]int64{1, 2, 3, 4})
	Annotate(ins, []model.Stop{
		{Kind: model.StopOrigin, NodeID: 1},
		{Kind: model.StopResupply, NodeID: 3},
		{Kind: model.StopDelivery, NodeID: 4},
	})
	assert.Empty(t, ins[0].Waypoint)
	assert.Equal(t, model.StopResupply, ins[1].Waypoint)
	assert.Equal(t, model.StopDelivery, ins[2].Waypoint)
}

func TestValidate(t *testing.T) {
	ins := []model.Instruction{
		{Step: 1, DistanceKm: 1.0},
		{Step: 2, DistanceKm: 2.0},
	}
	d := Validate(ins, nil)
	assert.True(t, d.Valid)
	assert.Empty(t, d.Errors)

	expected := 3.0
	d = Validate(ins, &expected)
	assert.True(t, d.Valid)
	assert.Empty(t, d.Warnings)

	expected = 4.0
	d = Validate(ins, &expected)
	assert.True(t, d.Valid, "distance mismatch is advisory")
	assert.NotEmpty(t, d.Warnings)

	bad := []model.Instruction{{Step: 1, DistanceKm: 1}, {Step: 3, DistanceKm: 1}}
	d = Validate(bad, nil)
	assert.False(t, d.Valid)

	neg := []model.Instruction{{Step: 1, DistanceKm: -0.5}}
	d = Validate(neg, nil)
	assert.False(t, d.Valid)
}

func TestExportText(t *testing.T) {
	b := NewBuilder(squareGraph(t), 1.0)
	ins, _ := b.Build([]int64{1, 2, 3})
	Annotate(ins, []model.Stop{{Kind: model.StopDelivery, NodeID: 3}})
	total := 0.0
	for _, in := range ins {
		total += in.DistanceKm
	}
	txt := ExportText(model.Guide{Instructions: ins, TotalKm: total})
	assert.Contains(t, txt, "2 steps")
	assert.Contains(t, txt, "[DELIVERY]")
	assert.Equal(t, 3, strings.Count(txt, "\n"))
}

package geo

import (
	"math"
	"testing"

	"plan-simulator/internal/plan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanarHeading(t *testing.T) {
	tests := []struct {
		name string
		a, b plan.LonLat
		want float64
	}{
		{"east", plan.LonLat{}, plan.LonLat{Lon: 10}, 0},
		{"north", plan.LonLat{}, plan.LonLat{Lat: 10}, math.Atan2(10, 0)},
		{"west", plan.LonLat{}, plan.LonLat{Lon: -10}, math.Pi},
		{"south", plan.LonLat{}, plan.LonLat{Lat: -10}, 3 * math.Pi / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanarHeading(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 2*math.Pi)
		})
	}
}

func TestLerp(t *testing.T) {
	got := Lerp(plan.LonLat{Lon: 0, Lat: 0}, plan.LonLat{Lon: 10, Lat: -4}, 0.25)
	assert.InDelta(t, 2.5, got.Lon, 1e-12)
	assert.InDelta(t, -1.0, got.Lat, 1e-12)
}

func TestProject(t *testing.T) {
	origin := Project(plan.LonLat{})
	assert.InDelta(t, 0, origin.X, 1e-6)
	assert.InDelta(t, 0, origin.Y, 1e-6)

	// One degree of longitude on the equator is ~111.3 km in Web Mercator.
	p := Project(plan.LonLat{Lon: 1})
	assert.InDelta(t, 111319.49, p.X, 1)
	assert.InDelta(t, 0, p.Y, 1e-6)
}

func TestHaversine(t *testing.T) {
	d := Haversine(plan.LonLat{Lon: 0, Lat: 0}, plan.LonLat{Lon: 0, Lat: 1})
	assert.InDelta(t, 111195, d, 1)
	assert.Zero(t, Haversine(plan.LonLat{Lon: 3, Lat: 4}, plan.LonLat{Lon: 3, Lat: 4}))
}

func TestRoute(t *testing.T) {
	p := &plan.Plan{ID: "p", Sequence: []*plan.PathElement{
		{ID: "A", Type: plan.TypeStation, Coordinates: &plan.LonLat{Lon: 0, Lat: 0}},
		{ID: "s", Type: plan.TypeSegment},
		{ID: "B", Type: plan.TypeStation, Coordinates: &plan.LonLat{Lon: 0, Lat: 1}},
	}}
	ls, err := Route(p)
	require.NoError(t, err)
	assert.Equal(t, 2, ls.Coordinates().Length())
	assert.InDelta(t, 1.0, ls.Length(), 1e-12)
	assert.Equal(t, "LINESTRING(0 0,0 1)", ls.AsText())
	assert.InDelta(t, 111195, RouteLength(p), 1)

	single := &plan.Plan{ID: "p", Sequence: p.Sequence[:1]}
	ls, err = Route(single)
	require.NoError(t, err)
	assert.True(t, ls.IsEmpty())
	assert.Zero(t, RouteLength(single))
}

func TestRoute_DuplicateStations(t *testing.T) {
	p := &plan.Plan{ID: "p", Sequence: []*plan.PathElement{
		{ID: "A", Type: plan.TypeStation, Coordinates: &plan.LonLat{Lon: 2, Lat: 3}},
		{ID: "s", Type: plan.TypeSegment},
		{ID: "B", Type: plan.TypeStation, Coordinates: &plan.LonLat{Lon: 2, Lat: 3}},
	}}
	ls, err := Route(p)
	assert.Error(t, err)
	assert.True(t, ls.IsEmpty())
	assert.Zero(t, RouteLength(p))
}

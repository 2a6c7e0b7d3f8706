package vehicle

import (
	"errors"
	"testing"

	"plan-simulator/internal/geo"
	"plan-simulator/internal/plan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStationPlan() *plan.Plan {
	return &plan.Plan{ID: "p", Sequence: []*plan.PathElement{
		{ID: "A", Type: plan.TypeStation, Coordinates: &plan.LonLat{Lon: 0, Lat: 0}},
		{ID: "s", Type: plan.TypeSegment},
		{ID: "B", Type: plan.TypeStation, Coordinates: &plan.LonLat{Lon: 0, Lat: 0.01}},
	}}
}

func TestGeneric_ExecuteCommand(t *testing.T) {
	g := NewGeneric()
	p := twoStationPlan()
	g.StartPlan(p)
	g.StartStation(p.Sequence[0], Step{})
	g.ExecuteCommand(&plan.Command{Duration: 12.5}, Step{})
	g.ExecuteCommand(&plan.Command{Duration: 7.5}, Step{})
	g.EndStation(p.Sequence[0], Step{})
	g.StartSegment(p.Sequence[1], Step{NextStation: p.Sequence[2]})
	g.EndSegment(p.Sequence[1], Step{NextStation: p.Sequence[2]})
	g.EndPlan(p)

	assert.Equal(t, 20.0, g.ElapsedTimeSeconds())
	assert.Zero(t, g.DistanceTraveledMeters())
}

func TestRover_ChargesSegmentTravel(t *testing.T) {
	p := twoStationPlan()
	r := NewRover(2)
	r.StartPlan(p)
	r.StartStation(p.Sequence[0], Step{Index: 0})
	r.EndStation(p.Sequence[0], Step{Index: 0})
	step := Step{Plan: p, Index: 1, PrevStation: p.Sequence[0], NextStation: p.Sequence[2]}
	r.StartSegment(p.Sequence[1], step)
	r.ExecuteCommand(&plan.Command{Duration: 10}, step)
	r.EndSegment(p.Sequence[1], step)

	want := geo.Haversine(*p.Sequence[0].Coordinates, *p.Sequence[2].Coordinates)
	assert.InDelta(t, want, r.DistanceTraveledMeters(), 1e-9)
	assert.InDelta(t, want/2+10, r.ElapsedTimeSeconds(), 1e-9)
}

func TestRover_DefaultSpeed(t *testing.T) {
	assert.Equal(t, DefaultRoverSpeed, NewRover(0).SpeedMps)
	assert.Equal(t, DefaultRoverSpeed, NewRover(-1).SpeedMps)
}

func TestRover_MissingNextStation(t *testing.T) {
	p := twoStationPlan()
	r := NewRover(1)
	r.StartPlan(p)
	r.StartSegment(p.Sequence[1], Step{Index: 1})
	assert.Zero(t, r.DistanceTraveledMeters())
	assert.Zero(t, r.ElapsedTimeSeconds())
}

func TestNew(t *testing.T) {
	f, err := New("Generic", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Generic{}, f())

	f, err = New(" rover ", Options{SpeedMps: 3})
	require.NoError(t, err)
	rv, ok := f().(*Rover)
	require.True(t, ok)
	assert.Equal(t, 3.0, rv.SpeedMps)

	// Each call yields a fresh instance.
	assert.NotSame(t, f(), f())

	_, err = New("hovercraft", Options{})
	assert.True(t, errors.Is(err, ErrUnknownVehicle))
}

func TestRegister(t *testing.T) {
	Register("Walker", func(Options) Factory {
		return func() Simulator { return NewGeneric() }
	})
	assert.Contains(t, Models(), "walker")
	_, err := New("walker", Options{})
	assert.NoError(t, err)
}

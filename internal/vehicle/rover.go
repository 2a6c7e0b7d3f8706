package vehicle

import (
	"plan-simulator/internal/geo"
	"plan-simulator/internal/plan"
)

// RoverModelName is the registry name for Rover.
const RoverModelName = "rover"

// DefaultRoverSpeed is a walking-pace traverse speed, m/s.
const DefaultRoverSpeed = 0.5

// Rover charges travel on every segment: the great-circle distance between
// the stations on either side, covered at a constant speed. Commands cost
// their duration as in Generic.
type Rover struct {
	Generic
	SpeedMps float64

	last *plan.PathElement // last station visited
}

func NewRover(speedMps float64) *Rover {
	if speedMps <= 0 {
		speedMps = DefaultRoverSpeed
	}
	return &Rover{SpeedMps: speedMps}
}

func (r *Rover) StartPlan(p *plan.Plan) {
	r.last = nil
	if len(p.Sequence) > 0 && p.Sequence[0].IsStation() {
		r.last = p.Sequence[0]
	}
}

func (r *Rover) EndStation(station *plan.PathElement, _ Step) {
	r.last = station
}

func (r *Rover) StartSegment(_ *plan.PathElement, step Step) {
	from := r.last
	if from == nil {
		from = step.PrevStation
	}
	to := step.NextStation
	if from == nil || to == nil || from.Coordinates == nil || to.Coordinates == nil {
		return
	}
	d := geo.Haversine(*from.Coordinates, *to.Coordinates)
	r.Advance(d/r.SpeedMps, d)
}

// Package vehicle defines the Simulator interface for vehicle time and distance
// models, along with built-in implementations.
//
// Adding a new vehicle only requires implementing Simulator and registering a
// factory; the simulation driver never needs to change.
package vehicle

import "plan-simulator/internal/plan"

// Step is the traversal context handed to every hook.
type Step struct {
	Plan        *plan.Plan
	Index       int               // sequence index of Element
	Element     *plan.PathElement // element being processed
	PrevStation *plan.PathElement // nearest station before Element, if any
	NextStation *plan.PathElement // element after a segment, set for segments only
}

// Simulator is the contract every vehicle model must satisfy. Time is in
// seconds and distance in metres.
type Simulator interface {
	ElapsedTimeSeconds() float64
	DistanceTraveledMeters() float64

	// StartPlan and EndPlan are called once each around the whole traversal.
	StartPlan(p *plan.Plan)
	EndPlan(p *plan.Plan)

	StartStation(station *plan.PathElement, step Step)
	EndStation(station *plan.PathElement, step Step)

	// StartSegment and EndSegment bracket a segment; step.NextStation is the
	// station the segment leads to.
	StartSegment(segment *plan.PathElement, step Step)
	EndSegment(segment *plan.PathElement, step Step)

	// ExecuteCommand is called once per command, in sequence order.
	ExecuteCommand(cmd *plan.Command, step Step)
}

// Generic is the duration-only model: stations and segments cost nothing on
// their own and each command adds its duration to the elapsed time.
type Generic struct {
	elapsed  float64
	distance float64
}

func NewGeneric() *Generic { return &Generic{} }

func (g *Generic) ElapsedTimeSeconds() float64     { return g.elapsed }
func (g *Generic) DistanceTraveledMeters() float64 { return g.distance }

func (g *Generic) StartPlan(*plan.Plan) {}
func (g *Generic) EndPlan(*plan.Plan)   {}

func (g *Generic) StartStation(*plan.PathElement, Step) {}
func (g *Generic) EndStation(*plan.PathElement, Step)   {}
func (g *Generic) StartSegment(*plan.PathElement, Step) {}
func (g *Generic) EndSegment(*plan.PathElement, Step)   {}

func (g *Generic) ExecuteCommand(cmd *plan.Command, _ Step) {
	g.elapsed += cmd.Duration
}

// Advance adds time and distance; models embedding Generic use it to charge
// travel.
func (g *Generic) Advance(seconds, meters float64) {
	g.elapsed += seconds
	g.distance += meters
}

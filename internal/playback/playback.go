// Package playback resolves where the vehicle is at a given wall-clock time
// from the simulated durations of a plan's path elements.
//
// Lookups keep a cursor into the analysed sequence. Playback mostly moves
// forward in small steps, so the cursor usually stays put or advances by one;
// backward seeks walk it back the same way.
package playback

import (
	"errors"
	"fmt"
	"time"

	"plan-simulator/internal/geo"
	mmetrics "plan-simulator/internal/metrics"
	"plan-simulator/internal/plan"

	"github.com/rs/zerolog"
)

// DefaultThreshold is the minimum time movement before Update resolves again.
const DefaultThreshold = time.Second

// minElements is Station, Segment, Station.
const minElements = 3

var (
	ErrMissingDuration = errors.New("no simulated duration for element")
	ErrNilElement      = errors.New("nil path element")
)

// Transform is the vehicle pose at one instant.
type Transform struct {
	ElementID   string      `json:"elementId" msgpack:"elementId"`
	Location    plan.LonLat `json:"location" msgpack:"location"`
	Projected   geo.Point   `json:"projected" msgpack:"projected"`
	Rotation    float64     `json:"rotation" msgpack:"rotation"` // radians, [0, 2π)
	HasRotation bool        `json:"hasRotation" msgpack:"hasRotation"`
}

// Range is the wall-clock span of one element. It contains its start instant
// even when empty, and excludes its end.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Contains(t time.Time) bool {
	return t.Equal(r.Start) || (t.After(r.Start) && t.Before(r.End))
}

func (r Range) Duration() time.Duration { return r.End.Sub(r.Start) }

// DurationSource supplies the simulated time spent in each path element.
type DurationSource interface {
	ElementDuration(id string) (seconds float64, ok bool)
}

type Listener interface {
	PositionChanged(planID string, at time.Time, tr Transform)
}

type nopListener struct{}

func (nopListener) PositionChanged(string, time.Time, Transform) {}

// Player is not safe for concurrent use.
type Player struct {
	listener  Listener
	metrics   *mmetrics.Collector
	log       zerolog.Logger
	threshold time.Duration

	planID    string
	elements  []*plan.PathElement
	ranges    []Range
	valid     bool
	lastIndex int

	lastResolved time.Time
	resolved     bool
}

func NewPlayer(listener Listener, threshold time.Duration, metrics *mmetrics.Collector, logger zerolog.Logger) *Player {
	if listener == nil {
		listener = nopListener{}
	}
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Player{
		listener:  listener,
		metrics:   metrics,
		log:       logger.With().Str("component", "playback").Logger(),
		threshold: threshold,
	}
}

// Analyze lays the plan's elements out on the wall clock from start. It must
// be called again whenever the simulated durations change. A plan with fewer
// than three elements leaves the player invalid, which is not an error.
func (p *Player) Analyze(pl *plan.Plan, durations DurationSource, start time.Time) error {
	p.planID = pl.ID
	p.elements = nil
	p.ranges = nil
	p.valid = false
	p.lastIndex = 0
	p.resolved = false

	if len(pl.Sequence) < minElements {
		p.log.Debug().Str("plan", pl.ID).Int("elements", len(pl.Sequence)).Msg("plan too short for playback")
		return nil
	}

	elements := make([]*plan.PathElement, len(pl.Sequence))
	ranges := make([]Range, len(pl.Sequence))
	cursor := start
	for i, el := range pl.Sequence {
		if el == nil {
			return fmt.Errorf("%w at index %d", ErrNilElement, i)
		}
		secs, ok := durations.ElementDuration(el.ID)
		if !ok {
			return fmt.Errorf("%w %s", ErrMissingDuration, el.ID)
		}
		end := cursor.Add(time.Duration(secs * float64(time.Second)))
		elements[i] = el
		ranges[i] = Range{Start: cursor, End: end}
		cursor = end
	}
	p.elements = elements
	p.ranges = ranges
	p.valid = true
	p.log.Debug().Str("plan", pl.ID).Time("start", start).Time("end", cursor).Msg("analyzed plan")
	return nil
}

func (p *Player) Valid() bool { return p.valid }

// Span returns the first start and last end of the analysed ranges.
func (p *Player) Span() (Range, bool) {
	if !p.valid {
		return Range{}, false
	}
	return Range{Start: p.ranges[0].Start, End: p.ranges[len(p.ranges)-1].End}, true
}

// Range returns the analysed range of the element with the given ID.
func (p *Player) Range(id string) (Range, bool) {
	for i, el := range p.elements {
		if el.ID == id {
			return p.ranges[i], true
		}
	}
	return Range{}, false
}

// LookupTransform returns the vehicle pose at t, or false when the player is
// invalid or t lies outside the analysed span.
func (p *Player) LookupTransform(t time.Time) (Transform, bool) {
	if !p.valid {
		p.observe("invalid", 0)
		return Transform{}, false
	}

	i := p.lastIndex
	steps := 0
	switch {
	case p.ranges[i].Contains(t):
	case t.Before(p.ranges[i].Start):
		for {
			i--
			steps++
			if i < 0 {
				p.observe("miss", steps)
				return Transform{}, false
			}
			if p.ranges[i].Contains(t) {
				break
			}
		}
	default:
		for {
			i++
			steps++
			if i >= len(p.ranges) {
				p.observe("miss", steps)
				return Transform{}, false
			}
			if p.ranges[i].Contains(t) {
				break
			}
		}
	}
	// Empty ranges share their instant with a neighbour; settle on the
	// earliest element so the answer does not depend on seek history.
	for i > 0 && p.ranges[i-1].Contains(t) {
		i--
		steps++
	}
	p.lastIndex = i

	tr, ok := p.transformAt(i, t)
	if !ok {
		p.observe("miss", steps)
		return Transform{}, false
	}
	p.observe("hit", steps)
	return tr, true
}

func (p *Player) transformAt(i int, t time.Time) (Transform, bool) {
	el := p.elements[i]
	switch el.Type {
	case plan.TypeStation:
		if el.Coordinates == nil {
			return Transform{}, false
		}
		return Transform{
			ElementID: el.ID,
			Location:  *el.Coordinates,
			Projected: geo.Project(*el.Coordinates),
		}, true
	case plan.TypeSegment:
		prev, next := p.stationBefore(i), p.stationAfter(i)
		if prev == nil || next == nil || prev.Coordinates == nil || next.Coordinates == nil {
			return Transform{}, false
		}
		r := p.ranges[i]
		frac := 0.0
		if d := r.Duration(); d > 0 {
			frac = float64(t.Sub(r.Start)) / float64(d)
			frac = min(max(frac, 0), 1)
		}
		loc := geo.Lerp(*prev.Coordinates, *next.Coordinates, frac)
		return Transform{
			ElementID:   el.ID,
			Location:    loc,
			Projected:   geo.Project(loc),
			Rotation:    geo.PlanarHeading(*prev.Coordinates, *next.Coordinates),
			HasRotation: true,
		}, true
	}
	return Transform{}, false
}

func (p *Player) stationBefore(i int) *plan.PathElement {
	for j := i - 1; j >= 0; j-- {
		if p.elements[j].IsStation() {
			return p.elements[j]
		}
	}
	return nil
}

func (p *Player) stationAfter(i int) *plan.PathElement {
	for j := i + 1; j < len(p.elements); j++ {
		if p.elements[j].IsStation() {
			return p.elements[j]
		}
	}
	return nil
}

// Update resolves and publishes the pose at t unless t is within the
// threshold of the last resolved time.
func (p *Player) Update(t time.Time) (Transform, bool) {
	if p.resolved {
		d := t.Sub(p.lastResolved)
		if d < 0 {
			d = -d
		}
		if d <= p.threshold {
			return Transform{}, false
		}
	}
	return p.Seek(t)
}

// Seek resolves and publishes the pose at t unconditionally.
func (p *Player) Seek(t time.Time) (Transform, bool) {
	p.lastResolved = t
	p.resolved = true
	tr, ok := p.LookupTransform(t)
	if !ok {
		return Transform{}, false
	}
	if p.metrics != nil {
		p.metrics.PositionsResolved.Inc()
	}
	p.listener.PositionChanged(p.planID, t, tr)
	return tr, true
}

func (p *Player) observe(outcome string, steps int) {
	if p.metrics == nil {
		return
	}
	p.metrics.Lookups.WithLabelValues(outcome).Inc()
	if outcome != "invalid" {
		p.metrics.CursorSteps.Observe(float64(steps))
	}
}

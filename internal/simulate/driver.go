// Package simulate walks a plan's sequence through a vehicle model and keeps
// the resulting timing snapshots in a side table keyed by entity ID.
package simulate

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mmetrics "plan-simulator/internal/metrics"
	"plan-simulator/internal/plan"
	"plan-simulator/internal/vehicle"

	"github.com/rs/zerolog"
)

var ErrInvalidElementType = errors.New("invalid path element type")

// Listener receives the notifications produced by a simulation pass.
type Listener interface {
	// SimInfoChanged fires only for snapshots that differ from the stored one.
	SimInfoChanged(planID, entityID string, info SimInfo)
	PlanDurationUpdated(planID string, totalSeconds float64)
	// ScrubRequested asks playback to move to offsetSeconds from plan start.
	ScrubRequested(planID string, offsetSeconds float64)
}

type nopListener struct{}

func (nopListener) SimInfoChanged(string, string, SimInfo) {}
func (nopListener) PlanDurationUpdated(string, float64)    {}
func (nopListener) ScrubRequested(string, float64)         {}

// Driver is not safe for concurrent use; a nested or concurrent Simulate call
// is dropped rather than run.
type Driver struct {
	factory  vehicle.Factory
	listener Listener
	metrics  *mmetrics.Collector
	log      zerolog.Logger

	inFlight atomic.Bool
	table    map[string]SimInfo
	selected string
}

func NewDriver(factory vehicle.Factory, listener Listener, metrics *mmetrics.Collector, logger zerolog.Logger) *Driver {
	if listener == nil {
		listener = nopListener{}
	}
	return &Driver{
		factory:  factory,
		listener: listener,
		metrics:  metrics,
		log:      logger.With().Str("component", "simulate").Logger(),
		table:    make(map[string]SimInfo),
	}
}

// begin claims the in-flight flag. The returned release must be deferred.
func (d *Driver) begin() (release func(), ok bool) {
	if !d.inFlight.CompareAndSwap(false, true) {
		return nil, false
	}
	return func() { d.inFlight.Store(false) }, true
}

// Simulate runs one full pass over p. It returns (nil, nil) when a pass is
// already running. An element of unknown type aborts the pass and nothing is
// stored.
func (d *Driver) Simulate(p *plan.Plan) (*Result, error) {
	release, ok := d.begin()
	if !ok {
		d.log.Debug().Str("plan", p.ID).Msg("simulation in progress, ignoring nested request")
		if d.metrics != nil {
			d.metrics.SimReentrant.Inc()
		}
		return nil, nil
	}
	defer release()

	start := time.Now()
	res, order, err := d.run(p)
	if err != nil {
		if d.metrics != nil {
			d.metrics.SimInvalid.Inc()
		}
		return nil, err
	}
	d.commit(res, order)

	total := res.TotalSeconds()
	if d.metrics != nil {
		d.metrics.SimPasses.Inc()
		d.metrics.SimDuration.Observe(time.Since(start).Seconds())
		d.metrics.PlanDuration.Set(total)
	}
	d.log.Debug().
		Str("plan", p.ID).
		Int("elements", len(p.Sequence)).
		Float64("seconds", total).
		Float64("meters", res.Plan.DeltaDistanceMeters).
		Int("changed", len(res.Changed)).
		Msg("simulated plan")

	d.listener.PlanDurationUpdated(p.ID, total)
	if d.selected != "" && p.Element(d.selected) != nil {
		if info, ok := d.table[d.selected]; ok {
			d.listener.ScrubRequested(p.ID, info.ElapsedTimeSeconds)
		}
	}
	return res, nil
}

type entry struct {
	id   string
	info SimInfo
}

func (d *Driver) run(p *plan.Plan) (*Result, []entry, error) {
	res := newResult(p.ID)
	v := d.factory()
	if len(p.Sequence) == 0 {
		res.Plan = capture(v).since(v)
		return res, []entry{{p.ID, res.Plan}}, nil
	}

	for i, el := range p.Sequence {
		if el == nil {
			return nil, nil, fmt.Errorf("%w: nil element at index %d", ErrInvalidElementType, i)
		}
	}

	order := make([]entry, 0, len(p.Sequence)+p.CommandCount()+1)
	prePlan := capture(v)
	v.StartPlan(p)
	for i, el := range p.Sequence {
		preElement := capture(v)
		step := vehicle.Step{Plan: p, Index: i, Element: el, PrevStation: p.StationBefore(i)}
		switch el.Type {
		case plan.TypeStation:
			v.StartStation(el, step)
		case plan.TypeSegment:
			if i+1 < len(p.Sequence) {
				step.NextStation = p.Sequence[i+1]
			}
			v.StartSegment(el, step)
		default:
			return nil, nil, fmt.Errorf("%w %q at index %d (element %s)", ErrInvalidElementType, el.Type, i, el.ID)
		}

		for _, cmd := range el.Commands {
			preCommand := capture(v)
			v.ExecuteCommand(cmd, step)
			info := preCommand.since(v)
			res.Commands[cmd.ID] = info
			order = append(order, entry{cmd.ID, info})
		}

		if el.Type == plan.TypeStation {
			v.EndStation(el, step)
		} else {
			v.EndSegment(el, step)
		}
		info := preElement.since(v)
		res.Elements[el.ID] = info
		order = append(order, entry{el.ID, info})
	}
	v.EndPlan(p)
	res.Plan = prePlan.since(v)
	order = append(order, entry{p.ID, res.Plan})
	return res, order, nil
}

// commit stores snapshots that differ from the table and notifies for those
// only.
func (d *Driver) commit(res *Result, order []entry) {
	for _, e := range order {
		if old, ok := d.table[e.id]; ok && old == e.info {
			if d.metrics != nil {
				d.metrics.SnapshotWrites.WithLabelValues("unchanged").Inc()
			}
			continue
		}
		d.table[e.id] = e.info
		res.Changed = append(res.Changed, e.id)
		if d.metrics != nil {
			d.metrics.SnapshotWrites.WithLabelValues("changed").Inc()
		}
		d.listener.SimInfoChanged(res.PlanID, e.id, e.info)
	}
}

// Info returns the stored snapshot for a plan, element or command ID.
func (d *Driver) Info(id string) (SimInfo, bool) {
	info, ok := d.table[id]
	return info, ok
}

// Select marks the element the user is focused on; the next pass requests a
// scrub to its start. An empty id clears the selection.
func (d *Driver) Select(id string) { d.selected = id }

func (d *Driver) Selected() string { return d.selected }

// Forget drops the snapshot of a deleted entity.
func (d *Driver) Forget(id string) { delete(d.table, id) }

// Prune drops every snapshot whose entity is no longer part of p.
func (d *Driver) Prune(p *plan.Plan) int {
	live := map[string]bool{p.ID: true}
	for _, el := range p.Sequence {
		if el == nil {
			continue
		}
		live[el.ID] = true
		for _, c := range el.Commands {
			live[c.ID] = true
		}
	}
	n := 0
	for id := range d.table {
		if !live[id] {
			delete(d.table, id)
			n++
		}
	}
	return n
}

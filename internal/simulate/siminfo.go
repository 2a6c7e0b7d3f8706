package simulate

import "plan-simulator/internal/vehicle"

// SimInfo is the derived timing snapshot of a plan, path element or command.
// Elapsed and distance are the totals when the entity was entered; the deltas
// are what was consumed inside it, commands included.
type SimInfo struct {
	ElapsedTimeSeconds     float64 `json:"elapsedTimeSeconds" msgpack:"elapsedTimeSeconds"`
	DistanceTraveledMeters float64 `json:"distanceTraveledMeters" msgpack:"distanceTraveledMeters"`
	DeltaTimeSeconds       float64 `json:"deltaTimeSeconds" msgpack:"deltaTimeSeconds"`
	DeltaDistanceMeters    float64 `json:"deltaDistanceMeters" msgpack:"deltaDistanceMeters"`
}

// EndTimeSeconds is the elapsed time when the entity was left.
func (s SimInfo) EndTimeSeconds() float64 { return s.ElapsedTimeSeconds + s.DeltaTimeSeconds }

type vehicleState struct {
	elapsed  float64
	distance float64
}

func capture(v vehicle.Simulator) vehicleState {
	return vehicleState{elapsed: v.ElapsedTimeSeconds(), distance: v.DistanceTraveledMeters()}
}

// since builds the snapshot between s and the simulator's current state.
func (s vehicleState) since(v vehicle.Simulator) SimInfo {
	now := capture(v)
	return SimInfo{
		ElapsedTimeSeconds:     s.elapsed,
		DistanceTraveledMeters: s.distance,
		DeltaTimeSeconds:       now.elapsed - s.elapsed,
		DeltaDistanceMeters:    now.distance - s.distance,
	}
}

// Result is the outcome of one simulation pass. It is a copy; later passes do
// not modify it.
type Result struct {
	PlanID   string
	Plan     SimInfo
	Elements map[string]SimInfo
	Commands map[string]SimInfo
	// Changed lists the entity IDs whose stored snapshot was replaced.
	Changed []string
}

func newResult(planID string) *Result {
	return &Result{
		PlanID:   planID,
		Elements: make(map[string]SimInfo),
		Commands: make(map[string]SimInfo),
	}
}

func (r *Result) TotalSeconds() float64 { return r.Plan.DeltaTimeSeconds }

// ElementDuration returns the simulated time spent in a path element.
func (r *Result) ElementDuration(id string) (float64, bool) {
	info, ok := r.Elements[id]
	if !ok {
		return 0, false
	}
	return info.DeltaTimeSeconds, true
}

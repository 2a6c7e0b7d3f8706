package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	mmetrics "plan-simulator/internal/metrics"
	"plan-simulator/internal/playback"
	"plan-simulator/internal/plan"
	"plan-simulator/internal/simulate"
	"plan-simulator/internal/vehicle"

	"github.com/rs/zerolog"
)

type Options struct {
	PublishInterval time.Duration
	RefreshInterval time.Duration
	SpeedMultiplier float64
	ScrubThreshold  time.Duration
	// Loop wraps playback back to the plan start after the last element.
	Loop bool
	// PlanStart is the wall time of the first element. Zero means the time of
	// the first load.
	PlanStart time.Time
}

// Manager owns the simulation driver and the playback player of one plan and
// serialises every access to them.
type Manager struct {
	loader   Loader
	store    Store
	listener simulate.Listener
	opts     Options
	metrics  *mmetrics.Collector
	log      zerolog.Logger
	now      func() time.Time

	mu           sync.Mutex
	driver       *simulate.Driver
	player       *playback.Player
	plan         *plan.Plan
	result       *simulate.Result
	version      string
	start        time.Time // playback time of the first element
	anchor       time.Time // wall time at which playback time was start
	pendingScrub *float64
}

// NewManager builds the driver and player. store may be nil; sims and
// positions receive the driver and player notifications.
func NewManager(loader Loader, store Store, factory vehicle.Factory, sims simulate.Listener, positions playback.Listener, opts Options, metrics *mmetrics.Collector, logger zerolog.Logger) *Manager {
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1
	}
	m := &Manager{
		loader:   loader,
		store:    store,
		listener: sims,
		opts:     opts,
		metrics:  metrics,
		log:      logger.With().Str("component", "manager").Logger(),
		now:      time.Now,
	}
	m.driver = simulate.NewDriver(factory, m, metrics, logger)
	m.player = playback.NewPlayer(positions, opts.ScrubThreshold, metrics, logger)
	return m
}

func (m *Manager) SimInfoChanged(planID, entityID string, info simulate.SimInfo) {
	if m.listener != nil {
		m.listener.SimInfoChanged(planID, entityID, info)
	}
}

func (m *Manager) PlanDurationUpdated(planID string, totalSeconds float64) {
	if m.listener != nil {
		m.listener.PlanDurationUpdated(planID, totalSeconds)
	}
}

// ScrubRequested fires inside Simulate, before the player has seen the new
// durations, so the seek is deferred until the pass is analysed.
func (m *Manager) ScrubRequested(planID string, offsetSeconds float64) {
	if m.listener != nil {
		m.listener.ScrubRequested(planID, offsetSeconds)
	}
	m.pendingScrub = &offsetSeconds
}

// Load reads, simulates, persists and analyses the plan unconditionally.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, "initial")
}

// Refresh reloads the plan only when the loader reports a new version.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.loader.Version(ctx)
	if err != nil {
		return false, fmt.Errorf("plan version: %w", err)
	}
	if m.plan != nil && v == m.version {
		return false, nil
	}
	return true, m.load(ctx, "changed")
}

func (m *Manager) load(ctx context.Context, reason string) error {
	// A scrub requested by this pass never outlives it.
	defer func() { m.pendingScrub = nil }()

	version, err := m.loader.Version(ctx)
	if err != nil {
		return fmt.Errorf("plan version: %w", err)
	}
	p, err := m.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	res, err := m.driver.Simulate(p)
	if err != nil {
		return fmt.Errorf("simulate plan %s: %w", p.ID, err)
	}
	if res == nil {
		return nil
	}
	pruned := m.driver.Prune(p)
	if m.store != nil {
		if err := m.store.SaveSimInfo(ctx, res); err != nil {
			m.log.Error().Err(err).Str("plan", p.ID).Msg("store sim info failed")
		}
	}

	now := m.now()
	if m.plan == nil {
		m.start, m.anchor = now, now
		if !m.opts.PlanStart.IsZero() {
			m.start, m.anchor = m.opts.PlanStart, m.opts.PlanStart
		}
	}
	if err := m.player.Analyze(p, res, m.start); err != nil {
		return fmt.Errorf("analyze plan %s: %w", p.ID, err)
	}
	m.plan = p
	m.result = res
	m.version = version
	if m.metrics != nil {
		m.metrics.PlanReloads.WithLabelValues(reason).Inc()
	}
	m.log.Info().
		Str("plan", p.ID).
		Str("name", p.Name).
		Str("reason", reason).
		Int("elements", len(p.Sequence)).
		Int("commands", p.CommandCount()).
		Int("changed", len(res.Changed)).
		Int("pruned", pruned).
		Float64("duration_s", res.TotalSeconds()).
		Bool("playable", m.player.Valid()).
		Msg("plan loaded")

	if m.pendingScrub != nil {
		m.scrub(*m.pendingScrub)
	}
	return nil
}

// Plan returns the loaded plan and its last simulation result.
func (m *Manager) Plan() (*plan.Plan, *simulate.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan, m.result
}

// Select marks an entity as the scrub target and, when it has been simulated,
// moves playback to its start.
func (m *Manager) Select(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver.Select(id)
	info, ok := m.driver.Info(id)
	if !ok || m.plan == nil {
		return false
	}
	m.scrub(info.ElapsedTimeSeconds)
	return true
}

// Scrub moves playback to offsetSeconds past the plan start and keeps playing
// from there.
func (m *Manager) Scrub(offsetSeconds float64) (playback.Transform, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plan == nil {
		return playback.Transform{}, false
	}
	return m.scrub(offsetSeconds)
}

func (m *Manager) scrub(offsetSeconds float64) (playback.Transform, bool) {
	offset := time.Duration(offsetSeconds * float64(time.Second))
	m.anchor = m.now().Add(-time.Duration(float64(offset) / m.opts.SpeedMultiplier))
	return m.player.Seek(m.start.Add(offset))
}

// Tick maps wall time to playback time and updates the player.
func (m *Manager) Tick(now time.Time) (playback.Transform, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plan == nil || !m.player.Valid() {
		return playback.Transform{}, false
	}
	return m.player.Update(m.playbackTime(now))
}

func (m *Manager) playbackTime(now time.Time) time.Time {
	elapsed := time.Duration(float64(now.Sub(m.anchor)) * m.opts.SpeedMultiplier)
	if m.opts.Loop {
		if span, ok := m.player.Span(); ok {
			if d := span.Duration(); d > 0 {
				elapsed = time.Duration(math.Mod(float64(elapsed), float64(d)))
				if elapsed < 0 {
					elapsed += d
				}
			}
		}
	}
	return m.start.Add(elapsed)
}

// Run publishes positions every PublishInterval and polls for plan edits
// every RefreshInterval until ctx is cancelled. Load must have succeeded.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.opts.PublishInterval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var refresh <-chan time.Time
	if m.opts.RefreshInterval > 0 {
		t := time.NewTicker(m.opts.RefreshInterval)
		defer t.Stop()
		refresh = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			m.Tick(now)
		case <-refresh:
			changed, err := m.Refresh(ctx)
			if err != nil {
				m.log.Error().Err(err).Msg("refresh plan failed")
				continue
			}
			if changed {
				m.log.Info().Msg("plan changed, resimulated")
			}
		}
	}
}

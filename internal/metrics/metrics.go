package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	SimPasses      prometheus.Counter
	SimReentrant   prometheus.Counter
	SimInvalid     prometheus.Counter
	SnapshotWrites *prometheus.CounterVec // outcome label: changed|unchanged
	SimDuration    prometheus.Histogram
	PlanDuration   prometheus.Gauge // seconds

	Lookups           *prometheus.CounterVec // outcome label: hit|miss|invalid
	CursorSteps       prometheus.Histogram
	PositionsResolved prometheus.Counter

	PlanReloads *prometheus.CounterVec // reason label: initial|changed

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	SpeedMultiplier prometheus.Gauge
	PublishInterval prometheus.Gauge // seconds
	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(speedMultiplier float64, publishInterval, refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SimPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_simulation_passes_total",
			Help: "Total completed simulation passes.",
		}),
		SimReentrant: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_simulation_reentrant_total",
			Help: "Simulation requests ignored because a pass was already running.",
		}),
		SimInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_simulation_invalid_total",
			Help: "Simulation passes aborted by an invalid sequence.",
		}),
		SnapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_snapshot_writes_total",
			Help: "Snapshot writes by outcome.",
		}, []string{"outcome"}),
		SimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_simulation_duration_seconds",
			Help:    "Wall time of one simulation pass.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PlanDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_plan_duration_seconds",
			Help: "Simulated duration of the current plan.",
		}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_playback_lookups_total",
			Help: "Playback position lookups by outcome.",
		}, []string{"outcome"}),
		CursorSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_playback_cursor_steps",
			Help:    "Elements the playback cursor moved per lookup.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		PositionsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_playback_positions_total",
			Help: "Vehicle positions resolved during playback.",
		}),
		PlanReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_plan_reloads_total",
			Help: "Plan loads by reason.",
		}, []string{"reason"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_publish_duration_seconds",
			Help:    "Duration to encode and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_speed_multiplier",
			Help: "Playback speed multiplier.",
		}),
		PublishInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_publish_interval_seconds",
			Help: "Playback tick interval in seconds.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_refresh_interval_seconds",
			Help: "Plan refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.SimPasses, c.SimReentrant, c.SimInvalid, c.SnapshotWrites, c.SimDuration, c.PlanDuration,
		c.Lookups, c.CursorSteps, c.PositionsResolved,
		c.PlanReloads,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.SpeedMultiplier, c.PublishInterval, c.RefreshInterval,
	)

	c.SpeedMultiplier.Set(speedMultiplier)
	c.PublishInterval.Set(publishInterval.Seconds())
	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Server returns an HTTP server exposing /metrics on addr; the caller runs it.
func (c *Collector) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

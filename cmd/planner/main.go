package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plan-simulator/internal/config"
	"plan-simulator/internal/db"
	"plan-simulator/internal/geo"
	"plan-simulator/internal/logging"
	"plan-simulator/internal/metrics"
	"plan-simulator/internal/publisher"
	"plan-simulator/internal/sim"
	"plan-simulator/internal/vehicle"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config error")
	}

	log, closer := logging.New(cfg.LogLevel, cfg.LogFile)
	err = run(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("planner stopped")
	} else {
		log.Info().Msg("shutdown complete")
	}
	closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every resource opened after logging, so their deferred closes
// happen before main exits.
func run(cfg *config.Config, log zerolog.Logger) error {
	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SpeedMultiplier, cfg.PublishInterval, cfg.RefreshInterval)
	}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		sqlDB, err = openPlansDB(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer sqlDB.Close()
	}

	var (
		loader sim.Loader
		store  sim.Store
	)
	switch {
	case cfg.PlanFile != "":
		loader = sim.FileLoader{Path: cfg.PlanFile}
		if sqlDB != nil {
			store = sim.DBLoader{DB: sqlDB}
		}
	default:
		planID := cfg.PlanID
		if planID == "" {
			var err error
			planID, err = db.ResolveLatestPlanID(ctx, sqlDB, cfg.PlanName)
			if err != nil {
				return fmt.Errorf("resolve plan %q: %w", cfg.PlanName, err)
			}
			log.Info().Str("plan", planID).Str("name", cfg.PlanName).Msg("resolved plan by name")
		}
		l := sim.DBLoader{DB: sqlDB, PlanID: planID}
		loader, store = l, l
	}

	factory, err := vehicle.New(cfg.Vehicle, vehicle.Options{SpeedMps: cfg.RoverSpeedMps})
	if err != nil {
		return fmt.Errorf("vehicle model: %w", err)
	}

	pub, err := publisher.NewNATSPublisher(publisher.Options{
		URL:           cfg.NATSURL,
		SubjectPrefix: cfg.NATSSubjectPrefix,
		Encoding:      cfg.NATSEncoding,
		LogSubjects:   cfg.LogNATSSubjects,
	}, wrapPublisherMetrics(mcol), log)
	if err != nil {
		return fmt.Errorf("nats %s: %w", cfg.NATSURL, err)
	}
	defer pub.Close()

	mgr := sim.NewManager(loader, store, factory, pub, pub, sim.Options{
		PublishInterval: cfg.PublishInterval,
		RefreshInterval: cfg.RefreshInterval,
		SpeedMultiplier: cfg.SpeedMultiplier,
		ScrubThreshold:  cfg.ScrubThreshold,
		Loop:            cfg.Loop,
		PlanStart:       cfg.PlanStart,
	}, mcol, log)
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("initial plan load: %w", err)
	}
	if p, _ := mgr.Plan(); p != nil {
		ev := log.Info().
			Str("plan", p.ID).
			Str("vehicle", cfg.Vehicle).
			Int("stations", len(p.Stations())).
			Float64("route_m", geo.RouteLength(p))
		if route, err := geo.Route(p); err != nil {
			log.Warn().Err(err).Msg("plan route geometry")
		} else {
			ev = ev.Str("route", route.AsText())
		}
		ev.Msg("plan ready")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	if mcol != nil {
		srv := mcol.Server(cfg.MetricsAddr)
		g.Go(func() error {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func openPlansDB(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	dsn, err := db.WithDBName(cfg.DatabaseURL, cfg.PlansDatabase)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Info().Str("database", cfg.PlansDatabase).Msg("connected to plans database")
	return sqlDB, nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

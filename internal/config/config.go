package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL   string
	PlansDatabase string
	PlanID        string
	PlanName      string
	PlanFile      string

	Vehicle       string
	RoverSpeedMps float64

	PlanStart       time.Time
	PublishInterval time.Duration
	SpeedMultiplier float64
	ScrubThreshold  time.Duration
	RefreshInterval time.Duration
	Loop            bool

	NATSURL           string
	NATSSubjectPrefix string
	NATSEncoding      string
	LogNATSSubjects   bool

	MetricsAddr string
	LogLevel    string
	LogFile     string
	Location    *time.Location
}

func defaults(v *viper.Viper) {
	v.SetDefault("VEHICLE", "generic")
	v.SetDefault("ROVER_SPEED_MPS", 0.5)
	v.SetDefault("PUBLISH_INTERVAL_MS", 1000)
	v.SetDefault("SPEED_MULTIPLIER", 1.0)
	v.SetDefault("SCRUB_THRESHOLD_MS", 1000)
	v.SetDefault("PLAN_REFRESH_INTERVAL_SEC", 30)
	v.SetDefault("PLAYBACK_LOOP", false)
	v.SetDefault("NATS_URL", "nats://127.0.0.1:4222")
	v.SetDefault("NATS_SUBJECT_PREFIX", "plans")
	v.SetDefault("NATS_ENCODING", "json")
	v.SetDefault("LOG_NATS_SUBJECTS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PGHOST", "127.0.0.1")
	v.SetDefault("PGPORT", "5432")
	v.SetDefault("PGUSER", "postgres")
	v.SetDefault("PGSSLMODE", "disable")
}

// Load reads .env (if present) into the environment and builds the
// configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.PlanFile = strings.TrimSpace(v.GetString("PLAN_FILE"))
	cfg.PlanID = strings.TrimSpace(v.GetString("PLAN_ID"))
	cfg.PlanName = strings.TrimSpace(v.GetString("PLAN_NAME"))
	if cfg.PlanFile == "" && cfg.PlanID == "" && cfg.PlanName == "" {
		return nil, errors.New("one of PLAN_FILE, PLAN_ID or PLAN_NAME must be set")
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// Plans loaded from a file run without a database.
	cfg.DatabaseURL = firstNonEmpty(v.GetString("DATABASE_URL"), v.GetString("PG_DSN"))
	if cfg.DatabaseURL == "" && v.GetString("PGDATABASE") != "" {
		user, pass := v.GetString("PGUSER"), v.GetString("PGPASSWORD")
		auth := urlEscape(user)
		if pass != "" {
			auth += ":" + urlEscape(pass)
		}
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s",
			auth, v.GetString("PGHOST"), v.GetString("PGPORT"), v.GetString("PGDATABASE"), v.GetString("PGSSLMODE"))
	}
	if cfg.PlanFile == "" && cfg.DatabaseURL == "" {
		return nil, errors.New("PLAN_ID/PLAN_NAME need DATABASE_URL, PG_DSN or PGDATABASE")
	}
	cfg.PlansDatabase = v.GetString("PLANS_DATABASE")

	cfg.Vehicle = strings.ToLower(strings.TrimSpace(v.GetString("VEHICLE")))
	cfg.RoverSpeedMps = v.GetFloat64("ROVER_SPEED_MPS")
	if cfg.RoverSpeedMps <= 0 {
		return nil, fmt.Errorf("invalid ROVER_SPEED_MPS: %q", v.GetString("ROVER_SPEED_MPS"))
	}

	ms := v.GetInt("PUBLISH_INTERVAL_MS")
	if ms <= 0 {
		return nil, fmt.Errorf("invalid PUBLISH_INTERVAL_MS: %q", v.GetString("PUBLISH_INTERVAL_MS"))
	}
	cfg.PublishInterval = time.Duration(ms) * time.Millisecond

	cfg.SpeedMultiplier = v.GetFloat64("SPEED_MULTIPLIER")
	if cfg.SpeedMultiplier <= 0 {
		return nil, fmt.Errorf("invalid SPEED_MULTIPLIER: %q", v.GetString("SPEED_MULTIPLIER"))
	}

	ms = v.GetInt("SCRUB_THRESHOLD_MS")
	if ms < 0 {
		return nil, fmt.Errorf("invalid SCRUB_THRESHOLD_MS: %q", v.GetString("SCRUB_THRESHOLD_MS"))
	}
	cfg.ScrubThreshold = time.Duration(ms) * time.Millisecond

	// Zero disables the refresher.
	sec := v.GetInt("PLAN_REFRESH_INTERVAL_SEC")
	if sec < 0 {
		return nil, fmt.Errorf("invalid PLAN_REFRESH_INTERVAL_SEC: %q", v.GetString("PLAN_REFRESH_INTERVAL_SEC"))
	}
	cfg.RefreshInterval = time.Duration(sec) * time.Second
	cfg.Loop = v.GetBool("PLAYBACK_LOOP")

	cfg.NATSURL = v.GetString("NATS_URL")
	cfg.NATSSubjectPrefix = strings.Trim(v.GetString("NATS_SUBJECT_PREFIX"), ". ")
	cfg.NATSEncoding = strings.ToLower(v.GetString("NATS_ENCODING"))
	switch cfg.NATSEncoding {
	case "json", "msgpack":
	default:
		return nil, fmt.Errorf("invalid NATS_ENCODING: %q (want json or msgpack)", cfg.NATSEncoding)
	}
	cfg.LogNATSSubjects = v.GetBool("LOG_NATS_SUBJECTS")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = v.GetString("METRICS_ADDR")
	cfg.LogLevel = strings.ToLower(v.GetString("LOG_LEVEL"))
	cfg.LogFile = v.GetString("LOG_FILE")

	// Time zone
	if tzName := v.GetString("TZ"); tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	// Plan start; default is now.
	if s := strings.TrimSpace(v.GetString("PLAN_START")); s != "" {
		t, err := time.ParseInLocation(time.RFC3339, s, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid PLAN_START: %v", err)
		}
		cfg.PlanStart = t
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

// Package config handles simulator configuration from environment variables
// and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/mbd888/drivesim/internal/enrich"
	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/portfolio"
)

// Provider modes.
const (
	ModeSimulated = "simulated"
	ModeLive      = "live"
)

// Config holds all simulator configuration
type Config struct {
	LogLevel  string
	LogFormat string // "text" or "json"

	// Simulation
	Seed       uint64
	Drivers    int
	Months     int
	StartMonth time.Time
	Workers    int
	TripBuffer int
	Mix        portfolio.Mix

	// Enrichment
	ProviderMode        string
	Providers           map[string]enrich.PoolConfig // keyed by enrich.Kind*
	SamplesPerTrip      int
	SpeedLimitCacheSize int
	FaultRate           float64 // simulated providers only
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	OpenMeteoURL        string
	OverpassURL         string
	ChicagoTrafficURL   string
	ChicagoAppToken     string

	// Inputs and outputs
	DatabaseURL   string // PostgreSQL feature store (optional)
	SQLitePath    string // SQLite feature store (optional)
	OutputPath    string
	PortfolioPath string // read drivers from CSV instead of generating

	MetricsAddr      string        // empty disables the ops server
	MetricsLinger    time.Duration // keep serving after the run so the final scrape lands
	OTLPEndpoint     string
	TraceSampleRatio float64
	ConfigFile       string
}

const (
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultSeed             = 42
	DefaultDrivers          = 100
	DefaultMonths           = 12
	DefaultStartMonth       = "2024-01"
	DefaultWorkers          = 8
	DefaultTripBuffer       = 64
	DefaultOutputPath       = "monthly_features.csv"
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development) and applies
// SIM_CONFIG_FILE on top when set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		Seed:                getEnvUint64("SIM_SEED", DefaultSeed),
		Drivers:             getEnvInt("SIM_DRIVERS", DefaultDrivers),
		Months:              getEnvInt("SIM_MONTHS", DefaultMonths),
		Workers:             getEnvInt("SIM_WORKERS", DefaultWorkers),
		TripBuffer:          getEnvInt("TRIP_BUFFER", DefaultTripBuffer),
		Mix:                 portfolio.DefaultMix,
		ProviderMode:        getEnv("PROVIDER_MODE", ModeSimulated),
		Providers:           make(map[string]enrich.PoolConfig, len(enrich.Kinds)),
		SamplesPerTrip:      getEnvInt("SAMPLES_PER_TRIP", enrich.DefaultSamplesPerTrip),
		SpeedLimitCacheSize: getEnvInt("SPEED_LIMIT_CACHE_SIZE", enrich.DefaultCacheSize),
		FaultRate:           getEnvFloat("SIM_PROVIDER_FAILURE_RATE", 0),
		BreakerThreshold:    getEnvInt("BREAKER_THRESHOLD", DefaultBreakerThreshold),
		BreakerCooldown:     getEnvDuration("BREAKER_COOLDOWN", DefaultBreakerCooldown),
		OpenMeteoURL:        getEnv("OPEN_METEO_URL", enrich.DefaultOpenMeteoURL),
		OverpassURL:         getEnv("OVERPASS_URL", enrich.DefaultOverpassURL),
		ChicagoTrafficURL:   getEnv("CHICAGO_TRAFFIC_URL", enrich.DefaultChicagoTrafficURL),
		ChicagoAppToken:     os.Getenv("CHICAGO_APP_TOKEN"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          os.Getenv("SQLITE_PATH"),
		OutputPath:          getEnv("OUTPUT_PATH", DefaultOutputPath),
		PortfolioPath:       os.Getenv("PORTFOLIO_PATH"),
		MetricsAddr:         os.Getenv("METRICS_ADDR"),
		MetricsLinger:       getEnvDuration("METRICS_LINGER", 0),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		ConfigFile:          os.Getenv("SIM_CONFIG_FILE"),
	}

	var errs []error
	start, err := ParseMonth(getEnv("SIM_START_MONTH", DefaultStartMonth))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.StartMonth = start

	if v := os.Getenv("PERSONA_MIX"); v != "" {
		mix, err := portfolio.ParseMix(v)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Mix = mix
	}

	for _, kind := range enrich.Kinds {
		prefix := envPrefix(kind)
		def := enrich.PoolDefaults(kind, cfg.ProviderMode == ModeLive)
		cfg.Providers[kind] = enrich.PoolConfig{
			Concurrency: getEnvInt(prefix+"_CONCURRENCY", def.Concurrency),
			MinDelay:    getEnvDuration(prefix+"_MIN_DELAY", def.MinDelay),
			Timeout:     getEnvDuration(prefix+"_TIMEOUT", def.Timeout),
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.ApplyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envPrefix maps a provider kind to its env var prefix, e.g. SPEED_LIMIT.
func envPrefix(kind string) string {
	return strings.ToUpper(kind)
}

// ParseMonth parses a YYYY-MM month key as the first instant of that month in UTC.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(features.MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("SIM_START_MONTH %q: want YYYY-MM", s)
	}
	return t.UTC(), nil
}

// Overlay is the YAML file shape. Unset fields leave the env value alone.
type Overlay struct {
	Seed       *uint64                      `yaml:"seed"`
	Drivers    *int                         `yaml:"drivers"`
	Months     *int                         `yaml:"months"`
	StartMonth string                       `yaml:"start_month"`
	Workers    *int                         `yaml:"workers"`
	PersonaMix *portfolio.Mix               `yaml:"persona_mix"`
	Providers  map[string]enrich.PoolConfig `yaml:"providers"`
}

// ApplyFile overlays the YAML file at path onto c.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.ApplyYAML(data)
}

// ApplyYAML overlays a YAML document onto c.
func (c *Config) ApplyYAML(data []byte) error {
	var o Overlay
	if err := yaml.UnmarshalWithOptions(data, &o, yaml.Strict()); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.Drivers != nil {
		c.Drivers = *o.Drivers
	}
	if o.Months != nil {
		c.Months = *o.Months
	}
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
	if o.StartMonth != "" {
		start, err := ParseMonth(o.StartMonth)
		if err != nil {
			return err
		}
		c.StartMonth = start
	}
	if o.PersonaMix != nil {
		c.Mix = *o.PersonaMix
	}
	for kind, pc := range o.Providers {
		if _, ok := c.Providers[kind]; !ok {
			return fmt.Errorf("config file: unknown provider %q", kind)
		}
		c.Providers[kind] = pc
	}
	return nil
}

// Validate checks ranges and mutually dependent settings
func (c *Config) Validate() error {
	var errs []error
	if c.Drivers <= 0 && c.PortfolioPath == "" {
		errs = append(errs, fmt.Errorf("SIM_DRIVERS must be positive, got %d", c.Drivers))
	}
	if c.Months <= 0 {
		errs = append(errs, fmt.Errorf("SIM_MONTHS must be positive, got %d", c.Months))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("SIM_WORKERS must be positive, got %d", c.Workers))
	}
	if c.TripBuffer < 0 {
		errs = append(errs, fmt.Errorf("TRIP_BUFFER must not be negative, got %d", c.TripBuffer))
	}
	if c.PortfolioPath == "" {
		if err := c.Mix.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.ProviderMode {
	case ModeSimulated, ModeLive:
	default:
		errs = append(errs, fmt.Errorf("PROVIDER_MODE must be %q or %q, got %q", ModeSimulated, ModeLive, c.ProviderMode))
	}
	for _, kind := range enrich.Kinds {
		pc := c.Providers[kind]
		if pc.Concurrency <= 0 {
			errs = append(errs, fmt.Errorf("%s_CONCURRENCY must be positive", envPrefix(kind)))
		}
		if pc.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("%s_TIMEOUT must be positive", envPrefix(kind)))
		}
		if pc.MinDelay < 0 {
			errs = append(errs, fmt.Errorf("%s_MIN_DELAY must not be negative", envPrefix(kind)))
		}
	}
	if c.SamplesPerTrip <= 0 {
		errs = append(errs, fmt.Errorf("SAMPLES_PER_TRIP must be positive"))
	}
	if c.SpeedLimitCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("SPEED_LIMIT_CACHE_SIZE must be positive"))
	}
	if c.FaultRate < 0 || c.FaultRate > 1 {
		errs = append(errs, fmt.Errorf("SIM_PROVIDER_FAILURE_RATE must be in [0,1], got %v", c.FaultRate))
	}
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, fmt.Errorf("set at most one of DATABASE_URL and SQLITE_PATH"))
	}
	return errors.Join(errs...)
}

// IsLive reports whether real HTTP providers are used.
func (c *Config) IsLive() bool {
	return c.ProviderMode == ModeLive
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

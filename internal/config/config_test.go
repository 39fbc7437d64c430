package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/enrich"
	"github.com/mbd888/drivesim/internal/portfolio"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SIM_START_MONTH", "")
	t.Setenv("PERSONA_MIX", "")
	t.Setenv("PROVIDER_MODE", "")
	t.Setenv("SIM_CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(DefaultSeed), cfg.Seed)
	assert.Equal(t, DefaultMonths, cfg.Months)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartMonth)
	assert.Equal(t, portfolio.DefaultMix, cfg.Mix)
	assert.Equal(t, ModeSimulated, cfg.ProviderMode)
	assert.False(t, cfg.IsLive())
	for _, kind := range enrich.Kinds {
		assert.Equal(t, enrich.PoolDefaults(kind, false), cfg.Providers[kind], kind)
		assert.Zero(t, cfg.Providers[kind].MinDelay, kind)
	}
	assert.Equal(t, 1, cfg.Providers[enrich.KindSpeedLimit].Concurrency)
}

func TestLoad_LiveProviderDefaults(t *testing.T) {
	t.Setenv("PROVIDER_MODE", "live")
	t.Setenv("SIM_CONFIG_FILE", "")
	for _, kind := range enrich.Kinds {
		prefix := envPrefix(kind)
		t.Setenv(prefix+"_CONCURRENCY", "")
		t.Setenv(prefix+"_MIN_DELAY", "")
		t.Setenv(prefix+"_TIMEOUT", "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	speed := cfg.Providers[enrich.KindSpeedLimit]
	assert.Equal(t, 1, speed.Concurrency)
	assert.Equal(t, time.Second, speed.MinDelay)
	for _, kind := range []string{enrich.KindWeather, enrich.KindTraffic} {
		pc := cfg.Providers[kind]
		assert.Equal(t, 200*time.Millisecond, pc.MinDelay, kind)
		assert.Greater(t, pc.Concurrency, speed.Concurrency, kind)
		assert.Less(t, pc.MinDelay, speed.MinDelay, kind)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SIM_SEED", "7")
	t.Setenv("SIM_DRIVERS", "25")
	t.Setenv("SIM_MONTHS", "3")
	t.Setenv("SIM_START_MONTH", "2023-11")
	t.Setenv("PERSONA_MIX", "0.5,0.3,0.2")
	t.Setenv("PROVIDER_MODE", "live")
	t.Setenv("SPEED_LIMIT_CONCURRENCY", "2")
	t.Setenv("SPEED_LIMIT_MIN_DELAY", "250ms")
	t.Setenv("WEATHER_TIMEOUT", "5s")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.1")
	t.Setenv("SIM_CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 25, cfg.Drivers)
	assert.Equal(t, 3, cfg.Months)
	assert.Equal(t, time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), cfg.StartMonth)
	assert.Equal(t, portfolio.Mix{Safe: 0.5, Average: 0.3, Risky: 0.2}, cfg.Mix)
	assert.True(t, cfg.IsLive())
	assert.Equal(t, 2, cfg.Providers[enrich.KindSpeedLimit].Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Providers[enrich.KindSpeedLimit].MinDelay)
	assert.Equal(t, 5*time.Second, cfg.Providers[enrich.KindWeather].Timeout)
	assert.InDelta(t, 0.1, cfg.TraceSampleRatio, 1e-9)
}

func TestLoad_BadStartMonth(t *testing.T) {
	t.Setenv("SIM_START_MONTH", "January")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIM_START_MONTH")
}

func TestLoad_BadMix(t *testing.T) {
	t.Setenv("SIM_START_MONTH", "")
	t.Setenv("PERSONA_MIX", "0.5,0.5,0.5")
	_, err := Load()
	assert.ErrorIs(t, err, portfolio.ErrInvalidMix)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 99
months: 6
start_month: "2022-06"
persona_mix:
  safe: 0.2
  average: 0.4
  risky: 0.4
providers:
  traffic:
    concurrency: 1
    min_delay: 1s
    timeout: 3s
`), 0o600))
	t.Setenv("SIM_START_MONTH", "")
	t.Setenv("PERSONA_MIX", "")
	t.Setenv("SIM_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(99), cfg.Seed)
	assert.Equal(t, 6, cfg.Months)
	assert.Equal(t, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), cfg.StartMonth)
	assert.Equal(t, portfolio.Mix{Safe: 0.2, Average: 0.4, Risky: 0.4}, cfg.Mix)
	assert.Equal(t, enrich.PoolConfig{Concurrency: 1, MinDelay: time.Second, Timeout: 3 * time.Second},
		cfg.Providers[enrich.KindTraffic])
	assert.Equal(t, enrich.PoolDefaults(enrich.KindWeather, false), cfg.Providers[enrich.KindWeather])
}

func TestApplyYAML_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	err := cfg.ApplyYAML([]byte("providers:\n  tolls:\n    concurrency: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tolls")
}

func TestApplyYAML_UnknownField(t *testing.T) {
	cfg := validConfig()
	assert.Error(t, cfg.ApplyYAML([]byte("colour: blue\n")))
}

func validConfig() *Config {
	providers := make(map[string]enrich.PoolConfig)
	for _, k := range enrich.Kinds {
		providers[k] = enrich.DefaultPoolConfig()
	}
	return &Config{
		Drivers:             10,
		Months:              12,
		Workers:             2,
		TripBuffer:          8,
		Mix:                 portfolio.DefaultMix,
		ProviderMode:        ModeSimulated,
		Providers:           providers,
		SamplesPerTrip:      10,
		SpeedLimitCacheSize: 100,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero drivers", func(c *Config) { c.Drivers = 0 }, "SIM_DRIVERS"},
		{"zero drivers with portfolio file", func(c *Config) { c.Drivers = 0; c.PortfolioPath = "p.csv" }, ""},
		{"zero months", func(c *Config) { c.Months = 0 }, "SIM_MONTHS"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "SIM_WORKERS"},
		{"bad mode", func(c *Config) { c.ProviderMode = "mock" }, "PROVIDER_MODE"},
		{"bad mix", func(c *Config) { c.Mix = portfolio.Mix{Safe: 1, Risky: 1} }, "persona_mix"},
		{"zero concurrency", func(c *Config) {
			c.Providers[enrich.KindWeather] = enrich.PoolConfig{Timeout: time.Second}
		}, "WEATHER_CONCURRENCY"},
		{"zero timeout", func(c *Config) {
			c.Providers[enrich.KindSpeedLimit] = enrich.PoolConfig{Concurrency: 1}
		}, "SPEED_LIMIT_TIMEOUT"},
		{"fault rate", func(c *Config) { c.FaultRate = 1.5 }, "SIM_PROVIDER_FAILURE_RATE"},
		{"two stores", func(c *Config) { c.DatabaseURL = "postgres://x"; c.SQLitePath = "x.db" }, "at most one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "notanumber")
	t.Setenv("X_DUR", "90s")
	assert.Equal(t, 3, getEnvInt("X_INT", 3))
	assert.Equal(t, 90*time.Second, getEnvDuration("X_DUR", time.Second))
	assert.Equal(t, "fallback", getEnv("X_UNSET_KEY", "fallback"))
}

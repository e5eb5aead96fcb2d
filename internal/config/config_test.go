package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 14, cfg.Pipeline.Horizon.ShortDays)
	assert.Equal(t, 90, cfg.Pipeline.Horizon.LongDays)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 7, cfg.Predictions.MinAgeDays)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline, cfg.Pipeline)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volumerun.yaml")
	yamlDoc := `
database:
  enabled: true
  dsn: postgres://volumerun@localhost/volumerun?sslmode=disable
  max_open_conns: 20
cache:
  enabled: true
  addr: redis:6379
  ttl: 2h
monitor:
  port: 9191
pipeline:
  horizon:
    short_days: 7
  elasticity:
    min_efficiency: 0.25
predictions:
  min_age_days: 10
scheduler:
  enabled: true
  jobs:
    - name: measure
      type: predictions.measure
      interval: 30m
      enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns, "defaults kept for unset fields")
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "volumerun:scores:", cfg.Cache.KeyPrefix)
	assert.Equal(t, 9191, cfg.Monitor.Port)
	assert.Equal(t, 7, cfg.Pipeline.Horizon.ShortDays)
	assert.Equal(t, 30, cfg.Pipeline.Horizon.MediumDays)
	assert.Equal(t, 0.25, cfg.Pipeline.Elasticity.MinEfficiency)
	assert.Equal(t, 10, cfg.Predictions.MinAgeDays)
	assert.True(t, cfg.Scheduler.Enabled)
	require.Len(t, cfg.Scheduler.Jobs, 1, "a job list replaces the defaults")
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Jobs[0].Interval)
	assert.Equal(t, time.Minute, cfg.Scheduler.TickInterval)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOLUMERUN_PG_DSN", "postgres://env@db/volumerun")
	t.Setenv("VOLUMERUN_PG_ENABLED", "true")
	t.Setenv("VOLUMERUN_REDIS_ADDR", "cache:6380")
	t.Setenv("VOLUMERUN_REDIS_ENABLED", "true")
	t.Setenv("VOLUMERUN_REDIS_TTL", "30m")
	t.Setenv("VOLUMERUN_MONITOR_PORT", "not-a-port")
	t.Setenv("VOLUMERUN_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db/volumerun", cfg.Database.DSN)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "cache:6380", cfg.Cache.Addr)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 9090, cfg.Monitor.Port, "malformed values are ignored")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{
			name:    "database_without_dsn",
			mutate:  func(c *AppConfig) { c.Database.Enabled = true },
			wantErr: "database DSN is required",
		},
		{
			name:    "cache_without_addr",
			mutate:  func(c *AppConfig) { c.Cache.Enabled = true; c.Cache.Addr = "" },
			wantErr: "cache: addr is required",
		},
		{
			name:    "bad_port",
			mutate:  func(c *AppConfig) { c.Monitor.Port = 70000 },
			wantErr: "monitor: port 70000 out of range",
		},
		{
			name:    "windows_not_increasing",
			mutate:  func(c *AppConfig) { c.Pipeline.Horizon.MediumDays = 10 },
			wantErr: "windows must be increasing",
		},
		{
			name:    "efficiency_out_of_range",
			mutate:  func(c *AppConfig) { c.Pipeline.Elasticity.MinEfficiency = 1.5 },
			wantErr: "min_efficiency must be in (0, 1)",
		},
		{
			name:    "inverted_multiplier_range",
			mutate:  func(c *AppConfig) { c.Pipeline.DayOfWeek.MaxMultiplier = 0.5 },
			wantErr: "multiplier range",
		},
		{
			name:    "job_without_interval",
			mutate:  func(c *AppConfig) { c.Scheduler.Jobs[0].Interval = 0 },
			wantErr: "scheduler: job measure needs a positive interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Monitor.Port = 9300
	cfg.Pipeline.Content.MinPerType = 2

	require.NoError(t, Save(cfg, path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9300, loaded.Monitor.Port)
	assert.Equal(t, 2, loaded.Pipeline.Content.MinPerType)
}

func TestLoad_ShippedSample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "volumerun.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, Default().Pipeline.Horizon, cfg.Pipeline.Horizon)
	assert.Len(t, cfg.Scheduler.Jobs, 3)
	assert.Equal(t, 168*time.Hour, cfg.Scheduler.Jobs[2].Interval)
}

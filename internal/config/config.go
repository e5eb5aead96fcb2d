package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/volumerun/internal/application/optimizer"
	"github.com/sawpanic/volumerun/internal/application/predictions"
	"github.com/sawpanic/volumerun/internal/application/scoresource"
	"github.com/sawpanic/volumerun/internal/domain/captions"
	"github.com/sawpanic/volumerun/internal/domain/content"
	"github.com/sawpanic/volumerun/internal/domain/dow"
	"github.com/sawpanic/volumerun/internal/domain/elasticity"
	"github.com/sawpanic/volumerun/internal/domain/horizon"
	"github.com/sawpanic/volumerun/internal/domain/scores"
	"github.com/sawpanic/volumerun/internal/domain/volume"
	"github.com/sawpanic/volumerun/internal/infrastructure/db"
	"github.com/sawpanic/volumerun/internal/scheduler"
)

// AppConfig is the full volumerun configuration
type AppConfig struct {
	Database    db.Config               `yaml:"database"`
	Cache       scoresource.CacheConfig `yaml:"cache"`
	Monitor     MonitorConfig           `yaml:"monitor"`
	Log         LogConfig               `yaml:"log"`
	Pipeline    PipelineConfig          `yaml:"pipeline"`
	Predictions predictions.Config      `yaml:"predictions"`
	Scheduler   scheduler.Config        `yaml:"scheduler"`
}

// PipelineConfig groups the tunables of every pipeline stage
type PipelineConfig struct {
	Volume      volume.CalculatorConfig `yaml:"volume"`
	Scores      scores.Config           `yaml:"scores"`
	ScoreSource scoresource.Config      `yaml:"score_source"`
	Horizon     horizon.Config          `yaml:"horizon"`
	Elasticity  elasticity.Config       `yaml:"elasticity"`
	DayOfWeek   dow.Config              `yaml:"day_of_week"`
	Content     content.Config          `yaml:"content"`
	Captions    captions.Config         `yaml:"captions"`
	Optimizer   optimizer.Config        `yaml:"optimizer"`
}

// MonitorConfig holds the /health and /metrics listener settings
type MonitorConfig struct {
	Host         string        `yaml:"host"`          // Default: 127.0.0.1
	Port         int           `yaml:"port"`          // Default: 9090
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 10s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // Default: 60s
}

// LogConfig selects the zerolog level and output
type LogConfig struct {
	Level string `yaml:"level"` // Default: info
	JSON  bool   `yaml:"json"`  // force JSON even on a terminal
}

// Default returns a configuration with every section at its production default
func Default() *AppConfig {
	return &AppConfig{
		Database: db.DefaultConfig(),
		Cache:    scoresource.DefaultCacheConfig(),
		Monitor: MonitorConfig{
			Host:         "127.0.0.1",
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Pipeline: PipelineConfig{
			Volume:      volume.DefaultCalculatorConfig(),
			Scores:      scores.DefaultConfig(),
			ScoreSource: scoresource.DefaultConfig(),
			Horizon:     horizon.DefaultConfig(),
			Elasticity:  elasticity.DefaultConfig(),
			DayOfWeek:   dow.DefaultConfig(),
			Content:     content.DefaultConfig(),
			Captions:    captions.DefaultConfig(),
			Optimizer:   optimizer.DefaultConfig(),
		},
		Predictions: predictions.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
	}
}

// Load reads configuration from a YAML file on top of the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(configPath string) (*AppConfig, error) {
	config := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}

			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	config.Database.ApplyEnvOverrides()
	config.Database.ApplyDefaults()
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies the VOLUMERUN_* variables outside the database section
func applyEnvOverrides(c *AppConfig) {
	if addr := os.Getenv("VOLUMERUN_REDIS_ADDR"); addr != "" {
		c.Cache.Addr = addr
	}

	if pw := os.Getenv("VOLUMERUN_REDIS_PASSWORD"); pw != "" {
		c.Cache.Password = pw
	}

	if enabled := os.Getenv("VOLUMERUN_REDIS_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			c.Cache.Enabled = val
		}
	}

	if ttl := os.Getenv("VOLUMERUN_REDIS_TTL"); ttl != "" {
		if val, err := time.ParseDuration(ttl); err == nil {
			c.Cache.TTL = val
		}
	}

	if port := os.Getenv("VOLUMERUN_MONITOR_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			c.Monitor.Port = val
		}
	}

	if level := os.Getenv("VOLUMERUN_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Save writes the configuration as YAML
func Save(config *AppConfig, configPath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

// Validate checks every section and returns all problems joined
func (c *AppConfig) Validate() error {
	var errs []error

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, errors.New("cache: addr is required when the cache is enabled"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache: ttl cannot be negative"))
	}

	if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
		errs = append(errs, fmt.Errorf("monitor: port %d out of range", c.Monitor.Port))
	}

	h := c.Pipeline.Horizon
	if !(h.ShortDays > 0 && h.ShortDays < h.MediumDays && h.MediumDays < h.LongDays) {
		errs = append(errs, fmt.Errorf("pipeline.horizon: windows must be increasing, got %d/%d/%d", h.ShortDays, h.MediumDays, h.LongDays))
	}

	e := c.Pipeline.Elasticity
	if e.MinEfficiency <= 0 || e.MinEfficiency >= 1 {
		errs = append(errs, fmt.Errorf("pipeline.elasticity: min_efficiency must be in (0, 1), got %.2f", e.MinEfficiency))
	}

	d := c.Pipeline.DayOfWeek
	if d.MinMultiplier <= 0 || d.MaxMultiplier <= d.MinMultiplier {
		errs = append(errs, fmt.Errorf("pipeline.day_of_week: multiplier range [%.2f, %.2f] is invalid", d.MinMultiplier, d.MaxMultiplier))
	}

	if c.Pipeline.Content.MinPerType < 0 {
		errs = append(errs, errors.New("pipeline.content: min_per_type cannot be negative"))
	}

	if c.Predictions.MinAgeDays < 0 {
		errs = append(errs, errors.New("predictions: min_age_days cannot be negative"))
	}
	if c.Predictions.RatePerSecond < 0 {
		errs = append(errs, errors.New("predictions: rate_per_second cannot be negative"))
	}

	for _, job := range c.Scheduler.Jobs {
		if job.Enabled && job.Interval <= 0 {
			errs = append(errs, fmt.Errorf("scheduler: job %s needs a positive interval", job.Name))
		}
	}

	return errors.Join(errs...)
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/volumerun/internal/persistence"
	"github.com/sawpanic/volumerun/internal/persistence/postgres"
)

// Config holds database connection configuration
type Config struct {
	DSN             string        `yaml:"dsn" env:"VOLUMERUN_PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"VOLUMERUN_PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"VOLUMERUN_PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"VOLUMERUN_PG_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"VOLUMERUN_PG_CONN_MAX_IDLE_TIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"VOLUMERUN_PG_QUERY_TIMEOUT"`
	Enabled         bool          `yaml:"enabled" env:"VOLUMERUN_PG_ENABLED"`
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false, // requires explicit configuration
	}
}

// Manager owns the connection pool and the repositories built on it
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens and pings the pool. A disabled config yields a manager
// without repositories.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{
			config: config,
			health: &healthChecker{enabled: false},
		}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Int("max_open_conns", config.MaxOpenConns).
		Dur("query_timeout", config.QueryTimeout).
		Msg("Database connection pool ready")

	return NewManagerWithDB(db, config), nil
}

// NewManagerWithDB wraps an already opened pool
func NewManagerWithDB(db *sqlx.DB, config Config) *Manager {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultConfig().QueryTimeout
	}
	config.Enabled = true
	return &Manager{
		db:     db,
		config: config,
		repos:  postgres.NewRepository(db, config.QueryTimeout),
		health: &healthChecker{enabled: true, db: db, timeout: config.QueryTimeout},
	}
}

// Repository returns the repository collection, or nil if database is disabled
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the health checker interface
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// DB returns the underlying pool
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// IsEnabled returns whether database persistence is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// requiredTables are the tables the pipeline reads or writes. A missing one
// fails the health check even when the server answers pings.
var requiredTables = []string{
	"creators",
	"mass_messages",
	"top_content_types",
	"caption_bank",
	"send_types",
	"volume_predictions",
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

// Health pings the pool and confirms the schema. A saturated pool is
// reported but does not fail the check.
func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	checkedAt := time.Now()
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:        true,
			Errors:         []string{"database persistence disabled"},
			ConnectionPool: map[string]int{"status": 0},
			LastCheck:      checkedAt,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	pool := poolGauges(h.db.Stats())
	check := persistence.HealthCheck{Healthy: true, ConnectionPool: pool, LastCheck: checkedAt}

	if err := h.db.PingContext(ctx); err != nil {
		check.Healthy = false
		check.Errors = append(check.Errors, fmt.Sprintf("ping failed: %v", err))
	} else if missing, err := h.missingTables(ctx); err != nil {
		check.Healthy = false
		check.Errors = append(check.Errors, fmt.Sprintf("schema check failed: %v", err))
	} else if len(missing) > 0 {
		check.Healthy = false
		check.Errors = append(check.Errors, "missing tables: "+strings.Join(missing, ", "))
	}

	if pool["max_open"] > 0 && pool["in_use"] >= pool["max_open"] {
		check.Errors = append(check.Errors, fmt.Sprintf("connection pool saturated: %d/%d in use", pool["in_use"], pool["max_open"]))
	}

	check.ResponseTimeMS = time.Since(checkedAt).Milliseconds()
	return check
}

// missingTables returns the required tables the connected database lacks
func (h *healthChecker) missingTables(ctx context.Context) ([]string, error) {
	query := `SELECT t FROM unnest($1::text[]) AS t WHERE to_regclass(t) IS NULL ORDER BY t`

	var missing []string
	if err := h.db.SelectContext(ctx, &missing, query, pq.Array(requiredTables)); err != nil {
		return nil, err
	}
	return missing, nil
}

// Ping tests basic connectivity to database
func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(ctx)
}

// Stats returns the pool gauges plus the configured query timeout
func (h *healthChecker) Stats(ctx context.Context) map[string]interface{} {
	if !h.enabled {
		return map[string]interface{}{"enabled": false, "status": "disabled"}
	}

	out := map[string]interface{}{
		"enabled":          true,
		"query_timeout_ms": h.timeout.Milliseconds(),
		"required_tables":  len(requiredTables),
	}
	for k, v := range poolGauges(h.db.Stats()) {
		out[k] = v
	}
	return out
}

func poolGauges(stats sql.DBStats) map[string]int {
	return map[string]int{
		"max_open":         stats.MaxOpenConnections,
		"open":             stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       int(stats.WaitCount),
		"wait_duration_ms": int(stats.WaitDuration.Milliseconds()),
		"closed_idle":      int(stats.MaxIdleClosed + stats.MaxIdleTimeClosed),
		"closed_lifetime":  int(stats.MaxLifetimeClosed),
	}
}

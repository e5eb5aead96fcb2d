package scoresource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/volumerun/internal/domain/horizon"
)

// Cache stores per-window scores keyed by creator and lookback length
type Cache interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, creatorID string, periodDays int) (*horizon.Scores, error)
	Set(ctx context.Context, creatorID string, periodDays int, scores horizon.Scores) error
}

// CacheConfig holds Redis and breaker settings
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" env:"VOLUMERUN_REDIS_ENABLED"`
	Addr            string        `yaml:"addr" env:"VOLUMERUN_REDIS_ADDR"`
	Password        string        `yaml:"password" env:"VOLUMERUN_REDIS_PASSWORD"`
	DB              int           `yaml:"db"`
	TTL             time.Duration `yaml:"ttl"`              // Default: 6h
	KeyPrefix       string        `yaml:"key_prefix"`       // Default: "volumerun:scores:"
	BreakerFailures uint32        `yaml:"breaker_failures"` // Default: 5 consecutive failures
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`  // Default: 30s open before probing
}

// DefaultCacheConfig returns the production cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:            "localhost:6379",
		TTL:             6 * time.Hour,
		KeyPrefix:       "volumerun:scores:",
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

func (c *CacheConfig) applyDefaults() {
	def := DefaultCacheConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = def.BreakerTimeout
	}
}

// NewRedisClient opens a client and pings it
func NewRedisClient(ctx context.Context, cfg CacheConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// RedisCache is a Cache on Redis behind a circuit breaker. While the breaker
// is open calls fail fast with gobreaker.ErrOpenState.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	config  CacheConfig
}

// NewRedisCache wraps an existing client
func NewRedisCache(client *redis.Client, config CacheConfig) *RedisCache {
	config.applyDefaults()

	settings := gobreaker.Settings{
		Name:        "score-cache",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Score cache circuit breaker changed state")
		},
	}

	return &RedisCache{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		config:  config,
	}
}

// Key builds the cache key of one creator window
func (c *RedisCache) Key(creatorID string, periodDays int) string {
	return fmt.Sprintf("%s%s:%d", c.config.KeyPrefix, creatorID, periodDays)
}

// Get returns cached scores, or nil on a miss
func (c *RedisCache) Get(ctx context.Context, creatorID string, periodDays int) (*horizon.Scores, error) {
	key := c.Key(creatorID, periodDays)
	out, err := c.breaker.Execute(func() (interface{}, error) {
		val, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	raw, _ := out.([]byte)
	if raw == nil {
		return nil, nil
	}

	var s horizon.Scores
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode cached scores %s: %w", key, err)
	}
	return &s, nil
}

// Set stores scores with the configured TTL
func (c *RedisCache) Set(ctx context.Context, creatorID string, periodDays int, scores horizon.Scores) error {
	key := c.Key(creatorID, periodDays)
	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		if err := c.client.Set(ctx, key, raw, c.config.TTL).Err(); err != nil {
			return nil, fmt.Errorf("redis set %s: %w", key, err)
		}
		return nil, nil
	})
	return err
}

// Invalidate drops every cached window of a creator
func (c *RedisCache) Invalidate(ctx context.Context, creatorID string, periods ...int) error {
	if len(periods) == 0 {
		return nil
	}
	keys := make([]string, 0, len(periods))
	for _, p := range periods {
		keys = append(keys, c.Key(creatorID, p))
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return nil, fmt.Errorf("redis del: %w", err)
		}
		return nil, nil
	})
	return err
}

// State reports the breaker state for health output
func (c *RedisCache) State() string {
	return c.breaker.State().String()
}

package scoresource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/horizon"
	"github.com/sawpanic/volumerun/internal/domain/scores"
	"github.com/sawpanic/volumerun/internal/metrics"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// Origin tells where a score pair came from
type Origin int

const (
	OriginCache Origin = iota
	OriginPrecomputed
	OriginComputed
)

func (o Origin) String() string {
	switch o {
	case OriginCache:
		return "cache"
	case OriginPrecomputed:
		return "precomputed"
	case OriginComputed:
		return "computed"
	default:
		return "unknown"
	}
}

// MarshalText renders the origin name in JSON output
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is one window's scores and their origin
type Result struct {
	Scores horizon.Scores `json:"scores"`
	Origin Origin         `json:"origin"`
}

// Config holds lookup settings
type Config struct {
	MaxScoreAge time.Duration `yaml:"max_score_age"` // Default: 48h, older precomputed rows are ignored
}

// DefaultConfig returns the production lookup settings
func DefaultConfig() Config {
	return Config{MaxScoreAge: 48 * time.Hour}
}

// Source resolves scores from the cache, then the precomputed store, then
// by computing them from raw history. Cache failures are logged and skipped.
type Source struct {
	cache    Cache
	scores   persistence.ScoreRepo
	messages persistence.MessageRepo
	calc     *scores.Calculator
	config   Config
	metrics  *metrics.Registry
	now      func() time.Time
}

// Option customizes a Source
type Option func(*Source)

// WithCache enables the score cache
func WithCache(c Cache) Option { return func(s *Source) { s.cache = c } }

// WithMetrics records cache hits and misses
func WithMetrics(m *metrics.Registry) Option { return func(s *Source) { s.metrics = m } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(s *Source) { s.now = now } }

// New creates a source. scoreRepo may be nil when no precomputed store exists.
func New(scoreRepo persistence.ScoreRepo, messages persistence.MessageRepo, calc *scores.Calculator, config Config, opts ...Option) *Source {
	if config.MaxScoreAge <= 0 {
		config.MaxScoreAge = DefaultConfig().MaxScoreAge
	}
	s := &Source{
		scores:   scoreRepo,
		messages: messages,
		calc:     calc,
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get resolves the scores of one lookback window
func (s *Source) Get(ctx context.Context, creatorID string, periodDays int) (Result, error) {
	if periodDays <= 0 {
		return Result{}, domain.Invalid("period_days", "must be positive, got %d", periodDays)
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, creatorID, periodDays)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("creator_id", creatorID).Int("period_days", periodDays).
				Msg("Score cache unavailable, falling back")
			s.metrics.RecordCacheMiss(metrics.CacheScores)
		case cached != nil:
			s.metrics.RecordCacheHit(metrics.CacheScores)
			return Result{Scores: *cached, Origin: OriginCache}, nil
		default:
			s.metrics.RecordCacheMiss(metrics.CacheScores)
		}
	}

	now := s.now()
	res, err := s.resolve(ctx, creatorID, periodDays, now)
	if err != nil {
		return Result{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, creatorID, periodDays, res.Scores); err != nil {
			log.Warn().Err(err).Str("creator_id", creatorID).Int("period_days", periodDays).
				Msg("Failed to cache scores")
		}
	}
	return res, nil
}

func (s *Source) resolve(ctx context.Context, creatorID string, periodDays int, now time.Time) (Result, error) {
	if s.scores != nil {
		pre, err := s.scores.Latest(ctx, creatorID, periodDays, now.Add(-s.config.MaxScoreAge))
		if err != nil {
			return Result{}, err
		}
		if pre != nil {
			return Result{
				Scores: horizon.Scores{
					Saturation:   pre.SaturationScore,
					Opportunity:  pre.OpportunityScore,
					RevenueTrend: pre.RevenueTrend,
					MessageCount: pre.MessageCount,
				},
				Origin: OriginPrecomputed,
			}, nil
		}
	}

	tr := persistence.TimeRange{From: now.AddDate(0, 0, -periodDays), To: now}
	history, err := s.messages.ListRange(ctx, creatorID, tr)
	if err != nil {
		return Result{}, err
	}
	computed, err := s.calc.Calculate(history)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute %d-day scores for %s: %w", periodDays, creatorID, err)
	}
	return Result{Scores: computed, Origin: OriginComputed}, nil
}

// Horizons resolves every fusion window. Windows without enough data are
// left nil; any other failure aborts.
func (s *Source) Horizons(ctx context.Context, creatorID string, cfg horizon.Config) (horizon.Horizons, map[horizon.Window]Origin, error) {
	var h horizon.Horizons
	origins := make(map[horizon.Window]Origin, len(horizon.Windows))

	for _, w := range horizon.Windows {
		res, err := s.Get(ctx, creatorID, cfg.Days(w))
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				log.Debug().Str("creator_id", creatorID).Str("window", w.String()).Err(err).
					Msg("Horizon has insufficient data")
				continue
			}
			return horizon.Horizons{}, nil, err
		}
		sc := res.Scores
		h.Set(w, &sc)
		origins[w] = res.Origin
	}
	return h, origins, nil
}

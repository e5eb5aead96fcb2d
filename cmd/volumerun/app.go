package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/volumerun/internal/application/optimizer"
	"github.com/sawpanic/volumerun/internal/application/predictions"
	"github.com/sawpanic/volumerun/internal/application/scoresource"
	"github.com/sawpanic/volumerun/internal/config"
	"github.com/sawpanic/volumerun/internal/domain/captions"
	"github.com/sawpanic/volumerun/internal/domain/content"
	"github.com/sawpanic/volumerun/internal/domain/dow"
	"github.com/sawpanic/volumerun/internal/domain/elasticity"
	"github.com/sawpanic/volumerun/internal/domain/horizon"
	"github.com/sawpanic/volumerun/internal/domain/scores"
	"github.com/sawpanic/volumerun/internal/domain/volume"
	"github.com/sawpanic/volumerun/internal/infrastructure/db"
	httpserver "github.com/sawpanic/volumerun/internal/interfaces/http"
	"github.com/sawpanic/volumerun/internal/metrics"
	"github.com/sawpanic/volumerun/internal/persistence"
	"github.com/sawpanic/volumerun/internal/scheduler"
)

var errDatabaseDisabled = errors.New("database is disabled: set database.enabled or VOLUMERUN_PG_ENABLED")

// app holds the wired process: connections, metrics and services
type app struct {
	config  *config.AppConfig
	db      *db.Manager
	redis   *redis.Client
	cache   *scoresource.RedisCache
	metrics *metrics.Registry
	tracker *predictions.Tracker
	service *optimizer.Service
}

// newApp opens Postgres and the optional Redis cache and builds the services.
// With the database disabled only the monitor can run.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{config: cfg, metrics: metrics.NewRegistry()}

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = manager

	if cfg.Cache.Enabled {
		client, err := scoresource.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			// scores still resolve from Postgres without the cache
			log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Score cache unavailable, continuing without it")
		} else {
			a.redis = client
			a.cache = scoresource.NewRedisCache(client, cfg.Cache)
		}
	}

	if !manager.IsEnabled() {
		log.Warn().Msg("Database disabled, optimizer and predictions unavailable")
		return a, nil
	}

	if err := a.buildServices(manager.Repository()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildServices(repos *persistence.Repository) error {
	p := a.config.Pipeline

	elasticityOpt, err := elasticity.NewOptimizer(elasticity.NewModel(p.Elasticity))
	if err != nil {
		return fmt.Errorf("failed to build elasticity optimizer: %w", err)
	}
	contentOpt, err := content.NewOptimizer(content.NewWeighter(p.Content))
	if err != nil {
		return fmt.Errorf("failed to build content optimizer: %w", err)
	}

	calc := scores.NewCalculator(p.Scores)
	sourceOpts := []scoresource.Option{scoresource.WithMetrics(a.metrics)}
	if a.cache != nil {
		sourceOpts = append(sourceOpts, scoresource.WithCache(a.cache))
	}
	source := scoresource.New(repos.Scores, repos.Messages, calc, p.ScoreSource, sourceOpts...)

	a.tracker = predictions.NewTracker(repos.Predictions, repos.Messages, repos.Creators, a.config.Predictions,
		predictions.WithMetrics(a.metrics))

	a.service, err = optimizer.New(optimizer.Deps{
		Creators:     repos.Creators,
		Messages:     repos.Messages,
		ContentTypes: repos.ContentTypes,
		Captions:     repos.Captions,
		Scores:       source,
		Fuser:        horizon.NewFuser(p.Horizon),
		Calculator:   volume.NewCalculator(p.Volume),
		Elasticity:   elasticityOpt,
		DayOfWeek:    dow.NewModel(p.DayOfWeek),
		Content:      contentOpt,
		Checker:      captions.NewChecker(p.Captions),
		Tracker:      a.tracker,
	}, p.Optimizer, optimizer.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to build optimizer: %w", err)
	}
	return nil
}

// requireServices fails when the database, and so every service, is off
func (a *app) requireServices() error {
	if a.service == nil || a.tracker == nil {
		return errDatabaseDisabled
	}
	return nil
}

// healthHandler avoids handing typed nils to the handler
func (a *app) healthHandler() *httpserver.HealthHandler {
	var dbHealth persistence.RepositoryHealth
	if a.db.IsEnabled() {
		dbHealth = a.db.Health()
	}
	var breaker httpserver.BreakerState
	if a.cache != nil {
		breaker = a.cache
	}
	return httpserver.NewHealthHandler(dbHealth, breaker, version)
}

// Close releases the Redis client and the database pool
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// runners maps scheduled job types onto the services
func (a *app) runners() map[string]scheduler.Runner {
	return map[string]scheduler.Runner{
		scheduler.JobMeasure: func(ctx context.Context) (string, error) {
			res, err := a.tracker.MeasurePending(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("measured %d, skipped %d, failed %d", res.Measured, res.Skipped, res.Failed), nil
		},
		scheduler.JobAccuracy: func(ctx context.Context) (string, error) {
			rep, err := a.tracker.AccuracyReport(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d creators with measured predictions, %d failed", len(rep.Creators), rep.Failed), nil
		},
		scheduler.JobWeekly: func(ctx context.Context) (string, error) {
			res, err := a.service.CalculateActive(ctx, optimizer.Options{SavePrediction: true})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("calculated %d, failed %d, %d weekly sends", res.Calculated, res.Failed, res.WeeklyTotal), nil
		},
	}
}

func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	if err := a.requireServices(); err != nil {
		return nil, err
	}
	return scheduler.New(a.config.Scheduler, a.runners())
}

package predictions

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/metrics"
	"github.com/sawpanic/volumerun/internal/persistence"
)

const week = 7 * 24 * time.Hour

// Config holds feedback loop settings
type Config struct {
	MinAgeDays    int     `yaml:"min_age_days"`    // Default: 7, counted from the week start
	BatchSize     int     `yaml:"batch_size"`      // Default: 200 rows per MeasurePending
	RatePerSecond float64 `yaml:"rate_per_second"` // Default: 10 measurements/s
	Burst         int     `yaml:"burst"`           // Default: 1
}

// DefaultConfig returns the production feedback settings
func DefaultConfig() Config {
	return Config{
		MinAgeDays:    7,
		BatchSize:     200,
		RatePerSecond: 10,
		Burst:         1,
	}
}

// Outcome is a measured prediction
type Outcome struct {
	PredictionID      int64     `json:"prediction_id"`
	CreatorID         string    `json:"creator_id"`
	WeekStart         time.Time `json:"week_start"`
	PredictedRevenue  float64   `json:"predicted_revenue"`
	ActualRevenue     float64   `json:"actual_revenue"`
	PredictedMessages int       `json:"predicted_messages"`
	ActualMessages    int       `json:"actual_messages"`
	RevenueErrorPct   *float64  `json:"revenue_error_pct,omitempty"` // nil when nothing was predicted
	VolumeErrorPct    *float64  `json:"volume_error_pct,omitempty"`
	MeasuredAt        time.Time `json:"measured_at"`
}

// Accuracy summarizes a creator's measured predictions
type Accuracy struct {
	CreatorID           string   `json:"creator_id"`
	TotalPredictions    int      `json:"total_predictions"`
	MeasuredPredictions int      `json:"measured_predictions"`
	RevenueMAPE         *float64 `json:"revenue_mape,omitempty"`
	VolumeMAPE          *float64 `json:"volume_mape,omitempty"`
	RevenueBias         *float64 `json:"revenue_bias,omitempty"` // mean signed error, positive = under-predicted
	DirectionalAccuracy *float64 `json:"directional_accuracy,omitempty"`
}

// BatchResult counts the rows handled by a batch run
type BatchResult struct {
	Measured int `json:"measured"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Report is the accuracy of every active creator with predictions
type Report struct {
	Creators []Accuracy `json:"creators"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
}

// Tracker saves predictions and measures them against realized sends
type Tracker struct {
	predictions persistence.PredictionRepo
	messages    persistence.MessageRepo
	creators    persistence.CreatorRepo
	config      Config
	limiter     *rate.Limiter
	metrics     *metrics.Registry
	now         func() time.Time
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithMetrics records saves and measurements
func WithMetrics(m *metrics.Registry) Option { return func(t *Tracker) { t.metrics = m } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// NewTracker creates a tracker, filling zero config fields with defaults
func NewTracker(preds persistence.PredictionRepo, messages persistence.MessageRepo, creators persistence.CreatorRepo, config Config, opts ...Option) *Tracker {
	def := DefaultConfig()
	if config.MinAgeDays <= 0 {
		config.MinAgeDays = def.MinAgeDays
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = def.RatePerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}

	t := &Tracker{
		predictions: preds,
		messages:    messages,
		creators:    creators,
		config:      config,
		limiter:     rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Save persists a new prediction and returns its id
func (t *Tracker) Save(ctx context.Context, p persistence.VolumePrediction) (int64, error) {
	if p.CreatorID == "" {
		return 0, domain.Invalid("creator_id", "must not be empty")
	}
	if p.PredictedWeeklyMessages < 0 {
		return 0, domain.Invalid("predicted_weekly_messages", "must be non-negative, got %d", p.PredictedWeeklyMessages)
	}
	if p.PredictedWeeklyRevenue < 0 {
		return 0, domain.Invalid("predicted_weekly_revenue", "must be non-negative, got %.2f", p.PredictedWeeklyRevenue)
	}
	if p.PredictionDate.IsZero() {
		p.PredictionDate = t.now()
	}

	id, err := t.predictions.Insert(ctx, p)
	if err != nil {
		return 0, err
	}
	t.metrics.RecordPredictionSaved()

	log.Info().
		Str("creator_id", p.CreatorID).
		Str("run_id", p.RunID).
		Int64("prediction_id", id).
		Int("weekly_messages", p.PredictedWeeklyMessages).
		Float64("weekly_revenue", p.PredictedWeeklyRevenue).
		Msg("Prediction saved")
	return id, nil
}

// MeasureOutcome compares a prediction with the sends of its week. It returns
// nil when the prediction does not exist, is already measured or its week is
// younger than MinAgeDays.
func (t *Tracker) MeasureOutcome(ctx context.Context, id int64) (*Outcome, error) {
	p, err := t.predictions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.OutcomeMeasured {
		return nil, nil
	}

	now := t.now()
	minAge := time.Duration(t.config.MinAgeDays) * 24 * time.Hour
	if now.Sub(p.WeekStart) < minAge {
		log.Debug().Int64("prediction_id", id).Time("week_start", p.WeekStart).Msg("Prediction too recent to measure")
		return nil, nil
	}

	totals, err := t.messages.Totals(ctx, p.CreatorID, persistence.TimeRange{From: p.WeekStart, To: p.WeekStart.Add(week)})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		PredictionID:      p.ID,
		CreatorID:         p.CreatorID,
		WeekStart:         p.WeekStart,
		PredictedRevenue:  p.PredictedWeeklyRevenue,
		ActualRevenue:     totals.Revenue,
		PredictedMessages: p.PredictedWeeklyMessages,
		ActualMessages:    totals.Messages,
		RevenueErrorPct:   PercentError(p.PredictedWeeklyRevenue, totals.Revenue),
		VolumeErrorPct:    PercentError(float64(p.PredictedWeeklyMessages), float64(totals.Messages)),
		MeasuredAt:        now,
	}

	updated, err := t.predictions.MarkMeasured(ctx, p.ID, persistence.MeasuredOutcome{
		ActualTotalRevenue:     out.ActualRevenue,
		ActualMessagesSent:     out.ActualMessages,
		RevenuePredictionError: out.RevenueErrorPct,
		VolumePredictionError:  out.VolumeErrorPct,
		MeasuredAt:             now,
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		// measured concurrently
		return nil, nil
	}

	t.metrics.RecordMeasurement(metrics.MeasureMeasured, out.RevenueErrorPct)
	log.Info().
		Str("creator_id", p.CreatorID).
		Int64("prediction_id", p.ID).
		Float64("actual_revenue", out.ActualRevenue).
		Int("actual_messages", out.ActualMessages).
		Msg("Prediction measured")
	return out, nil
}

// Accuracy aggregates a creator's measured predictions, or returns nil when
// none are measured
func (t *Tracker) Accuracy(ctx context.Context, creatorID string) (*Accuracy, error) {
	measured, err := t.predictions.ListMeasured(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if len(measured) == 0 {
		return nil, nil
	}
	total, err := t.predictions.CountByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	acc := &Accuracy{
		CreatorID:           creatorID,
		TotalPredictions:    total,
		MeasuredPredictions: len(measured),
	}

	var revAbs, volAbs, revSigned []float64
	for _, p := range measured {
		if p.RevenuePredictionError != nil {
			revAbs = append(revAbs, math.Abs(*p.RevenuePredictionError))
			revSigned = append(revSigned, *p.RevenuePredictionError)
		}
		if p.VolumePredictionError != nil {
			volAbs = append(volAbs, math.Abs(*p.VolumePredictionError))
		}
	}
	acc.RevenueMAPE = mean(revAbs)
	acc.VolumeMAPE = mean(volAbs)
	acc.RevenueBias = mean(revSigned)
	acc.DirectionalAccuracy = directionalAccuracy(measured)
	return acc, nil
}

// MeasurePending measures unmeasured predictions old enough to have a full
// week of sends. Row failures are logged and counted; the batch only stops
// when listing fails or ctx is done.
func (t *Tracker) MeasurePending(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	timer := t.metrics.StartStepTimer(metrics.StepMeasure)

	cutoff := t.now().Add(-time.Duration(t.config.MinAgeDays) * 24 * time.Hour)
	pending, err := t.predictions.ListUnmeasured(ctx, cutoff, t.config.BatchSize)
	if err != nil {
		timer.Stop(metrics.ResultError)
		return res, err
	}

	for _, p := range pending {
		if err := t.limiter.Wait(ctx); err != nil {
			timer.Stop(metrics.ResultError)
			return res, err
		}

		out, err := t.MeasureOutcome(ctx, p.ID)
		switch {
		case err != nil:
			res.Failed++
			t.metrics.RecordMeasurement(metrics.MeasureFailed, nil)
			log.Error().Err(err).
				Str("creator_id", p.CreatorID).
				Int64("prediction_id", p.ID).
				Msg("Failed to measure prediction")
		case out == nil:
			res.Skipped++
			t.metrics.RecordMeasurement(metrics.MeasureSkipped, nil)
		default:
			res.Measured++
		}
	}

	timer.Stop(metrics.ResultSuccess)
	log.Info().
		Int("pending", len(pending)).
		Int("measured", res.Measured).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Prediction batch finished")
	return res, nil
}

// AccuracyReport computes Accuracy for every active creator. Creators without
// measured predictions are skipped and per-creator failures are counted.
func (t *Tracker) AccuracyReport(ctx context.Context) (Report, error) {
	var rep Report
	timer := t.metrics.StartStepTimer(metrics.StepAccuracy)

	active, err := t.creators.ListActive(ctx)
	if err != nil {
		timer.Stop(metrics.ResultError)
		return rep, err
	}

	for _, c := range active {
		if err := ctx.Err(); err != nil {
			timer.Stop(metrics.ResultError)
			return rep, err
		}
		acc, err := t.Accuracy(ctx, c.CreatorID)
		if err != nil {
			rep.Failed++
			log.Error().Err(err).Str("creator_id", c.CreatorID).Msg("Failed to compute prediction accuracy")
			continue
		}
		if acc == nil {
			rep.Skipped++
			continue
		}
		rep.Creators = append(rep.Creators, *acc)
	}

	timer.Stop(metrics.ResultSuccess)
	return rep, nil
}

// PercentError returns (actual - predicted) / predicted * 100, or nil when
// predicted is zero
func PercentError(predicted, actual float64) *float64 {
	if predicted == 0 {
		return nil
	}
	v := (actual - predicted) / predicted * 100
	return &v
}

func mean(vs []float64) *float64 {
	if len(vs) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	m := sum / float64(len(vs))
	return &m
}

// directionalAccuracy is the share of consecutive pairs where the predicted
// and realized weekly revenue moved the same way. Input is ordered by week.
func directionalAccuracy(measured []persistence.VolumePrediction) *float64 {
	withActuals := make([]persistence.VolumePrediction, 0, len(measured))
	for _, p := range measured {
		if p.ActualTotalRevenue != nil {
			withActuals = append(withActuals, p)
		}
	}
	if len(withActuals) < 2 {
		return nil
	}

	hits := 0
	pairs := len(withActuals) - 1
	for i := 1; i < len(withActuals); i++ {
		prev, cur := withActuals[i-1], withActuals[i]
		predicted := sign(cur.PredictedWeeklyRevenue - prev.PredictedWeeklyRevenue)
		actual := sign(*cur.ActualTotalRevenue - *prev.ActualTotalRevenue)
		if predicted == actual {
			hits++
		}
	}
	v := float64(hits) / float64(pairs)
	return &v
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

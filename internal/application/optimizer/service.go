package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/volumerun/internal/application/scoresource"
	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/captions"
	"github.com/sawpanic/volumerun/internal/domain/confidence"
	"github.com/sawpanic/volumerun/internal/domain/content"
	"github.com/sawpanic/volumerun/internal/domain/dow"
	"github.com/sawpanic/volumerun/internal/domain/elasticity"
	"github.com/sawpanic/volumerun/internal/domain/horizon"
	"github.com/sawpanic/volumerun/internal/domain/volume"
	"github.com/sawpanic/volumerun/internal/metrics"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// NeutralScore is used for saturation and opportunity when no window has data
const NeutralScore = 50.0

// Config holds orchestration settings
type Config struct {
	HistoryDays      int    `yaml:"history_days"`      // Default: 90, elasticity and day-of-week history
	RPSWindowDays    int    `yaml:"rps_window_days"`   // Default: 30, revenue-per-send used for predictions
	CaptionDays      int    `yaml:"caption_days"`      // Default: 7
	AlgorithmVersion string `yaml:"algorithm_version"` // Default: "2.0"
}

// DefaultConfig returns the production orchestration settings
func DefaultConfig() Config {
	return Config{
		HistoryDays:      90,
		RPSWindowDays:    30,
		CaptionDays:      7,
		AlgorithmVersion: "2.0",
	}
}

// ScoreSource resolves per-window scores for a creator
type ScoreSource interface {
	Horizons(ctx context.Context, creatorID string, cfg horizon.Config) (horizon.Horizons, map[horizon.Window]scoresource.Origin, error)
}

// PredictionSaver persists a computed weekly target
type PredictionSaver interface {
	Save(ctx context.Context, p persistence.VolumePrediction) (int64, error)
}

// Deps are the collaborators of a Service. Tracker may be nil when
// predictions are never saved.
type Deps struct {
	Creators     persistence.CreatorRepo
	Messages     persistence.MessageRepo
	ContentTypes persistence.ContentTypeRepo
	Captions     persistence.CaptionRepo
	Scores       ScoreSource
	Fuser        *horizon.Fuser
	Calculator   *volume.Calculator
	Elasticity   *elasticity.Optimizer
	DayOfWeek    *dow.Model
	Content      *content.Optimizer
	Checker      *captions.Checker
	Tracker      PredictionSaver
}

func (d Deps) validate() error {
	switch {
	case d.Creators == nil:
		return errors.New("optimizer: creator repository is required")
	case d.Messages == nil:
		return errors.New("optimizer: message repository is required")
	case d.ContentTypes == nil:
		return errors.New("optimizer: content type repository is required")
	case d.Captions == nil:
		return errors.New("optimizer: caption repository is required")
	case d.Scores == nil:
		return errors.New("optimizer: score source is required")
	case d.Fuser == nil, d.Calculator == nil, d.Elasticity == nil, d.DayOfWeek == nil, d.Content == nil, d.Checker == nil:
		return errors.New("optimizer: all domain models are required")
	}
	return nil
}

// Options tune a single run
type Options struct {
	SavePrediction bool
	WeekStart      time.Time // Default: next Monday 00:00 UTC
}

// Result carries every intermediate value of one optimization
type Result struct {
	RunID        string    `json:"run_id"`
	CreatorID    string    `json:"creator_id"`
	CalculatedAt time.Time `json:"calculated_at"`

	ScoreOrigins map[string]string   `json:"score_origins"`
	Fused        horizon.FusedScores `json:"fused"`
	Confidence   confidence.Result   `json:"confidence"`
	Effective    float64             `json:"effective_confidence"` // sample confidence x fusion confidence

	Breakdown  volume.Breakdown        `json:"breakdown"`
	Elasticity elasticity.Parameters   `json:"elasticity"`
	Cap        *elasticity.CapDecision `json:"cap,omitempty"`
	Volume     volume.Config           `json:"volume"`

	DayOfWeek      dow.Multipliers      `json:"day_of_week"`
	WeeklySchedule [dow.DaysPerWeek]int `json:"weekly_schedule"`
	WeeklyTotal    int                  `json:"weekly_total"`

	ContentAllocation map[string]int `json:"content_allocation,omitempty"`
	ContentConfidence float64        `json:"content_confidence"`

	Captions captions.ConstraintResult `json:"captions"`

	PredictedWeeklyRevenue float64 `json:"predicted_weekly_revenue"`
	PredictionID           *int64  `json:"prediction_id,omitempty"`

	Adjustments   []string                 `json:"adjustments"`
	StepDurations map[string]time.Duration `json:"step_durations"`
}

func (r *Result) adjust(format string, args ...interface{}) {
	r.Adjustments = append(r.Adjustments, fmt.Sprintf(format, args...))
}

// Service runs the volume optimization pipeline for one creator at a time
type Service struct {
	deps    Deps
	config  Config
	metrics *metrics.Registry
	now     func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithMetrics records step durations and pipeline counters
func WithMetrics(m *metrics.Registry) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a service, filling zero config fields with defaults
func New(deps Deps, config Config, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if config.HistoryDays <= 0 {
		config.HistoryDays = def.HistoryDays
	}
	if config.RPSWindowDays <= 0 {
		config.RPSWindowDays = def.RPSWindowDays
	}
	if config.CaptionDays <= 0 {
		config.CaptionDays = def.CaptionDays
	}
	if config.AlgorithmVersion == "" {
		config.AlgorithmVersion = def.AlgorithmVersion
	}

	s := &Service{deps: deps, config: config, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CalculateOptimizedVolume computes the daily target, weekly schedule, content
// split and caption feasibility of a creator. Missing score history degrades
// to neutral inputs and is recorded in Result.Adjustments.
func (s *Service) CalculateOptimizedVolume(ctx context.Context, creatorID string, opts Options) (*Result, error) {
	s.metrics.RunStarted()
	defer s.metrics.RunFinished()

	now := s.now()
	res := &Result{
		RunID:         uuid.New().String(),
		CreatorID:     creatorID,
		CalculatedAt:  now,
		ScoreOrigins:  make(map[string]string),
		Adjustments:   []string{},
		StepDurations: make(map[string]time.Duration),
	}
	logger := log.With().Str("run_id", res.RunID).Str("creator_id", creatorID).Logger()

	steps := []struct {
		step metrics.Step
		fn   func(ctx context.Context, res *Result, r *run) error
	}{
		{metrics.StepCreator, s.loadCreator},
		{metrics.StepScores, s.loadScores},
		{metrics.StepFusion, s.fuse},
		{metrics.StepCalculate, s.calculate},
		{metrics.StepElasticity, s.applyElasticity},
		{metrics.StepDayOfWeek, s.distribute},
		{metrics.StepContent, s.allocateContent},
		{metrics.StepCaptions, s.checkCaptions},
		{metrics.StepPrediction, s.savePrediction},
	}

	r := &run{creatorID: creatorID, now: now, opts: opts, stepResult: metrics.ResultSuccess}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		timer := s.metrics.StartStepTimer(step.step)
		err := step.fn(ctx, res, r)
		res.StepDurations[string(step.step)] = time.Since(start)

		if err != nil {
			timer.Stop(metrics.ResultError)
			s.metrics.RecordPipelineError(step.step, errorType(err))
			logger.Error().Err(err).Str("step", string(step.step)).Msg("Volume optimization failed")
			return nil, fmt.Errorf("failed to optimize volume for %s at %s: %w", creatorID, step.step, err)
		}
		timer.Stop(r.stepResult)
		r.stepResult = metrics.ResultSuccess
	}

	s.metrics.RecordCalculation(res.Volume.Tier.String(), string(res.Volume.PageType))
	logger.Info().
		Str("tier", res.Volume.Tier.String()).
		Int("revenue_per_day", res.Volume.RevenuePerDay).
		Int("engagement_per_day", res.Volume.EngagementPerDay).
		Int("retention_per_day", res.Volume.RetentionPerDay).
		Float64("confidence", res.Effective).
		Int("adjustments", len(res.Adjustments)).
		Msg("Volume optimization completed")
	return res, nil
}

// run is the state shared between steps of one optimization
type run struct {
	creatorID  string
	now        time.Time
	opts       Options
	creator    *persistence.Creator
	horizons   horizon.Horizons
	stepResult metrics.Result
}

func (r *run) history(days int) persistence.TimeRange {
	return persistence.TimeRange{From: r.now.AddDate(0, 0, -days), To: r.now}
}

func (s *Service) loadCreator(ctx context.Context, _ *Result, r *run) error {
	c, err := s.deps.Creators.Get(ctx, r.creatorID)
	if err != nil {
		return err
	}
	if c == nil {
		return &domain.InsufficientDataError{What: "creator profile " + r.creatorID, Have: 0, Need: 1}
	}
	if !c.IsActive {
		return domain.Invalid("creator_id", "creator %s is inactive", r.creatorID)
	}
	r.creator = c
	return nil
}

func (s *Service) loadScores(ctx context.Context, res *Result, r *run) error {
	h, origins, err := s.deps.Scores.Horizons(ctx, r.creatorID, s.deps.Fuser.Config())
	if err != nil {
		return err
	}
	r.horizons = h
	for w, o := range origins {
		res.ScoreOrigins[w.String()] = o.String()
	}
	if h.Count() < len(horizon.Windows) {
		r.stepResult = metrics.ResultFallback
	}
	return nil
}

func (s *Service) fuse(_ context.Context, res *Result, r *run) error {
	fused, err := s.deps.Fuser.Fuse(r.horizons)
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		res.Fused = horizon.FusedScores{Saturation: NeutralScore, Opportunity: NeutralScore, Confidence: 0}
		res.adjust("no score history in any window: using neutral saturation/opportunity %.0f/%.0f with zero confidence", NeutralScore, NeutralScore)
		r.stepResult = metrics.ResultFallback
	case err != nil:
		return err
	default:
		res.Fused = fused
		if fused.DivergenceDetected {
			res.adjust("short and long saturation diverge by %.1f points: weighting the short window more", fused.Divergence)
		}
		if fused.HorizonsUsed < len(horizon.Windows) {
			res.adjust("only %d of %d score windows available: fusion confidence %.2f", fused.HorizonsUsed, len(horizon.Windows), fused.Confidence)
		}
	}

	count := 0
	if m := r.horizons.Medium; m != nil {
		count = m.MessageCount
	}
	conf, err := confidence.Calculate(count)
	if err != nil {
		return err
	}
	res.Confidence = conf
	res.Effective = conf.Confidence * res.Fused.Confidence
	return nil
}

func (s *Service) calculate(_ context.Context, res *Result, r *run) error {
	pc, err := volume.NewPerformanceContext(
		r.creator.CurrentActiveFans,
		r.creator.PageType,
		res.Fused.Saturation,
		res.Fused.Opportunity,
		res.Fused.RevenueTrend,
	)
	if err != nil {
		return err
	}
	b, err := s.deps.Calculator.Explain(pc, res.Effective)
	if err != nil {
		return err
	}
	res.Breakdown = b
	res.Volume = b.Config
	return nil
}

func (s *Service) applyElasticity(ctx context.Context, res *Result, r *run) error {
	params, hit, err := s.deps.Elasticity.FitFunc(r.creatorID, func() ([]elasticity.VolumePoint, error) {
		days, err := s.deps.Messages.DailyVolumes(ctx, r.creatorID, r.history(s.config.HistoryDays))
		if err != nil {
			return nil, err
		}
		return elasticity.PointsFromDaily(days), nil
	})
	if err != nil {
		return err
	}
	if hit {
		s.metrics.RecordCacheHit(metrics.CacheElasticity)
	} else {
		s.metrics.RecordCacheMiss(metrics.CacheElasticity)
	}
	res.Elasticity = params

	if !params.IsReliable() {
		res.adjust("elasticity fit unreliable (quality %.2f over %d samples): no volume cap applied", params.FitQuality, params.SampleSize)
		r.stepResult = metrics.ResultSkipped
		return nil
	}

	decision := params.ShouldCapVolume(res.Volume.TotalPerDay())
	if !decision.Cap || decision.Recommended >= res.Volume.TotalPerDay() {
		return nil
	}

	trimmed, err := TrimToTotal(res.Volume, decision.Recommended)
	if err != nil {
		return err
	}
	res.Cap = &decision
	if trimmed.TotalPerDay() > decision.Recommended {
		res.adjust("%s; category minimums keep the total at %d", decision.Reason, trimmed.TotalPerDay())
	} else {
		res.adjust("%s", decision.Reason)
	}
	res.Volume = trimmed
	s.metrics.RecordVolumeCap()
	return nil
}

// TrimToTotal lowers revenue first and then engagement until the daily total
// reaches target, never going under the category minimums. Retention is kept.
func TrimToTotal(cfg volume.Config, target int) (volume.Config, error) {
	counts := cfg.Counts()
	excess := counts.Total() - target

	if excess > 0 {
		cut := min(excess, counts.Revenue-volume.RevenueBounds.Min)
		if cut > 0 {
			counts.Revenue -= cut
			excess -= cut
		}
	}
	if excess > 0 {
		cut := min(excess, counts.Engagement-volume.EngagementBounds.Min)
		if cut > 0 {
			counts.Engagement -= cut
		}
	}
	return volume.NewConfig(cfg.Tier, counts, cfg.FanCount, cfg.PageType)
}

func (s *Service) distribute(ctx context.Context, res *Result, r *run) error {
	history, err := s.deps.Messages.ListRange(ctx, r.creatorID, r.history(s.config.HistoryDays))
	if err != nil {
		return err
	}
	mult := s.deps.DayOfWeek.Calculate(r.creatorID, history)
	if mult.IsDefault {
		res.adjust("day-of-week history too thin (%d messages): using default weekly pattern", mult.TotalMessages)
		r.stepResult = metrics.ResultFallback
	}
	schedule, err := mult.WeeklyDistribution(res.Volume.TotalPerDay())
	if err != nil {
		return err
	}
	res.DayOfWeek = mult
	res.WeeklySchedule = schedule
	res.WeeklyTotal = res.Volume.TotalPerDay() * dow.DaysPerWeek
	return nil
}

func (s *Service) allocateContent(ctx context.Context, res *Result, r *run) error {
	profile, hit, err := s.deps.Content.Profile(r.creatorID, func() ([]persistence.ContentTypePerformance, error) {
		return s.deps.ContentTypes.ListByCreator(ctx, r.creatorID)
	})
	if err != nil {
		return err
	}
	if hit {
		s.metrics.RecordCacheHit(metrics.CacheContent)
	} else {
		s.metrics.RecordCacheMiss(metrics.CacheContent)
	}
	res.ContentConfidence = profile.Confidence

	weeklyRevenue := res.Volume.RevenuePerDay * dow.DaysPerWeek
	alloc, err := s.deps.Content.Weighter().AllocateByContentType(weeklyRevenue, profile.Types(), profile)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			res.adjust("no allocatable content types for %d weekly revenue sends: content split skipped", weeklyRevenue)
			r.stepResult = metrics.ResultSkipped
			return nil
		}
		return err
	}
	res.ContentAllocation = alloc
	return nil
}

func (s *Service) checkCaptions(ctx context.Context, res *Result, r *run) error {
	bank, err := s.deps.Captions.ListByCreator(ctx, r.creatorID)
	if err != nil {
		return err
	}
	pool := s.deps.Checker.Analyze(r.creatorID, bank, captions.Scheduled(res.Volume)...)
	check, err := s.deps.Checker.Validate(pool, res.Volume, s.config.CaptionDays)
	if err != nil {
		return err
	}
	for _, sh := range check.Shortages {
		s.metrics.RecordCaptionShortage(string(sh.Category), sh.Severity.String())
	}
	if !check.IsValid {
		res.adjust("%s", check.Summary())
	}
	res.Captions = check
	return nil
}

func (s *Service) savePrediction(ctx context.Context, res *Result, r *run) error {
	if !r.opts.SavePrediction {
		r.stepResult = metrics.ResultSkipped
		return nil
	}
	if s.deps.Tracker == nil {
		return errors.New("prediction tracker is not configured")
	}

	totals, err := s.deps.Messages.Totals(ctx, r.creatorID, r.history(s.config.RPSWindowDays))
	if err != nil {
		return err
	}
	rps := totals.AvgRPS
	if rps == 0 && totals.Messages > 0 {
		rps = totals.Revenue / float64(totals.Messages)
	}
	res.PredictedWeeklyRevenue = float64(res.WeeklyTotal) * rps

	weekStart := r.opts.WeekStart
	if weekStart.IsZero() {
		weekStart = NextWeekStart(r.now)
	}

	id, err := s.deps.Tracker.Save(ctx, persistence.VolumePrediction{
		CreatorID:                 r.creatorID,
		RunID:                     res.RunID,
		PredictionDate:            r.now,
		WeekStart:                 weekStart,
		InputFanCount:             r.creator.CurrentActiveFans,
		InputPageType:             r.creator.PageType,
		InputSaturation:           res.Fused.Saturation,
		InputOpportunity:          res.Fused.Opportunity,
		PredictedTier:             res.Volume.Tier.String(),
		PredictedRevenuePerDay:    res.Volume.RevenuePerDay,
		PredictedEngagementPerDay: res.Volume.EngagementPerDay,
		PredictedRetentionPerDay:  res.Volume.RetentionPerDay,
		PredictedWeeklyRevenue:    res.PredictedWeeklyRevenue,
		PredictedWeeklyMessages:   res.WeeklyTotal,
		AlgorithmVersion:          s.config.AlgorithmVersion,
	})
	if err != nil {
		return err
	}
	res.PredictionID = &id
	return nil
}

// NextWeekStart returns the Monday 00:00 UTC strictly after t
func NextWeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrDatabase):
		return "database"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

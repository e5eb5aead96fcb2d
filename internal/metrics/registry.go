package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds the Prometheus collectors of the optimization pipeline.
// A nil *Registry is valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Pipeline performance metrics
	PipelineSteps  *prometheus.CounterVec
	PipelineErrors *prometheus.CounterVec

	// Cache performance metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Volume metrics
	Calculations     *prometheus.CounterVec
	VolumeCaps       prometheus.Counter
	CaptionShortages *prometheus.CounterVec
	ActiveRuns       prometheus.Gauge

	// Feedback loop metrics
	PredictionsSaved    prometheus.Counter
	PredictionsMeasured *prometheus.CounterVec
	RevenueErrorPct     prometheus.Histogram
}

// NewRegistry creates a registry with all pipeline metrics registered on a
// private prometheus.Registry
func NewRegistry() *Registry {
	m := &Registry{
		registry: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volumerun_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"step", "result"},
		),

		PipelineSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_pipeline_steps_total",
				Help: "Total number of pipeline steps executed",
			},
			[]string{"step", "status"},
		),

		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_pipeline_errors_total",
				Help: "Total number of pipeline errors by step",
			},
			[]string{"step", "error_type"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "volumerun_cache_hit_ratio",
				Help: "Current cache hit ratio across all caches (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		Calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_calculations_total",
				Help: "Completed volume calculations by tier and page type",
			},
			[]string{"tier", "page_type"},
		),

		VolumeCaps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "volumerun_elasticity_caps_total",
				Help: "Calculations whose daily total was trimmed by the elasticity model",
			},
		),

		CaptionShortages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_caption_shortages_total",
				Help: "Caption pool shortages by category and severity",
			},
			[]string{"category", "severity"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "volumerun_active_runs",
				Help: "Number of optimizations currently running",
			},
		),

		PredictionsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "volumerun_predictions_saved_total",
				Help: "Volume predictions persisted",
			},
		),

		PredictionsMeasured: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumerun_predictions_measured_total",
				Help: "Prediction outcome measurements by result",
			},
			[]string{"result"},
		),

		RevenueErrorPct: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "volumerun_revenue_error_abs_pct",
				Help:    "Absolute weekly revenue prediction error in percent",
				Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 50, 75, 100},
			},
		),
	}

	m.registry.MustRegister(
		m.StepDuration,
		m.PipelineSteps,
		m.PipelineErrors,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.Calculations,
		m.VolumeCaps,
		m.CaptionShortages,
		m.ActiveRuns,
		m.PredictionsSaved,
		m.PredictionsMeasured,
		m.RevenueErrorPct,
	)

	return m
}

// Gatherer exposes the underlying registry
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler returns an HTTP handler serving this registry
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StepTimer tracks execution time for pipeline steps
type StepTimer struct {
	metrics *Registry
	step    Step
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (m *Registry) StartStepTimer(step Step) *StepTimer {
	return &StepTimer{metrics: m, step: step, start: time.Now()}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result Result) {
	duration := time.Since(st.start)
	if st.metrics != nil {
		st.metrics.StepDuration.WithLabelValues(string(st.step), string(result)).Observe(duration.Seconds())
		st.metrics.PipelineSteps.WithLabelValues(string(st.step), string(result)).Inc()
	}

	log.Debug().
		Str("step", string(st.step)).
		Str("result", string(result)).
		Dur("duration", duration).
		Msg("Pipeline step completed")
}

// RecordCacheHit records a cache hit for the specified cache type
func (m *Registry) RecordCacheHit(cache CacheType) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(string(cache)).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type
func (m *Registry) RecordCacheMiss(cache CacheType) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(string(cache)).Inc()
	m.updateCacheHitRatio()
}

// RecordPipelineError records a pipeline error
func (m *Registry) RecordPipelineError(step Step, errorType string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(string(step), errorType).Inc()
	log.Warn().
		Str("step", string(step)).
		Str("error_type", errorType).
		Msg("Pipeline error recorded")
}

// RecordCalculation counts one finished optimization
func (m *Registry) RecordCalculation(tier, pageType string) {
	if m == nil {
		return
	}
	m.Calculations.WithLabelValues(tier, pageType).Inc()
}

// RecordVolumeCap counts one elasticity trim
func (m *Registry) RecordVolumeCap() {
	if m == nil {
		return
	}
	m.VolumeCaps.Inc()
}

// RecordCaptionShortage counts one category shortage
func (m *Registry) RecordCaptionShortage(category, severity string) {
	if m == nil {
		return
	}
	m.CaptionShortages.WithLabelValues(category, severity).Inc()
}

// RunStarted increments the active runs gauge
func (m *Registry) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished decrements the active runs gauge
func (m *Registry) RunFinished() {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
}

// RecordPredictionSaved counts one persisted prediction
func (m *Registry) RecordPredictionSaved() {
	if m == nil {
		return
	}
	m.PredictionsSaved.Inc()
}

// RecordMeasurement counts one measurement attempt. revenueErrPct is
// observed when non-nil.
func (m *Registry) RecordMeasurement(result MeasureResult, revenueErrPct *float64) {
	if m == nil {
		return
	}
	m.PredictionsMeasured.WithLabelValues(string(result)).Inc()
	if revenueErrPct != nil {
		v := *revenueErrPct
		if v < 0 {
			v = -v
		}
		m.RevenueErrorPct.Observe(v)
	}
}

// updateCacheHitRatio recomputes the hit ratio across the known cache types
func (m *Registry) updateCacheHitRatio() {
	hitMetrics := &io_prometheus_client.Metric{}
	missMetrics := &io_prometheus_client.Metric{}

	totalHits := 0.0
	totalMisses := 0.0

	for _, cache := range CacheTypes {
		if hitCounter, err := m.CacheHits.GetMetricWithLabelValues(string(cache)); err == nil {
			if err := hitCounter.Write(hitMetrics); err == nil {
				totalHits += hitMetrics.GetCounter().GetValue()
			}
		}

		if missCounter, err := m.CacheMisses.GetMetricWithLabelValues(string(cache)); err == nil {
			if err := missCounter.Write(missMetrics); err == nil {
				totalMisses += missMetrics.GetCounter().GetValue()
			}
		}
	}

	if total := totalHits + totalMisses; total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

// Step names one stage of the optimization pipeline
type Step string

const (
	StepCreator    Step = "creator"
	StepScores     Step = "scores"
	StepFusion     Step = "fusion"
	StepCalculate  Step = "calculate"
	StepElasticity Step = "elasticity"
	StepDayOfWeek  Step = "day_of_week"
	StepContent    Step = "content"
	StepCaptions   Step = "captions"
	StepPrediction Step = "prediction"
	StepMeasure    Step = "measure"
	StepAccuracy   Step = "accuracy"
)

// Result is the outcome label of a pipeline step
type Result string

const (
	ResultSuccess  Result = "success"
	ResultError    Result = "error"
	ResultSkipped  Result = "skipped"
	ResultFallback Result = "fallback"
)

// CacheType labels the caches that report hits and misses
type CacheType string

const (
	CacheScores     CacheType = "scores"
	CacheElasticity CacheType = "elasticity"
	CacheContent    CacheType = "content"
)

// CacheTypes lists every cache label used in the hit ratio
var CacheTypes = []CacheType{CacheScores, CacheElasticity, CacheContent}

// MeasureResult labels prediction measurement outcomes
type MeasureResult string

const (
	MeasureMeasured MeasureResult = "measured"
	MeasureSkipped  MeasureResult = "skipped"
	MeasureFailed   MeasureResult = "failed"
)

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m io_prometheus_client.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m io_prometheus_client.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRegistry_CacheHitRatio(t *testing.T) {
	m := NewRegistry()

	m.RecordCacheHit(CacheScores)
	m.RecordCacheHit(CacheScores)
	m.RecordCacheHit(CacheElasticity)
	m.RecordCacheMiss(CacheContent)

	assert.Equal(t, 2.0, counterValue(t, m.CacheHits.WithLabelValues("scores")))
	assert.Equal(t, 1.0, counterValue(t, m.CacheMisses.WithLabelValues("content")))
	assert.InDelta(t, 0.75, gaugeValue(t, m.CacheHitRatio), 1e-9)
}

func TestRegistry_StepTimerAndCounters(t *testing.T) {
	m := NewRegistry()

	timer := m.StartStepTimer(StepCalculate)
	timer.Stop(ResultSuccess)
	m.RecordCalculation("HIGH", "paid")
	m.RecordVolumeCap()
	m.RecordCaptionShortage("revenue", "critical")
	m.RecordPredictionSaved()

	errPct := -12.0
	m.RecordMeasurement(MeasureMeasured, &errPct)
	m.RecordMeasurement(MeasureSkipped, nil)

	assert.Equal(t, 1.0, counterValue(t, m.PipelineSteps.WithLabelValues("calculate", "success")))
	assert.Equal(t, 1.0, counterValue(t, m.Calculations.WithLabelValues("HIGH", "paid")))
	assert.Equal(t, 1.0, counterValue(t, m.VolumeCaps))
	assert.Equal(t, 1.0, counterValue(t, m.CaptionShortages.WithLabelValues("revenue", "critical")))
	assert.Equal(t, 1.0, counterValue(t, m.PredictionsSaved))
	assert.Equal(t, 1.0, counterValue(t, m.PredictionsMeasured.WithLabelValues("skipped")))

	var hist io_prometheus_client.Metric
	require.NoError(t, m.RevenueErrorPct.Write(&hist))
	assert.Equal(t, uint64(1), hist.GetHistogram().GetSampleCount())
	assert.Equal(t, 12.0, hist.GetHistogram().GetSampleSum())
}

func TestRegistry_ActiveRuns(t *testing.T) {
	m := NewRegistry()
	m.RunStarted()
	m.RunStarted()
	m.RunFinished()
	assert.Equal(t, 1.0, gaugeValue(t, m.ActiveRuns))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var m *Registry

	assert.NotPanics(t, func() {
		m.RecordCacheHit(CacheScores)
		m.RecordCacheMiss(CacheScores)
		m.RecordPipelineError(StepScores, "database")
		m.RecordCalculation("LOW", "free")
		m.RecordVolumeCap()
		m.RecordCaptionShortage("revenue", "critical")
		m.RunStarted()
		m.RunFinished()
		m.RecordPredictionSaved()
		m.RecordMeasurement(MeasureFailed, nil)
		m.StartStepTimer(StepFusion).Stop(ResultSkipped)
	})
}

func TestRegistry_IsolatedAndServed(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.RecordVolumeCap()
	assert.Zero(t, counterValue(t, b.VolumeCaps), "registries must not share state")

	families, err := a.Gatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["volumerun_elasticity_caps_total"])

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "volumerun_elasticity_caps_total 1")
}

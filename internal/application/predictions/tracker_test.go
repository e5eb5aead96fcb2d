package predictions

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/metrics"
	"github.com/sawpanic/volumerun/internal/persistence"
)

var now = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

type memPredictions struct {
	rows    map[int64]*persistence.VolumePrediction
	nextID  int64
	getErr  map[int64]error
	listErr error
}

func newMemPredictions() *memPredictions {
	return &memPredictions{rows: map[int64]*persistence.VolumePrediction{}, getErr: map[int64]error{}}
}

func (m *memPredictions) Insert(_ context.Context, p persistence.VolumePrediction) (int64, error) {
	m.nextID++
	p.ID = m.nextID
	m.rows[p.ID] = &p
	return p.ID, nil
}

func (m *memPredictions) Get(_ context.Context, id int64) (*persistence.VolumePrediction, error) {
	if err := m.getErr[id]; err != nil {
		return nil, err
	}
	p, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPredictions) MarkMeasured(_ context.Context, id int64, o persistence.MeasuredOutcome) (bool, error) {
	p, ok := m.rows[id]
	if !ok || p.OutcomeMeasured {
		return false, nil
	}
	p.OutcomeMeasured = true
	rev, msgs, at := o.ActualTotalRevenue, o.ActualMessagesSent, o.MeasuredAt
	p.ActualTotalRevenue = &rev
	p.ActualMessagesSent = &msgs
	p.RevenuePredictionError = o.RevenuePredictionError
	p.VolumePredictionError = o.VolumePredictionError
	p.MeasuredAt = &at
	return true, nil
}

func (m *memPredictions) ListUnmeasured(_ context.Context, cutoff time.Time, limit int) ([]persistence.VolumePrediction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []persistence.VolumePrediction
	for _, p := range m.sorted() {
		if !p.OutcomeMeasured && p.WeekStart.Before(cutoff) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPredictions) ListMeasured(_ context.Context, creatorID string) ([]persistence.VolumePrediction, error) {
	var out []persistence.VolumePrediction
	for _, p := range m.sorted() {
		if p.CreatorID == creatorID && p.OutcomeMeasured {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPredictions) CountByCreator(_ context.Context, creatorID string) (int, error) {
	n := 0
	for _, p := range m.rows {
		if p.CreatorID == creatorID {
			n++
		}
	}
	return n, nil
}

func (m *memPredictions) sorted() []persistence.VolumePrediction {
	out := make([]persistence.VolumePrediction, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[i].WeekStart.Before(out[j].WeekStart)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type fakeMessages struct {
	totals map[string]persistence.MessageTotals
	ranges []persistence.TimeRange
}

func (f *fakeMessages) ListRange(context.Context, string, persistence.TimeRange) ([]persistence.MassMessage, error) {
	return nil, nil
}

func (f *fakeMessages) DailyVolumes(context.Context, string, persistence.TimeRange) ([]persistence.DailyVolume, error) {
	return nil, nil
}

func (f *fakeMessages) Totals(_ context.Context, creatorID string, tr persistence.TimeRange) (persistence.MessageTotals, error) {
	f.ranges = append(f.ranges, tr)
	return f.totals[creatorID], nil
}

type fakeCreators struct {
	active []persistence.Creator
	err    error
}

func (f *fakeCreators) Get(_ context.Context, id string) (*persistence.Creator, error) {
	for _, c := range f.active {
		if c.CreatorID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCreators) ListActive(context.Context) ([]persistence.Creator, error) {
	return f.active, f.err
}

func newTracker(preds *memPredictions, msgs *fakeMessages, creators *fakeCreators, opts ...Option) *Tracker {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	cfg := DefaultConfig()
	cfg.RatePerSecond = 1000
	cfg.Burst = 100
	return NewTracker(preds, msgs, creators, cfg, opts...)
}

func prediction(creatorID string, weekStart time.Time, revenue float64, messages int) persistence.VolumePrediction {
	return persistence.VolumePrediction{
		CreatorID:               creatorID,
		RunID:                   "run-1",
		WeekStart:               weekStart,
		PredictedTier:           "MID",
		PredictedWeeklyRevenue:  revenue,
		PredictedWeeklyMessages: messages,
	}
}

func float(v float64) *float64 { return &v }

func TestSave(t *testing.T) {
	preds := newMemPredictions()
	reg := metrics.NewRegistry()
	tr := newTracker(preds, &fakeMessages{}, &fakeCreators{}, WithMetrics(reg))

	id, err := tr.Save(context.Background(), prediction("creator_a", now, 500, 70))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, now, preds.rows[id].PredictionDate)

	_, err = tr.Save(context.Background(), prediction("", now, 500, 70))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = tr.Save(context.Background(), prediction("creator_a", now, 500, -1))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, preds.rows, 1)
}

func TestMeasureOutcome(t *testing.T) {
	weekStart := now.AddDate(0, 0, -10)
	preds := newMemPredictions()
	msgs := &fakeMessages{totals: map[string]persistence.MessageTotals{
		"creator_a": {Messages: 63, Revenue: 450},
	}}
	tr := newTracker(preds, msgs, &fakeCreators{})

	id, err := tr.Save(context.Background(), prediction("creator_a", weekStart, 500, 70))
	require.NoError(t, err)

	out, err := tr.MeasureOutcome(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, 450.0, out.ActualRevenue)
	assert.Equal(t, 63, out.ActualMessages)
	require.NotNil(t, out.RevenueErrorPct)
	assert.InDelta(t, -10.0, *out.RevenueErrorPct, 1e-9)
	require.NotNil(t, out.VolumeErrorPct)
	assert.InDelta(t, -10.0, *out.VolumeErrorPct, 1e-9)
	assert.Equal(t, persistence.TimeRange{From: weekStart, To: weekStart.AddDate(0, 0, 7)}, msgs.ranges[0])

	again, err := tr.MeasureOutcome(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, again, "second measurement must be a no-op")
}

func TestMeasureOutcome_Skips(t *testing.T) {
	preds := newMemPredictions()
	tr := newTracker(preds, &fakeMessages{}, &fakeCreators{})

	out, err := tr.MeasureOutcome(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, out, "missing prediction")

	id, _ := tr.Save(context.Background(), prediction("creator_a", now.AddDate(0, 0, -3), 500, 70))
	out, err = tr.MeasureOutcome(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, out, "week not finished")
	assert.False(t, preds.rows[id].OutcomeMeasured)
}

func TestMeasureOutcome_ZeroPredictionHasNoError(t *testing.T) {
	preds := newMemPredictions()
	msgs := &fakeMessages{totals: map[string]persistence.MessageTotals{"creator_a": {Messages: 5, Revenue: 20}}}
	tr := newTracker(preds, msgs, &fakeCreators{})

	id, _ := tr.Save(context.Background(), prediction("creator_a", now.AddDate(0, 0, -8), 0, 0))
	out, err := tr.MeasureOutcome(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Nil(t, out.RevenueErrorPct)
	assert.Nil(t, out.VolumeErrorPct)
}

func TestPercentError(t *testing.T) {
	tests := []struct {
		name      string
		predicted float64
		actual    float64
		want      *float64
	}{
		{name: "over", predicted: 100, actual: 120, want: float(20)},
		{name: "under", predicted: 200, actual: 150, want: float(-25)},
		{name: "exact", predicted: 80, actual: 80, want: float(0)},
		{name: "zero_predicted", predicted: 0, actual: 50, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentError(tt.predicted, tt.actual)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestAccuracy(t *testing.T) {
	preds := newMemPredictions()
	msgs := &fakeMessages{totals: map[string]persistence.MessageTotals{}}
	tr := newTracker(preds, msgs, &fakeCreators{})
	ctx := context.Background()

	acc, err := tr.Accuracy(ctx, "creator_a")
	require.NoError(t, err)
	assert.Nil(t, acc)

	// predicted 100 -> 120 -> 90, actual 110 -> 130 -> 100: both moves agree
	// revenue errors +10%, +8.33%, +11.11%
	weeks := []struct {
		revenue, actual float64
	}{{100, 110}, {120, 130}, {90, 100}}
	for i, w := range weeks {
		id, err := tr.Save(ctx, prediction("creator_a", now.AddDate(0, 0, -7*(len(weeks)+1-i)), w.revenue, 70))
		require.NoError(t, err)
		msgs.totals["creator_a"] = persistence.MessageTotals{Messages: 70, Revenue: w.actual}
		_, err = tr.MeasureOutcome(ctx, id)
		require.NoError(t, err)
	}
	_, err = tr.Save(ctx, prediction("creator_a", now, 100, 70))
	require.NoError(t, err)

	acc, err = tr.Accuracy(ctx, "creator_a")
	require.NoError(t, err)
	require.NotNil(t, acc)

	assert.Equal(t, 4, acc.TotalPredictions)
	assert.Equal(t, 3, acc.MeasuredPredictions)
	require.NotNil(t, acc.RevenueMAPE)
	assert.InDelta(t, (10+100.0/12+100.0/9)/3, *acc.RevenueMAPE, 1e-9)
	assert.InDelta(t, *acc.RevenueMAPE, *acc.RevenueBias, 1e-9, "all errors positive")
	require.NotNil(t, acc.VolumeMAPE)
	assert.InDelta(t, 0, *acc.VolumeMAPE, 1e-9)
	require.NotNil(t, acc.DirectionalAccuracy)
	assert.Equal(t, 1.0, *acc.DirectionalAccuracy)
}

func TestDirectionalAccuracy(t *testing.T) {
	mk := func(pred, actual float64) persistence.VolumePrediction {
		return persistence.VolumePrediction{PredictedWeeklyRevenue: pred, ActualTotalRevenue: float(actual)}
	}

	assert.Nil(t, directionalAccuracy([]persistence.VolumePrediction{mk(100, 90)}))

	got := directionalAccuracy([]persistence.VolumePrediction{
		mk(100, 100),
		mk(120, 90),  // predicted up, actual down
		mk(110, 80),  // both down
		mk(110, 80),  // both flat
		mk(130, 120), // both up
	})
	require.NotNil(t, got)
	assert.InDelta(t, 0.75, *got, 1e-9)
}

func TestMeasurePending(t *testing.T) {
	preds := newMemPredictions()
	msgs := &fakeMessages{totals: map[string]persistence.MessageTotals{
		"creator_a": {Messages: 70, Revenue: 500},
		"creator_b": {Messages: 35, Revenue: 100},
	}}
	reg := metrics.NewRegistry()
	tr := newTracker(preds, msgs, &fakeCreators{}, WithMetrics(reg))
	ctx := context.Background()

	idA, _ := tr.Save(ctx, prediction("creator_a", now.AddDate(0, 0, -14), 500, 70))
	idB, _ := tr.Save(ctx, prediction("creator_b", now.AddDate(0, 0, -9), 100, 35))
	idC, _ := tr.Save(ctx, prediction("creator_c", now.AddDate(0, 0, -2), 100, 35))
	preds.getErr[idB] = domain.NewDatabaseError("get prediction", errors.New("connection reset"))

	res, err := tr.MeasurePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Measured: 1, Failed: 1}, res)
	assert.True(t, preds.rows[idA].OutcomeMeasured)
	assert.False(t, preds.rows[idB].OutcomeMeasured)
	assert.False(t, preds.rows[idC].OutcomeMeasured, "too recent to be listed")
}

func TestMeasurePending_ListFailure(t *testing.T) {
	preds := newMemPredictions()
	preds.listErr = domain.NewDatabaseError("list unmeasured", errors.New("timeout"))

	_, err := newTracker(preds, &fakeMessages{}, &fakeCreators{}).MeasurePending(context.Background())
	assert.ErrorIs(t, err, domain.ErrDatabase)
}

func TestMeasurePending_StopsOnCancel(t *testing.T) {
	preds := newMemPredictions()
	tr := newTracker(preds, &fakeMessages{}, &fakeCreators{})
	_, _ = tr.Save(context.Background(), prediction("creator_a", now.AddDate(0, 0, -14), 500, 70))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.MeasurePending(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccuracyReport(t *testing.T) {
	preds := newMemPredictions()
	msgs := &fakeMessages{totals: map[string]persistence.MessageTotals{"creator_a": {Messages: 70, Revenue: 550}}}
	creators := &fakeCreators{active: []persistence.Creator{
		{CreatorID: "creator_a", IsActive: true},
		{CreatorID: "creator_b", IsActive: true},
	}}
	tr := newTracker(preds, msgs, creators)
	ctx := context.Background()

	id, _ := tr.Save(ctx, prediction("creator_a", now.AddDate(0, 0, -14), 500, 70))
	_, err := tr.MeasureOutcome(ctx, id)
	require.NoError(t, err)

	rep, err := tr.AccuracyReport(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Creators, 1)
	assert.Equal(t, "creator_a", rep.Creators[0].CreatorID)
	assert.InDelta(t, 10.0, *rep.Creators[0].RevenueMAPE, 1e-9)
	assert.Nil(t, rep.Creators[0].DirectionalAccuracy)
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, rep.Failed)
}

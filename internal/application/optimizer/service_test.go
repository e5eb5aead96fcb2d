package optimizer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/volumerun/internal/application/scoresource"
	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/captions"
	"github.com/sawpanic/volumerun/internal/domain/content"
	"github.com/sawpanic/volumerun/internal/domain/dow"
	"github.com/sawpanic/volumerun/internal/domain/elasticity"
	"github.com/sawpanic/volumerun/internal/domain/horizon"
	"github.com/sawpanic/volumerun/internal/domain/volume"
	"github.com/sawpanic/volumerun/internal/metrics"
	"github.com/sawpanic/volumerun/internal/persistence"
)

var now = time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC) // a Monday

type fakeCreators struct {
	creators map[string]persistence.Creator
}

func (f *fakeCreators) Get(_ context.Context, id string) (*persistence.Creator, error) {
	c, ok := f.creators[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCreators) ListActive(context.Context) ([]persistence.Creator, error) {
	var out []persistence.Creator
	for _, c := range f.creators {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeMessages struct {
	daily   []persistence.DailyVolume
	history []persistence.MassMessage
	totals  persistence.MessageTotals
	dailyN  int
}

func (f *fakeMessages) ListRange(context.Context, string, persistence.TimeRange) ([]persistence.MassMessage, error) {
	return f.history, nil
}

func (f *fakeMessages) DailyVolumes(context.Context, string, persistence.TimeRange) ([]persistence.DailyVolume, error) {
	f.dailyN++
	return f.daily, nil
}

func (f *fakeMessages) Totals(context.Context, string, persistence.TimeRange) (persistence.MessageTotals, error) {
	return f.totals, nil
}

type fakeContentTypes struct {
	rows []persistence.ContentTypePerformance
}

func (f *fakeContentTypes) ListByCreator(context.Context, string) ([]persistence.ContentTypePerformance, error) {
	return f.rows, nil
}

type fakeCaptions struct {
	bank []persistence.Caption
}

func (f *fakeCaptions) ListByCreator(context.Context, string) ([]persistence.Caption, error) {
	return f.bank, nil
}

type fakeScores struct {
	h   horizon.Horizons
	err error
}

func (f *fakeScores) Horizons(context.Context, string, horizon.Config) (horizon.Horizons, map[horizon.Window]scoresource.Origin, error) {
	if f.err != nil {
		return horizon.Horizons{}, nil, f.err
	}
	origins := map[horizon.Window]scoresource.Origin{}
	for _, w := range horizon.Windows {
		if f.h.Get(w) != nil {
			origins[w] = scoresource.OriginPrecomputed
		}
	}
	return f.h, origins, nil
}

type fakeTracker struct {
	saved []persistence.VolumePrediction
}

func (f *fakeTracker) Save(_ context.Context, p persistence.VolumePrediction) (int64, error) {
	f.saved = append(f.saved, p)
	return int64(len(f.saved)), nil
}

type fixture struct {
	creators *fakeCreators
	messages *fakeMessages
	content  *fakeContentTypes
	captions *fakeCaptions
	scores   *fakeScores
	tracker  *fakeTracker
	metrics  *metrics.Registry
}

func newFixture() *fixture {
	neutral := func(count int) *horizon.Scores {
		return &horizon.Scores{Saturation: 50, Opportunity: 50, MessageCount: count}
	}
	return &fixture{
		creators: &fakeCreators{creators: map[string]persistence.Creator{
			"creator_a": {CreatorID: "creator_a", PageType: "paid", CurrentActiveFans: 3000, IsActive: true},
			"creator_x": {CreatorID: "creator_x", PageType: "paid", CurrentActiveFans: 3000, IsActive: false},
		}},
		messages: &fakeMessages{},
		content: &fakeContentTypes{rows: []persistence.ContentTypePerformance{
			{CreatorID: "creator_a", ContentType: "video", PerformanceTier: "TOP", SendCount: 150},
			{CreatorID: "creator_a", ContentType: "photo", PerformanceTier: "MID", SendCount: 100},
			{CreatorID: "creator_a", ContentType: "text", PerformanceTier: "AVOID", SendCount: 20},
		}},
		captions: &fakeCaptions{},
		scores: &fakeScores{h: horizon.Horizons{
			Short:  neutral(90),
			Medium: neutral(250),
			Long:   neutral(700),
		}},
		tracker: &fakeTracker{},
		metrics: metrics.NewRegistry(),
	}
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	elast, err := elasticity.NewOptimizer(elasticity.NewModel(elasticity.DefaultConfig()))
	require.NoError(t, err)
	cont, err := content.NewOptimizer(content.NewWeighter(content.DefaultConfig()))
	require.NoError(t, err)

	svc, err := New(Deps{
		Creators:     f.creators,
		Messages:     f.messages,
		ContentTypes: f.content,
		Captions:     f.captions,
		Scores:       f.scores,
		Fuser:        horizon.NewFuser(horizon.DefaultConfig()),
		Calculator:   volume.NewCalculator(volume.DefaultCalculatorConfig()),
		Elasticity:   elast,
		DayOfWeek:    dow.NewModel(dow.DefaultConfig()),
		Content:      cont,
		Checker:      captions.NewChecker(captions.DefaultConfig()),
		Tracker:      f.tracker,
	}, DefaultConfig(), WithMetrics(f.metrics), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return svc
}

// decayingDays builds daily aggregates following RPS = base * e^(-decay*v)
func decayingDays(base, decay float64) []persistence.DailyVolume {
	var days []persistence.DailyVolume
	for v := 2; v <= 12; v++ {
		for i := 0; i < 4; i++ {
			days = append(days, persistence.DailyVolume{Sends: v, AvgRPS: base * math.Exp(-decay*float64(v))})
		}
	}
	return days
}

func usableCaptions(sendType string, n int) []persistence.Caption {
	out := make([]persistence.Caption, n)
	for i := range out {
		out[i] = persistence.Caption{CaptionID: int64(i + 1), SendType: sendType, IsActive: true, FreshnessScore: 80, PerformanceScore: 70}
	}
	return out
}

func sum(vs [dow.DaysPerWeek]int) int {
	total := 0
	for _, v := range vs {
		total += v
	}
	return total
}

func TestCalculateOptimizedVolume_FullHistory(t *testing.T) {
	f := newFixture()
	f.messages.daily = decayingDays(2.0, 0.15)
	f.messages.totals = persistence.MessageTotals{Messages: 300, Revenue: 600, AvgRPS: 2.0}

	res, err := f.service(t).CalculateOptimizedVolume(context.Background(), "creator_a", Options{SavePrediction: true})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Fused.HorizonsUsed)
	assert.Equal(t, "very_high", res.Confidence.TierName)
	assert.Equal(t, 1.0, res.Effective)
	assert.Equal(t, map[string]string{"short": "precomputed", "medium": "precomputed", "long": "precomputed"}, res.ScoreOrigins)

	// MID paid base 4/4/2, multipliers 0.85 x 1.1: 4/4/2 = 10, capped to 8 by elasticity
	assert.Equal(t, volume.Counts{Revenue: 4, Engagement: 4, Retention: 2}, res.Breakdown.Config.Counts())
	require.NotNil(t, res.Cap)
	assert.True(t, res.Cap.Cap)
	assert.Equal(t, 8, res.Cap.Recommended)
	assert.Equal(t, volume.Counts{Revenue: 2, Engagement: 4, Retention: 2}, res.Volume.Counts())
	assert.Equal(t, 1.0, counterValue(t, f.metrics, "volumerun_elasticity_caps_total"))

	assert.True(t, res.DayOfWeek.IsDefault)
	assert.Equal(t, 56, res.WeeklyTotal)
	assert.Equal(t, 56, sum(res.WeeklySchedule))
	assert.GreaterOrEqual(t, res.WeeklySchedule[5], res.WeeklySchedule[0])

	total := 0
	for _, n := range res.ContentAllocation {
		total += n
	}
	assert.Equal(t, 14, total)
	assert.Zero(t, res.ContentAllocation["text"])
	assert.Greater(t, res.ContentAllocation["video"], res.ContentAllocation["photo"])

	assert.False(t, res.Captions.IsValid)
	assert.Equal(t, captions.SeverityCritical, res.Captions.Status)

	require.NotNil(t, res.PredictionID)
	require.Len(t, f.tracker.saved, 1)
	saved := f.tracker.saved[0]
	assert.Equal(t, res.RunID, saved.RunID)
	assert.Equal(t, time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC), saved.WeekStart)
	assert.Equal(t, 56, saved.PredictedWeeklyMessages)
	assert.InDelta(t, 112.0, saved.PredictedWeeklyRevenue, 1e-9)
	assert.Equal(t, "MID", saved.PredictedTier)
	assert.Equal(t, "2.0", saved.AlgorithmVersion)
}

func TestCalculateOptimizedVolume_NoScoreHistory(t *testing.T) {
	f := newFixture()
	f.scores.h = horizon.Horizons{}

	res, err := f.service(t).CalculateOptimizedVolume(context.Background(), "creator_a", Options{})
	require.NoError(t, err)

	assert.Equal(t, NeutralScore, res.Fused.Saturation)
	assert.Equal(t, NeutralScore, res.Fused.Opportunity)
	assert.Zero(t, res.Effective)
	assert.Equal(t, volume.Counts{Revenue: 4, Engagement: 4, Retention: 2}, res.Volume.Counts(), "zero confidence keeps the base volumes")
	assert.Nil(t, res.Cap)
	assert.Nil(t, res.PredictionID)
	assert.Empty(t, f.tracker.saved)

	require.NotEmpty(t, res.Adjustments)
	assert.Contains(t, res.Adjustments[0], "neutral saturation/opportunity")
}

func TestCalculateOptimizedVolume_ElasticityCached(t *testing.T) {
	f := newFixture()
	f.messages.daily = decayingDays(2.0, 0.15)
	svc := f.service(t)

	_, err := svc.CalculateOptimizedVolume(context.Background(), "creator_a", Options{})
	require.NoError(t, err)
	_, err = svc.CalculateOptimizedVolume(context.Background(), "creator_a", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.messages.dailyN, "second run reuses the fitted curve")
}

func TestCalculateOptimizedVolume_SufficientCaptions(t *testing.T) {
	f := newFixture()
	var bank []persistence.Caption
	bank = append(bank, usableCaptions("ppv_video", 40)...)
	bank = append(bank, usableCaptions("link_drop", 40)...)
	bank = append(bank, usableCaptions("renew_on_post", 20)...)
	f.captions.bank = bank

	res, err := f.service(t).CalculateOptimizedVolume(context.Background(), "creator_a", Options{})
	require.NoError(t, err)
	assert.True(t, res.Captions.IsValid)
	assert.Empty(t, res.Captions.Shortages)
}

func TestCalculateOptimizedVolume_Failures(t *testing.T) {
	tests := []struct {
		name    string
		creator string
		setup   func(f *fixture)
		want    error
	}{
		{name: "missing_creator", creator: "nobody", want: domain.ErrInsufficientData},
		{name: "inactive_creator", creator: "creator_x", want: domain.ErrValidation},
		{
			name:    "score_store_down",
			creator: "creator_a",
			setup: func(f *fixture) {
				f.scores.err = domain.NewDatabaseError("get precomputed score", errors.New("connection refused"))
			},
			want: domain.ErrDatabase,
		},
		{
			name:    "unknown_page_type",
			creator: "creator_b",
			setup: func(f *fixture) {
				f.creators.creators["creator_b"] = persistence.Creator{CreatorID: "creator_b", PageType: "vip", IsActive: true}
			},
			want: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			res, err := f.service(t).CalculateOptimizedVolume(context.Background(), tt.creator, Options{})
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCalculateOptimizedVolume_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFixture().service(t).CalculateOptimizedVolume(ctx, "creator_a", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, DefaultConfig())
	assert.Error(t, err)
}

func TestTrimToTotal(t *testing.T) {
	base, err := volume.NewConfig(volume.TierMid, volume.Counts{Revenue: 4, Engagement: 4, Retention: 2}, 3000, domain.PagePaid)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target int
		want   volume.Counts
	}{
		{name: "revenue_only", target: 8, want: volume.Counts{Revenue: 2, Engagement: 4, Retention: 2}},
		{name: "into_engagement", target: 5, want: volume.Counts{Revenue: 1, Engagement: 2, Retention: 2}},
		{name: "floored_at_minimums", target: 1, want: volume.Counts{Revenue: 1, Engagement: 1, Retention: 2}},
		{name: "no_trim", target: 12, want: volume.Counts{Revenue: 4, Engagement: 4, Retention: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrimToTotal(base, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Counts())
			assert.Equal(t, base.Tier, got.Tier)
		})
	}
}

func TestNextWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "monday_noon", in: now, want: time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC)},
		{name: "sunday_night", in: time.Date(2026, 3, 22, 23, 0, 0, 0, time.UTC), want: time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC)},
		{name: "wednesday", in: time.Date(2026, 3, 18, 8, 0, 0, 0, time.UTC), want: time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextWeekStart(tt.in))
		})
	}
}

func counterValue(t *testing.T, reg *metrics.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

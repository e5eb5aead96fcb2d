package elasticity

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/volumerun/internal/persistence"
)

// Model constants
const (
	DefaultDecayRate     = 0.08
	MinDecayRate         = 0.01
	MinOptimalVolume     = 1
	MaxOptimalVolume     = 20
	ReliableFitThreshold = 0.5
)

// Config holds fitting thresholds
type Config struct {
	MinSamplesPerBucket int     `yaml:"min_samples_per_bucket"` // Default: 3
	MinBuckets          int     `yaml:"min_buckets"`            // Default: 3
	MinEfficiency       float64 `yaml:"min_efficiency"`         // Default: 0.3 (MR/base floor)
	CacheSize           int     `yaml:"cache_size"`             // Default: 256 creators
}

// DefaultConfig returns the production fitting thresholds
func DefaultConfig() Config {
	return Config{
		MinSamplesPerBucket: 3,
		MinBuckets:          3,
		MinEfficiency:       0.3,
		CacheSize:           256,
	}
}

// VolumePoint is one observed day: how many sends went out and what each earned on average
type VolumePoint struct {
	Volume         int     `json:"volume"`
	RevenuePerSend float64 `json:"revenue_per_send"`
}

// PointsFromDaily converts daily aggregates into fitting points
func PointsFromDaily(days []persistence.DailyVolume) []VolumePoint {
	points := make([]VolumePoint, 0, len(days))
	for _, d := range days {
		if d.Sends <= 0 {
			continue
		}
		points = append(points, VolumePoint{Volume: d.Sends, RevenuePerSend: d.AvgRPS})
	}
	return points
}

// Parameters describe a fitted diminishing-returns curve MR(v) = base * e^(-decay*v)
type Parameters struct {
	BaseRPS        float64 `json:"base_rps"`
	DecayRate      float64 `json:"decay_rate"`
	MinMarginalRPS float64 `json:"min_marginal_rps"`
	OptimalVolume  int     `json:"optimal_volume"`
	FitQuality     float64 `json:"fit_quality"` // R², 0.0-1.0
	SampleSize     int     `json:"sample_size"`
	BucketCount    int     `json:"bucket_count"`
}

// IsReliable reports whether the fit is good enough to act on
func (p Parameters) IsReliable() bool {
	return p.FitQuality > ReliableFitThreshold
}

// MarginalRevenue returns the expected revenue of the v-th daily send
func (p Parameters) MarginalRevenue(v float64) float64 {
	return p.BaseRPS * math.Exp(-p.DecayRate*v)
}

// TotalRevenue integrates marginal revenue from 0 to v
func (p Parameters) TotalRevenue(v float64) float64 {
	if p.DecayRate <= 0 {
		return p.BaseRPS * v
	}
	return p.BaseRPS / p.DecayRate * (1 - math.Exp(-p.DecayRate*v))
}

// Efficiency is MR(v) relative to the first send, 0.0-1.0
func (p Parameters) Efficiency(v float64) float64 {
	if p.BaseRPS <= 0 {
		return 0
	}
	return p.MarginalRevenue(v) / p.BaseRPS
}

// solveOptimal finds v where MR(v) = MinMarginalRPS, clamped to [1, 20]
func (p Parameters) solveOptimal() int {
	if p.BaseRPS <= 0 || p.MinMarginalRPS <= 0 || p.DecayRate <= 0 {
		return MaxOptimalVolume
	}
	v := math.Log(p.BaseRPS/p.MinMarginalRPS) / p.DecayRate
	if math.IsNaN(v) || v < MinOptimalVolume {
		return MinOptimalVolume
	}
	if v > MaxOptimalVolume {
		return MaxOptimalVolume
	}
	return int(math.Floor(v))
}

// CapDecision is the outcome of ShouldCapVolume
type CapDecision struct {
	Cap         bool    `json:"cap"`
	Proposed    int     `json:"proposed"`
	Recommended int     `json:"recommended"`
	Efficiency  float64 `json:"efficiency"`
	Reason      string  `json:"reason"`
}

// ShouldCapVolume reports whether the proposed daily volume runs below the
// efficiency floor and, if so, recommends the optimal volume instead.
func (p Parameters) ShouldCapVolume(proposed int) CapDecision {
	eff := p.Efficiency(float64(proposed))
	floor := 0.0
	if p.BaseRPS > 0 {
		floor = p.MinMarginalRPS / p.BaseRPS
	}

	d := CapDecision{
		Proposed:    proposed,
		Recommended: proposed,
		Efficiency:  eff,
	}
	if eff >= floor {
		d.Reason = fmt.Sprintf("volume %d runs at %.0f%% efficiency, above the %.0f%% floor", proposed, eff*100, floor*100)
		return d
	}

	d.Cap = true
	d.Recommended = p.OptimalVolume
	d.Reason = fmt.Sprintf("volume %d runs at %.0f%% efficiency (floor %.0f%%): marginal revenue $%.2f per send is below $%.2f, recommend %d sends/day",
		proposed, eff*100, floor*100, p.MarginalRevenue(float64(proposed)), p.MinMarginalRPS, p.OptimalVolume)
	return d
}

// Model fits elasticity parameters from volume history
type Model struct {
	config Config
}

// NewModel creates a model, filling zero fields with defaults
func NewModel(config Config) *Model {
	def := DefaultConfig()
	if config.MinSamplesPerBucket <= 0 {
		config.MinSamplesPerBucket = def.MinSamplesPerBucket
	}
	if config.MinBuckets <= 0 {
		config.MinBuckets = def.MinBuckets
	}
	if config.MinEfficiency <= 0 || config.MinEfficiency >= 1 {
		config.MinEfficiency = def.MinEfficiency
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	return &Model{config: config}
}

// Config returns the effective configuration
func (m *Model) Config() Config { return m.config }

type bucket struct {
	volume int
	count  int
	sum    float64
}

func (b bucket) mean() float64 { return b.sum / float64(b.count) }

// Fit regresses ln(mean RPS) on volume across buckets with enough samples.
// With fewer than MinBuckets eligible buckets it returns a conservative default
// with FitQuality 0 instead of an error.
func (m *Model) Fit(points []VolumePoint) Parameters {
	byVolume := make(map[int]*bucket)
	total, n := 0.0, 0
	for _, pt := range points {
		if pt.Volume <= 0 || pt.RevenuePerSend < 0 || math.IsNaN(pt.RevenuePerSend) {
			continue
		}
		b, ok := byVolume[pt.Volume]
		if !ok {
			b = &bucket{volume: pt.Volume}
			byVolume[pt.Volume] = b
		}
		b.count++
		b.sum += pt.RevenuePerSend
		total += pt.RevenuePerSend
		n++
	}

	eligible := make([]bucket, 0, len(byVolume))
	for _, b := range byVolume {
		if b.count >= m.config.MinSamplesPerBucket && b.mean() > 0 {
			eligible = append(eligible, *b)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].volume < eligible[j].volume })

	if len(eligible) < m.config.MinBuckets {
		base := 1.0
		if n > 0 && total > 0 {
			base = total / float64(n)
		}
		return m.finish(Parameters{
			BaseRPS:     base,
			DecayRate:   DefaultDecayRate,
			FitQuality:  0,
			SampleSize:  n,
			BucketCount: len(eligible),
		})
	}

	var sw, swx, swy float64
	for _, b := range eligible {
		w := float64(b.count)
		sw += w
		swx += w * float64(b.volume)
		swy += w * math.Log(b.mean())
	}
	xbar, ybar := swx/sw, swy/sw

	var sxx, sxy, syy float64
	for _, b := range eligible {
		w := float64(b.count)
		dx := float64(b.volume) - xbar
		dy := math.Log(b.mean()) - ybar
		sxx += w * dx * dx
		sxy += w * dx * dy
		syy += w * dy * dy
	}

	sampleSize := 0
	for _, b := range eligible {
		sampleSize += b.count
	}

	slope := sxy / sxx
	if slope >= 0 || syy == 0 {
		// no diminishing returns visible in the data
		return m.finish(Parameters{
			BaseRPS:     math.Exp(ybar),
			DecayRate:   MinDecayRate,
			FitQuality:  0,
			SampleSize:  sampleSize,
			BucketCount: len(eligible),
		})
	}

	intercept := ybar - slope*xbar
	r2 := (sxy * sxy) / (sxx * syy)

	return m.finish(Parameters{
		BaseRPS:     math.Exp(intercept),
		DecayRate:   math.Max(-slope, MinDecayRate),
		FitQuality:  math.Max(0, math.Min(1, r2)),
		SampleSize:  sampleSize,
		BucketCount: len(eligible),
	})
}

func (m *Model) finish(p Parameters) Parameters {
	p.MinMarginalRPS = p.BaseRPS * m.config.MinEfficiency
	p.OptimalVolume = p.solveOptimal()
	return p
}

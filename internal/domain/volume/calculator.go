package volume

import (
	"math"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/confidence"
)

// CalculatorConfig holds the multiplier ranges and trend thresholds
type CalculatorConfig struct {
	SaturationFloor    float64 `yaml:"saturation_floor"`     // Default: 0.7 (multiplier at saturation 100)
	OpportunityCeiling float64 `yaml:"opportunity_ceiling"`  // Default: 1.2 (multiplier at opportunity 100)
	TrendUpThreshold   float64 `yaml:"trend_up_threshold"`   // Default: 15 (percent)
	TrendDownThreshold float64 `yaml:"trend_down_threshold"` // Default: -15 (percent)
}

// DefaultCalculatorConfig returns the production multiplier ranges
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		SaturationFloor:    0.7,
		OpportunityCeiling: 1.2,
		TrendUpThreshold:   15,
		TrendDownThreshold: -15,
	}
}

// Calculator turns a PerformanceContext into a bounded daily Config
type Calculator struct {
	config CalculatorConfig
}

// NewCalculator creates a calculator, filling zero fields with defaults
func NewCalculator(config CalculatorConfig) *Calculator {
	def := DefaultCalculatorConfig()
	if config.SaturationFloor <= 0 || config.SaturationFloor > 1 {
		config.SaturationFloor = def.SaturationFloor
	}
	if config.OpportunityCeiling < 1 {
		config.OpportunityCeiling = def.OpportunityCeiling
	}
	if config.TrendUpThreshold <= 0 {
		config.TrendUpThreshold = def.TrendUpThreshold
	}
	if config.TrendDownThreshold >= 0 {
		config.TrendDownThreshold = def.TrendDownThreshold
	}
	return &Calculator{config: config}
}

// Breakdown records every intermediate value of one calculation
type Breakdown struct {
	Tier                  Tier    `json:"tier"`
	Base                  Counts  `json:"base"`
	TrendAdjustment       int     `json:"trend_adjustment"`
	SaturationMultiplier  float64 `json:"saturation_multiplier"`
	OpportunityMultiplier float64 `json:"opportunity_multiplier"`
	CombinedMultiplier    float64 `json:"combined_multiplier"`
	Confidence            float64 `json:"confidence"`
	Unclamped             Counts  `json:"unclamped"`
	Config                Config  `json:"config"`
}

// Calculate computes the daily target with undamped multipliers
func (c *Calculator) Calculate(pc PerformanceContext) (Config, error) {
	b, err := c.Explain(pc, 1.0)
	if err != nil {
		return Config{}, err
	}
	return b.Config, nil
}

// CalculateDampened computes the daily target with both score multipliers
// pulled toward 1.0 by the given confidence.
func (c *Calculator) CalculateDampened(pc PerformanceContext, conf float64) (Config, error) {
	b, err := c.Explain(pc, conf)
	if err != nil {
		return Config{}, err
	}
	return b.Config, nil
}

// Explain runs the calculation and returns all intermediate values
func (c *Calculator) Explain(pc PerformanceContext, conf float64) (Breakdown, error) {
	pageType, err := domain.ParsePageType(string(pc.PageType))
	if err != nil {
		return Breakdown{}, err
	}

	tier, err := TierForFans(pc.FanCount)
	if err != nil {
		return Breakdown{}, err
	}

	base, err := BaseVolumes(tier, pageType)
	if err != nil {
		return Breakdown{}, err
	}

	satMult := confidence.Dampen(c.SaturationMultiplier(pc.SaturationScore), conf, confidence.Neutral)
	oppMult := confidence.Dampen(c.OpportunityMultiplier(pc.OpportunityScore), conf, confidence.Neutral)
	combined := satMult * oppMult

	trend := c.TrendAdjustment(pc.RevenueTrend)

	unclamped := Counts{
		Revenue:    roundCount(float64(base.Revenue+trend) * combined),
		Engagement: roundCount(float64(base.Engagement+trend) * combined),
		Retention:  roundCount(float64(base.Retention) * satMult),
	}
	if pageType == domain.PageFree {
		unclamped.Retention = 0
	}

	final := Counts{
		Revenue:    RevenueBounds.Clamp(unclamped.Revenue),
		Engagement: EngagementBounds.Clamp(unclamped.Engagement),
		Retention:  RetentionBounds.Clamp(unclamped.Retention),
	}

	cfg, err := NewConfig(tier, final, pc.FanCount, pageType)
	if err != nil {
		return Breakdown{}, err
	}

	return Breakdown{
		Tier:                  tier,
		Base:                  base,
		TrendAdjustment:       trend,
		SaturationMultiplier:  satMult,
		OpportunityMultiplier: oppMult,
		CombinedMultiplier:    combined,
		Confidence:            conf,
		Unclamped:             unclamped,
		Config:                cfg,
	}, nil
}

// SaturationMultiplier maps saturation 0..100 linearly onto 1.0..floor
func (c *Calculator) SaturationMultiplier(saturation float64) float64 {
	s := ClampScore(saturation) / 100
	return c.config.SaturationFloor + (1-c.config.SaturationFloor)*(1-s)
}

// OpportunityMultiplier maps opportunity 0..100 linearly onto 1.0..ceiling
func (c *Calculator) OpportunityMultiplier(opportunity float64) float64 {
	o := ClampScore(opportunity) / 100
	return 1 + (c.config.OpportunityCeiling-1)*o
}

// TrendAdjustment returns +1, -1 or 0 sends for the revenue trend
func (c *Calculator) TrendAdjustment(revenueTrend float64) int {
	switch {
	case revenueTrend >= c.config.TrendUpThreshold:
		return 1
	case revenueTrend <= c.config.TrendDownThreshold:
		return -1
	default:
		return 0
	}
}

func roundCount(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Round(v))
}

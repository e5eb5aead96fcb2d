package volume

import (
	"math"

	"github.com/sawpanic/volumerun/internal/domain"
)

// Config is the computed daily send target for one creator.
// Build it with NewConfig so the invariants are checked once.
type Config struct {
	Tier             Tier            `json:"tier"`
	RevenuePerDay    int             `json:"revenue_per_day"`
	EngagementPerDay int             `json:"engagement_per_day"`
	RetentionPerDay  int             `json:"retention_per_day"`
	FanCount         int             `json:"fan_count"`
	PageType         domain.PageType `json:"page_type"`
}

// NewConfig validates and builds a Config
func NewConfig(tier Tier, counts Counts, fanCount int, pageType domain.PageType) (Config, error) {
	if _, err := domain.ParsePageType(string(pageType)); err != nil {
		return Config{}, err
	}
	if counts.Revenue < 0 || counts.Engagement < 0 || counts.Retention < 0 {
		return Config{}, domain.Invalid("counts", "must be non-negative, got %+v", counts)
	}
	if fanCount < 0 {
		return Config{}, domain.Invalid("fan_count", "must be non-negative, got %d", fanCount)
	}
	if pageType == domain.PageFree && counts.Retention != 0 {
		return Config{}, domain.Invalid("retention_per_day", "free pages cannot schedule retention sends, got %d", counts.Retention)
	}
	return Config{
		Tier:             tier,
		RevenuePerDay:    counts.Revenue,
		EngagementPerDay: counts.Engagement,
		RetentionPerDay:  counts.Retention,
		FanCount:         fanCount,
		PageType:         pageType,
	}, nil
}

// TotalPerDay returns the daily sends across all categories
func (c Config) TotalPerDay() int {
	return c.RevenuePerDay + c.EngagementPerDay + c.RetentionPerDay
}

// Counts returns the per-category counts
func (c Config) Counts() Counts {
	return Counts{Revenue: c.RevenuePerDay, Engagement: c.EngagementPerDay, Retention: c.RetentionPerDay}
}

// PerDay returns the daily count of one category
func (c Config) PerDay(cat domain.Category) int {
	switch cat {
	case domain.CategoryRevenue:
		return c.RevenuePerDay
	case domain.CategoryEngagement:
		return c.EngagementPerDay
	case domain.CategoryRetention:
		return c.RetentionPerDay
	default:
		return 0
	}
}

// WithinBounds reports whether every category respects its hard limits
func (c Config) WithinBounds() bool {
	if c.PageType == domain.PageFree && c.RetentionPerDay != 0 {
		return false
	}
	return RevenueBounds.Contains(c.RevenuePerDay) &&
		EngagementBounds.Contains(c.EngagementPerDay) &&
		RetentionBounds.Contains(c.RetentionPerDay)
}

// PerformanceContext is the input snapshot for one calculation
type PerformanceContext struct {
	FanCount         int             `json:"fan_count"`
	PageType         domain.PageType `json:"page_type"`
	SaturationScore  float64         `json:"saturation_score"`
	OpportunityScore float64         `json:"opportunity_score"`
	RevenueTrend     float64         `json:"revenue_trend"` // percent change, e.g. 18.5
}

// NewPerformanceContext validates the page type and fan count and clamps the
// scores to [0, 100].
func NewPerformanceContext(fanCount int, pageType string, saturation, opportunity, revenueTrend float64) (PerformanceContext, error) {
	pt, err := domain.ParsePageType(pageType)
	if err != nil {
		return PerformanceContext{}, err
	}
	if fanCount < 0 {
		return PerformanceContext{}, domain.Invalid("fan_count", "must be non-negative, got %d", fanCount)
	}
	if math.IsNaN(revenueTrend) || math.IsInf(revenueTrend, 0) {
		revenueTrend = 0
	}
	return PerformanceContext{
		FanCount:         fanCount,
		PageType:         pt,
		SaturationScore:  ClampScore(saturation),
		OpportunityScore: ClampScore(opportunity),
		RevenueTrend:     revenueTrend,
	}, nil
}

// ClampScore limits a 0-100 score; NaN maps to the neutral midpoint
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

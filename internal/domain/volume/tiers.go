package volume

import (
	"github.com/sawpanic/volumerun/internal/domain"
)

// Tier buckets creators by fan count
type Tier int

const (
	TierLow Tier = iota
	TierMid
	TierHigh
	TierUltra
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "LOW"
	case TierMid:
		return "MID"
	case TierHigh:
		return "HIGH"
	case TierUltra:
		return "ULTRA"
	default:
		return "UNKNOWN"
	}
}

// Fan count breakpoints (inclusive lower bounds)
const (
	MidTierMinFans   = 1000
	HighTierMinFans  = 5000
	UltraTierMinFans = 15000
)

// TierForFans returns the tier for a fan count. It is monotonic non-decreasing.
func TierForFans(fanCount int) (Tier, error) {
	switch {
	case fanCount < 0:
		return TierLow, domain.Invalid("fan_count", "must be non-negative, got %d", fanCount)
	case fanCount >= UltraTierMinFans:
		return TierUltra, nil
	case fanCount >= HighTierMinFans:
		return TierHigh, nil
	case fanCount >= MidTierMinFans:
		return TierMid, nil
	default:
		return TierLow, nil
	}
}

// Counts is a per-category daily send count triple
type Counts struct {
	Revenue    int `json:"revenue" yaml:"revenue"`
	Engagement int `json:"engagement" yaml:"engagement"`
	Retention  int `json:"retention" yaml:"retention"`
}

// Total returns the sum of all categories
func (c Counts) Total() int {
	return c.Revenue + c.Engagement + c.Retention
}

// baseVolumes is the tier x page type lookup of daily sends before adjustment
var baseVolumes = map[Tier]map[domain.PageType]Counts{
	TierLow: {
		domain.PagePaid: {Revenue: 3, Engagement: 3, Retention: 1},
		domain.PageFree: {Revenue: 3, Engagement: 4, Retention: 0},
	},
	TierMid: {
		domain.PagePaid: {Revenue: 4, Engagement: 4, Retention: 2},
		domain.PageFree: {Revenue: 4, Engagement: 5, Retention: 0},
	},
	TierHigh: {
		domain.PagePaid: {Revenue: 6, Engagement: 5, Retention: 2},
		domain.PageFree: {Revenue: 6, Engagement: 6, Retention: 0},
	},
	TierUltra: {
		domain.PagePaid: {Revenue: 8, Engagement: 6, Retention: 3},
		domain.PageFree: {Revenue: 8, Engagement: 6, Retention: 0},
	},
}

// BaseVolumes returns the unadjusted daily counts for a tier and page type
func BaseVolumes(tier Tier, pageType domain.PageType) (Counts, error) {
	byPage, ok := baseVolumes[tier]
	if !ok {
		return Counts{}, domain.Invalid("tier", "unknown tier %d", int(tier))
	}
	counts, ok := byPage[pageType]
	if !ok {
		return Counts{}, domain.Invalid("page_type", "unknown page type %q", pageType)
	}
	return counts, nil
}

// Bounds is an inclusive [Min, Max] range for one category
type Bounds struct {
	Min int
	Max int
}

// Clamp limits v to the bounds
func (b Bounds) Clamp(v int) int {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v lies within the bounds
func (b Bounds) Contains(v int) bool {
	return v >= b.Min && v <= b.Max
}

// Hard daily limits per category
var (
	RevenueBounds    = Bounds{Min: 1, Max: 8}
	EngagementBounds = Bounds{Min: 1, Max: 6}
	RetentionBounds  = Bounds{Min: 0, Max: 4}
)

// BoundsFor returns the hard daily limits for a category
func BoundsFor(c domain.Category) Bounds {
	switch c {
	case domain.CategoryRevenue:
		return RevenueBounds
	case domain.CategoryEngagement:
		return EngagementBounds
	case domain.CategoryRetention:
		return RetentionBounds
	default:
		return Bounds{}
	}
}

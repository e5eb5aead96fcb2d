package captions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/volume"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// sendTypeCategories maps every known send type to the category it fills
var sendTypeCategories = map[string]domain.Category{
	"ppv_video":        domain.CategoryRevenue,
	"ppv_message":      domain.CategoryRevenue,
	"bundle":           domain.CategoryRevenue,
	"flash_bundle":     domain.CategoryRevenue,
	"game_post":        domain.CategoryRevenue,
	"first_to_tip":     domain.CategoryRevenue,
	"vip_program":      domain.CategoryRevenue,
	"snapchat_bundle":  domain.CategoryRevenue,
	"link_drop":        domain.CategoryEngagement,
	"wall_link_drop":   domain.CategoryEngagement,
	"dm_farm":          domain.CategoryEngagement,
	"like_farm":        domain.CategoryEngagement,
	"bump_normal":      domain.CategoryEngagement,
	"bump_descriptive": domain.CategoryEngagement,
	"bump_text_only":   domain.CategoryEngagement,
	"renew_on_post":    domain.CategoryRetention,
	"renew_on_message": domain.CategoryRetention,
	"expired_winback":  domain.CategoryRetention,
	"ppv_followup":     domain.CategoryRetention,
}

// CategoryOf returns the category of a send type
func CategoryOf(sendType string) (domain.Category, bool) {
	c, ok := sendTypeCategories[strings.ToLower(sendType)]
	return c, ok
}

// SendTypesIn lists the known send types of a category, sorted
func SendTypesIn(c domain.Category) []string {
	var out []string
	for st, cat := range sendTypeCategories {
		if cat == c {
			out = append(out, st)
		}
	}
	sort.Strings(out)
	return out
}

// Config holds usability thresholds
type Config struct {
	MinFreshness       float64 `yaml:"min_freshness"`        // Default: 30
	MinPerformance     float64 `yaml:"min_performance"`      // Default: 40
	CriticalUsableMin  int     `yaml:"critical_usable_min"`  // Default: 3 (below is critical)
	DefaultHorizonDays int     `yaml:"default_horizon_days"` // Default: 7
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MinFreshness:       30,
		MinPerformance:     40,
		CriticalUsableMin:  3,
		DefaultHorizonDays: 7,
	}
}

// SendTypeCount is the caption inventory of one send type
type SendTypeCount struct {
	SendType string          `json:"send_type"`
	Category domain.Category `json:"category"`
	Total    int             `json:"total"`
	Fresh    int             `json:"fresh"`
	Usable   int             `json:"usable"`
}

// CategoryTotals aggregates SendTypeCount per category
type CategoryTotals struct {
	Total  int `json:"total"`
	Fresh  int `json:"fresh"`
	Usable int `json:"usable"`
}

// PoolStatus is the caption inventory of a creator
type PoolStatus struct {
	CreatorID         string                             `json:"creator_id"`
	BySendType        map[string]SendTypeCount           `json:"by_send_type"`
	ByCategory        map[domain.Category]CategoryTotals `json:"by_category"`
	CriticalSendTypes []string                           `json:"critical_send_types"`
	Unmapped          int                                `json:"unmapped"` // captions with an unknown send type
}

// Usable returns usable captions of a category
func (s PoolStatus) Usable(c domain.Category) int {
	return s.ByCategory[c].Usable
}

// Severity classifies a shortage
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInsufficient
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "ok"
	case SeverityInsufficient:
		return "insufficient"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity name in JSON output
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Shortage reports one category that cannot be filled
type Shortage struct {
	Category       domain.Category `json:"category"`
	Needed         int             `json:"needed"`
	Available      int             `json:"available"`
	Deficit        int             `json:"deficit"`
	Severity       Severity        `json:"severity"`
	Recommendation string          `json:"recommendation"`
}

// ConstraintResult is the feasibility report of a volume target
type ConstraintResult struct {
	CreatorID         string     `json:"creator_id"`
	Days              int        `json:"days"`
	IsValid           bool       `json:"is_valid"`
	Status            Severity   `json:"status"` // worst shortage severity
	Shortages         []Shortage `json:"shortages"`
	CriticalSendTypes []string   `json:"critical_send_types"`
}

// Summary renders a one-paragraph operator report
func (r ConstraintResult) Summary() string {
	if r.IsValid {
		return fmt.Sprintf("caption pool for %s supports the %d-day schedule", r.CreatorID, r.Days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "caption pool for %s is %s for the %d-day schedule:", r.CreatorID, r.Status, r.Days)
	for _, s := range r.Shortages {
		fmt.Fprintf(&b, " %s needs %d, has %d (%s);", s.Category, s.Needed, s.Available, s.Severity)
	}
	if len(r.CriticalSendTypes) > 0 {
		fmt.Fprintf(&b, " low send types: %s", strings.Join(r.CriticalSendTypes, ", "))
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Checker analyzes caption inventories
type Checker struct {
	config Config
}

// NewChecker creates a checker, filling zero fields with defaults
func NewChecker(config Config) *Checker {
	def := DefaultConfig()
	if config.MinFreshness <= 0 {
		config.MinFreshness = def.MinFreshness
	}
	if config.MinPerformance <= 0 {
		config.MinPerformance = def.MinPerformance
	}
	if config.CriticalUsableMin <= 0 {
		config.CriticalUsableMin = def.CriticalUsableMin
	}
	if config.DefaultHorizonDays <= 0 {
		config.DefaultHorizonDays = def.DefaultHorizonDays
	}
	return &Checker{config: config}
}

// Config returns the effective configuration
func (c *Checker) Config() Config { return c.config }

// IsUsable reports whether a caption can be scheduled now
func (c *Checker) IsUsable(caption persistence.Caption) bool {
	return caption.IsActive && caption.FreshnessScore >= c.config.MinFreshness && caption.PerformanceScore >= c.config.MinPerformance
}

// Scheduled lists the categories a volume config sends at least once a day
func Scheduled(cfg volume.Config) []domain.Category {
	var out []domain.Category
	for _, cat := range domain.Categories {
		if cfg.PerDay(cat) > 0 {
			out = append(out, cat)
		}
	}
	return out
}

// Analyze counts total, fresh and usable captions per send type and category.
// Every known send type of the scheduled categories (all categories when none
// are given) is reported, including types with no captions at all, and is
// critical below CriticalUsableMin usable captions.
func (c *Checker) Analyze(creatorID string, bank []persistence.Caption, scheduled ...domain.Category) PoolStatus {
	if len(scheduled) == 0 {
		scheduled = domain.Categories
	}
	inScope := make(map[domain.Category]bool, len(scheduled))
	for _, cat := range scheduled {
		inScope[cat] = true
	}

	status := PoolStatus{
		CreatorID:  creatorID,
		BySendType: make(map[string]SendTypeCount),
		ByCategory: make(map[domain.Category]CategoryTotals, len(domain.Categories)),
	}
	for _, cat := range domain.Categories {
		status.ByCategory[cat] = CategoryTotals{}
	}
	for st, cat := range sendTypeCategories {
		if inScope[cat] {
			status.BySendType[st] = SendTypeCount{SendType: st, Category: cat}
		}
	}

	for _, caption := range bank {
		key := strings.ToLower(caption.SendType)
		cat, ok := CategoryOf(key)
		if !ok {
			status.Unmapped++
			continue
		}
		st := status.BySendType[key]
		st.SendType = key
		st.Category = cat
		st.Total++
		if caption.IsActive && caption.FreshnessScore >= c.config.MinFreshness {
			st.Fresh++
		}
		if c.IsUsable(caption) {
			st.Usable++
		}
		status.BySendType[key] = st
	}

	for key, st := range status.BySendType {
		totals := status.ByCategory[st.Category]
		totals.Total += st.Total
		totals.Fresh += st.Fresh
		totals.Usable += st.Usable
		status.ByCategory[st.Category] = totals
		if inScope[st.Category] && st.Usable < c.config.CriticalUsableMin {
			status.CriticalSendTypes = append(status.CriticalSendTypes, key)
		}
	}
	sort.Strings(status.CriticalSendTypes)
	return status
}

// Validate compares the per-category requirement over days against the usable
// pool. It only reports; the volume target is left untouched.
func (c *Checker) Validate(pool PoolStatus, cfg volume.Config, days int) (ConstraintResult, error) {
	if days <= 0 {
		return ConstraintResult{}, domain.Invalid("days", "must be positive, got %d", days)
	}

	result := ConstraintResult{
		CreatorID:         pool.CreatorID,
		Days:              days,
		IsValid:           true,
		Status:            SeverityNone,
		CriticalSendTypes: pool.CriticalSendTypes,
	}

	for _, cat := range domain.Categories {
		needed := cfg.PerDay(cat) * days
		if needed == 0 {
			continue
		}
		available := pool.Usable(cat)
		if available >= needed {
			continue
		}

		severity := SeverityInsufficient
		if available == 0 {
			severity = SeverityCritical
		}
		result.Shortages = append(result.Shortages, Shortage{
			Category:       cat,
			Needed:         needed,
			Available:      available,
			Deficit:        needed - available,
			Severity:       severity,
			Recommendation: recommendation(cat, needed, available, severity),
		})
		result.IsValid = false
		if severity > result.Status {
			result.Status = severity
		}
	}
	return result, nil
}

func recommendation(cat domain.Category, needed, available int, sev Severity) string {
	types := strings.Join(SendTypesIn(cat), ", ")
	if sev == SeverityCritical {
		return fmt.Sprintf("no usable %s captions: write at least %d new captions (%s) or refresh retired ones before scheduling",
			cat, needed, types)
	}
	return fmt.Sprintf("add %d %s captions or allow reuse; only %d of %d slots can be filled with fresh, well-performing captions",
		needed-available, cat, available, needed)
}

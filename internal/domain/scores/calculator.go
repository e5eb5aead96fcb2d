package scores

import (
	"math"
	"sort"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/horizon"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// Config holds the on-demand scoring settings
type Config struct {
	MinMessages         int     `yaml:"min_messages"`          // Default: 10
	PressureSendsPerDay float64 `yaml:"pressure_sends_per_day"` // Default: 8 (sends/day treated as full pressure)
	TargetPurchaseRate  float64 `yaml:"target_purchase_rate"`  // Default: 0.10

	// Saturation blend
	SatRPSWeight      float64 `yaml:"sat_rps_weight"`      // Default: 0.4
	SatViewWeight     float64 `yaml:"sat_view_weight"`     // Default: 0.3
	SatPressureWeight float64 `yaml:"sat_pressure_weight"` // Default: 0.3

	// Opportunity blend
	OppRPSWeight      float64 `yaml:"opp_rps_weight"`      // Default: 0.4
	OppPurchaseWeight float64 `yaml:"opp_purchase_weight"` // Default: 0.3
	OppHeadroomWeight float64 `yaml:"opp_headroom_weight"` // Default: 0.3
}

// DefaultConfig returns the production scoring settings
func DefaultConfig() Config {
	return Config{
		MinMessages:         10,
		PressureSendsPerDay: 8,
		TargetPurchaseRate:  0.10,
		SatRPSWeight:        0.4,
		SatViewWeight:       0.3,
		SatPressureWeight:   0.3,
		OppRPSWeight:        0.4,
		OppPurchaseWeight:   0.3,
		OppHeadroomWeight:   0.3,
	}
}

// Components are the normalized signals behind one score pair
type Components struct {
	RPSChange      float64 `json:"rps_change"`       // late vs early, -1..1, positive is growth
	ViewRateChange float64 `json:"view_rate_change"` // late vs early, -1..1
	Pressure       float64 `json:"pressure"`         // 0..1
	PurchaseLevel  float64 `json:"purchase_level"`   // 0..1
	SendsPerDay    float64 `json:"sends_per_day"`
	ActiveDays     int     `json:"active_days"`
}

// Calculator derives saturation and opportunity from raw send history
type Calculator struct {
	config Config
}

// NewCalculator creates a calculator, filling zero fields with defaults
func NewCalculator(config Config) *Calculator {
	def := DefaultConfig()
	if config.MinMessages <= 0 {
		config.MinMessages = def.MinMessages
	}
	if config.PressureSendsPerDay <= 0 {
		config.PressureSendsPerDay = def.PressureSendsPerDay
	}
	if config.TargetPurchaseRate <= 0 {
		config.TargetPurchaseRate = def.TargetPurchaseRate
	}
	if config.SatRPSWeight+config.SatViewWeight+config.SatPressureWeight <= 0 {
		config.SatRPSWeight, config.SatViewWeight, config.SatPressureWeight = def.SatRPSWeight, def.SatViewWeight, def.SatPressureWeight
	}
	if config.OppRPSWeight+config.OppPurchaseWeight+config.OppHeadroomWeight <= 0 {
		config.OppRPSWeight, config.OppPurchaseWeight, config.OppHeadroomWeight = def.OppRPSWeight, def.OppPurchaseWeight, def.OppHeadroomWeight
	}
	return &Calculator{config: config}
}

// Config returns the effective configuration
func (c *Calculator) Config() Config { return c.config }

// Calculate scores one window of messages. The window is split in half by
// send time; the late half is compared with the early half.
func (c *Calculator) Calculate(messages []persistence.MassMessage) (horizon.Scores, error) {
	s, _, err := c.Explain(messages)
	return s, err
}

// Explain is Calculate plus the normalized components
func (c *Calculator) Explain(messages []persistence.MassMessage) (horizon.Scores, Components, error) {
	if len(messages) < c.config.MinMessages {
		return horizon.Scores{}, Components{}, &domain.InsufficientDataError{
			What: "messages", Have: len(messages), Need: c.config.MinMessages,
		}
	}

	sorted := make([]persistence.MassMessage, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SendingTime.Before(sorted[j].SendingTime)
	})

	half := len(sorted) / 2
	early, late := summarize(sorted[:half]), summarize(sorted[half:])
	all := summarize(sorted)

	comp := Components{
		RPSChange:      relativeChange(early.meanRPS, late.meanRPS),
		ViewRateChange: relativeChange(early.meanViewRate, late.meanViewRate),
		ActiveDays:     activeDays(sorted),
	}
	comp.SendsPerDay = float64(len(sorted)) / float64(comp.ActiveDays)
	comp.Pressure = clamp01(comp.SendsPerDay / c.config.PressureSendsPerDay)
	comp.PurchaseLevel = clamp01(all.meanPurchaseRate / c.config.TargetPurchaseRate)

	cfg := c.config
	// declines push saturation up, so the change is mirrored
	satRaw := cfg.SatRPSWeight*toUnit(-comp.RPSChange) +
		cfg.SatViewWeight*toUnit(-comp.ViewRateChange) +
		cfg.SatPressureWeight*comp.Pressure
	oppRaw := cfg.OppRPSWeight*toUnit(comp.RPSChange) +
		cfg.OppPurchaseWeight*comp.PurchaseLevel +
		cfg.OppHeadroomWeight*(1-comp.Pressure)

	scores := horizon.Scores{
		Saturation:   clampScore(100 * satRaw / (cfg.SatRPSWeight + cfg.SatViewWeight + cfg.SatPressureWeight)),
		Opportunity:  clampScore(100 * oppRaw / (cfg.OppRPSWeight + cfg.OppPurchaseWeight + cfg.OppHeadroomWeight)),
		RevenueTrend: revenueTrend(early.meanEarnings, late.meanEarnings),
		MessageCount: len(sorted),
	}
	return scores, comp, nil
}

type summary struct {
	meanRPS          float64
	meanViewRate     float64
	meanPurchaseRate float64
	meanEarnings     float64
}

func summarize(msgs []persistence.MassMessage) summary {
	if len(msgs) == 0 {
		return summary{}
	}
	var s summary
	for _, m := range msgs {
		s.meanRPS += m.RPS()
		s.meanViewRate += m.ViewRate
		s.meanPurchaseRate += m.PurchaseRate
		s.meanEarnings += m.Earnings
	}
	n := float64(len(msgs))
	s.meanRPS /= n
	s.meanViewRate /= n
	s.meanPurchaseRate /= n
	s.meanEarnings /= n
	return s
}

func activeDays(msgs []persistence.MassMessage) int {
	days := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		days[m.SendingTime.UTC().Format("2006-01-02")] = struct{}{}
	}
	if len(days) == 0 {
		return 1
	}
	return len(days)
}

// relativeChange is (late-early)/early bounded to [-1, 1]; 0 without a baseline
func relativeChange(early, late float64) float64 {
	if early <= 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, (late-early)/early))
}

// revenueTrend is the percent change in mean earnings per send
func revenueTrend(early, late float64) float64 {
	if early <= 0 {
		return 0
	}
	return (late - early) / early * 100
}

// toUnit maps [-1, 1] onto [0, 1]
func toUnit(v float64) float64 {
	return (v + 1) / 2
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

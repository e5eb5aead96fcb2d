package dow

import (
	"math"
	"sort"
	"time"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/confidence"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// Weekday index: 0 = Monday ... 6 = Sunday
const DaysPerWeek = 7

// WeekdayNames in index order
var WeekdayNames = [DaysPerWeek]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DefaultMultipliers is used whenever history is too thin to trust
var DefaultMultipliers = [DaysPerWeek]float64{1.0, 1.0, 1.0, 1.0, 1.05, 1.10, 1.10}

// Index converts a time.Weekday (Sunday = 0) into the Monday-first index
func Index(wd time.Weekday) int {
	return (int(wd) + 6) % DaysPerWeek
}

// Config controls when computed multipliers are trusted
type Config struct {
	MinDaysPerWeekday int     `yaml:"min_days_per_weekday"` // Default: 2 distinct dates
	MinTotalMessages  int     `yaml:"min_total_messages"`   // Default: 14
	MinMultiplier     float64 `yaml:"min_multiplier"`       // Default: 0.7
	MaxMultiplier     float64 `yaml:"max_multiplier"`       // Default: 1.3
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MinDaysPerWeekday: 2,
		MinTotalMessages:  14,
		MinMultiplier:     0.7,
		MaxMultiplier:     1.3,
	}
}

// Multipliers redistributes weekly volume across weekdays
type Multipliers struct {
	CreatorID     string               `json:"creator_id"`
	Values        [DaysPerWeek]float64 `json:"values"`
	DaysWithData  [DaysPerWeek]int     `json:"days_with_data"`
	IsDefault     bool                 `json:"is_default"`
	Confidence    float64              `json:"confidence"`
	TotalMessages int                  `json:"total_messages"`
}

// For returns the multiplier of a calendar weekday
func (m Multipliers) For(wd time.Weekday) float64 {
	return m.Values[Index(wd)]
}

// ByName returns the multipliers keyed by lowercase weekday name
func (m Multipliers) ByName() map[string]float64 {
	out := make(map[string]float64, DaysPerWeek)
	for i, name := range WeekdayNames {
		out[name] = m.Values[i]
	}
	return out
}

// WeeklyDistribution spreads base*7 sends across the week in proportion to
// the multipliers. The weekly total is preserved exactly: leftover sends go one
// at a time to the highest-multiplier days, lower index first on ties.
func (m Multipliers) WeeklyDistribution(base int) ([DaysPerWeek]int, error) {
	var dist [DaysPerWeek]int
	if base < 0 {
		return dist, domain.Invalid("base_volume", "must be non-negative, got %d", base)
	}

	total := base * DaysPerWeek
	sum := 0.0
	for _, v := range m.Values {
		sum += v
	}
	if sum <= 0 {
		for i := range dist {
			dist[i] = base
		}
		return dist, nil
	}

	assigned := 0
	for i, v := range m.Values {
		dist[i] = int(math.Floor(float64(total) * v / sum))
		assigned += dist[i]
	}

	order := make([]int, DaysPerWeek)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Values[order[a]] > m.Values[order[b]]
	})

	for k := 0; assigned < total; k++ {
		dist[order[k%DaysPerWeek]]++
		assigned++
	}
	return dist, nil
}

// Model derives weekday multipliers from send history
type Model struct {
	config Config
}

// NewModel creates a model, filling zero fields with defaults
func NewModel(config Config) *Model {
	def := DefaultConfig()
	if config.MinDaysPerWeekday <= 0 {
		config.MinDaysPerWeekday = def.MinDaysPerWeekday
	}
	if config.MinTotalMessages <= 0 {
		config.MinTotalMessages = def.MinTotalMessages
	}
	if config.MinMultiplier <= 0 {
		config.MinMultiplier = def.MinMultiplier
	}
	if config.MaxMultiplier <= config.MinMultiplier {
		config.MaxMultiplier = def.MaxMultiplier
	}
	return &Model{config: config}
}

// Default returns the fixed fallback multipliers
func (m *Model) Default(creatorID string, totalMessages int) Multipliers {
	return Multipliers{
		CreatorID:     creatorID,
		Values:        DefaultMultipliers,
		IsDefault:     true,
		Confidence:    0,
		TotalMessages: totalMessages,
	}
}

// Calculate computes weekday multipliers. Thin history falls back to the
// default vector rather than failing.
func (m *Model) Calculate(creatorID string, history []persistence.MassMessage) Multipliers {
	var (
		sums   [DaysPerWeek]float64
		counts [DaysPerWeek]int
		dates  [DaysPerWeek]map[string]struct{}
		total  float64
		n      int
	)
	for i := range dates {
		dates[i] = make(map[string]struct{})
	}

	for _, msg := range history {
		rps := msg.RPS()
		if rps < 0 || math.IsNaN(rps) {
			continue
		}
		ts := msg.SendingTime.UTC()
		idx := Index(ts.Weekday())
		sums[idx] += rps
		counts[idx]++
		dates[idx][ts.Format("2006-01-02")] = struct{}{}
		total += rps
		n++
	}

	if n < m.config.MinTotalMessages || total <= 0 {
		return m.Default(creatorID, n)
	}

	overall := total / float64(n)
	conf := confidence.MustCalculate(n).Confidence

	var raw [DaysPerWeek]float64
	var days [DaysPerWeek]int
	qualifying := 0
	for i := 0; i < DaysPerWeek; i++ {
		days[i] = len(dates[i])
		if days[i] < m.config.MinDaysPerWeekday {
			raw[i] = confidence.Neutral
			continue
		}
		qualifying++
		ratio := (sums[i] / float64(counts[i])) / overall
		raw[i] = math.Max(m.config.MinMultiplier, math.Min(m.config.MaxMultiplier, ratio))
	}

	if qualifying == 0 {
		return m.Default(creatorID, n)
	}

	return Multipliers{
		CreatorID:     creatorID,
		Values:        confidence.DampenWeekdays(raw, conf, confidence.Neutral),
		DaysWithData:  days,
		IsDefault:     false,
		Confidence:    conf,
		TotalMessages: n,
	}
}

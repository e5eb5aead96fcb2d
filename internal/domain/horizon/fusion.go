package horizon

import (
	"math"

	"github.com/sawpanic/volumerun/internal/domain"
)

// Window identifies one lookback horizon
type Window int

const (
	Short Window = iota
	Medium
	Long
)

func (w Window) String() string {
	switch w {
	case Short:
		return "short"
	case Medium:
		return "medium"
	case Long:
		return "long"
	default:
		return "unknown"
	}
}

// Windows lists the horizons in fusion order
var Windows = []Window{Short, Medium, Long}

// Scores is the saturation/opportunity pair measured over one window
type Scores struct {
	Saturation   float64 `json:"saturation"`
	Opportunity  float64 `json:"opportunity"`
	RevenueTrend float64 `json:"revenue_trend"`
	MessageCount int     `json:"message_count"`
}

// Horizons holds the per-window scores; nil means the window had no data
type Horizons struct {
	Short  *Scores `json:"short,omitempty"`
	Medium *Scores `json:"medium,omitempty"`
	Long   *Scores `json:"long,omitempty"`
}

// Get returns the scores of one window
func (h Horizons) Get(w Window) *Scores {
	switch w {
	case Short:
		return h.Short
	case Medium:
		return h.Medium
	case Long:
		return h.Long
	default:
		return nil
	}
}

// Set stores the scores of one window
func (h *Horizons) Set(w Window, s *Scores) {
	switch w {
	case Short:
		h.Short = s
	case Medium:
		h.Medium = s
	case Long:
		h.Long = s
	}
}

// Count returns how many windows carry data
func (h Horizons) Count() int {
	n := 0
	for _, w := range Windows {
		if h.Get(w) != nil {
			n++
		}
	}
	return n
}

// Weights assigns a share to each window; they sum to 1 after normalization
type Weights struct {
	Short  float64 `yaml:"short" json:"short"`
	Medium float64 `yaml:"medium" json:"medium"`
	Long   float64 `yaml:"long" json:"long"`
}

// Get returns the weight of one window
func (w Weights) Get(win Window) float64 {
	switch win {
	case Short:
		return w.Short
	case Medium:
		return w.Medium
	case Long:
		return w.Long
	default:
		return 0
	}
}

func (w Weights) sum() float64 { return w.Short + w.Medium + w.Long }

// Config holds fusion windows, weights and divergence detection
type Config struct {
	ShortDays           int     `yaml:"short_days"`           // Default: 14
	MediumDays          int     `yaml:"medium_days"`          // Default: 30
	LongDays            int     `yaml:"long_days"`            // Default: 90
	DefaultWeights      Weights `yaml:"default_weights"`      // Default: 0.3/0.5/0.2
	RapidChangeWeights  Weights `yaml:"rapid_change_weights"` // Default: 0.5/0.35/0.15
	DivergenceThreshold float64 `yaml:"divergence_threshold"` // Default: 15 saturation points
	SingleHorizonConf   float64 `yaml:"single_horizon_conf"`  // Default: 0.6
	TwoHorizonConf      float64 `yaml:"two_horizon_conf"`     // Default: 0.85
}

// DefaultConfig returns the production fusion settings
func DefaultConfig() Config {
	return Config{
		ShortDays:           14,
		MediumDays:          30,
		LongDays:            90,
		DefaultWeights:      Weights{Short: 0.3, Medium: 0.5, Long: 0.2},
		RapidChangeWeights:  Weights{Short: 0.5, Medium: 0.35, Long: 0.15},
		DivergenceThreshold: 15,
		SingleHorizonConf:   0.6,
		TwoHorizonConf:      0.85,
	}
}

// Days returns the lookback length of a window
func (c Config) Days(w Window) int {
	switch w {
	case Short:
		return c.ShortDays
	case Medium:
		return c.MediumDays
	case Long:
		return c.LongDays
	default:
		return 0
	}
}

// FusedScores is the blended saturation/opportunity pair
type FusedScores struct {
	Saturation         float64 `json:"saturation"`
	Opportunity        float64 `json:"opportunity"`
	RevenueTrend       float64 `json:"revenue_trend"`
	Weights            Weights `json:"weights"` // effective, normalized
	Divergence         float64 `json:"divergence"`
	DivergenceDetected bool    `json:"divergence_detected"`
	HorizonsUsed       int     `json:"horizons_used"`
	Confidence         float64 `json:"confidence"`
}

// Fuser blends horizon scores
type Fuser struct {
	config Config
}

// NewFuser creates a fuser, filling zero fields with defaults
func NewFuser(config Config) *Fuser {
	def := DefaultConfig()
	if config.ShortDays <= 0 {
		config.ShortDays = def.ShortDays
	}
	if config.MediumDays <= 0 {
		config.MediumDays = def.MediumDays
	}
	if config.LongDays <= 0 {
		config.LongDays = def.LongDays
	}
	if config.DefaultWeights.sum() <= 0 {
		config.DefaultWeights = def.DefaultWeights
	}
	if config.RapidChangeWeights.sum() <= 0 {
		config.RapidChangeWeights = def.RapidChangeWeights
	}
	if config.DivergenceThreshold <= 0 {
		config.DivergenceThreshold = def.DivergenceThreshold
	}
	if config.SingleHorizonConf <= 0 {
		config.SingleHorizonConf = def.SingleHorizonConf
	}
	if config.TwoHorizonConf <= 0 {
		config.TwoHorizonConf = def.TwoHorizonConf
	}
	return &Fuser{config: config}
}

// Config returns the effective configuration
func (f *Fuser) Config() Config { return f.config }

// Fuse blends the available horizons. Weights shift toward the short window
// when it diverges from the long window; missing windows hand their weight to
// the others proportionally. No data at all is an InsufficientDataError.
func (f *Fuser) Fuse(h Horizons) (FusedScores, error) {
	used := h.Count()
	if used == 0 {
		return FusedScores{}, &domain.InsufficientDataError{What: "score horizons", Have: 0, Need: 1}
	}

	var divergence float64
	detected := false
	if h.Short != nil && h.Long != nil {
		divergence = math.Abs(h.Short.Saturation - h.Long.Saturation)
		detected = divergence > f.config.DivergenceThreshold
	}

	weights := f.config.DefaultWeights
	if detected {
		weights = f.config.RapidChangeWeights
	}

	if used == 1 {
		for _, w := range Windows {
			if s := h.Get(w); s != nil {
				var eff Weights
				setWeight(&eff, w, 1)
				return FusedScores{
					Saturation:   s.Saturation,
					Opportunity:  s.Opportunity,
					RevenueTrend: s.RevenueTrend,
					Weights:      eff,
					HorizonsUsed: 1,
					Confidence:   f.config.SingleHorizonConf,
				}, nil
			}
		}
	}

	present := 0.0
	for _, w := range Windows {
		if h.Get(w) != nil {
			present += weights.Get(w)
		}
	}

	var eff Weights
	var sat, opp, trend float64
	for _, w := range Windows {
		s := h.Get(w)
		if s == nil {
			continue
		}
		share := 1 / float64(used)
		if present > 0 {
			share = weights.Get(w) / present
		}
		setWeight(&eff, w, share)
		sat += s.Saturation * share
		opp += s.Opportunity * share
		trend += s.RevenueTrend * share
	}

	conf := 1.0
	if used == 2 {
		conf = f.config.TwoHorizonConf
	}

	return FusedScores{
		Saturation:         sat,
		Opportunity:        opp,
		RevenueTrend:       trend,
		Weights:            eff,
		Divergence:         divergence,
		DivergenceDetected: detected,
		HorizonsUsed:       used,
		Confidence:         conf,
	}, nil
}

func setWeight(w *Weights, win Window, v float64) {
	switch win {
	case Short:
		w.Short = v
	case Medium:
		w.Medium = v
	case Long:
		w.Long = v
	}
}

package content

import (
	"math"
	"sort"
	"strings"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/confidence"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// Rank is the performance class of a content type
type Rank int

const (
	RankTop Rank = iota
	RankMid
	RankLow
	RankAvoid
)

func (r Rank) String() string {
	switch r {
	case RankTop:
		return "TOP"
	case RankMid:
		return "MID"
	case RankLow:
		return "LOW"
	case RankAvoid:
		return "AVOID"
	default:
		return "UNKNOWN"
	}
}

// Multiplier is the volume scale for a rank
func (r Rank) Multiplier() float64 {
	switch r {
	case RankTop:
		return 1.3
	case RankMid:
		return 1.0
	case RankLow:
		return 0.7
	case RankAvoid:
		return 0.0
	default:
		return 1.0
	}
}

// ParseRank reads a performance_tier value; ok is false for unknown values
func ParseRank(s string) (Rank, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TOP":
		return RankTop, true
	case "MID":
		return RankMid, true
	case "LOW":
		return RankLow, true
	case "AVOID":
		return RankAvoid, true
	default:
		return RankMid, false
	}
}

// Ranking is one content type's rank for a creator
type Ranking struct {
	ContentType string  `json:"content_type"`
	Rank        Rank    `json:"rank"`
	Multiplier  float64 `json:"multiplier"`
	AvgRPS      float64 `json:"avg_rps"`
	SendCount   int     `json:"send_count"`
}

// Profile is the set of content rankings for one creator
type Profile struct {
	CreatorID  string             `json:"creator_id"`
	Rankings   map[string]Ranking `json:"rankings"`
	TotalSends int                `json:"total_sends"`
	Confidence float64            `json:"confidence"`
}

// NewProfile builds a profile from top_content_types rows. Unknown tiers are
// treated as MID. Confidence comes from the total send count.
func NewProfile(creatorID string, rows []persistence.ContentTypePerformance) Profile {
	p := Profile{CreatorID: creatorID, Rankings: make(map[string]Ranking, len(rows))}
	for _, row := range rows {
		rank, _ := ParseRank(row.PerformanceTier)
		p.Rankings[row.ContentType] = Ranking{
			ContentType: row.ContentType,
			Rank:        rank,
			Multiplier:  rank.Multiplier(),
			AvgRPS:      row.AvgRPS,
			SendCount:   row.SendCount,
		}
		if row.SendCount > 0 {
			p.TotalSends += row.SendCount
		}
	}
	p.Confidence = confidence.MustCalculate(p.TotalSends).Confidence
	return p
}

// RankOf returns the rank of a content type; unranked types are MID
func (p Profile) RankOf(contentType string) Rank {
	if r, ok := p.Rankings[contentType]; ok {
		return r.Rank
	}
	return RankMid
}

// Multipliers returns the raw rank multipliers keyed by content type
func (p Profile) Multipliers() map[string]float64 {
	out := make(map[string]float64, len(p.Rankings))
	for t, r := range p.Rankings {
		out[t] = r.Rank.Multiplier()
	}
	return out
}

// DampenedMultipliers pulls every non-AVOID multiplier toward 1.0 by the
// profile confidence. AVOID stays at 0.
func (p Profile) DampenedMultipliers() map[string]float64 {
	out := confidence.DampenMap(p.Multipliers(), p.Confidence, confidence.Neutral)
	for t, r := range p.Rankings {
		if r.Rank == RankAvoid {
			out[t] = 0
		}
	}
	return out
}

// Weight is the allocation weight of a content type
func (p Profile) Weight(contentType string) float64 {
	rank := p.RankOf(contentType)
	if rank == RankAvoid {
		return 0
	}
	return confidence.Dampen(rank.Multiplier(), p.Confidence, confidence.Neutral)
}

// Types lists ranked content types, best rank first, then by RPS
func (p Profile) Types() []string {
	out := make([]string, 0, len(p.Rankings))
	for t := range p.Rankings {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := p.Rankings[out[i]], p.Rankings[out[j]]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.AvgRPS != b.AvgRPS {
			return a.AvgRPS > b.AvgRPS
		}
		return a.ContentType < b.ContentType
	})
	return out
}

// WeightedAllocation is the rank-scaled volume for one content type
type WeightedAllocation struct {
	ContentType    string  `json:"content_type"`
	Rank           Rank    `json:"rank"`
	Multiplier     float64 `json:"multiplier"`
	BaseVolume     int     `json:"base_volume"`
	WeightedVolume int     `json:"weighted_volume"`
}

// Config holds allocation settings
type Config struct {
	MinPerType int `yaml:"min_per_type"` // Default: 1
	CacheSize  int `yaml:"cache_size"`   // Default: 256 creators
}

// DefaultConfig returns the production allocation settings
func DefaultConfig() Config {
	return Config{MinPerType: 1, CacheSize: 256}
}

// Weighter scales and splits volume by content rank
type Weighter struct {
	config Config
}

// NewWeighter creates a weighter, filling zero fields with defaults
func NewWeighter(config Config) *Weighter {
	def := DefaultConfig()
	if config.MinPerType < 0 {
		config.MinPerType = def.MinPerType
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	return &Weighter{config: config}
}

// Config returns the effective configuration
func (w *Weighter) Config() Config { return w.config }

// Apply scales a base volume by the content type's rank multiplier
func (w *Weighter) Apply(base int, contentType string, profile Profile) WeightedAllocation {
	rank := profile.RankOf(contentType)
	mult := rank.Multiplier()
	weighted := int(math.Round(float64(base) * mult))
	if weighted < 0 {
		weighted = 0
	}
	return WeightedAllocation{
		ContentType:    contentType,
		Rank:           rank,
		Multiplier:     mult,
		BaseVolume:     base,
		WeightedVolume: weighted,
	}
}

// AllocateByContentType splits total across the given types. Non-AVOID types
// get MinPerType first, in rank order, while the total allows. The rest is
// shared by weight and integer leftovers go to the best-ranked type first.
// The result always sums to total and AVOID types always get 0.
func (w *Weighter) AllocateByContentType(total int, types []string, profile Profile) (map[string]int, error) {
	if total < 0 {
		return nil, domain.Invalid("total", "must be non-negative, got %d", total)
	}

	out := make(map[string]int, len(types))
	seen := make(map[string]struct{}, len(types))
	eligible := make([]string, 0, len(types))
	for _, t := range types {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out[t] = 0
		if profile.RankOf(t) != RankAvoid {
			eligible = append(eligible, t)
		}
	}
	if total == 0 {
		return out, nil
	}
	if len(eligible) == 0 {
		return nil, domain.Invalid("content_types", "no allocatable content type among %d candidates", len(types))
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return profile.RankOf(eligible[i]) < profile.RankOf(eligible[j])
	})

	remaining := total
	if w.config.MinPerType > 0 {
		for _, t := range eligible {
			if remaining < w.config.MinPerType {
				break
			}
			out[t] += w.config.MinPerType
			remaining -= w.config.MinPerType
		}
	}

	if remaining > 0 {
		sumW := 0.0
		for _, t := range eligible {
			sumW += profile.Weight(t)
		}
		pool := remaining
		for _, t := range eligible {
			if sumW <= 0 {
				break
			}
			share := int(math.Floor(float64(pool) * profile.Weight(t) / sumW))
			out[t] += share
			remaining -= share
		}
		for k := 0; remaining > 0; k++ {
			out[eligible[k%len(eligible)]]++
			remaining--
		}
	}

	return out, nil
}

package confidence

import (
	"math"

	"github.com/sawpanic/volumerun/internal/domain"
)

// Neutral is the multiplier value that leaves a volume unchanged
const Neutral = 1.0

// Result is the sample-size confidence for one creator
type Result struct {
	Confidence   float64 `json:"confidence"`    // 0.0-1.0
	MessageCount int     `json:"message_count"`
	TierName     string  `json:"tier_name"`
	DampenFactor float64 `json:"dampen_factor"` // 1 - confidence
}

// tier maps a minimum message count to a confidence level
type tier struct {
	minMessages int
	confidence  float64
	name        string
}

// tiers are ordered from the highest threshold down
var tiers = []tier{
	{minMessages: 200, confidence: 1.0, name: "very_high"},
	{minMessages: 100, confidence: 0.8, name: "high"},
	{minMessages: 50, confidence: 0.6, name: "moderate"},
	{minMessages: 20, confidence: 0.4, name: "low"},
	{minMessages: 0, confidence: 0.2, name: "very_low"},
}

// Calculate derives confidence from the number of historical messages
func Calculate(messageCount int) (Result, error) {
	if messageCount < 0 {
		return Result{}, domain.Invalid("message_count", "must be non-negative, got %d", messageCount)
	}
	for _, t := range tiers {
		if messageCount >= t.minMessages {
			return Result{
				Confidence:   t.confidence,
				MessageCount: messageCount,
				TierName:     t.name,
				DampenFactor: 1 - t.confidence,
			}, nil
		}
	}
	// unreachable: the last tier starts at zero
	return Result{}, domain.Invalid("message_count", "no tier for %d", messageCount)
}

// MustCalculate is Calculate for counts already known to be non-negative.
// Negative counts are treated as zero.
func MustCalculate(messageCount int) Result {
	if messageCount < 0 {
		messageCount = 0
	}
	r, _ := Calculate(messageCount)
	return r
}

// Dampen pulls value toward neutral by the missing confidence:
// neutral + (value - neutral) * confidence.
func Dampen(value, confidence, neutral float64) float64 {
	c := clampUnit(confidence)
	switch c {
	case 1:
		return value
	case 0:
		return neutral
	}
	return neutral + (value-neutral)*c
}

// DampenMap applies Dampen to every entry of a keyed multiplier map
func DampenMap[K comparable](values map[K]float64, confidence, neutral float64) map[K]float64 {
	out := make(map[K]float64, len(values))
	for k, v := range values {
		out[k] = Dampen(v, confidence, neutral)
	}
	return out
}

// DampenWeekdays applies Dampen to a Monday-first weekday vector
func DampenWeekdays(values [7]float64, confidence, neutral float64) [7]float64 {
	var out [7]float64
	for i, v := range values {
		out[i] = Dampen(v, confidence, neutral)
	}
	return out
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sawpanic/volumerun/internal/application/optimizer"
	"github.com/sawpanic/volumerun/internal/application/predictions"
)

// Version is stamped into explain files
const Version = "v2.0.0"

type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// EmitExplainJSON writes the full result with a metadata block and the
// allocation in a stable order
func (e *Emitter) EmitExplainJSON(filePath string, res *optimizer.Result) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	explainData := map[string]interface{}{
		"metadata": map[string]interface{}{
			"timestamp":     res.CalculatedAt.Format(time.RFC3339),
			"run_id":        res.RunID,
			"creator_id":    res.CreatorID,
			"weekly_total":  res.WeeklyTotal,
			"captions_ok":   res.Captions.IsValid,
			"version":       Version,
			"adjustments":   len(res.Adjustments),
			"elasticity_ok": res.Elasticity.IsReliable(),
		},
		"volume": map[string]interface{}{
			"tier":               res.Volume.Tier.String(),
			"revenue_per_day":    res.Volume.RevenuePerDay,
			"engagement_per_day": res.Volume.EngagementPerDay,
			"retention_per_day":  res.Volume.RetentionPerDay,
			"capped":             res.Cap != nil,
		},
		"content_allocation": sortedAllocation(res.ContentAllocation),
		"result":             res,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(explainData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// EmitAccuracyJSON writes an accuracy report with a fleet summary. Creators
// without a revenue error are left out of the mean.
func (e *Emitter) EmitAccuracyJSON(filePath string, at time.Time, rep predictions.Report) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create accuracy JSON file: %w", err)
	}
	defer file.Close()

	measured := 0
	for _, acc := range rep.Creators {
		measured += acc.MeasuredPredictions
	}

	reportData := map[string]interface{}{
		"metadata": map[string]interface{}{
			"timestamp": at.UTC().Format(time.RFC3339),
			"version":   Version,
		},
		"summary": map[string]interface{}{
			"creators":             len(rep.Creators),
			"measured_predictions": measured,
			"mean_revenue_mape":    meanOf(rep.Creators, func(a predictions.Accuracy) *float64 { return a.RevenueMAPE }),
			"mean_directional":     meanOf(rep.Creators, func(a predictions.Accuracy) *float64 { return a.DirectionalAccuracy }),
			"skipped":              rep.Skipped,
			"failed":               rep.Failed,
		},
		"creators": rep.Creators,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reportData); err != nil {
		return fmt.Errorf("failed to encode accuracy JSON: %w", err)
	}

	return nil
}

// meanOf averages the non-nil values picked from each creator, or nil
func meanOf(rows []predictions.Accuracy, pick func(predictions.Accuracy) *float64) *float64 {
	sum, n := 0.0, 0
	for _, r := range rows {
		if v := pick(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

type allocation struct {
	ContentType string `json:"content_type"`
	Sends       int    `json:"sends"`
}

// sortedAllocation orders by sends descending, then name
func sortedAllocation(m map[string]int) []allocation {
	out := make([]allocation, 0, len(m))
	for k, v := range m {
		out = append(out, allocation{ContentType: k, Sends: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sends != out[j].Sends {
			return out[i].Sends > out[j].Sends
		}
		return out[i].ContentType < out[j].ContentType
	})
	return out
}

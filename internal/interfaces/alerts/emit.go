package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sawpanic/volumerun/internal/domain/captions"
)

type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// Alert is one caption shortage that needs an operator
type Alert struct {
	CreatorID      string `json:"creator_id"`
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Deficit        int    `json:"deficit"`
	Needed         int    `json:"needed"`
	Available      int    `json:"available"`
	Action         string `json:"action"`
	Recommendation string `json:"recommendation"`
}

// Alerts flattens caption checks into prioritized alerts. Valid results
// produce none.
func (e *Emitter) Alerts(results ...captions.ConstraintResult) []Alert {
	var out []Alert
	for _, r := range results {
		for _, s := range r.Shortages {
			if s.Severity == captions.SeverityNone {
				continue
			}
			priority := e.calculatePriority(s)
			out = append(out, Alert{
				CreatorID:      r.CreatorID,
				Category:       string(s.Category),
				Priority:       priority,
				Deficit:        s.Deficit,
				Needed:         s.Needed,
				Available:      s.Available,
				Action:         e.determineAction(priority),
				Recommendation: s.Recommendation,
			})
		}
	}
	return out
}

// EmitAlertsJSON writes caption shortage alerts with a priority summary
func (e *Emitter) EmitAlertsJSON(filePath string, at time.Time, results ...captions.ConstraintResult) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create alerts JSON file: %w", err)
	}
	defer file.Close()

	alerts := e.Alerts(results...)
	alertsData := map[string]interface{}{
		"timestamp": at.UTC().Format(time.RFC3339),
		"alert_summary": map[string]interface{}{
			"total_alerts":    len(alerts),
			"high_priority":   e.countByPriority(alerts, "HIGH"),
			"medium_priority": e.countByPriority(alerts, "MEDIUM"),
			"creators":        len(results),
		},
		"alerts": alerts,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(alertsData); err != nil {
		return fmt.Errorf("failed to encode alerts JSON: %w", err)
	}

	return nil
}

func (e *Emitter) calculatePriority(s captions.Shortage) string {
	if s.Severity == captions.SeverityCritical {
		return "HIGH"
	}
	return "MEDIUM"
}

func (e *Emitter) countByPriority(alerts []Alert, priority string) int {
	count := 0
	for _, a := range alerts {
		if a.Priority == priority {
			count++
		}
	}
	return count
}

func (e *Emitter) determineAction(priority string) string {
	if priority == "HIGH" {
		return "WRITE CAPTIONS BEFORE SCHEDULING"
	}
	return "REFRESH CAPTION BANK THIS WEEK"
}

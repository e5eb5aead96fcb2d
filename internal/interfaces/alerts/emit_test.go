package alerts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/domain/captions"
)

func shortResult() captions.ConstraintResult {
	return captions.ConstraintResult{
		CreatorID: "creator_a",
		Days:      7,
		Status:    captions.SeverityCritical,
		Shortages: []captions.Shortage{
			{Category: domain.CategoryRevenue, Needed: 14, Available: 3, Deficit: 11, Severity: captions.SeverityCritical, Recommendation: "add revenue captions"},
			{Category: domain.CategoryEngagement, Needed: 28, Available: 20, Deficit: 8, Severity: captions.SeverityInsufficient},
		},
		CriticalSendTypes: []string{"revenue"},
	}
}

func TestAlerts(t *testing.T) {
	ok := captions.ConstraintResult{CreatorID: "creator_b", Days: 7, IsValid: true}

	got := NewEmitter().Alerts(shortResult(), ok)
	require.Len(t, got, 2)

	assert.Equal(t, "HIGH", got[0].Priority)
	assert.Equal(t, "revenue", got[0].Category)
	assert.Equal(t, 11, got[0].Deficit)
	assert.Equal(t, "WRITE CAPTIONS BEFORE SCHEDULING", got[0].Action)
	assert.Equal(t, "MEDIUM", got[1].Priority)
	assert.Equal(t, "creator_a", got[1].CreatorID)
}

func TestAlerts_NoneForValidPools(t *testing.T) {
	assert.Empty(t, NewEmitter().Alerts(captions.ConstraintResult{CreatorID: "creator_b", IsValid: true}))
}

func TestEmitAlertsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	at := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
	require.NoError(t, NewEmitter().EmitAlertsJSON(path, at, shortResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Timestamp string                 `json:"timestamp"`
		Summary   map[string]interface{} `json:"alert_summary"`
		Alerts    []Alert                `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "2026-03-18T09:00:00Z", doc.Timestamp)
	assert.Equal(t, float64(2), doc.Summary["total_alerts"])
	assert.Equal(t, float64(1), doc.Summary["high_priority"])
	assert.Equal(t, float64(1), doc.Summary["medium_priority"])
	assert.Len(t, doc.Alerts, 2)
}

package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/volumerun/internal/domain"
)

func TestTierForFans(t *testing.T) {
	tests := []struct {
		fans     int
		expected Tier
	}{
		{0, TierLow},
		{999, TierLow},
		{1000, TierMid},
		{4999, TierMid},
		{5000, TierHigh},
		{12434, TierHigh},
		{14999, TierHigh},
		{15000, TierUltra},
		{2000000, TierUltra},
	}

	for _, tt := range tests {
		tier, err := TierForFans(tt.fans)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, tier, "fans=%d", tt.fans)
	}
}

func TestTierForFans_Monotonic(t *testing.T) {
	prev := TierLow
	for fans := 0; fans <= 40000; fans += 37 {
		tier, err := TierForFans(fans)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int(tier), int(prev), "tier decreased at %d fans", fans)
		assert.Contains(t, []Tier{TierLow, TierMid, TierHigh, TierUltra}, tier)
		prev = tier
	}
}

func TestTierForFans_Negative(t *testing.T) {
	_, err := TierForFans(-1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBaseVolumes_FreePagesHaveNoRetention(t *testing.T) {
	for _, tier := range []Tier{TierLow, TierMid, TierHigh, TierUltra} {
		counts, err := BaseVolumes(tier, domain.PageFree)
		require.NoError(t, err)
		assert.Zero(t, counts.Retention, "tier %s", tier)

		paid, err := BaseVolumes(tier, domain.PagePaid)
		require.NoError(t, err)
		assert.Positive(t, paid.Retention, "tier %s", tier)
	}

	_, err := BaseVolumes(TierHigh, domain.PageType("vip"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "LOW", TierLow.String())
	assert.Equal(t, "MID", TierMid.String())
	assert.Equal(t, "HIGH", TierHigh.String())
	assert.Equal(t, "ULTRA", TierUltra.String())
	assert.Equal(t, "UNKNOWN", Tier(9).String())
}

func TestBoundsClamp(t *testing.T) {
	assert.Equal(t, 1, RevenueBounds.Clamp(-3))
	assert.Equal(t, 8, RevenueBounds.Clamp(12))
	assert.Equal(t, 4, EngagementBounds.Clamp(4))
	assert.Equal(t, 0, RetentionBounds.Clamp(-1))
	assert.Equal(t, RetentionBounds, BoundsFor(domain.CategoryRetention))
}

package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/volumerun/internal/persistence"
)

func TestCalculateActive(t *testing.T) {
	f := newFixture()
	f.creators.creators["creator_b"] = persistence.Creator{CreatorID: "creator_b", PageType: "vip", IsActive: true}

	res, err := f.service(t).CalculateActive(context.Background(), Options{SavePrediction: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Calculated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 70, res.WeeklyTotal, "MID paid 4/4/2 for seven days")
	assert.Contains(t, res.Errors, "creator_b")
	assert.NotContains(t, res.Errors, "creator_x", "inactive creators are not listed")
	require.Len(t, f.tracker.saved, 1)
	assert.Equal(t, "creator_a", f.tracker.saved[0].CreatorID)
}

type failingCreators struct{ *fakeCreators }

func (failingCreators) ListActive(context.Context) ([]persistence.Creator, error) {
	return nil, errors.New("creators table unavailable")
}

func TestCalculateActive_ListFailure(t *testing.T) {
	f := newFixture()
	svc := f.service(t)
	svc.deps.Creators = failingCreators{f.creators}

	_, err := svc.CalculateActive(context.Background(), Options{})
	assert.Error(t, err)
}

func TestCalculateActive_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newFixture().service(t).CalculateActive(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Calculated)
}

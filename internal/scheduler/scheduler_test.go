package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func counting(n *int) Runner {
	return func(context.Context) (string, error) {
		*n++
		return "ok", nil
	}
}

func failing(err error) Runner {
	return func(context.Context) (string, error) { return "", err }
}

func testConfig(jobs ...Job) Config {
	return Config{TickInterval: time.Minute, Jobs: jobs}
}

func hourly(name, typ string) Job {
	return Job{Name: name, Type: typ, Interval: time.Hour, Enabled: true}
}

func disabled(name, typ string) Job {
	j := hourly(name, typ)
	j.Enabled = false
	return j
}

func TestNew_Validation(t *testing.T) {
	runners := map[string]Runner{JobMeasure: failing(nil)}

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "unknown_type", config: testConfig(hourly("x", "nope")), wantErr: "unknown job type"},
		{name: "duplicate", config: testConfig(hourly("m", JobMeasure), hourly("m", JobMeasure)), wantErr: "duplicate job name"},
		{name: "no_name", config: testConfig(hourly("", JobMeasure)), wantErr: "has no name"},
		{name: "zero_interval", config: testConfig(Job{Name: "m", Type: JobMeasure, Enabled: true}), wantErr: "interval must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config, runners)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := New(testConfig(disabled("off", "nope")), runners)
	assert.NoError(t, err, "disabled jobs are not checked against runners")
}

func TestDefaultConfig_Valid(t *testing.T) {
	runners := map[string]Runner{JobMeasure: failing(nil), JobAccuracy: failing(nil), JobWeekly: failing(nil)}
	s, err := New(DefaultConfig(), runners)
	require.NoError(t, err)

	status := s.GetStatus()
	assert.Equal(t, 2, status.EnabledJobs)
	assert.Equal(t, 1, status.DisabledJobs)
}

func TestCheckAndRunJobs_Intervals(t *testing.T) {
	c := newClock()
	var measured, reported int
	s, err := New(testConfig(
		hourly("measure", JobMeasure),
		Job{Name: "accuracy", Type: JobAccuracy, Interval: 24 * time.Hour, Enabled: true},
	), map[string]Runner{JobMeasure: counting(&measured), JobAccuracy: counting(&reported)}, WithClock(c.now))
	require.NoError(t, err)

	results := s.checkAndRunJobs(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "accuracy", results[0].JobName, "due jobs run in name order")
	assert.Equal(t, 1, measured)
	assert.Equal(t, 1, reported)

	c.advance(30 * time.Minute)
	assert.Empty(t, s.checkAndRunJobs(context.Background()))

	c.advance(30 * time.Minute)
	s.checkAndRunJobs(context.Background())
	assert.Equal(t, 2, measured)
	assert.Equal(t, 1, reported)

	status := s.GetStatus()
	assert.Equal(t, c.t, status.LastRun)
	assert.Equal(t, c.t.Add(time.Hour), status.NextRun)
}

func TestRunJob(t *testing.T) {
	c := newClock()
	s, err := New(testConfig(hourly("measure", JobMeasure), disabled("weekly", JobWeekly)), map[string]Runner{
		JobMeasure: failing(errors.New("database down")),
	}, WithClock(c.now))
	require.NoError(t, err)

	res, err := s.RunJob(context.Background(), "measure")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "database down", res.Error)

	_, err = s.RunJob(context.Background(), "missing")
	assert.EqualError(t, err, "job not found: missing")

	_, err = s.RunJob(context.Background(), "weekly")
	assert.Error(t, err, "disabled job without a runner")
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)

	s, err := New(Config{TickInterval: 10 * time.Millisecond, Jobs: []Job{hourly("measure", JobMeasure)}}, map[string]Runner{
		JobMeasure: func(context.Context) (string, error) {
			ran <- struct{}{}
			return "measured 0", nil
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.GetStatus().Running)
}

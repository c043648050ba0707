package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name     string
	schedule string
	failures int
	calls    int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(ctx context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func TestAddJob(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "0 30 17 * * 1-5"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "@daily"}), "duplicate name")
	assert.Error(t, s.AddJob(&stubJob{name: "b", schedule: "not a schedule"}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Empty(t, s.Stats())
}

func TestRunJob_Retries(t *testing.T) {
	s := New(nil, WithRetry(2, 0))
	job := &stubJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)

	job.calls, job.failures = 0, 5
	result, err = s.RunJob(context.Background(), "flaky")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "transient", result.Error)

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].TotalRuns)
	assert.Equal(t, 1, stats[0].FailureCount)
	assert.InDelta(t, 0.5, stats[0].SuccessRate, 1e-9)
	assert.Equal(t, "transient", stats[0].LastError)

	_, err = s.RunJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRunJob_CancelStopsRetries(t *testing.T) {
	s := New(nil, WithRetry(5, time.Hour))
	job := &stubJob{name: "down", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunJob(ctx, "down")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestJobHistory_Limit(t *testing.T) {
	var h JobHistory
	for i := 0; i < historyLimit+10; i++ {
		h.AddResult(JobResult{Attempts: i, Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)

	last, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, historyLimit+9, last.Attempts)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
}

func TestStartStop(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "0 0 0 1 1 *"}))
	s.Start()

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.NotNil(t, stats[0].NextRun)
	s.Stop()
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingJob struct {
	name    string
	runs    atomic.Int32
	release chan struct{}
	err     error
	panics  bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panics {
		panic("boom")
	}
	if j.release != nil {
		select {
		case <-j.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timezone:     time.UTC,
		TickInterval: 5 * time.Millisecond,
	})
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.RunCount, int64(2))
	assert.Equal(t, "@every 10ms", info.Schedule)
	assert.False(t, s.IsRunning())
}

func TestScheduler_SkipsWhilePreviousRunInFlight(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "slow", release: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool {
		info, _ := s.GetJobInfo("slow")
		return info.SkipCount >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), job.runs.Load(), "overlapping run must not start")
	info, err := s.GetJobInfo("slow")
	require.NoError(t, err)
	assert.True(t, info.Running)

	close(job.release)
	require.NoError(t, s.Stop())
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "blocked", release: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	history := s.GetHistory(0)
	require.NotEmpty(t, history)
	assert.ErrorIs(t, history[len(history)-1].Error, context.Canceled)
}

func TestScheduler_PanickingJobIsRecorded(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "panics", panics: true}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, int64(1), s.GetMetrics().Snapshot().TotalFailures)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "dup"}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Second)), ErrJobAlreadyExists)

	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))
	require.NoError(t, s.DisableJob("off"))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
}

func TestScheduler_RecordsFailures(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "fails", err: errors.New("nope")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		info, err := s.GetJobInfo("fails")
		return err == nil && info.FailCount >= 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	info, err := s.GetJobInfo("fails")
	require.NoError(t, err)
	require.NotNil(t, info.LastResult)
	assert.Equal(t, "fails", info.LastResult.JobName)
	assert.False(t, info.LastResult.Success)
	assert.EqualError(t, info.LastResult.Error, "nope")

	history := s.GetHistory(0)
	require.NotEmpty(t, history)
	assert.False(t, history[len(history)-1].Success)
}

func TestScheduler_RunBlocksUntilContextDone(t *testing.T) {
	s := newTestScheduler()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	assert.Eventually(t, s.IsRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSweeper struct {
	calls    []command.RunSweepCommand
	report   *command.SweepReport
	err      error
	deadline bool
}

func (f *fakeSweeper) Handle(ctx context.Context, cmd command.RunSweepCommand) (*command.SweepReport, error) {
	f.calls = append(f.calls, cmd)
	_, f.deadline = ctx.Deadline()
	return f.report, f.err
}

func TestDailySweepJob_Run(t *testing.T) {
	sweeper := &fakeSweeper{report: &command.SweepReport{RunID: "r1", Groups: 2}}
	job := NewDailySweepJob(sweeper, discard, DefaultDailySweepConfig())

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, sweeper.calls, 1)
	assert.Equal(t, "cron", sweeper.calls[0].Trigger)
	assert.True(t, sweeper.calls[0].At.IsZero(), "cron sweeps evaluate at the clock's now")
	assert.True(t, sweeper.deadline)
	require.NotNil(t, job.LastReport())
	assert.Equal(t, "r1", job.LastReport().RunID)
	assert.Equal(t, "daily_sweep", job.Name())
	assert.NotEmpty(t, job.Description())
}

func TestDailySweepJob_InProgressIsNotAnError(t *testing.T) {
	sweeper := &fakeSweeper{err: shared.ErrSweepInProgress}
	job := NewDailySweepJob(sweeper, discard, DailySweepConfig{})

	assert.NoError(t, job.Run(context.Background()))
	assert.Nil(t, job.LastReport())
}

func TestDailySweepJob_PropagatesFailure(t *testing.T) {
	sweeper := &fakeSweeper{
		report: &command.SweepReport{RunID: "partial"},
		err:    context.DeadlineExceeded,
	}
	job := NewDailySweepJob(sweeper, discard, DailySweepConfig{Timeout: time.Second})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, job.LastReport())
	assert.Equal(t, "partial", job.LastReport().RunID)
}

type fakeFlusher struct {
	dirty   int
	flushes int
	err     error
}

func (f *fakeFlusher) DirtyCount() int { return f.dirty }

func (f *fakeFlusher) FlushDirty(context.Context) (int, error) {
	f.flushes++
	if f.err != nil {
		return 0, f.err
	}
	n := f.dirty
	f.dirty = 0
	return n, nil
}

func TestFlushStateJob_Run(t *testing.T) {
	t.Run("nothing dirty", func(t *testing.T) {
		f := &fakeFlusher{}
		require.NoError(t, NewFlushStateJob(f, discard).Run(context.Background()))
		assert.Zero(t, f.flushes)
	})

	t.Run("flushes dirty groups", func(t *testing.T) {
		f := &fakeFlusher{dirty: 2}
		require.NoError(t, NewFlushStateJob(f, discard).Run(context.Background()))
		assert.Equal(t, 1, f.flushes)
		assert.Zero(t, f.dirty)
	})

	t.Run("store still down", func(t *testing.T) {
		f := &fakeFlusher{dirty: 1, err: shared.ErrPersistence}
		err := NewFlushStateJob(f, discard).Run(context.Background())
		assert.True(t, errors.Is(err, shared.ErrPersistence))
	})
}

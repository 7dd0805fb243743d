// Package jobs contains the scheduled jobs of the wake-up bot.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// Sweeper runs the daily aggregation.
type Sweeper interface {
	Handle(ctx context.Context, cmd command.RunSweepCommand) (*command.SweepReport, error)
}

// DailySweepJob evaluates every group once a day and announces the results.
type DailySweepJob struct {
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration

	lastReport atomic.Pointer[command.SweepReport]
}

// DailySweepConfig contains configuration for the sweep job.
type DailySweepConfig struct {
	// Timeout is the maximum duration of one sweep run.
	Timeout time.Duration
}

// DefaultDailySweepConfig returns sensible defaults.
func DefaultDailySweepConfig() DailySweepConfig {
	return DailySweepConfig{Timeout: 5 * time.Minute}
}

// NewDailySweepJob creates a new daily sweep job.
func NewDailySweepJob(sweeper Sweeper, logger *slog.Logger, config DailySweepConfig) *DailySweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailySweepJob{
		sweeper: sweeper,
		logger:  logger.With("job", "daily_sweep"),
		timeout: config.Timeout,
	}
}

// Name returns the job name.
func (j *DailySweepJob) Name() string {
	return "daily_sweep"
}

// Description returns a human-readable description.
func (j *DailySweepJob) Description() string {
	return "Evaluates every group's wake-up pledges and posts the streak result"
}

// Run executes the sweep. A sweep already running elsewhere is not an error.
func (j *DailySweepJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	report, err := j.sweeper.Handle(ctx, command.RunSweepCommand{Trigger: "cron"})
	if errors.Is(err, shared.ErrSweepInProgress) {
		j.logger.Info("sweep already in progress, skipping")
		return nil
	}
	if report != nil {
		j.lastReport.Store(report)
	}
	if err != nil {
		return fmt.Errorf("daily sweep: %w", err)
	}
	if report != nil && report.SaveFailures > 0 {
		j.logger.Warn("sweep left unsaved groups", "count", report.SaveFailures)
	}
	return nil
}

// LastReport returns the report of the most recent run, or nil.
func (j *DailySweepJob) LastReport() *command.SweepReport {
	return j.lastReport.Load()
}

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN SWEEP COMMAND
// The daily aggregation: evaluates every group, commits the new streaks and
// then announces the result. At most one sweep runs at a time.
// ══════════════════════════════════════════════════════════════════════════════

// SweepLockKey is the distributed lock key guarding the sweep.
const SweepLockKey = "sweep"

// SweepLocker provides a cross-process mutual exclusion for the sweep.
type SweepLocker interface {
	// TryLock attempts to take key for ttl. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// RunSweepCommand triggers a sweep.
type RunSweepCommand struct {
	// At overrides the evaluation instant. Zero means clock.Now().
	At time.Time

	// Trigger describes who started the sweep ("cron", "admin", "api").
	Trigger string
}

// GroupSweepResult is the sweep outcome for one group.
type GroupSweepResult struct {
	Outcome attendance.Outcome

	// Notified is true when the group message was delivered.
	Notified bool

	// NotifyError is the delivery error, if any.
	NotifyError error
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	RunID       string
	Trigger     string
	EvaluatedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Groups         int
	Skipped        int
	AllSuccess     int
	SomeFailed     int
	NotifyFailures int

	// SaveFailures counts groups evaluated by this run whose save failed.
	SaveFailures int

	Results []GroupSweepResult
}

// RunSweepHandlerConfig contains configuration for the handler.
type RunSweepHandlerConfig struct {
	// LockTTL bounds how long the distributed lock is held if the process dies.
	LockTTL time.Duration
}

// DefaultRunSweepHandlerConfig returns default configuration.
func DefaultRunSweepHandlerConfig() RunSweepHandlerConfig {
	return RunSweepHandlerConfig{LockTTL: 5 * time.Minute}
}

// RunSweepHandler handles the RunSweepCommand.
type RunSweepHandler struct {
	registry *state.Registry
	notifier attendance.Notifier
	clock    timeutil.Clock
	locker   SweepLocker
	logger   *slog.Logger
	lockTTL  time.Duration

	running atomic.Bool
}

// errNothingToEvaluate marks groups without pledged members; they are not saved.
var errNothingToEvaluate = errors.New("no pledged members")

// NewRunSweepHandler creates a new RunSweepHandler. locker may be nil for
// single-instance deployments.
func NewRunSweepHandler(
	registry *state.Registry,
	notifier attendance.Notifier,
	clock timeutil.Clock,
	locker SweepLocker,
	logger *slog.Logger,
	config RunSweepHandlerConfig,
) *RunSweepHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.LockTTL <= 0 {
		config = DefaultRunSweepHandlerConfig()
	}
	return &RunSweepHandler{
		registry: registry,
		notifier: notifier,
		clock:    clock,
		locker:   locker,
		logger:   logger.With(applog.Component("sweep")),
		lockTTL:  config.LockTTL,
	}
}

// Running reports whether a sweep is in flight in this process.
func (h *RunSweepHandler) Running() bool {
	return h.running.Load()
}

// Handle runs the sweep. Returns shared.ErrSweepInProgress when another sweep
// holds the guard. Delivery failures are logged and counted, never returned.
func (h *RunSweepHandler) Handle(ctx context.Context, cmd RunSweepCommand) (*SweepReport, error) {
	if !h.running.CompareAndSwap(false, true) {
		return nil, shared.ErrSweepInProgress
	}
	defer h.running.Store(false)

	if h.locker != nil {
		unlock, ok, err := h.locker.TryLock(ctx, SweepLockKey, h.lockTTL)
		switch {
		case err != nil:
			h.logger.Warn("sweep lock unavailable, continuing with local guard only", "error", err)
		case !ok:
			return nil, shared.ErrSweepInProgress
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					h.logger.Warn("failed to release sweep lock", "error", err)
				}
			}()
		}
	}

	now := cmd.At
	if now.IsZero() {
		now = h.clock.Now()
	}
	report := &SweepReport{
		RunID:       uuid.New().String(),
		Trigger:     cmd.Trigger,
		EvaluatedAt: now,
		StartedAt:   time.Now(),
	}
	logger := h.logger.With(applog.RunID(report.RunID), "trigger", cmd.Trigger)
	logger.Info("sweep started", "evaluated_at", now)

	cal := h.registry.Calendar()
	for _, id := range h.registry.GroupIDs() {
		if err := ctx.Err(); err != nil {
			logger.Warn("sweep interrupted", "error", err, "groups_done", report.Groups)
			report.CompletedAt = time.Now()
			return report, fmt.Errorf("sweep interrupted: %w", err)
		}

		var outcome attendance.Outcome
		err := h.registry.MutateGroup(ctx, id, func(g *attendance.Group) error {
			outcome = attendance.Evaluate(g, now, cal)
			if outcome.Kind == attendance.OutcomeNone {
				return errNothingToEvaluate
			}
			return nil
		})
		switch {
		case errors.Is(err, errNothingToEvaluate):
			report.Skipped++
			continue
		case errors.Is(err, state.ErrUnsaved):
			report.SaveFailures++
		case err != nil:
			logger.Error("failed to evaluate group", applog.GroupID(id.String()), "error", err)
			continue
		}

		report.Groups++
		result := GroupSweepResult{Outcome: outcome}
		switch outcome.Kind {
		case attendance.OutcomeAllSuccess:
			report.AllSuccess++
		case attendance.OutcomeSomeFailed:
			report.SomeFailed++
		}

		if n, ok := outcome.Notification(); ok && h.notifier != nil {
			if err := h.notifier.Notify(ctx, id, n); err != nil {
				result.NotifyError = err
				report.NotifyFailures++
				level := slog.LevelError
				if shared.IsTransport(err) {
					level = slog.LevelWarn
				}
				logger.Log(ctx, level, "failed to notify group", applog.GroupID(id.String()), "kind", n.Kind, "error", err)
			} else {
				result.Notified = true
			}
		}

		logger.Info("group evaluated",
			applog.GroupID(id.String()),
			"outcome", outcome.Kind,
			"streak", outcome.Streak,
			"previous_streak", outcome.PreviousStreak,
			"failed", len(outcome.FailedNames),
		)
		report.Results = append(report.Results, result)
	}

	report.CompletedAt = time.Now()
	logger.Info("sweep completed",
		"groups", report.Groups,
		"skipped", report.Skipped,
		"all_success", report.AllSuccess,
		"some_failed", report.SomeFailed,
		"notify_failures", report.NotifyFailures,
		"unsaved_groups", report.SaveFailures,
		"duration", report.CompletedAt.Sub(report.StartedAt),
	)
	return report, nil
}

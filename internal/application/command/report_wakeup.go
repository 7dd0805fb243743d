// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT WAKEUP COMMAND
// Records a "I'm up" report. Lateness is not judged here; the daily sweep
// compares the report instant against the pledged time.
// ══════════════════════════════════════════════════════════════════════════════

// ReportWakeupCommand contains the data of an inbound wake-up report.
type ReportWakeupCommand struct {
	// Actor is the reporting user and their group.
	Actor state.Actor
}

// Validate validates the command.
func (c ReportWakeupCommand) Validate() error {
	return validateActor(c.Actor)
}

// ReportWakeupResult contains the accepted report.
type ReportWakeupResult struct {
	// UserName is the display name used in the reply.
	UserName string

	// ReportedAt is the accepted report instant.
	ReportedAt time.Time

	// WakeupTime is the member's pledge at report time.
	WakeupTime attendance.WakeupTime

	// Late is true when the report is already past today's deadline.
	// The report is still recorded; the sweep will count it as a failure.
	Late bool
}

// ReportWakeupHandler handles the ReportWakeupCommand.
type ReportWakeupHandler struct {
	registry *state.Registry
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewReportWakeupHandler creates a new ReportWakeupHandler.
func NewReportWakeupHandler(registry *state.Registry, clock timeutil.Clock, logger *slog.Logger) *ReportWakeupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWakeupHandler{registry: registry, clock: clock, logger: logger}
}

// Handle executes the report command. Rejections are returned as validation
// errors (shared.ErrNoPledge, shared.ErrDuplicateReport) and change nothing.
func (h *ReportWakeupHandler) Handle(ctx context.Context, cmd ReportWakeupCommand) (*ReportWakeupResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("report_wakeup: %w", err)
	}

	now := h.clock.Now()
	cal := h.registry.Calendar()
	var result ReportWakeupResult

	err := h.registry.MutateMember(ctx, cmd.Actor, now, func(g *attendance.Group, m *attendance.Member) error {
		if err := attendance.SubmitReport(m, now, cal); err != nil {
			return err
		}
		result = ReportWakeupResult{
			UserName:   m.Name(),
			ReportedAt: now,
			WakeupTime: *m.WakeupTime,
			Late:       !attendance.ReportedOnTime(m, now, cal),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug("wake-up report accepted",
		applog.GroupID(cmd.Actor.GroupID.String()),
		applog.UserID(cmd.Actor.UserID.String()),
		"late", result.Late,
	)
	return &result, nil
}

// validateActor checks that an inbound event identifies a group and a user.
func validateActor(a state.Actor) error {
	if !a.GroupID.IsValid() {
		return shared.ErrInvalidGroup
	}
	if !a.UserID.IsValid() {
		return shared.ErrInvalidMember
	}
	return nil
}

package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET WAKEUP TIME COMMAND
// Sets or changes a member's pledged wake-up time. Changing the pledge also
// clears today's report flag so the member can report against the new time.
// ══════════════════════════════════════════════════════════════════════════════

// SetWakeupTimeCommand contains the new pledge.
type SetWakeupTimeCommand struct {
	Actor  state.Actor
	Hour   int
	Minute int
}

// Validate validates the command.
func (c SetWakeupTimeCommand) Validate() error {
	if err := validateActor(c.Actor); err != nil {
		return err
	}
	_, err := attendance.NewWakeupTime(c.Hour, c.Minute)
	return err
}

// SetWakeupTimeResult contains the stored pledge.
type SetWakeupTimeResult struct {
	UserName   string
	WakeupTime attendance.WakeupTime
	// Previous is the replaced pledge, nil if there was none.
	Previous *attendance.WakeupTime
}

// SetWakeupTimeHandler handles the SetWakeupTimeCommand.
type SetWakeupTimeHandler struct {
	registry *state.Registry
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewSetWakeupTimeHandler creates a new SetWakeupTimeHandler.
func NewSetWakeupTimeHandler(registry *state.Registry, clock timeutil.Clock, logger *slog.Logger) *SetWakeupTimeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetWakeupTimeHandler{registry: registry, clock: clock, logger: logger}
}

// Handle executes the command. Out-of-range values return shared.ErrMalformedTime
// before any state is touched.
func (h *SetWakeupTimeHandler) Handle(ctx context.Context, cmd SetWakeupTimeCommand) (*SetWakeupTimeResult, error) {
	wt, err := attendance.NewWakeupTime(cmd.Hour, cmd.Minute)
	if err != nil {
		return nil, err
	}
	if err := validateActor(cmd.Actor); err != nil {
		return nil, fmt.Errorf("set_wakeup_time: %w", err)
	}

	var result SetWakeupTimeResult
	err = h.registry.MutateMember(ctx, cmd.Actor, h.clock.Now(), func(g *attendance.Group, m *attendance.Member) error {
		if m.WakeupTime != nil {
			prev := *m.WakeupTime
			result.Previous = &prev
		}
		m.SetWakeupTime(wt)
		result.UserName = m.Name()
		result.WakeupTime = wt
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("wake-up time set",
		applog.GroupID(cmd.Actor.GroupID.String()),
		applog.UserID(cmd.Actor.UserID.String()),
		"wakeup_time", wt.String(),
	)
	return &result, nil
}

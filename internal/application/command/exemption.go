package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXEMPTION COMMANDS
// Declare and revoke the weekly "pass" that turns the next sweep into a
// success for the declaring member.
// ══════════════════════════════════════════════════════════════════════════════

// DeclareExemptionCommand asks for a pass on the next sweep.
type DeclareExemptionCommand struct {
	Actor state.Actor
}

// RevokeExemptionCommand withdraws an active pass.
type RevokeExemptionCommand struct {
	Actor state.Actor
}

// ExemptionResult describes the member's exemption state after the command.
type ExemptionResult struct {
	UserName string

	// Active is true while a pass is pending for the next sweep.
	Active bool

	// Remaining is how many passes are left in the current week window.
	Remaining int

	// At is the instant the command was applied.
	At time.Time
}

// ExemptionHandler handles both exemption commands.
type ExemptionHandler struct {
	registry *state.Registry
	policy   attendance.ExemptionPolicy
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewExemptionHandler creates a new ExemptionHandler.
func NewExemptionHandler(registry *state.Registry, policy attendance.ExemptionPolicy, clock timeutil.Clock, logger *slog.Logger) *ExemptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExemptionHandler{registry: registry, policy: policy, clock: clock, logger: logger}
}

// Declare executes DeclareExemptionCommand. Rejections are
// shared.ErrExemptionTooLate and shared.ErrQuotaExhausted.
func (h *ExemptionHandler) Declare(ctx context.Context, cmd DeclareExemptionCommand) (*ExemptionResult, error) {
	if err := validateActor(cmd.Actor); err != nil {
		return nil, fmt.Errorf("declare_exemption: %w", err)
	}

	now := h.clock.Now()
	var result ExemptionResult
	err := h.registry.MutateMember(ctx, cmd.Actor, now, func(g *attendance.Group, m *attendance.Member) error {
		if err := h.policy.Declare(m, now); err != nil {
			return err
		}
		result = h.result(m, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("exemption declared",
		applog.GroupID(cmd.Actor.GroupID.String()),
		applog.UserID(cmd.Actor.UserID.String()),
	)
	return &result, nil
}

// Revoke executes RevokeExemptionCommand. Returns shared.ErrExemptionNotActive
// when there is nothing to revoke.
func (h *ExemptionHandler) Revoke(ctx context.Context, cmd RevokeExemptionCommand) (*ExemptionResult, error) {
	if err := validateActor(cmd.Actor); err != nil {
		return nil, fmt.Errorf("revoke_exemption: %w", err)
	}

	now := h.clock.Now()
	var result ExemptionResult
	err := h.registry.MutateMember(ctx, cmd.Actor, now, func(g *attendance.Group, m *attendance.Member) error {
		if err := h.policy.Revoke(m); err != nil {
			return err
		}
		result = h.result(m, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("exemption revoked",
		applog.GroupID(cmd.Actor.GroupID.String()),
		applog.UserID(cmd.Actor.UserID.String()),
	)
	return &result, nil
}

func (h *ExemptionHandler) result(m *attendance.Member, now time.Time) ExemptionResult {
	return ExemptionResult{
		UserName:  m.Name(),
		Active:    m.ExemptionActive,
		Remaining: h.policy.Remaining(m, now),
		At:        now,
	}
}

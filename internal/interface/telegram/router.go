// Package telegram implements the Telegram Bot interface of the wake-up bot.
package telegram

import (
	"context"
	"errors"
	"log/slog"

	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/application/query"
	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/external/telegram"
	"github.com/okiru-neo/okiru-bot/internal/interface/telegram/middleware"
	"github.com/okiru-neo/okiru-bot/internal/interface/telegram/presenter"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool
}

// Handlers aggregates the application handlers the router dispatches to.
type Handlers struct {
	Report    *command.ReportWakeupHandler
	SetTime   *command.SetWakeupTimeHandler
	Exemption *command.ExemptionHandler
	Sweep     *command.RunSweepHandler
	Streak    *query.GetStreakHandler
	Settings  *query.GetSettingsHandler

	// Clock is pinned by the test-time admin command. Nil disables it.
	Clock *timeutil.OverridableClock
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Turns a message into an intent, runs it, and renders the reply.
// ══════════════════════════════════════════════════════════════════════════════

// Router routes Telegram messages to application handlers.
type Router struct {
	config    RouterConfig
	handlers  Handlers
	presenter *presenter.Presenter
	admins    *middleware.AdminAuthorizer
	logger    *slog.Logger
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig, handlers Handlers, p *presenter.Presenter, admins *middleware.AdminAuthorizer) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if p == nil {
		p = presenter.New(attendance.DefaultCutoffHour)
	}
	return &Router{
		config:    config,
		handlers:  handlers,
		presenter: p,
		admins:    admins,
		logger:    config.Logger.With(applog.Component("router")),
	}
}

// Parse extracts the intent of msg.
func (r *Router) Parse(msg *telegram.Message) Intent {
	if msg == nil {
		return Intent{Kind: IntentNone}
	}
	if cmd := telegram.ExtractCommand(msg); cmd != "" {
		return ParseCommand(cmd, telegram.ExtractCommandArgs(msg))
	}
	return ParseText(msg.Text)
}

// Route handles msg and returns the reply text; "" means stay silent.
// Rejections are rendered into the reply. The error is non-nil only for
// failures the caller should log.
func (r *Router) Route(ctx context.Context, msg *telegram.Message) (string, error) {
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return "", nil
	}
	return r.Dispatch(ctx, msg, r.Parse(msg))
}

// Dispatch runs an already parsed intent. Private chats only get the help
// text; ordinary group chatter gets no reply.
func (r *Router) Dispatch(ctx context.Context, msg *telegram.Message, intent Intent) (string, error) {
	if r.config.Debug {
		r.logger.Debug("routing message",
			"intent", intent.Kind.String(),
			"chat_id", msg.Chat.ID,
			applog.TelegramID(msg.From.ID),
		)
	}

	if intent.Kind.Admin() {
		if err := r.admins.Authorize(msg.From.ID); err != nil {
			return r.presenter.Error(err), nil
		}
		return r.reply(r.handleAdmin(ctx, intent))
	}

	if telegram.IsPrivateChat(msg) {
		if intent.Kind == IntentHelp {
			return r.presenter.Help(), nil
		}
		return r.presenter.GroupOnly(), nil
	}
	if !telegram.IsGroupChat(msg) {
		return "", nil
	}
	if intent.Kind == IntentNone {
		return "", nil
	}

	actor := state.Actor{
		GroupID:     shared.GroupIDFromInt64(msg.Chat.ID),
		UserID:      shared.UserIDFromInt64(msg.From.ID),
		DisplayName: msg.From.FullName(),
	}
	return r.reply(r.handleMember(ctx, actor, intent))
}

// reply turns expected rejections into their message and keeps other errors.
func (r *Router) reply(text string, err error) (string, error) {
	if err == nil {
		return text, nil
	}
	if isRejection(err) {
		return r.presenter.Error(err), nil
	}
	return r.presenter.Error(err), err
}

func (r *Router) handleMember(ctx context.Context, actor state.Actor, intent Intent) (string, error) {
	switch intent.Kind {
	case IntentSetTime:
		if intent.Malformed {
			return r.presenter.TimeFormatError(), nil
		}
		res, err := r.handlers.SetTime.Handle(ctx, command.SetWakeupTimeCommand{
			Actor:  actor,
			Hour:   intent.Hour,
			Minute: intent.Minute,
		})
		if err != nil {
			return "", err
		}
		return r.presenter.TimeSet(res), nil

	case IntentReport:
		res, err := r.handlers.Report.Handle(ctx, command.ReportWakeupCommand{Actor: actor})
		if err != nil {
			return "", err
		}
		return r.presenter.WakeupRecorded(res), nil

	case IntentDeclareExemption:
		res, err := r.handlers.Exemption.Declare(ctx, command.DeclareExemptionCommand{Actor: actor})
		if err != nil {
			return "", err
		}
		return r.presenter.ExemptionDeclared(res), nil

	case IntentRevokeExemption:
		res, err := r.handlers.Exemption.Revoke(ctx, command.RevokeExemptionCommand{Actor: actor})
		if err != nil {
			return "", err
		}
		return r.presenter.ExemptionRevoked(res), nil

	case IntentRecord:
		dto, err := r.handlers.Streak.Handle(ctx, query.GetStreakQuery{GroupID: actor.GroupID})
		if err != nil {
			return "", err
		}
		return r.presenter.Record(dto), nil

	case IntentSettings:
		dto, err := r.handlers.Settings.Handle(ctx, query.GetSettingsQuery{
			GroupID: actor.GroupID,
			UserID:  actor.UserID,
		})
		if err != nil {
			return "", err
		}
		return r.presenter.Settings(dto), nil

	case IntentHelp:
		return r.presenter.Help(), nil

	default:
		return r.presenter.UnknownCommand(), nil
	}
}

func (r *Router) handleAdmin(ctx context.Context, intent Intent) (string, error) {
	switch intent.Kind {
	case IntentSweep:
		report, err := r.handlers.Sweep.Handle(ctx, command.RunSweepCommand{Trigger: "admin"})
		if err != nil {
			return "", err
		}
		return r.presenter.SweepTriggered(report), nil

	case IntentTestTime:
		if r.handlers.Clock == nil {
			return r.presenter.UnknownCommand(), nil
		}
		if intent.Malformed {
			return r.presenter.TimeFormatError(), nil
		}
		r.handlers.Clock.Pin(intent.Hour, intent.Minute)
		r.logger.Warn("clock pinned", "hour", intent.Hour, "minute", intent.Minute)
		return r.presenter.TestTimeSet(attendance.WakeupTime{Hour: intent.Hour, Minute: intent.Minute}), nil

	case IntentTestTimeReset:
		if r.handlers.Clock == nil {
			return r.presenter.UnknownCommand(), nil
		}
		r.handlers.Clock.Reset()
		r.logger.Warn("clock pin removed")
		return r.presenter.TestTimeReset(), nil

	default:
		return r.presenter.UnknownCommand(), nil
	}
}

// isRejection reports whether err is a user-facing rejection rather than a fault.
func isRejection(err error) bool {
	return shared.IsValidation(err) ||
		errors.Is(err, shared.ErrSweepInProgress) ||
		errors.Is(err, shared.ErrNotAdmin)
}

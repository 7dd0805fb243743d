// Package service contains infrastructure adapters that implement
// application ports on top of external clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/external/telegram"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP NOTIFIER
// Delivers sweep results to Telegram group chats. The client retries
// transient failures; the circuit breaker stops hammering a dead API.
// ══════════════════════════════════════════════════════════════════════════════

// MessageSender sends plain text to a chat.
type MessageSender interface {
	SendText(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
}

// Renderer turns a notification into message text.
type Renderer interface {
	Notification(n attendance.Notification) string
}

// NotificationServiceConfig contains circuit breaker settings.
type NotificationServiceConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultNotificationServiceConfig returns sensible defaults.
func DefaultNotificationServiceConfig() NotificationServiceConfig {
	return NotificationServiceConfig{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// NotificationService implements attendance.Notifier over Telegram.
type NotificationService struct {
	sender   MessageSender
	renderer Renderer
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

var _ attendance.Notifier = (*NotificationService)(nil)

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender MessageSender, renderer Renderer, logger *slog.Logger, config NotificationServiceConfig) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = DefaultNotificationServiceConfig().MaxFailures
	}
	logger = logger.With(applog.Component("notifier"))

	settings := gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		// A chat that removed the bot says nothing about API health.
		IsSuccessful: func(err error) bool {
			return err == nil || telegram.IsChatGone(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &NotificationService{
		sender:   sender,
		renderer: renderer,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
	}
}

// Notify renders n and posts it to the group chat.
func (s *NotificationService) Notify(ctx context.Context, groupID shared.GroupID, n attendance.Notification) error {
	chatID, err := strconv.ParseInt(groupID.String(), 10, 64)
	if err != nil {
		return shared.WrapError("notification", "Notify", shared.ErrInvalidID,
			fmt.Sprintf("group %q is not a telegram chat id", groupID), err)
	}

	text := s.renderer.Notification(n)
	if text == "" {
		return shared.NewDomainError("notification", "Notify", shared.ErrInvalidInput,
			fmt.Sprintf("nothing to render for kind %q", n.Kind))
	}

	deliveryID := uuid.NewString()
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.sender.SendText(ctx, chatID, text)
	})
	if err != nil {
		kind := shared.ErrTransport
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			kind = shared.ErrServiceUnavailable
		}
		s.logger.Error("failed to deliver group notification",
			"delivery_id", deliveryID,
			applog.GroupID(groupID.String()),
			"kind", n.Kind,
			"error", err,
		)
		return shared.WrapError("notification", "Notify", kind,
			fmt.Sprintf("failed to notify group %s", groupID), err)
	}

	s.logger.Info("group notified",
		"delivery_id", deliveryID,
		applog.GroupID(groupID.String()),
		"kind", n.Kind,
	)
	return nil
}

// State returns the breaker state, for health reporting.
func (s *NotificationService) State() string {
	return s.breaker.State().String()
}

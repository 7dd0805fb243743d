package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okiru-neo/okiru-bot/internal/infrastructure/external/telegram"
	"github.com/okiru-neo/okiru-bot/internal/interface/telegram/middleware"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Update receiving modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Mode is the update receiving mode: "polling" or "webhook".
	Mode string

	// WebhookURL is the public URL Telegram posts updates to (webhook mode).
	WebhookURL string

	// WebhookSecret is sent back by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout bounds how long Stop waits for in-flight updates.
	GracefulShutdownTimeout time.Duration

	// RateLimit throttles replies per user.
	RateLimit middleware.RateLimitConfig
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Mode:                    ModePolling,
		Logger:                  slog.Default(),
		MaxConcurrentUpdates:    32,
		GracefulShutdownTimeout: 30 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
	}
}

// BotAPI is the part of the Telegram client the bot uses.
type BotAPI interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	Reply(ctx context.Context, msg *telegram.Message, text string) (*telegram.Message, error)
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot receives updates, routes them and sends replies.
type Bot struct {
	config BotConfig
	client BotAPI
	router *Router
	logger *slog.Logger

	rateLimiter *middleware.RateLimiter
	recovery    *middleware.RecoveryMiddleware
	metrics     *middleware.MetricsMiddleware

	running   atomic.Bool
	startedAt atomic.Pointer[time.Time]
	updateSem chan struct{}
	wg        sync.WaitGroup

	received atomic.Int64
	handled  atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewBot creates a new Telegram bot.
func NewBot(config BotConfig, client BotAPI, router *Router) (*Bot, error) {
	if client == nil {
		return nil, errors.New("telegram client is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	defaults := DefaultBotConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	if config.Mode != ModePolling && config.Mode != ModeWebhook {
		return nil, fmt.Errorf("unknown bot mode: %s", config.Mode)
	}
	if config.Mode == ModeWebhook && config.WebhookURL == "" {
		return nil, errors.New("webhook URL is required for webhook mode")
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = defaults.MaxConcurrentUpdates
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}

	logger := config.Logger.With(applog.Component("bot"))
	metricsConfig := middleware.DefaultMetricsConfig()
	metricsConfig.OnSlowRequest = func(command string, d time.Duration, telegramID int64) {
		logger.Warn("slow update", "intent", command, applog.Latency(d), applog.TelegramID(telegramID))
	}
	metrics := middleware.NewMetricsMiddleware(metricsConfig)

	return &Bot{
		config:      config,
		client:      client,
		router:      router,
		logger:      logger,
		rateLimiter: middleware.NewRateLimiter(config.RateLimit),
		recovery:    middleware.NewRecoveryMiddleware(middleware.RecoveryConfig{Logger: config.Logger, EnableStackTrace: true}),
		metrics:     metrics,
		updateSem:   make(chan struct{}, config.MaxConcurrentUpdates),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Run verifies the token and receives updates until ctx is done.
// In webhook mode it registers the webhook and waits; updates arrive through
// HandleUpdate from the HTTP server.
func (b *Bot) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("bot is already running")
	}
	defer b.running.Store(false)

	now := time.Now()
	b.startedAt.Store(&now)

	b.logger.Info("starting telegram bot", "mode", b.config.Mode, "debug", b.config.Debug)

	if err := b.verifyToken(ctx); err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}

	go b.cleanupLoop(ctx)

	var err error
	switch b.config.Mode {
	case ModeWebhook:
		err = b.runWebhook(ctx)
	default:
		err = b.runPolling(ctx)
	}

	b.drain()
	return err
}

// IsRunning returns whether the bot is currently running.
func (b *Bot) IsRunning() bool {
	return b.running.Load()
}

func (b *Bot) verifyToken(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("bot verified", "id", me.ID, "username", me.Username)
	return nil
}

func (b *Bot) runPolling(ctx context.Context) error {
	// getUpdates is rejected while a webhook is set.
	if err := b.client.DeleteWebhook(ctx, false); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	b.logger.Info("starting long polling")
	return b.client.StartPolling(ctx, b.HandleUpdate)
}

func (b *Bot) runWebhook(ctx context.Context) error {
	if err := b.client.SetWebhook(ctx, b.config.WebhookURL, b.config.WebhookSecret); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	b.logger.Info("webhook registered", "url", b.config.WebhookURL)
	<-ctx.Done()
	return nil
}

// drain waits for in-flight updates, bounded by the shutdown timeout.
func (b *Bot) drain() {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	}
	stats := b.Stats()
	b.logger.Info("telegram bot stopped",
		"updates_received", stats.UpdatesReceived,
		"updates_handled", stats.UpdatesHandled,
		"errors", stats.ErrorsCount,
	)
}

func (b *Bot) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.rateLimiter.Cleanup(); n > 0 {
				b.logger.Debug("rate limiter cleaned up", "removed", n)
			}
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single Telegram update. Handler failures are
// logged and answered; only context cancellation is returned.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	if update == nil || update.Message == nil {
		return nil
	}

	select {
	case b.updateSem <- struct{}{}:
		defer func() { <-b.updateSem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	defer b.wg.Done()
	b.received.Add(1)

	msg := update.Message
	if msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return nil
	}

	intent := b.router.Parse(msg)
	if intent.Kind == IntentNone && telegram.IsGroupChat(msg) {
		return nil
	}
	if !b.rateLimiter.Allow(msg.From.ID) {
		b.dropped.Add(1)
		b.logger.Debug("update rate limited", applog.TelegramID(msg.From.ID), "intent", intent.Kind.String())
		return nil
	}

	ctx = middleware.ContextWithTelegramID(ctx, msg.From.ID)
	ctx = middleware.ContextWithRequestID(ctx, uuid.NewString())
	logger := b.logger.With(
		applog.RequestID(middleware.RequestIDFromContext(ctx)),
		"update_id", update.UpdateID,
		"chat_id", msg.Chat.ID,
		applog.TelegramID(msg.From.ID),
		"intent", intent.Kind.String(),
	)

	rc := b.metrics.Start(intent.Kind.String(), msg.From.ID)
	var reply string
	panicInfo, err := b.recovery.Run(ctx, intent.Kind.String(), func() error {
		var routeErr error
		reply, routeErr = b.router.Dispatch(ctx, msg, intent)
		return routeErr
	})
	rc.Finish(err)

	if panicInfo != nil {
		reply = b.router.presenter.Error(panicInfo.Error)
	}
	if err != nil {
		b.failed.Add(1)
		logger.Error("failed to handle update", "error", err)
	}

	if reply != "" {
		if _, sendErr := b.client.Reply(ctx, msg, reply); sendErr != nil {
			b.failed.Add(1)
			logger.Error("failed to send reply", "error", sendErr)
			return nil
		}
	}
	if err == nil {
		b.handled.Add(1)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// BotStats holds runtime statistics.
type BotStats struct {
	Mode            string           `json:"mode"`
	Running         bool             `json:"running"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	Uptime          string           `json:"uptime,omitempty"`
	UpdatesReceived int64            `json:"updates_received"`
	UpdatesHandled  int64            `json:"updates_handled"`
	UpdatesDropped  int64            `json:"updates_dropped"`
	ErrorsCount     int64            `json:"errors_count"`
	RateLimited     int              `json:"rate_limited_users"`
	Metrics         middleware.Stats `json:"metrics"`
}

// Stats returns current bot statistics.
func (b *Bot) Stats() BotStats {
	stats := BotStats{
		Mode:            b.config.Mode,
		Running:         b.IsRunning(),
		UpdatesReceived: b.received.Load(),
		UpdatesHandled:  b.handled.Load(),
		UpdatesDropped:  b.dropped.Load(),
		ErrorsCount:     b.failed.Load(),
		RateLimited:     b.rateLimiter.Size(),
		Metrics:         b.metrics.Snapshot(),
	}
	if started := b.startedAt.Load(); started != nil {
		stats.StartedAt = started
		stats.Uptime = time.Since(*started).Truncate(time.Second).String()
	}
	return stats
}

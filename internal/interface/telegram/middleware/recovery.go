package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// Catches panics in handlers and converts them to a user-facing error reply.
// The bot must stay responsive even if one update crashes its handler.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// Logger receives one error record per recovered panic.
	Logger *slog.Logger

	// EnableStackTrace attaches the stack to the log record.
	EnableStackTrace bool

	// MaxPanicsPerMinute limits how many panics are logged per minute.
	MaxPanicsPerMinute int
}

// DefaultRecoveryConfig returns sensible defaults for recovery middleware.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:             slog.Default(),
		EnableStackTrace:   true,
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo contains information about a recovered panic.
type PanicInfo struct {
	Error      error
	StackTrace string
	RequestID  string
	TelegramID int64
	Command    string
	Timestamp  time.Time
}

// RecoveryMiddleware recovers from panics.
type RecoveryMiddleware struct {
	config       RecoveryConfig
	logger       *slog.Logger
	panicCounter *panicRateLimiter
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(config RecoveryConfig) *RecoveryMiddleware {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxPanicsPerMinute <= 0 {
		config.MaxPanicsPerMinute = DefaultRecoveryConfig().MaxPanicsPerMinute
	}
	return &RecoveryMiddleware{
		config:       config,
		logger:       config.Logger.With(applog.Component("recovery")),
		panicCounter: newPanicRateLimiter(config.MaxPanicsPerMinute),
	}
}

// Run executes fn and converts a panic into a returned *PanicInfo.
// err is fn's own error when it did not panic.
func (m *RecoveryMiddleware) Run(ctx context.Context, command string, fn func() error) (info *PanicInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			info = m.handlePanic(ctx, r, command)
			err = info.Error
		}
	}()
	return nil, fn()
}

func (m *RecoveryMiddleware) handlePanic(ctx context.Context, panicValue any, command string) *PanicInfo {
	info := &PanicInfo{
		Error:      toError(panicValue),
		RequestID:  RequestIDFromContext(ctx),
		TelegramID: TelegramIDFromContext(ctx),
		Command:    command,
		Timestamp:  time.Now(),
	}
	if m.config.EnableStackTrace {
		info.StackTrace = string(debug.Stack())
	}

	if m.panicCounter.allow() {
		m.logger.Error("panic recovered",
			"error", info.Error,
			applog.RequestID(info.RequestID),
			applog.TelegramID(info.TelegramID),
			"command", info.Command,
			"stack", info.StackTrace,
		)
	}
	return info
}

// toError converts a panic value to an error.
func toError(panicValue any) error {
	switch v := panicValue.(type) {
	case error:
		return fmt.Errorf("panic: %w", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// PANIC RATE LIMITER
// ─────────────────────────────────────────────────────────────────────────────

type panicRateLimiter struct {
	mu        sync.Mutex
	count     int
	maxPerMin int
	window    time.Time
}

func newPanicRateLimiter(maxPerMin int) *panicRateLimiter {
	return &panicRateLimiter{
		maxPerMin: maxPerMin,
		window:    time.Now(),
	}
}

func (p *panicRateLimiter) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.window) > time.Minute {
		p.count = 0
		p.window = now
	}
	if p.count >= p.maxPerMin {
		return false
	}
	p.count++
	return true
}

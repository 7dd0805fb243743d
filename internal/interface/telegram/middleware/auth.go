// Package middleware contains Telegram bot middlewares for request processing.
package middleware

import (
	"context"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT KEYS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const (
	// TelegramIDContextKey is the context key for the Telegram user ID.
	TelegramIDContextKey contextKey = "telegram_id"

	// RequestIDContextKey is the context key for request tracing.
	RequestIDContextKey contextKey = "request_id"
)

// ContextWithTelegramID adds the Telegram user ID to the context.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramIDContextKey, telegramID)
}

// TelegramIDFromContext retrieves the Telegram user ID, 0 if absent.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(TelegramIDContextKey).(int64)
	return id
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID, "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN AUTHORIZATION
// Operator commands (manual sweep, pinned test time) are limited to a fixed
// list of Telegram user IDs from configuration.
// ══════════════════════════════════════════════════════════════════════════════

// AdminAuthorizer checks operator privileges.
type AdminAuthorizer struct {
	admins map[int64]struct{}
}

// NewAdminAuthorizer creates an authorizer for the given user IDs.
// An empty list means nobody is an admin.
func NewAdminAuthorizer(ids []int64) *AdminAuthorizer {
	admins := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id != 0 {
			admins[id] = struct{}{}
		}
	}
	return &AdminAuthorizer{admins: admins}
}

// IsAdmin reports whether telegramID is an operator.
func (a *AdminAuthorizer) IsAdmin(telegramID int64) bool {
	if a == nil {
		return false
	}
	_, ok := a.admins[telegramID]
	return ok
}

// Authorize returns shared.ErrNotAdmin for non-operators.
func (a *AdminAuthorizer) Authorize(telegramID int64) error {
	if !a.IsAdmin(telegramID) {
		return shared.ErrNotAdmin
	}
	return nil
}

// Count returns the number of configured admins.
func (a *AdminAuthorizer) Count() int {
	if a == nil {
		return 0
	}
	return len(a.admins)
}

package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

func TestAdminAuthorizer(t *testing.T) {
	auth := NewAdminAuthorizer([]int64{42, 0, 7})

	assert.Equal(t, 2, auth.Count())
	assert.True(t, auth.IsAdmin(42))
	assert.NoError(t, auth.Authorize(7))
	assert.ErrorIs(t, auth.Authorize(1), shared.ErrNotAdmin)

	var none *AdminAuthorizer
	assert.False(t, none.IsAdmin(42))
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithRequestID(ContextWithTelegramID(context.Background(), 99), "req-1")
	assert.Equal(t, int64(99), TelegramIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Zero(t, TelegramIDFromContext(context.Background()))
}

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2, IdleTTL: time.Minute})
	now := time.Date(2024, 3, 18, 7, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "users have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow(1), "one token refills per second")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{IdleTTL: time.Minute})
	now := time.Date(2024, 3, 18, 7, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow(1)
	now = now.Add(30 * time.Second)
	rl.Allow(2)
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Size())
}

func TestRecoveryMiddleware(t *testing.T) {
	m := NewRecoveryMiddleware(RecoveryConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx := ContextWithTelegramID(context.Background(), 5)

	info, err := m.Run(ctx, "wake", func() error { panic("boom") })
	require.NotNil(t, info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int64(5), info.TelegramID)
	assert.Equal(t, "wake", info.Command)

	sentinel := errors.New("plain failure")
	info, err = m.Run(ctx, "wake", func() error { return sentinel })
	assert.Nil(t, info)
	assert.ErrorIs(t, err, sentinel)
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetricsMiddleware(DefaultMetricsConfig())

	m.Start("report", 1).Finish(nil)
	m.Start("report", 2).Finish(errors.New("x"))
	m.Start("help", 1).Finish(nil)

	stats := m.Snapshot()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.TotalErrors)
	assert.Zero(t, stats.ActiveRequests)
	require.Len(t, stats.Commands, 2)
	assert.Equal(t, "report", stats.Commands[0].Command)
	assert.Equal(t, int64(2), stats.Commands[0].Count)
	assert.Equal(t, int64(1), stats.Commands[0].Errors)
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/external/telegram"
	"github.com/okiru-neo/okiru-bot/internal/interface/telegram/presenter"
)

type fakeSender struct {
	chats []int64
	texts []string
	err   error
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) (*telegram.Message, error) {
	f.chats = append(f.chats, chatID)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &telegram.Message{MessageID: int64(len(f.texts))}, nil
}

func newService(sender MessageSender, cfg NotificationServiceConfig) *NotificationService {
	return NewNotificationService(sender, presenter.New(22), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestNotificationService_Notify(t *testing.T) {
	sender := &fakeSender{}
	svc := newService(sender, DefaultNotificationServiceConfig())

	err := svc.Notify(context.Background(), "-1001234", attendance.Notification{
		Kind:   attendance.NotificationAllSuccess,
		Streak: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{-1001234}, sender.chats)
	assert.Equal(t, "全員が時間通りに起きました！連続記録は2日目です🎉", sender.texts[0])
}

func TestNotificationService_RejectsNonNumericGroup(t *testing.T) {
	sender := &fakeSender{}
	svc := newService(sender, DefaultNotificationServiceConfig())

	err := svc.Notify(context.Background(), "not-a-chat", attendance.Notification{Kind: attendance.NotificationAllSuccess})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
	assert.Empty(t, sender.chats)
}

func TestNotificationService_WrapsTransportErrors(t *testing.T) {
	sender := &fakeSender{err: &telegram.APIError{Code: 500, Description: "boom"}}
	svc := newService(sender, DefaultNotificationServiceConfig())

	err := svc.Notify(context.Background(), "1", attendance.Notification{Kind: attendance.NotificationAllSuccess, Streak: 1})
	assert.ErrorIs(t, err, shared.ErrTransport)
	assert.True(t, shared.IsTransport(err))

	var apiErr *telegram.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestNotificationService_BreakerOpens(t *testing.T) {
	sender := &fakeSender{err: &telegram.APIError{Code: 502, Description: "bad gateway"}}
	svc := newService(sender, NotificationServiceConfig{MaxFailures: 2, OpenTimeout: time.Hour})
	n := attendance.Notification{Kind: attendance.NotificationAllSuccess, Streak: 1}

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, svc.Notify(context.Background(), "1", n), shared.ErrTransport)
	}
	assert.Equal(t, "open", svc.State())

	err := svc.Notify(context.Background(), "1", n)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Len(t, sender.texts, 2, "open breaker must not call the API")
}

func TestNotificationService_ChatGoneDoesNotTripBreaker(t *testing.T) {
	sender := &fakeSender{err: &telegram.APIError{Code: 403, Description: "Forbidden: bot was kicked"}}
	svc := newService(sender, NotificationServiceConfig{MaxFailures: 1, OpenTimeout: time.Hour})
	n := attendance.Notification{Kind: attendance.NotificationSomeFailed, FailedNames: []string{"A"}}

	for i := 0; i < 3; i++ {
		assert.Error(t, svc.Notify(context.Background(), "1", n))
	}
	assert.Equal(t, "closed", svc.State())
	assert.Len(t, sender.texts, 3)
}

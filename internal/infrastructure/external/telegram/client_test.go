package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("TOKEN")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SendText(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 42, "chat": map[string]any{"id": -100, "type": "group"}},
		})
	})

	msg, err := client.SendText(context.Background(), -100, "おはよう")
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, float64(-100), got["chat_id"])
	assert.Equal(t, "おはよう", got["text"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
			return
		}
		writeJSON(w, map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
	})

	_, err := client.SendText(context.Background(), 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{"ok": false, "error_code": 403, "description": "Forbidden: bot was kicked from the group chat"})
	})

	_, err := client.SendText(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Code)
	assert.True(t, IsChatGone(err))
	assert.False(t, IsRetryable(err))
}

func TestClient_GivesUpAfterRetryAttempts(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{"ok": false, "error_code": 500, "description": "Internal Server Error"})
	})

	_, err := client.SendText(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestClient_SetWebhookSendsSecret(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/setWebhook"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{"ok": true, "result": true})
	})

	require.NoError(t, client.SetWebhook(context.Background(), "https://example.org/telegram/webhook", "s3cret"))
	assert.Equal(t, "https://example.org/telegram/webhook", got["url"])
	assert.Equal(t, "s3cret", got["secret_token"])
}

func TestClient_StartPollingAdvancesOffset(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []float64
		polls   atomic.Int32
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if off, ok := body["offset"].(float64); ok {
			mu.Lock()
			offsets = append(offsets, off)
			mu.Unlock()
		}
		if polls.Add(1) == 1 {
			writeJSON(w, map[string]any{"ok": true, "result": []map[string]any{
				{"update_id": 10, "message": map[string]any{"message_id": 1, "text": "起きた", "chat": map[string]any{"id": -1, "type": "group"}}},
				{"update_id": 11, "message": map[string]any{"message_id": 2, "text": "朝", "chat": map[string]any{"id": -1, "type": "group"}}},
			}})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "result": []any{}})
	})

	ctx, cancel := context.WithCancel(context.Background())
	var texts []string
	done := make(chan error, 1)
	go func() {
		done <- client.StartPolling(ctx, func(_ context.Context, u *Update) error {
			texts = append(texts, u.Message.Text)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return polls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"起きた", "朝"}, texts)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, offsets)
	assert.Equal(t, float64(12), offsets[0])
}

func TestExtractCommand(t *testing.T) {
	msg := &Message{
		Text:     "/time@okiru_bot 7:30",
		Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: 15}},
	}
	assert.Equal(t, "time", ExtractCommand(msg))
	assert.Equal(t, "7:30", ExtractCommandArgs(msg))

	plain := &Message{Text: "おはよう"}
	assert.Empty(t, ExtractCommand(plain))
	assert.Empty(t, ExtractCommandArgs(plain))
}

func TestChatKinds(t *testing.T) {
	assert.True(t, IsGroupChat(&Message{Chat: &Chat{Type: "supergroup"}}))
	assert.True(t, IsGroupChat(&Message{Chat: &Chat{Type: "group"}}))
	assert.False(t, IsGroupChat(&Message{Chat: &Chat{Type: "private"}}))
	assert.True(t, IsPrivateChat(&Message{Chat: &Chat{Type: "private"}}))
	assert.False(t, IsGroupChat(nil))
}

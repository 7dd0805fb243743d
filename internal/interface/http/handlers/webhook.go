package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/okiru-neo/okiru-bot/internal/infrastructure/external/telegram"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK HANDLER
// Telegram posts one Update per request. Replies are sent through the Bot API,
// so the response body is always empty.
// ══════════════════════════════════════════════════════════════════════════════

// SecretTokenHeader is set by Telegram to the secret given in setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts Telegram updates and hands them to the bot.
type WebhookHandler struct {
	secret string
	handle telegram.UpdateHandler
	logger *slog.Logger
}

// NewTelegramWebhookHandler creates a webhook handler. An empty secret disables
// the header check.
func NewTelegramWebhookHandler(secret string, handle telegram.UpdateHandler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		secret: secret,
		handle: handle,
		logger: logger.With(applog.Component("webhook")),
	}
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("webhook secret mismatch", "ip", ClientIP(r))
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn("invalid webhook payload", "error", err)
		http.Error(w, `{"error":"invalid_payload"}`, http.StatusBadRequest)
		return
	}

	// A failed update is answered 200 anyway: Telegram would redeliver it forever.
	ctx := context.WithoutCancel(r.Context())
	if err := h.handle(ctx, &update); err != nil {
		h.logger.Error("failed to handle webhook update",
			"update_id", update.UpdateID,
			applog.RequestID(RequestID(r.Context())),
			"error", err,
		)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get(SecretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// Package handlers contains the reusable pieces of the HTTP surface.
//
// # Health
//
// CompositeHealthChecker runs named checks concurrently with a per-check
// timeout. The server exposes it on /readyz; /healthz only reports liveness.
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("store", handlers.NewPingCheck(repo))
//	checker.AddCheck("redis", handlers.NewPingCheck(redisClient))
//
// # Webhook
//
// WebhookHandler verifies the X-Telegram-Bot-Api-Secret-Token header,
// decodes the Update and passes it to the bot:
//
//	mux.Handle("POST /telegram/webhook",
//	    handlers.NewTelegramWebhookHandler(secret, bot.HandleUpdate, logger))
//
// # Middleware
//
// Chain composes middleware with the first argument outermost:
//
//	h := handlers.Chain(
//	    handlers.RecoveryMiddleware(logger),
//	    handlers.RequestIDMiddleware,
//	    handlers.LoggingMiddleware(logger),
//	)(mux)
package handlers

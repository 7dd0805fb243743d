package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okiru-neo/okiru-bot/config"
	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/application/query"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/postgres"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/scheduler"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/okiru-neo/okiru-bot/internal/interface/http"
	"github.com/okiru-neo/okiru-bot/internal/interface/http/handlers"
	tgbot "github.com/okiru-neo/okiru-bot/internal/interface/telegram"
	"github.com/okiru-neo/okiru-bot/internal/interface/telegram/middleware"
)

// readinessTimeout ограничивает проверки /readyz.
const readinessTimeout = 3 * time.Second

// serveCmd запускает бота, планировщик и HTTP-сервер.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the daily sweep scheduler and the HTTP server",
	Long: `Run everything a deployment needs in one process:

  - the Telegram bot (long polling or webhook, TELEGRAM_MODE)
  - the scheduler: daily_sweep on SWEEP_CRON, flush_dirty_groups every FLUSH_INTERVAL
  - the HTTP server: /healthz, /readyz, /telegram/webhook, /api/groups/{id}/streak
    and, with HTTP_ADMIN_TOKEN set, the admin API used by "okiru sweep" and "okiru status"

State is loaded from the store on start; a store that cannot be read aborts startup.
Run one serve per store: the process keeps the group state in memory and is
the only writer.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig((*config.Config).Validate)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// Telegram
	// ─────────────────────────────────────────────────────────────────────────
	h := tgbot.Handlers{
		Report:    command.NewReportWakeupHandler(a.registry, a.clock, log),
		SetTime:   command.NewSetWakeupTimeHandler(a.registry, a.clock, log),
		Exemption: command.NewExemptionHandler(a.registry, a.policy, a.clock, log),
		Sweep:     a.sweep,
		Streak:    query.NewGetStreakHandler(a.registry),
		Settings:  query.NewGetSettingsHandler(a.registry, a.policy, a.clock),
	}
	if cfg.Features.TestCommands {
		h.Clock = a.clock
	}
	router := tgbot.NewRouter(tgbot.RouterConfig{Logger: log, Debug: cfg.App.Debug}, h, a.presenter,
		middleware.NewAdminAuthorizer(cfg.Telegram.AdminIDs))

	botConfig := tgbot.DefaultBotConfig()
	botConfig.Mode = cfg.Telegram.Mode
	botConfig.WebhookURL = cfg.Telegram.WebhookURL
	botConfig.WebhookSecret = cfg.Telegram.WebhookSecret
	botConfig.Debug = cfg.App.Debug
	botConfig.Logger = log
	botConfig.GracefulShutdownTimeout = cfg.App.ShutdownTimeout
	bot, err := tgbot.NewBot(botConfig, a.telegram, router)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sweepSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.SweepCron)
	if err != nil {
		return fmt.Errorf("SWEEP_CRON: %w", err)
	}
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.Location()
	sched := scheduler.NewScheduler(schedConfig)
	dailySweep := jobs.NewDailySweepJob(a.sweep, log, jobs.DefaultDailySweepConfig())
	if err := sched.Register(dailySweep, sweepSchedule); err != nil {
		return err
	}
	if err := sched.Register(jobs.NewFlushStateJob(a.registry, log), scheduler.NewIntervalSchedule(cfg.Scheduler.FlushInterval)); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(version)
	health.SetTimeout(readinessTimeout)
	health.AddCheck("store", handlers.NewPingCheck(a.store))
	if a.redis != nil {
		health.AddCheck("redis", handlers.NewPingCheck(a.redis))
	}
	deps := httpserver.Dependencies{
		Health: health,
		Logger: log,
		Sweep:  a.sweep,
		Jobs:   sched,
		Status: a.statusSources(bot, dailySweep),
	}
	if cfg.Features.StreakAPI {
		deps.Streak = h.Streak
	}
	if cfg.Telegram.Mode == tgbot.ModeWebhook {
		deps.Updates = bot.HandleUpdate
	}
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.WebhookSecret = cfg.Telegram.WebhookSecret
	httpConfig.AdminToken = cfg.HTTP.AdminToken
	httpConfig.ShutdownTimeout = cfg.App.ShutdownTimeout
	server := httpserver.NewServer(httpConfig, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// Run
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("okiru starting",
		"storage", cfg.Storage.Driver,
		"mode", cfg.Telegram.Mode,
		"timezone", cfg.Location().String(),
		"sweep_cron", cfg.Scheduler.SweepCron,
		"redis_lock", a.redis != nil,
		"admins", len(cfg.Telegram.AdminIDs),
		"admin_api", cfg.HTTP.AdminToken != "",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// Последняя попытка сохранить группы, чьё сохранение не удалось.
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if n, err := a.registry.FlushDirty(flushCtx); err != nil {
		log.Error("final flush failed", "pending", a.registry.DirtyCount(), "error", err)
	} else if n > 0 {
		log.Info("final flush saved groups", "count", n)
	}

	log.Info("okiru stopped", "bot", bot.Stats())
	return runErr
}

// statusSources собирает секции GET /api/admin/status.
func (a *app) statusSources(bot *tgbot.Bot, dailySweep *jobs.DailySweepJob) map[string]httpserver.StatusSource {
	sources := map[string]httpserver.StatusSource{
		"bot": func(context.Context) any { return bot.Stats() },
		"clock": func(context.Context) any {
			return map[string]any{"now": a.clock.Now(), "pinned": a.clock.Pinned()}
		},
		"last_cron_sweep": func(context.Context) any {
			report := dailySweep.LastReport()
			if report == nil {
				return nil
			}
			return map[string]any{
				"run_id":       report.RunID,
				"evaluated_at": report.EvaluatedAt,
				"groups":       report.Groups,
				"all_success":  report.AllSuccess,
				"some_failed":  report.SomeFailed,
			}
		},
		"notifier": func(context.Context) any {
			return map[string]any{"breaker": a.notifier.State()}
		},
		"state": func(context.Context) any {
			return map[string]any{
				"groups": len(a.registry.GroupIDs()),
				"dirty":  a.registry.DirtyCount(),
			}
		},
		"store": func(ctx context.Context) any {
			if h, ok := a.store.(storeHealth); ok {
				status, err := h.Health(ctx)
				if err != nil {
					return map[string]any{"healthy": false, "error": err.Error()}
				}
				return status
			}
			if err := a.store.Ping(ctx); err != nil {
				return map[string]any{"healthy": false, "error": err.Error()}
			}
			return map[string]any{"healthy": true}
		},
	}
	if a.locker != nil {
		sources["sweep_lock"] = func(ctx context.Context) any {
			holder, err := a.locker.Holder(ctx, command.SweepLockKey)
			if err != nil {
				return map[string]any{"error": err.Error()}
			}
			return map[string]any{"held": holder != "", "holder": holder}
		}
	}
	return sources
}

// storeHealth - хранилище с подробной проверкой пула соединений.
type storeHealth interface {
	Health(ctx context.Context) (*postgres.HealthStatus, error)
}

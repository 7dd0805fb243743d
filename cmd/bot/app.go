package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/okiru-neo/okiru-bot/config"
	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/external/telegram"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/postgres"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/redis"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/sqlite"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/service"
	"github.com/okiru-neo/okiru-bot/internal/interface/telegram/presenter"
	"github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// Собирает зависимости процесса serve, единственного владельца состояния групп.
// ══════════════════════════════════════════════════════════════════════════════

// store - хранилище групп с проверкой доступности.
type store interface {
	attendance.Repository
	Ping(ctx context.Context) error
}

// app содержит собранные зависимости.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	calendar  timeutil.Calendar
	clock     *timeutil.OverridableClock
	policy    attendance.ExemptionPolicy
	presenter *presenter.Presenter

	store    store
	registry *state.Registry

	telegram *telegram.Client
	notifier *service.NotificationService
	redis    *redis.Client
	locker   *redis.Locker
	sweep    *command.RunSweepHandler

	closers []func()
}

// loadConfig читает конфигурацию, проверяет её нужным команде validate
// и настраивает логгер.
func loadConfig(validate func(*config.Config) error) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if cfg.App.Debug {
		level = "debug"
	}
	log := logger.Setup(level, cfg.Log.Format).With("env", string(cfg.App.Environment), "version", version)
	return cfg, log, nil
}

// newApp открывает хранилище, загружает состояние и собирает обработчики.
// Ошибка загрузки состояния фатальна.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:       cfg,
		logger:    log,
		calendar:  cfg.Calendar(),
		presenter: presenter.New(cfg.Scheduler.ExemptionCutoffHour),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.clock = timeutil.NewOverridableClock(timeutil.SystemClock{Loc: cfg.Location()}, a.calendar)
	a.policy = attendance.NewExemptionPolicy(a.calendar, cfg.Scheduler.ExemptionCutoffHour)

	var closeStore func()
	a.store, closeStore, err = openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.registry = state.NewRegistry(a.store, a.calendar, log)
	if err := a.registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgConfig.Logger = log
	tgConfig.Debug = cfg.App.Debug
	a.telegram = telegram.NewClient(tgConfig)
	a.notifier = service.NewNotificationService(a.telegram, a.presenter, log, service.DefaultNotificationServiceConfig())

	var locker command.SweepLocker
	if cfg.Redis.Enabled {
		redisConfig := redis.DefaultConfig()
		redisConfig.Addr = cfg.Redis.Addr
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB
		a.redis, err = redis.NewClient(ctx, redisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.redis.Close() })
		a.locker = redis.NewLocker(a.redis)
		locker = a.locker
	}

	a.sweep = command.NewRunSweepHandler(a.registry, a.notifier, a.clock, locker, log,
		command.RunSweepHandlerConfig{LockTTL: cfg.Redis.LockTTL})
	return a, nil
}

// Close releases connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openStore открывает выбранное хранилище и применяет миграции.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		if applied > 0 {
			log.Info("migrations applied", "count", applied)
		}
		return postgres.NewGroupRepository(conn), conn.Close, nil

	case config.StorageSQLite:
		repo, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return repo, func() { _ = repo.Close() }, nil

	default:
		return nil, nil, errors.New("unknown storage driver: " + cfg.Storage.Driver)
	}
}

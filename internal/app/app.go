package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vx-continuous/internal/cache"
	"vx-continuous/internal/config"
	"vx-continuous/internal/fetcher"
	"vx-continuous/internal/notify"
	"vx-continuous/internal/scheduler"
	"vx-continuous/internal/service"
	"vx-continuous/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.ContractFetcher {
	return fetcher.NewCBOE(fetcher.CBOEOptions{
		BaseURL:       a.Config.CBOE.BaseURL,
		LegacyBaseURL: a.Config.CBOE.LegacyBaseURL,
		Timeout:       a.Config.CBOE.RequestTimeout,
		UserAgent:     a.Config.CBOE.UserAgent,
		SettlementLag: a.Config.CBOE.SettlementLagDays,
	}, a.Logger)
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notify.Enabled && a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running rebuild service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var seriesStore cache.SeriesStore
	var locker storage.AdvisoryLocker
	var pruner service.BuildPruner
	if store != nil {
		seriesStore = store
		locker = store
		pruner = store
	}
	manager := cache.NewManager(seriesStore, a.Logger)

	svc, err := service.New(a.Config, sched, a.newFetcher(), manager, locker, pruner, a.newNotifier(), a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting rebuild service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rebuild service stopped")
	return nil
}

// BuildOptions hold parameters for a one-shot build.
type BuildOptions struct {
	From *time.Time
	To   *time.Time
}

// ExportOptions hold parameters for exporting a stored series.
type ExportOptions struct {
	From        *time.Time
	To          *time.Time
	Fingerprint string
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the synthetic-chain build.
type SimulateOptions struct {
	Months int
	Seed   int64
}

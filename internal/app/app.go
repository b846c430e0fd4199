package app

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/backuppilot/internal/adapter/compressor"
	"github.com/semmidev/backuppilot/internal/adapter/database"
	"github.com/semmidev/backuppilot/internal/adapter/notifier"
	"github.com/semmidev/backuppilot/internal/adapter/storage"
	"github.com/semmidev/backuppilot/internal/api"
	"github.com/semmidev/backuppilot/internal/config"
	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/logger"
	"github.com/semmidev/backuppilot/internal/infrastructure/monitor"
	"github.com/semmidev/backuppilot/internal/infrastructure/scheduler"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
	"github.com/semmidev/backuppilot/internal/store"
	"github.com/semmidev/backuppilot/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	store     *store.Store
	backup    *usecase.Backup
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	server    *api.Server
}

func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	st, err := store.Open(cfg.Metadata.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	runner := shell.NewOSRunner()
	dumpers := database.NewProducer(runner, cfg.Backup.DumpTimeout)
	storages := storage.NewFactory(runner, cfg.Backup.TempDir)

	var notify domain.Notifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		tg, err := notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		if err != nil {
			// Notifications are best-effort; backups run without them.
			log.Errorf("Failed to initialize Telegram notifier: %v", err)
		} else {
			notify = tg
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	backup := usecase.NewBackup(st, dumpers, storages, compressor.NewGzipLevel(cfg.Backup.CompressionLevel), notify, log, usecase.BackupOptions{
		Compress: cfg.Backup.Compress,
		TempDir:  cfg.Backup.TempDir,
	})

	sched := scheduler.New(st, backup, log, scheduler.WithLocation(cfg.Location()))
	mon := monitor.New(st, monitor.NewSQLProber(cfg.Monitor.ProbeTimeout), log)

	return &App{
		config:    cfg,
		logger:    log,
		store:     st,
		backup:    backup,
		scheduler: sched,
		monitor:   mon,
		server:    api.NewServer(backup, sched, mon, cfg.Monitor.Interval(), log),
	}, nil
}

func (a *App) Store() *store.Store { return a.store }
func (a *App) Backup() *usecase.Backup { return a.backup }
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }
func (a *App) Monitor() *monitor.Monitor { return a.monitor }
func (a *App) Logger() *logger.Logger { return a.logger }
func (a *App) Config() *config.Config { return a.config }

// Seed loads the configured inventory into the metadata store.
func (a *App) Seed(ctx context.Context) error {
	report, err := Seed(ctx, a.store, a.config, a.logger)
	if err != nil {
		return err
	}
	a.logger.Infof("Seeded %d destination(s), %d database(s), %d schedule(s)",
		report.Destinations, report.Databases, report.Schedules)
	return nil
}

// Run seeds the store, arms the schedules and serves the HTTP API until ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s", a.config.App.Name)

	if err := a.Seed(ctx); err != nil {
		return err
	}

	if err := a.scheduler.ReconcileAll(ctx); err != nil {
		// Valid schedules stay armed.
		a.logger.Warnf("Some schedules were not registered: %v", err)
	}
	a.scheduler.Start()
	a.logger.Infof("Scheduler started with %d active schedule(s)", a.scheduler.Status().ActiveCount)

	if a.config.Monitor.Enabled {
		if err := a.monitor.Start(a.config.Monitor.Interval()); err != nil {
			return fmt.Errorf("failed to start database monitor: %w", err)
		}
		a.logger.Infof("Database monitor running every %s", a.config.Monitor.Interval())
	}

	if err := a.server.Start(a.config.Server.Addr); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Errorf("%v", err)
	}
	a.monitor.Stop()
	a.scheduler.Stop()

	if err := a.store.Close(); err != nil {
		a.logger.Errorf("Failed to close metadata store: %v", err)
	}
	a.logger.Close()
}

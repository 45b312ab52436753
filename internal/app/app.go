// Package app wires the whole service together: storage, scheduler,
// executor, send worker, day-rollover job, HTTP API and metrics.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mailerpro/mailerpro/internal/api"
	"github.com/mailerpro/mailerpro/internal/campaign"
	"github.com/mailerpro/mailerpro/internal/config"
	"github.com/mailerpro/mailerpro/internal/contacts"
	"github.com/mailerpro/mailerpro/internal/deliverability"
	"github.com/mailerpro/mailerpro/internal/executor"
	"github.com/mailerpro/mailerpro/internal/metrics"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/rotation"
	"github.com/mailerpro/mailerpro/internal/scheduler"
	"github.com/mailerpro/mailerpro/internal/store"
	"github.com/mailerpro/mailerpro/internal/transport"
	"github.com/mailerpro/mailerpro/internal/worker"
)

// App is the main application
type App struct {
	config *config.Config
	logger *slog.Logger

	db    *store.DB
	tasks *queue.BoltStorage

	accounts *store.AccountRepository
	tracker  *rotation.Tracker

	worker     *worker.Worker
	rollover   *cron.Cron
	apiServer  *api.Server
	metricsSrv *metrics.Server
	collector  *metrics.Collector
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	tasks, err := queue.NewBoltStorage(cfg.Storage.QueuePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open task queue: %w", err)
	}

	contactRepo := store.NewContactRepository(db)
	accountRepo := store.NewAccountRepository(db)
	campaignRepo := store.NewCampaignRepository(db)

	tracker := rotation.NewTracker()
	if err := seedTracker(tracker, accountRepo); err != nil {
		tasks.Close()
		db.Close()
		return nil, fmt.Errorf("failed to seed quota tracker: %w", err)
	}
	rotator := rotation.NewRotator(tracker)

	sched := scheduler.New(tasks, rotator, logger.With("component", "scheduler"))

	var mailer transport.Mailer = transport.NewSMTPMailer(cfg.Sending.SendTimeout, logger.With("component", "smtp"))
	if cfg.Sending.DryRun {
		logger.Warn("dry-run mode: no email will be delivered")
		mailer = transport.NewDryRunMailer(logger.With("component", "dryrun"))
	}
	exec := executor.New(mailer, tasks, accountRepo, executor.Config{
		SendTimeout: cfg.Sending.SendTimeout,
		MaxRetries:  cfg.Sending.MaxRetries,
		BackoffBase: cfg.Sending.BackoffBase,
	}, logger.With("component", "executor"))

	lifecycle := campaign.NewService(campaignRepo, contactRepo, accountRepo, tasks, sched,
		logger.With("component", "campaign"))

	sendWorker := worker.New(worker.Deps{
		Tasks:     tasks,
		Campaigns: campaignRepo,
		Contacts:  contactRepo,
		Accounts:  accountRepo,
		Executor:  exec,
		Lifecycle: lifecycle,
	}, worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
	}, logger.With("component", "worker"))

	importer := contacts.NewImporter(contactRepo, logger.With("component", "importer"))

	apiServer := api.NewServer(api.Deps{
		Contacts:  contactRepo,
		Accounts:  accountRepo,
		Campaigns: campaignRepo,
		Tasks:     tasks,
		Lifecycle: lifecycle,
		Importer:  importer,
		Checker:   deliverability.NewChecker(logger.With("component", "deliverability")),
	}, &cfg.API, logger.With("component", "api"))

	// Daily quota counters roll over at midnight UTC.
	rollover := cron.New(cron.WithLocation(time.UTC))
	rolloverLogger := logger.With("component", "rollover")
	_, err = rollover.AddFunc("0 0 * * *", func() {
		if err := accountRepo.ResetDailyCounts(); err != nil {
			rolloverLogger.Error("failed to reset daily counts", "error", err)
			return
		}
		tracker.Reset()
		rolloverLogger.Info("daily send counters reset")
	})
	if err != nil {
		tasks.Close()
		db.Close()
		return nil, fmt.Errorf("failed to schedule day rollover: %w", err)
	}

	a := &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		tasks:     tasks,
		accounts:  accountRepo,
		tracker:   tracker,
		worker:    sendWorker,
		rollover:  rollover,
		apiServer: apiServer,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.collector = metrics.NewCollector(m, &queueStatsAdapter{tasks: tasks}, 15*time.Second,
			logger.With("component", "metrics_collector"))
		a.metricsSrv = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			logger.With("component", "metrics"))
	}

	return a, nil
}

// seedTracker loads every account's persisted daily counter into the
// in-memory tracker, so quota survives restarts.
func seedTracker(tracker *rotation.Tracker, accounts *store.AccountRepository) error {
	all, err := accounts.ListAll()
	if err != nil {
		return err
	}
	for _, acc := range all {
		tracker.Set(acc.ID, acc.SentToday)
	}
	return nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting mailerpro",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.API.ListenAddr,
		"database", a.config.Storage.DatabasePath,
		"queue", a.config.Storage.QueuePath,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.worker.Start(ctx)
	a.rollover.Start()
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop producing and sending work first.
	a.worker.Stop()
	rolloverCtx := a.rollover.Stop()
	select {
	case <-rolloverCtx.Done():
	case <-shutdownCtx.Done():
	}

	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.tasks.Close(); err != nil {
		a.logger.Error("task queue close error", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// queueStatsAdapter exposes queue totals to the metrics collector.
type queueStatsAdapter struct {
	tasks queue.TaskQueue
}

func (q *queueStatsAdapter) QueueStats(ctx context.Context) (*metrics.QueueStats, error) {
	stats, err := q.tasks.Stats(ctx, "")
	if err != nil {
		return nil, err
	}
	return &metrics.QueueStats{
		Pending: int(stats.Pending),
		Sending: int(stats.Sending),
		Sent:    int(stats.Sent),
		Failed:  int(stats.Failed),
		Skipped: int(stats.Skipped),
		Total:   int(stats.Total),
	}, nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

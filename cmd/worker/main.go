package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/saftbridge/saftbridge/internal/app"
	"github.com/saftbridge/saftbridge/internal/erp"
	"github.com/saftbridge/saftbridge/internal/export"
	"github.com/saftbridge/saftbridge/internal/platform/cache"
	"github.com/saftbridge/saftbridge/internal/platform/db"
	"github.com/saftbridge/saftbridge/internal/run"
	"github.com/saftbridge/saftbridge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	profile, err := export.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Error("load profile", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	erpClient, err := erp.NewClient(erp.Config{
		BaseURL:      cfg.ERPBaseURL,
		TokenURL:     cfg.ERPTokenURL,
		ClientID:     cfg.ERPClientID,
		ClientSecret: cfg.ERPClientSecret,
		PollInterval: cfg.ERPPollInterval,
		JobTimeout:   cfg.ERPJobTimeout,
		Charset:      cfg.SourceCharset,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("init erp client", slog.Any("error", err))
		os.Exit(1)
	}

	runRepo := run.NewRepository(pool)
	locks := run.NewLocks(redisClient)

	exportService := export.NewService(profile, erpClient, locks, runRepo)
	exportService.WithLogger(logger)
	exportService.WithLockTTL(cfg.RunLockTTL)

	exportJob := jobs.NewExportRunJob(runRepo, exportService, logger, nil)
	sweepJob := jobs.NewRunSweepJob(runRepo, logger, nil)
	sweepJob.MaxAge = cfg.RunStaleAfter
	auditJob := jobs.NewArtifactAuditJob(runRepo, logger, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExportRun, Handler: exportJob.Handle},
			{Type: jobs.TaskRunSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskArtifactAudit, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewRunSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "45 2 * * *", Task: jobs.NewArtifactAuditTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

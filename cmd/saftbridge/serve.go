package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/saftbridge/saftbridge/internal/app"
	"github.com/saftbridge/saftbridge/internal/export"
	"github.com/saftbridge/saftbridge/internal/observability"
	"github.com/saftbridge/saftbridge/internal/platform/cache"
	"github.com/saftbridge/saftbridge/internal/platform/db"
	"github.com/saftbridge/saftbridge/internal/run"
	runhttp "github.com/saftbridge/saftbridge/internal/run/http"
	"github.com/saftbridge/saftbridge/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run registry HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	profile, err := export.LoadProfile(resolveProfilePath(cfg))
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	// The API only talks to Redis through asynq, which does not probe
	// on construction. Fail startup here instead of on the first enqueue.
	probe, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	if err := probe.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	runRepo := run.NewRepository(pool)
	runHandler := runhttp.NewHandler(logger, profile.Company.Name, runRepo, queue)
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		RunHandler: runHandler,
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

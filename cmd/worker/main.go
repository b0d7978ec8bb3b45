package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/helios-sis/helios-sis/internal/app"
	"github.com/helios-sis/helios-sis/internal/platform/db"
	"github.com/helios-sis/helios-sis/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeResetTokenPrune, Handler: jobs.NewResetTokenPruneHandler(pool)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@hourly", Task: jobs.NewResetTokenPruneTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

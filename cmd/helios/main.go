package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/helios-sis/helios-sis/internal/abac"
	"github.com/helios-sis/helios-sis/internal/app"
	"github.com/helios-sis/helios-sis/internal/auth"
	"github.com/helios-sis/helios-sis/internal/gate"
	"github.com/helios-sis/helios-sis/internal/observability"
	"github.com/helios-sis/helios-sis/internal/platform/cache"
	"github.com/helios-sis/helios-sis/internal/platform/db"
	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/rbac"
	"github.com/helios-sis/helios-sis/internal/token"
	"github.com/helios-sis/helios-sis/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	principalRepo := principal.NewRepository(dbpool)
	principalService := principal.NewService(principalRepo)

	tokenService := token.NewService(cfg.TokenSecret, cfg.TokenTTL, cfg.TokenIssuer)
	resetService := token.NewResetService(principalRepo, cfg.ResetTokenTTL)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo)

	decisionCache := abac.NewRedisCache(redisClient)
	evaluator := abac.NewEvaluator(principalRepo, rbacRepo, decisionCache, cfg.DecisionTTL, logger, metrics)

	authGate := gate.Gate{
		Tokens:     tokenService,
		Principals: principalService,
		Resolver:   rbacService,
		Access:     evaluator,
		CookieName: cfg.TokenCookie,
		Logger:     logger,
	}

	authService := auth.NewService(principalRepo, tokenService, resetService, jobClient)
	authHandler := auth.NewHandler(logger, authService)
	rbacHandler := rbac.NewHandler(logger, rbacService, authGate)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Gate:        authGate,
		AuthHandler: authHandler,
		RBACHandler: rbacHandler,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

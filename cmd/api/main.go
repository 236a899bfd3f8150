package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/osce-practice-platform/cmd/mainconfig"
	"github.com/wolfman30/osce-practice-platform/internal/api/router"
	"github.com/wolfman30/osce-practice-platform/internal/app/bootstrap"
	"github.com/wolfman30/osce-practice-platform/internal/audit"
	appconfig "github.com/wolfman30/osce-practice-platform/internal/config"
	"github.com/wolfman30/osce-practice-platform/internal/encounter"
	"github.com/wolfman30/osce-practice-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/osce-practice-platform/internal/http/middleware"
	"github.com/wolfman30/osce-practice-platform/internal/llm"
	"github.com/wolfman30/osce-practice-platform/internal/observability/metrics"
	"github.com/wolfman30/osce-practice-platform/internal/station"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting osce-practice-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, func(ctx context.Context) (aws.Config, error) {
		return mainconfig.LoadAWSConfig(ctx, cfg)
	}, logger)
	if err != nil {
		logger.Error("failed to configure generative provider", "error", err)
		os.Exit(1)
	}

	metricsHandler, dialogueMetrics := setupDialogueMetrics()
	r := buildRouter(cfg, pool, redisClient, llmClient, dialogueMetrics, metricsHandler, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Generative replies can take most of LLM_TIMEOUT.
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildRouter wires storage, the selector and the HTTP surface. Every
// dependency is optional except the station repository, which falls back
// to memory.
func buildRouter(
	cfg *appconfig.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	llmClient llm.Client,
	dialogueMetrics *metrics.DialogueMetrics,
	metricsHandler http.Handler,
	logger *logging.Logger,
) http.Handler {
	stations := bootstrap.BuildStationRepository(pool, redisClient, cfg, logger)
	transcripts := bootstrap.BuildTranscriptStore(redisClient, cfg)
	selector := bootstrap.BuildSelector(cfg, llmClient, logger)

	opts := []encounter.Option{
		encounter.WithMetrics(dialogueMetrics),
		encounter.WithHistoryLimits(bootstrap.HistoryLimits(cfg)),
		encounter.WithLogger(logger),
	}
	if transcripts != nil {
		opts = append(opts, encounter.WithTranscript(transcripts))
	}

	readiness := map[string]router.ReadinessCheck{}
	var auditHandler *audit.Handler
	if pool != nil {
		sqlDB := stdlib.OpenDBFromPool(pool)
		auditService := audit.NewService(sqlDB)
		opts = append(opts, encounter.WithAudit(auditService))
		auditHandler = audit.NewHandler(auditService, logger)
		readiness["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	svc := encounter.NewService(stations, selector, opts...)

	var transcriptLister handlers.TranscriptLister
	if transcripts != nil {
		transcriptLister = transcripts
	}

	return router.New(&router.Config{
		Logger:             logger,
		EncounterHandler:   handlers.NewEncounterHandler(svc, bootstrap.BuildIntentClassifier(cfg), transcriptLister, logger),
		LiveHandler:        encounter.NewLiveHandler(svc, logger),
		StationHandler:     station.NewHandler(stations, logger),
		AuditHandler:       auditHandler,
		AdminDialogue:      handlers.NewAdminDialogueHandler(nil, logger),
		RateLimiter:        buildRateLimiter(cfg, redisClient, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReadinessChecks:    readiness,
	})
}

// buildRateLimiter shares the budget through Redis when it is available.
func buildRateLimiter(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *httpmiddleware.RateLimiter {
	if cfg.ReplyRatePerSec <= 0 || cfg.ReplyRateBurst <= 0 {
		return nil
	}
	var store httpmiddleware.LimitStore
	if redisClient != nil {
		store = httpmiddleware.NewRedisWindowStore(redisClient, cfg.ReplyRatePerSec, cfg.ReplyRateBurst)
	} else {
		store = httpmiddleware.NewMemoryBucketStore(cfg.ReplyRatePerSec, cfg.ReplyRateBurst, 10*time.Minute)
	}
	return httpmiddleware.NewRateLimiter(store, time.Now, logger)
}

func setupDialogueMetrics() (http.Handler, *metrics.DialogueMetrics) {
	return promhttp.Handler(), metrics.NewDialogueMetrics(prometheus.DefaultRegisterer)
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("postgres not reachable; continuing without it", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

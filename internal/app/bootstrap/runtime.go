package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/osce-practice-platform/internal/config"
	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/internal/session"
	"github.com/wolfman30/osce-practice-platform/internal/station"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildStationRepository picks station storage: Postgres when a pool is
// given, in-memory otherwise, fronted by the Redis cache when Redis is up.
func BuildStationRepository(pool *pgxpool.Pool, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) station.Repository {
	if logger == nil {
		logger = logging.Default()
	}
	var repo station.Repository
	if pool != nil {
		repo = station.NewPGRepository(pool)
	} else {
		logger.Warn("no database configured; stations are kept in memory")
		repo = station.NewInMemoryRepository()
	}
	if redisClient == nil {
		return repo
	}
	ttl := cfg.StationCacheTTL
	logger.Info("station cache enabled", "ttl", ttl.String())
	return station.NewCachedRepository(repo, station.NewRedisCache(redisClient, ttl), logger)
}

// BuildTranscriptStore returns the Redis-backed session transcript, or nil
// when Redis is unavailable.
func BuildTranscriptStore(redisClient *redis.Client, cfg *appconfig.Config) *session.TranscriptStore {
	if redisClient == nil {
		return nil
	}
	return session.NewTranscriptStore(redisClient, cfg.SessionTTL)
}

// HistoryLimits maps the configured history caps.
func HistoryLimits(cfg *appconfig.Config) dialogue.HistoryLimits {
	return dialogue.HistoryLimits{MaxTurns: cfg.HistoryMaxTurns, MaxChars: cfg.HistoryMaxChars}
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/osce-practice-platform/internal/config"
	"github.com/wolfman30/osce-practice-platform/internal/observability/metrics"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	if pool := connectPostgresPool(context.Background(), "", logging.New("error")); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestBuildRateLimiter(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, buildRateLimiter(&appconfig.Config{}, nil, logger))

	cfg := &appconfig.Config{ReplyRatePerSec: 1, ReplyRateBurst: 1}
	limiter := buildRateLimiter(cfg, nil, logger)
	require.NotNil(t, limiter)
	assert.True(t, limiter.Allow(context.Background(), "ip"))
	assert.False(t, limiter.Allow(context.Background(), "ip"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	shared := buildRateLimiter(cfg, client, logger)
	require.NotNil(t, shared)
	assert.True(t, shared.Allow(context.Background(), "ip"))
	assert.NotEmpty(t, mr.Keys())
}

func TestBuildRouterInMemory(t *testing.T) {
	reg := prometheus.NewRegistry()
	dm := metrics.NewDialogueMetrics(reg)
	cfg := &appconfig.Config{
		AdminJWTSecret:  "secret",
		HistoryMaxTurns: 12,
		HistoryMaxChars: 600,
	}
	h := buildRouter(cfg, nil, nil, nil, dm, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logging.New("error"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/intent", strings.NewReader(`{"utterance":"okay"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"label":"confirm","respond":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stations/unknown/reply", strings.NewReader(`{"utterance":"hi"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRouterWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	reg := prometheus.NewRegistry()
	cfg := &appconfig.Config{SessionTTL: time.Hour, StationCacheTTL: time.Minute}
	h := buildRouter(cfg, nil, client, nil, metrics.NewDialogueMetrics(reg), nil, logging.New("error"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/transcript", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"s1","entries":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
}


package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// LimitStore decides whether one more request for key fits the budget at now.
type LimitStore interface {
	Take(ctx context.Context, key string, now time.Time) (bool, error)
}

// MemoryBucketStore is a per-key token bucket held in process memory.
// Buckets idle longer than idleTTL are evicted during Take; there is no
// background goroutine.
type MemoryBucketStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     int     // max tokens
	idleTTL   time.Duration
	lastSweep time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewMemoryBucketStore allows rate requests/sec with the given burst per key.
func NewMemoryBucketStore(rate float64, burst int, idleTTL time.Duration) *MemoryBucketStore {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MemoryBucketStore{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		idleTTL: idleTTL,
	}
}

func (s *MemoryBucketStore) Take(_ context.Context, key string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(s.burst), lastTime: now}
		s.buckets[key] = b
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * s.rate
	}
	if b.tokens > float64(s.burst) {
		b.tokens = float64(s.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Len reports how many buckets are tracked.
func (s *MemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryBucketStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.idleTTL {
		return
	}
	cutoff := now.Add(-s.idleTTL)
	for key, b := range s.buckets {
		if b.lastTime.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}

// RedisWindowStore shares a fixed-window budget across API instances. Each
// window lasts burst/rate seconds and admits burst requests.
type RedisWindowStore struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisWindowStore(client *redis.Client, rate float64, burst int) *RedisWindowStore {
	window := time.Second
	if rate > 0 && burst > 0 {
		window = time.Duration(float64(burst) / rate * float64(time.Second))
	}
	return &RedisWindowStore{
		redis:  client,
		limit:  int64(burst),
		window: window,
		prefix: "ratelimit:",
	}
}

func (s *RedisWindowStore) Take(ctx context.Context, key string, now time.Time) (bool, error) {
	slot := now.UnixNano() / int64(s.window)
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, slot)

	pipe := s.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, s.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("ratelimit: redis take: %w", err)
	}
	return incr.Val() <= s.limit, nil
}

// RateLimiter applies a LimitStore with an injected clock.
type RateLimiter struct {
	store  LimitStore
	now    func() time.Time
	logger *logging.Logger
}

func NewRateLimiter(store LimitStore, now func() time.Time, logger *logging.Logger) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RateLimiter{store: store, now: now, logger: logger}
}

// Allow reports whether key is within its budget. Store failures admit the
// request.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	ok, err := rl.store.Take(ctx, key, rl.now())
	if err != nil {
		rl.logger.Warn("rate limit store failed", "key", key, "error", err)
		return true
	}
	return ok
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// limiter's budget with 429 Too Many Requests.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(r.Context(), ip) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

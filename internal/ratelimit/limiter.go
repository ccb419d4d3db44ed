// Package ratelimit throttles outbound calls to the exchange and news
// providers. It mirrors the teacher's Redis-backed limiter for the
// case where several processes share one API key, but always keeps an
// in-process token bucket so a single instance works with no Redis at
// all.
package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Limiter gates calls to a named endpoint.
type Limiter interface {
	Wait(ctx context.Context, endpoint string) error
}

// Config configures a Limiter.
type Config struct {
	// PerEndpoint is the steady request rate per endpoint.
	PerEndpoint map[string]rate.Limit
	// Burst is the token bucket burst size, shared by all endpoints.
	Burst int
	// Redis, when non-nil, additionally records usage so a fleet of
	// processes sharing one exchange API key can see aggregate usage.
	Redis    *redis.Client
	RedisKey string
	Logger   *logrus.Logger
}

// TokenBucket implements Limiter purely in-process via
// golang.org/x/time/rate, optionally mirroring usage into Redis for
// observability across processes.
type TokenBucket struct {
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
	redis    *redis.Client
	redisKey string
	logger   *logrus.Logger
}

// New builds a TokenBucket from cfg.
func New(cfg Config) *TokenBucket {
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	tb := &TokenBucket{
		limiters: make(map[string]*rate.Limiter, len(cfg.PerEndpoint)),
		fallback: rate.NewLimiter(rate.Limit(5), cfg.Burst),
		redis:    cfg.Redis,
		redisKey: cfg.RedisKey,
		logger:   cfg.Logger,
	}
	for endpoint, limit := range cfg.PerEndpoint {
		tb.limiters[endpoint] = rate.NewLimiter(limit, cfg.Burst)
	}
	return tb
}

// Wait blocks until endpoint has a free token or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context, endpoint string) error {
	limiter, ok := tb.limiters[endpoint]
	if !ok {
		limiter = tb.fallback
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	tb.mirror(ctx, endpoint)
	return nil
}

func (tb *TokenBucket) mirror(ctx context.Context, endpoint string) {
	if tb.redis == nil {
		return
	}
	key := tb.redisKey + ":" + endpoint + ":" + time.Now().UTC().Format("2006-01-02T15:04")
	if err := tb.redis.Incr(ctx, key).Err(); err != nil {
		tb.logger.WithError(err).WithField("endpoint", endpoint).Debug("rate limit mirror failed")
		return
	}
	tb.redis.Expire(ctx, key, 2*time.Minute)
}

// Package ratelimit gates inbound traffic per client address before any
// quota accounting runs. The limiter is fail-open: without redis, or when
// redis misbehaves, traffic passes.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vylinhq/vylin/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPerimeterClient = "perimeter:client:%s"

const (
	defaultClientRate  = 2.0
	defaultClientBurst = 20
)

type PerimeterLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket

	rate  float64
	burst int
}

type PerimeterParam struct {
	fx.In

	LC  fx.Lifecycle
	Log *zap.Logger
	Cfg config.Config
}

// NewPerimeterLimiter returns nil when no redis address is configured;
// callers treat a nil limiter as open.
func NewPerimeterLimiter(p PerimeterParam) *PerimeterLimiter {
	addr := strings.TrimSpace(p.Cfg.RedisAddr)
	if addr == "" {
		p.Log.Info("perimeter rate limiting disabled, no redis address configured")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Cfg.RedisPassword),
		DB:       p.Cfg.RedisDB,
	})
	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return &PerimeterLimiter{
		log:    p.Log.Named("ratelimit"),
		bucket: NewTokenBucket(client),
		rate:   defaultClientRate,
		burst:  defaultClientBurst,
	}
}

// AllowClient consumes one token for the client address. Limiter errors
// read as allowed.
func (l *PerimeterLimiter) AllowClient(ctx context.Context, clientIP string) bool {
	if l == nil || l.bucket == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	allowed, err := l.bucket.Allow(ctx, fmt.Sprintf(keyPerimeterClient, strings.TrimSpace(clientIP)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return allowed
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewPerimeterLimiter),
)

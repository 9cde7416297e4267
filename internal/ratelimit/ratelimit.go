// Package ratelimit throttles public intake per client IP with a fixed
// window counter kept in Redis, so every api replica shares the budget.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/redis"
)

const (
	keyPrefix     = "intake:rl:"
	lookupTimeout = 250 * time.Millisecond
)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	store  redis.RedisAdapter
	limit  int64
	window time.Duration
}

// New returns nil when limit is not positive or store is nil, which
// disables limiting.
func New(store redis.RedisAdapter, limit int64, window time.Duration) *Limiter {
	if store == nil || limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, limit: limit, window: window}
}

func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	n, ttl, err := l.store.IncrWindow(ctx, keyPrefix+key, l.window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if ttl < 0 {
		ttl = l.window
	}
	if n > l.limit {
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - n}, nil
}

// Middleware rejects requests over budget with 429. Redis failures let the
// request through so intake keeps working when the cache is down.
func (l *Limiter) Middleware(next xhttp.RequestHandler) xhttp.RequestHandler {
	if l == nil {
		return next
	}
	return func(ctx *xhttp.RequestCtx) {
		ip := xhttp.ClientIP(ctx)
		rctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		d, err := l.Allow(rctx, ip)
		cancel()
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", "error", err, "ip", ip)
			next(ctx)
			return
		}
		ctx.Response.Header.Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		ctx.Response.Header.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		if !d.Allowed {
			secs := int64(d.RetryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			ctx.Response.Header.Set("Retry-After", strconv.FormatInt(secs, 10))
			ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
			ctx.Response.Header.Set("Cache-Control", "no-store")
			ctx.SetStatusCode(xhttp.StatusTooManyRequests)
			ctx.SetBodyString(`{"ok":false,"error":"Too many requests"}`)
			logger.Warn("intake rate limited", "ip", ip)
			return
		}
		next(ctx)
	}
}

// Package idempotency makes intake safe to resend. A request carrying an
// Idempotency-Key is processed once per client; repeats get the first
// response back instead of creating another submission.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/redis"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotency-Replayed"

	maxKeyLength  = 128
	lookupTimeout = 250 * time.Millisecond
)

var ErrInProgress = errors.New("request with this key is still in progress")

type Config struct {
	// LockTTL bounds how long a crashed request can block its key.
	LockTTL   time.Duration
	ResultTTL time.Duration

	LockKeyPrefix   string
	ResultKeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:         30 * time.Second,
		ResultTTL:       24 * time.Hour,
		LockKeyPrefix:   "intake:idem:lock:",
		ResultKeyPrefix: "intake:idem:done:",
	}
}

type Store struct {
	redis  redis.RedisAdapter
	config Config
}

// New returns nil when r is nil, which turns the middleware into a no-op.
func New(r redis.RedisAdapter, cfg Config) *Store {
	if r == nil {
		return nil
	}
	def := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if cfg.LockKeyPrefix == "" {
		cfg.LockKeyPrefix = def.LockKeyPrefix
	}
	if cfg.ResultKeyPrefix == "" {
		cfg.ResultKeyPrefix = def.ResultKeyPrefix
	}
	return &Store{redis: r, config: cfg}
}

// Claim is held by the request that owns a key until it completes or
// releases it.
type Claim struct {
	key  string
	held bool
}

// Begin returns the stored response when key already completed. Otherwise
// it takes the lock for key, or fails with ErrInProgress when another
// request holds it.
func (s *Store) Begin(ctx context.Context, key string) (*Claim, []byte, error) {
	done, err := s.redis.Get(ctx, s.config.ResultKeyPrefix+key)
	switch {
	case err == nil && len(done) > 0:
		return nil, done, nil
	case err != nil && !errors.Is(err, redis.NilError):
		return nil, nil, err
	}

	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+key, lockValue, s.config.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	if !acquired {
		return nil, nil, ErrInProgress
	}
	return &Claim{key: key, held: true}, nil, nil
}

// Complete stores result for replay and drops the lock.
func (s *Store) Complete(ctx context.Context, c *Claim, result []byte) error {
	if err := s.redis.Set(ctx, s.config.ResultKeyPrefix+c.key, result, s.config.ResultTTL); err != nil {
		return err
	}
	return s.Release(ctx, c)
}

// Release drops the lock without storing anything so the key can be retried.
func (s *Store) Release(ctx context.Context, c *Claim) error {
	if c == nil || !c.held {
		return nil
	}
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+c.key); err != nil {
		return err
	}
	c.held = false
	return nil
}

// Middleware applies the store to requests that carry HeaderKey. Only 200
// responses are remembered; anything else releases the key for a retry.
// Redis failures let the request through unprotected.
func (s *Store) Middleware(next xhttp.RequestHandler) xhttp.RequestHandler {
	if s == nil {
		return next
	}
	return func(ctx *xhttp.RequestCtx) {
		raw := string(ctx.Request.Header.Peek(HeaderKey))
		if raw == "" {
			next(ctx)
			return
		}
		if !validKey(raw) {
			writeError(ctx, xhttp.StatusBadRequest, "Invalid idempotency key")
			return
		}
		key := xhttp.ClientIP(ctx) + ":" + raw

		rctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		claim, stored, err := s.Begin(rctx, key)
		cancel()
		switch {
		case errors.Is(err, ErrInProgress):
			writeError(ctx, xhttp.StatusConflict, "Submission already in progress")
			return
		case err != nil:
			logger.Warn("idempotency store unavailable, processing without it", "error", err)
			next(ctx)
			return
		case stored != nil:
			ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
			ctx.Response.Header.Set(HeaderReplayed, "true")
			ctx.SetStatusCode(xhttp.StatusOK)
			ctx.SetBody(stored)
			return
		}

		next(ctx)

		wctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		if ctx.Response.StatusCode() == xhttp.StatusOK {
			err = s.Complete(wctx, claim, append([]byte(nil), ctx.Response.Body()...))
		} else {
			err = s.Release(wctx, claim)
		}
		if err != nil {
			logger.Warn("could not settle idempotency key", "error", err)
		}
	}
}

func validKey(k string) bool {
	if len(k) > maxKeyLength {
		return false
	}
	for i := 0; i < len(k); i++ {
		if k[i] < 0x21 || k[i] > 0x7e {
			return false
		}
	}
	return true
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(`{"ok":false,"error":"` + msg + `"}`)
}

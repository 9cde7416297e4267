package xhttp

import (
	"strings"
	"time"

	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

var skipPaths = []string{"/api/health", "/metrics"}

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				ctx.ResetBody()
				ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
				ctx.Response.Header.Set("Cache-Control", "no-store")
				ctx.SetStatusCode(StatusInternalServerError)
				ctx.SetBodyString(`{"ok":false,"error":"Internal error"}`)
				logger.Error("[xhttp] panic recovered", "error", err, "path", string(ctx.Path()))
			}
		}()
		next(ctx)
	}
}

func RequestLoggerMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		fields := []any{
			"status", status,
			"method", string(ctx.Method()),
			"path", path,
			"latency", latency.String(),
			"bytes_in", len(ctx.PostBody()),
			"bytes_out", len(ctx.Response.Body()),
			"ip", ClientIP(ctx),
			"request_id", requestID(ctx),
		}

		// choose level
		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400 || latency > slowThreshold:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// NoStoreMiddleware marks every response as uncacheable. Admin listings
// carry personal data and intake results are per-request.
func NoStoreMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		next(ctx)
		ctx.Response.Header.Set("Cache-Control", "no-store")
	}
}

func SecurityHeadersMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		h := &ctx.Response.Header
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next(ctx)
	}
}

// CORSMiddleware answers preflight requests and allows the given origin.
// An empty origin disables CORS headers entirely.
func CORSMiddleware(origin string) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		if origin == "" {
			return next
		}
		return func(ctx *RequestCtx) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Vary", "Origin")
			if ctx.IsOptions() {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}
			next(ctx)
		}
	}
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}

func requestID(ctx *RequestCtx) string {
	if v := ctx.Request.Header.Peek("X-Request-Id"); len(v) > 0 {
		return string(v)
	}
	return ""
}

const clientIPKey = "xhttp.client_ip"

// RealIPMiddleware resolves the caller address once per request. With
// trustedProxies > 0 it reads the X-Forwarded-For hop appended by the
// outermost trusted proxy; with 0 the forwarding headers are ignored.
func RealIPMiddleware(trustedProxies int) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			ctx.SetUserValue(clientIPKey, resolveClientIP(ctx, trustedProxies))
			next(ctx)
		}
	}
}

// ClientIP returns the address stored by RealIPMiddleware, or the socket
// address when the middleware did not run.
func ClientIP(ctx *RequestCtx) string {
	if ip, ok := ctx.UserValue(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return ctx.RemoteIP().String()
}

func resolveClientIP(ctx *RequestCtx, trustedProxies int) string {
	if trustedProxies <= 0 {
		return ctx.RemoteIP().String()
	}
	if xff := string(ctx.Request.Header.Peek("X-Forwarded-For")); xff != "" {
		hops := strings.Split(xff, ",")
		// hops left of this index were written by the client
		if idx := len(hops) - trustedProxies; idx >= 0 {
			if ip := strings.TrimSpace(hops[idx]); ip != "" {
				return ip
			}
		}
		return ctx.RemoteIP().String()
	}
	if v := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP"))); v != "" {
		return v
	}
	return ctx.RemoteIP().String()
}

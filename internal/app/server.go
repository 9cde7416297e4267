// Package app assembles the HTTP surface of the gateway from its parts.
package app

import (
	"time"

	"github.com/nimasrn/intake-gateway/internal/config"
	"github.com/nimasrn/intake-gateway/internal/handlers"
	"github.com/nimasrn/intake-gateway/internal/idempotency"
	"github.com/nimasrn/intake-gateway/internal/ratelimit"
	"github.com/nimasrn/intake-gateway/internal/repository"
	"github.com/nimasrn/intake-gateway/internal/services"
	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/nimasrn/intake-gateway/pkg/pg"
	"github.com/nimasrn/intake-gateway/pkg/redis"
)

// Deps are the external collaborators. Notifier and Redis may be nil:
// without a notifier every intake relies on the store alone, and without
// Redis intake is neither rate limited nor replay protected.
type Deps struct {
	DB       *pg.DB
	Notifier services.Notifier
	Redis    redis.RedisAdapter
	Now      func() time.Time
}

// NewServer builds an engine with every route and middleware registered.
func NewServer(cfg *config.Config, deps Deps) *xhttp.Engine {
	opt := xhttp.DefaultServerOption
	opt.MaxRequestBodySize = cfg.HttpMaxRequestBodySize
	s := xhttp.NewServer(opt)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RealIPMiddleware(cfg.TrustedProxyCount))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.SecurityHeadersMiddleware)
	s.Use(xhttp.CORSMiddleware(cfg.CorsAllowOrigin))
	s.Use(xhttp.NoStoreMiddleware)

	repo := repository.NewSubmissionRepository(deps.DB)

	var intakeOpts []services.IntakeOption
	if deps.Now != nil {
		intakeOpts = append(intakeOpts, services.WithClock(deps.Now))
	}
	dispatcher := services.NewDispatcher(deps.Notifier, repo, services.DispatcherConfig{
		RelayTimeout: cfg.RelayTimeout,
		StoreTimeout: cfg.StoreTimeout,
	})
	intakeService := services.NewIntakeService(dispatcher, intakeOpts...)
	adminService := services.NewAdminService(repo, services.AdminConfig{
		DefaultLimit:    cfg.AdminDefaultLimit,
		ExposeUserAgent: cfg.ExposeUserAgent(),
	})
	healthService := services.NewHealthService(deps.DB)

	limiter := ratelimit.New(deps.Redis, cfg.IntakeRateLimit, cfg.IntakeRateWindow)
	replays := idempotency.New(deps.Redis, idempotency.Config{ResultTTL: cfg.IntakeIdempotencyTTL})

	g := s.Router.Group("/api")
	handlers.RegisterIntakeRoutes(g, handlers.NewIntakeHandler(intakeService), limiter.Middleware, replays.Middleware)
	handlers.RegisterAdminRoutes(g, handlers.NewAdminHandler(adminService), cfg.AdminToken)
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))
	return s
}

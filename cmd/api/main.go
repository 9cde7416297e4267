package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/intake-gateway/internal/app"
	"github.com/nimasrn/intake-gateway/internal/config"
	gateway "github.com/nimasrn/intake-gateway/internal/gateways"
	"github.com/nimasrn/intake-gateway/internal/services"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/pg"
	"github.com/nimasrn/intake-gateway/pkg/prom"
	"github.com/nimasrn/intake-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	err := config.Load(config.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting intake gateway", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty, every admin request will be rejected")
	}

	readConf := pg.Config{
		User:     cfg.PostgresReadUser,
		Host:     cfg.PostgresReadHost,
		Port:     cfg.PostgresReadPort,
		Password: cfg.PostgresReadPassword,
		Database: cfg.PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, cfg.IsDev())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	defer db.Close()

	deps := app.Deps{DB: db}

	if cfg.RelayEnabled() {
		relay, err := gateway.NewRelayClient(gateway.RelayConfig{
			BaseURL:          cfg.RelayBaseUrl,
			Recipient:        cfg.RelayRecipient,
			Timeout:          cfg.RelayTimeout,
			BreakerThreshold: cfg.RelayBreakerThreshold,
			BreakerCooldown:  cfg.RelayBreakerCooldown,
		})
		if err != nil {
			logger.Error("failed creating email relay client", "error", err)
			return
		}
		defer relay.Close()
		deps.Notifier = relay
	} else {
		logger.Warn("RELAY_RECIPIENT is empty, submissions are only stored", "destination", services.DestinationStore)
	}

	if cfg.RedisAddr != "" {
		redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{cfg.RedisAddr},
			ClientName: cfg.AppName,
			DB:         cfg.RedisDatabase,
			Username:   cfg.RedisUsername,
			Password:   cfg.RedisPassword,
		})
		if err != nil {
			// intake stays available without the limiter
			logger.Error("failed connecting to redis, rate limiting disabled", "error", err)
		} else {
			deps.Redis = redisAdap
		}
	}

	hostname, _ := os.Hostname()
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed creating metrics", "error", err)
	} else {
		go prom.ListenAndServer(cfg.MetricsListenAddr, "/metrics")
	}

	s := app.NewServer(cfg, deps)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
			c <- syscall.SIGTERM
		}
	}()

	<-c
	s.Shutdown()
}

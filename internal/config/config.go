package config

import (
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting the binaries read. Only this struct must be
// used to hold configuration values; no direct access to env or any other
// config source should be made outside this package.
type Config struct {
	AppEnv  string `env:"APP_ENV"`
	AppName string `env:"APP_NAME"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT"`
	HttpMaxRequestBodySize int           `env:"HTTP_MAX_REQUEST_BODY_SIZE"`
	CorsAllowOrigin        string        `env:"CORS_ALLOW_ORIGIN"`

	// TrustedProxyCount is the number of reverse proxies in front of the api
	// that append to X-Forwarded-For. Zero trusts only the socket address.
	TrustedProxyCount int `env:"TRUSTED_PROXY_COUNT"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace     string `env:"PROM_NAMESPACE"`
	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR"`

	LogLevel string `env:"LOG_LEVEL"`

	AdminToken           string `env:"ADMIN_TOKEN"`
	AdminDefaultLimit    int    `env:"ADMIN_DEFAULT_LIMIT"`
	AdminExposeUserAgent string `env:"ADMIN_EXPOSE_USER_AGENT"`

	RelayBaseUrl          string        `env:"RELAY_BASE_URL"`
	RelayRecipient        string        `env:"RELAY_RECIPIENT"`
	RelayTimeout          time.Duration `env:"RELAY_TIMEOUT"`
	RelayBreakerThreshold int           `env:"RELAY_BREAKER_THRESHOLD"`
	RelayBreakerCooldown  time.Duration `env:"RELAY_BREAKER_COOLDOWN"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT"`

	IntakeRateLimit      int64         `env:"INTAKE_RATE_LIMIT"`
	IntakeRateWindow     time.Duration `env:"INTAKE_RATE_WINDOW"`
	IntakeIdempotencyTTL time.Duration `env:"INTAKE_IDEMPOTENCY_TTL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrap(err, "failed to load configuration file "+path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	c.Defaults()
	config = c
	return nil
}

// Set replaces the loaded configuration. Used by tests and tools that build
// a Config by hand.
func Set(c *Config) {
	c.Defaults()
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Defaults fills zero values with the service defaults.
func (c *Config) Defaults() {
	if c.AppEnv == "" {
		c.AppEnv = "dev"
	}
	if c.AppName == "" {
		c.AppName = "intake_gateway"
	}
	if c.HttpListenAddr == "" {
		c.HttpListenAddr = ":8080"
	}
	if c.HttpRequestTimeout <= 0 {
		c.HttpRequestTimeout = 15 * time.Second
	}
	if c.HttpMaxRequestBodySize <= 0 {
		c.HttpMaxRequestBodySize = 64 * 1024
	}
	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = ":9100"
	}
	if c.PromNamespace == "" {
		c.PromNamespace = c.AppName
	}
	if c.AdminDefaultLimit <= 0 {
		c.AdminDefaultLimit = 25
	}
	if c.AdminExposeUserAgent == "" {
		c.AdminExposeUserAgent = "true"
	}
	if c.RelayBaseUrl == "" {
		c.RelayBaseUrl = "https://formsubmit.co"
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = 8 * time.Second
	}
	if c.RelayBreakerThreshold <= 0 {
		c.RelayBreakerThreshold = 5
	}
	if c.RelayBreakerCooldown <= 0 {
		c.RelayBreakerCooldown = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.IntakeRateWindow <= 0 {
		c.IntakeRateWindow = time.Minute
	}
	if c.IntakeIdempotencyTTL <= 0 {
		c.IntakeIdempotencyTTL = 24 * time.Hour
	}
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func (c *Config) ExposeUserAgent() bool {
	switch strings.ToLower(strings.TrimSpace(c.AdminExposeUserAgent)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

// RelayEnabled reports whether an email relay recipient is configured.
func (c *Config) RelayEnabled() bool {
	return strings.TrimSpace(c.RelayRecipient) != ""
}

// EnvPath returns the value of a --env=path argument, or "" when absent or
// unreadable.
func EnvPath(args []string) string {
	for _, v := range args {
		if strings.HasPrefix(v, "--env=") {
			p := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(p); err != nil {
				logger.Error("failed to open the passed env file", "path", p, "error", err)
				return ""
			}
			return p
		}
	}
	return ""
}

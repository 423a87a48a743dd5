package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for staff API key hashing (ORDERS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	NATS         NATSConfig
	Stripe       StripeConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// NATSConfig controls the event broker connection and stream retention.
type NATSConfig struct {
	URL               string        `default:"nats://127.0.0.1:4222" usage:"NATS server URL"`
	OrderStreamMaxAge time.Duration `default:"168h" usage:"Retention of the order event stream" flag:"order-stream-max-age"`
}

// StripeConfig controls the card payment gateway.
type StripeConfig struct {
	SecretKey  string `usage:"Stripe secret key (ORDERS_STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	SuccessURL string `default:"http://localhost:3000/payment" usage:"Checkout success redirect URL" flag:"stripe-success-url"`
	CancelURL  string `default:"http://localhost:3000/cart" usage:"Checkout cancel redirect URL" flag:"stripe-cancel-url"`
	Currency   string `default:"inr" usage:"Checkout currency code"`
}

// IdempotencyConfig controls how long idempotency records deduplicate order
// submissions.
type IdempotencyConfig struct {
	Retention    time.Duration `default:"30s" usage:"Window in which a repeated Idempotency-Key replays the stored order"`
	ReapInterval time.Duration `default:"1m" usage:"How often expired idempotency records are deleted" flag:"reap-interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's
// ORDERS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is loaded from ESHOP_* environment variables, flags and YAML files.
// A .env file in the working directory is applied to the environment first.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Env          string `default:"production" usage:"Runtime environment: development or production"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ESHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	PublicURL    string `default:"" usage:"Storefront origin used for checkout redirects" flag:"public-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to relative image paths" flag:"image-base-url"`
	JWT          JWTConfig
	Stripe       StripeConfig
	Kafka        KafkaConfig
	SMTP         SMTPConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

type JWTConfig struct {
	Secret string        `usage:"HMAC secret for identity tokens" flag:"jwt-secret"`
	TTL    time.Duration `default:"2160h" usage:"Identity token lifetime" flag:"jwt-ttl"`
}

type StripeConfig struct {
	SecretKey     string `usage:"Stripe secret API key" flag:"stripe-secret-key"`
	WebhookSecret string `usage:"Stripe webhook signing secret" flag:"stripe-webhook-secret"`
	Currency      string `default:"usd" usage:"ISO 4217 checkout currency" flag:"stripe-currency"`
}

// KafkaConfig enables order events when Brokers is set.
type KafkaConfig struct {
	Brokers  []string      `usage:"Kafka seed brokers" flag:"kafka-brokers"`
	Topic    string        `default:"orders" usage:"Topic of order events" flag:"kafka-topic"`
	Username string        `usage:"SASL/PLAIN user" flag:"kafka-username"`
	Password string        `usage:"SASL/PLAIN password" flag:"kafka-password"`
	Timeout  time.Duration `default:"5s" usage:"Publish timeout" flag:"kafka-timeout"`
}

// SMTPConfig enables mail delivery when Host and From are set. Otherwise
// messages are only logged.
type SMTPConfig struct {
	Host     string `usage:"SMTP relay host" flag:"smtp-host"`
	Port     int    `default:"587" usage:"SMTP relay port" flag:"smtp-port"`
	Username string `usage:"SMTP user" flag:"smtp-username"`
	Password string `usage:"SMTP password" flag:"smtp-password"`
	From     string `usage:"Sender address, e.g. E-shop <no-reply@example.com>" flag:"smtp-from"`
}

type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"15m" usage:"Rate limit window duration"`
}

type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Development reports whether internal error details may be rendered.
func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

// LoadConfig reads and validates the configuration.
func LoadConfig() (*Config, error) {
	return loadConfig(false)
}

func loadConfig(skipFlags bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ESHOP",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/eshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set ESHOP_DATABASE_URL or DATABASE_URL")
	case c.Env != EnvDevelopment && c.Env != EnvProduction:
		return errors.Errorf("unknown environment %q", c.Env)
	case c.JWT.Secret == "":
		return errors.New("JWT secret is required: set ESHOP_JWT_SECRET")
	case c.JWT.TTL <= 0:
		return errors.New("JWT TTL must be positive")
	}
	return nil
}

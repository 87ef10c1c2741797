package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL      string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	AssistantBaseURL string        `mapstructure:"ASSISTANT_BASE_URL"`
	AssistantAPIKey  string        `mapstructure:"ASSISTANT_API_KEY"`
	AssistantModel   string        `mapstructure:"ASSISTANT_MODEL"`
	AssistantTimeout time.Duration `mapstructure:"ASSISTANT_TIMEOUT"`
	AMQPURL          string        `mapstructure:"AMQP_URL"`
	AMQPExchange     string        `mapstructure:"AMQP_EXCHANGE"`
	S3Bucket         string        `mapstructure:"S3_BUCKET"`
	S3Region         string        `mapstructure:"S3_REGION"`
	S3Endpoint       string        `mapstructure:"S3_ENDPOINT"`
	UploadURLTTL     time.Duration `mapstructure:"UPLOAD_URL_TTL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("ASSISTANT_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("ASSISTANT_MODEL", "gpt-4o")
	v.SetDefault("ASSISTANT_TIMEOUT", 30*time.Second)
	v.SetDefault("AMQP_EXCHANGE", "pulse.events")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("UPLOAD_URL_TTL", 15*time.Minute)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("ASSISTANT_BASE_URL")
	v.BindEnv("ASSISTANT_API_KEY")
	v.BindEnv("ASSISTANT_MODEL")
	v.BindEnv("ASSISTANT_TIMEOUT")
	v.BindEnv("AMQP_URL")
	v.BindEnv("AMQP_EXCHANGE")
	v.BindEnv("S3_BUCKET")
	v.BindEnv("S3_REGION")
	v.BindEnv("S3_ENDPOINT")
	v.BindEnv("UPLOAD_URL_TTL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production the
// external identity provider and the assistant upstream must both be
// configured; silently starting without them would disable authentication or
// the triage pipeline.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AuthIssuer == "" {
			return fmt.Errorf(
				"AUTH_ISSUER must be set in production. " +
					"Refusing to start without authentication configuration")
		}
		if c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL must be set in production")
		}
		if c.AssistantAPIKey == "" {
			return fmt.Errorf("ASSISTANT_API_KEY is required in production")
		}
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required in production")
		}
	}
	if c.AssistantTimeout <= 0 {
		return fmt.Errorf("ASSISTANT_TIMEOUT must be positive, got %s", c.AssistantTimeout)
	}
	return nil
}

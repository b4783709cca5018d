// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// BaseURL is the public base URL used when composing verification and reset links.
	BaseURL string `mapstructure:"BASE_URL"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port for the ephemeral token/code store.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis auth password; empty when Redis runs without auth.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// JWTSecret is the symmetric HS256 signing key for access tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// RefreshTTL is the refresh token and session lifetime (e.g. "720h").
	RefreshTTL string `mapstructure:"REFRESH_TTL"`
	// RefreshHMACSecret keys the HMAC-SHA256 hash under which refresh tokens are stored.
	RefreshHMACSecret string `mapstructure:"REFRESH_HMAC_SECRET"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// VerifyCodeTTL is the email verification code lifetime (e.g. "15m").
	VerifyCodeTTL string `mapstructure:"VERIFY_CODE_TTL"`
	// ResetCodeTTL is the password reset code lifetime (e.g. "10m").
	ResetCodeTTL string `mapstructure:"RESET_CODE_TTL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// SMTP settings for outbound mail. When SMTPHost is empty, mail is logged instead of sent.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "auth")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h") // 30d
	v.SetDefault("REFRESH_HMAC_SECRET", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("VERIFY_CODE_TTL", "15m")
	v.SetDefault("RESET_CODE_TTL", "10m")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 1025)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("config: JWT_SECRET must be at least 32 bytes")
	}

	if cfg.RefreshHMACSecret == "" {
		return nil, errors.New("config: REFRESH_HMAC_SECRET must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshHorizon parses RefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshHorizon() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// VerifyTTL parses VerifyCodeTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) VerifyTTL() time.Duration {
	d, err := time.ParseDuration(c.VerifyCodeTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// ResetTTL parses ResetCodeTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	d, err := time.ParseDuration(c.ResetCodeTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

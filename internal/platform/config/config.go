// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production overrides via
// VERIKEY_* variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Env  string
	Addr string

	// DatabaseURL empty means in-memory stores (dev and unit-test mode).
	DatabaseURL string

	// ReviewerEmails lists the accounts allowed to review verification
	// submissions. Empty means the review endpoint rejects everyone.
	ReviewerEmails []string

	JWT   JWTConfig
	Redis RedisConfig
	Blob  BlobConfig
	Email EmailConfig
}

// JWTConfig controls access and refresh token issuance.
type JWTConfig struct {
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RedisConfig controls the optional Redis connection used by the token
// revocation list. An empty URL disables Redis; revocations then live in
// the primary store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BlobConfig controls the S3-compatible object store holding profile and
// verification images. An empty bucket disables uploads (in-memory blob
// store is used instead).
type BlobConfig struct {
	Bucket     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
}

// EmailConfig controls outbound notification email. An empty From address
// disables sending.
type EmailConfig struct {
	From       string
	Region     string
	AppBaseURL string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Env:            getEnv("VERIKEY_ENV", "dev"),
		Addr:           getEnv("VERIKEY_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("VERIKEY_DATABASE_URL"),
		ReviewerEmails: splitList(os.Getenv("VERIKEY_REVIEWER_EMAILS")),
		JWT: JWTConfig{
			// Default is for development only; Validate refuses it outside dev.
			SigningKey: getEnv("VERIKEY_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			AccessTTL:  getDuration("VERIKEY_ACCESS_TOKEN_TTL", time.Hour),
			RefreshTTL: getDuration("VERIKEY_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("VERIKEY_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Blob: BlobConfig{
			Bucket:     os.Getenv("VERIKEY_S3_BUCKET"),
			Region:     getEnv("VERIKEY_S3_REGION", "us-east-1"),
			Endpoint:   os.Getenv("VERIKEY_S3_ENDPOINT"),
			AccessKey:  os.Getenv("VERIKEY_S3_ACCESS_KEY"),
			SecretKey:  os.Getenv("VERIKEY_S3_SECRET_KEY"),
			PresignTTL: getDuration("VERIKEY_S3_PRESIGN_TTL", time.Hour),
		},
		Email: EmailConfig{
			From:       os.Getenv("VERIKEY_EMAIL_FROM"),
			Region:     getEnv("VERIKEY_SES_REGION", "us-east-1"),
			AppBaseURL: getEnv("VERIKEY_APP_BASE_URL", "http://localhost:8080"),
		},
	}
}

// Validate rejects configurations that must never reach production.
func (c Config) Validate() error {
	if c.Env != "dev" && c.JWT.SigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("VERIKEY_JWT_SIGNING_KEY must be set outside dev")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

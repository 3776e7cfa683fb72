// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "BI"

const devSecret = "dev-secret-change-in-production"

// Config holds the server configuration.
type Config struct {
	MetaDBPath        string `envconfig:"META_DB_PATH" default:"bi_meta.sqlite"`
	ExamplesDBPath    string `envconfig:"EXAMPLES_DB_PATH" default:"bi_examples.sqlite"`
	ListenAddr        string `envconfig:"LISTEN_ADDR" default:":8088"`
	TLSCertFile       string `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile        string `envconfig:"TLS_KEY_FILE"`
	AllowInsecureHTTP bool   `envconfig:"ALLOW_INSECURE_HTTP"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	Env               string `envconfig:"ENV" default:"development"`

	// Rate limiting
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"200"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Auth AuthConfig `envconfig:"AUTH"`

	// SeedAdminPassword is the password given to the seeded admin user. Empty
	// disables seeding of the demo users.
	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD"`

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `ignored:"true"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret  string        `envconfig:"JWT_SECRET"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	CookieName string        `envconfig:"COOKIE_NAME" default:"session"`
	// BcryptCost is the work factor for stored password hashes.
	BcryptCost int `envconfig:"BCRYPT_COST" default:"10"`
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from BI_* environment variables.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.CORSAllowedOrigins = compactNonEmpty(cfg.CORSAllowedOrigins)

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both BI_TLS_CERT_FILE and BI_TLS_KEY_FILE must be set together")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = devSecret
		cfg.Warnings = append(cfg.Warnings, "BI_AUTH_JWT_SECRET not set, using insecure default")
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.Auth.JWTSecret == devSecret {
			return nil, fmt.Errorf("BI_AUTH_JWT_SECRET must be set in production (BI_ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (BI_ENV=production)")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("BI_TLS_CERT_FILE/BI_TLS_KEY_FILE must be set in production unless BI_ALLOW_INSECURE_HTTP=true")
		}
		if cfg.SeedAdminPassword == "general" {
			cfg.Warnings = append(cfg.Warnings, "seeded admin uses the demo password")
		}
	}
	return &cfg, nil
}

// Usage prints the recognised environment variables.
func Usage() error {
	return envconfig.Usage(Prefix, &Config{})
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

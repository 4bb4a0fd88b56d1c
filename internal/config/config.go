// Package config loads service configuration once at startup.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML file named by SPLITWISER_CONFIG, and environment variables. Keys in the
// file use the same names as the environment variables, lowercased
// (e.g. webhook_secret).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileEnv names the environment variable pointing at an optional config file.
const FileEnv = "SPLITWISER_CONFIG"

// Config is the complete service configuration.
type Config struct {
	Port int

	// Storage
	StoreDriver string // "sqlite" or "postgres"
	DBPath      string
	DatabaseURL string

	// Webhook
	WebhookPath            string
	WebhookSecret          string
	WebhookStrictSignature bool
	PublicBaseURL          string

	// Reconciliation
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration

	// Processor
	ProcessorName       string
	ProcessorAPIBase    string
	ProcessorAppID      string
	ProcessorSecret     string
	ProcessorAPIVersion string
	ProcessorTimeout    time.Duration

	// RPC auth
	JWTSecret string
	JWTTTL    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	StaticPath string
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("store_driver", "sqlite")
	v.SetDefault("db_path", "./data/splits.db")
	v.SetDefault("database_url", "")
	v.SetDefault("webhook_path", "/cashfree-webhook")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("webhook_strict_signature", true)
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("reconcile_max_attempts", 5)
	v.SetDefault("reconcile_backoff", 20*time.Millisecond)
	v.SetDefault("reconcile_max_backoff", 500*time.Millisecond)
	v.SetDefault("processor_name", "Cashfree")
	v.SetDefault("cashfree_api_base", "https://sandbox.cashfree.com/pg")
	v.SetDefault("cashfree_app_id", "")
	v.SetDefault("cashfree_secret", "")
	v.SetDefault("cashfree_api_version", "2023-08-01")
	v.SetDefault("processor_timeout", 10*time.Second)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", 24*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("static_path", "")
}

// Load reads the configuration from defaults, the optional file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:                   v.GetInt("port"),
		StoreDriver:            strings.ToLower(v.GetString("store_driver")),
		DBPath:                 v.GetString("db_path"),
		DatabaseURL:            v.GetString("database_url"),
		WebhookPath:            v.GetString("webhook_path"),
		WebhookSecret:          v.GetString("webhook_secret"),
		WebhookStrictSignature: v.GetBool("webhook_strict_signature"),
		PublicBaseURL:          strings.TrimRight(v.GetString("public_base_url"), "/"),
		MaxAttempts:            v.GetInt("reconcile_max_attempts"),
		Backoff:                v.GetDuration("reconcile_backoff"),
		MaxBackoff:             v.GetDuration("reconcile_max_backoff"),
		ProcessorName:          v.GetString("processor_name"),
		ProcessorAPIBase:       strings.TrimRight(v.GetString("cashfree_api_base"), "/"),
		ProcessorAppID:         v.GetString("cashfree_app_id"),
		ProcessorSecret:        v.GetString("cashfree_secret"),
		ProcessorAPIVersion:    v.GetString("cashfree_api_version"),
		ProcessorTimeout:       v.GetDuration("processor_timeout"),
		JWTSecret:              v.GetString("jwt_secret"),
		JWTTTL:                 v.GetDuration("jwt_ttl"),
		LogLevel:               v.GetString("log_level"),
		LogFormat:              strings.ToLower(v.GetString("log_format")),
		StaticPath:             v.GetString("static_path"),
	}
	return cfg, nil
}

// NotifyURL is the webhook address handed to the processor with each order.
func (c *Config) NotifyURL() string {
	return c.PublicBaseURL + c.WebhookPath
}

// Validate checks the configuration for settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.WebhookStrictSignature && c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required unless WEBHOOK_STRICT_SIGNATURE=false"))
	}
	switch c.StoreDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("RECONCILE_MAX_ATTEMPTS must be at least 1"))
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("WEBHOOK_PATH %q must start with /", c.WebhookPath))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

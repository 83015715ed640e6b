package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	httpdomain "homesvc.app/client/internal/core/domain/http"
)

// Config holds every client setting. Values come from HS_* environment
// variables, optionally seeded from a .env file.
type Config struct {
	APIURL    string `env:"HS_API_URL" envDefault:"http://localhost:8080"`
	UserAgent string `env:"HS_USER_AGENT" envDefault:"hs-cli"`

	LoginPath          string `env:"HS_LOGIN_PATH" envDefault:"/api/auth/login"`
	RefreshPath        string `env:"HS_REFRESH_PATH" envDefault:"/api/auth/refresh-token"`
	ExternalLoginPath  string `env:"HS_EXTERNAL_LOGIN_PATH" envDefault:"/api/auth/external-login"`
	ForgotPasswordPath string `env:"HS_FORGOT_PASSWORD_PATH" envDefault:"/api/auth/forgot-password"`
	ResetPasswordPath  string `env:"HS_RESET_PASSWORD_PATH" envDefault:"/api/auth/reset-password"`
	ResendOTPPath      string `env:"HS_RESEND_OTP_PATH" envDefault:"/api/auth/resend-otp"`

	RequestTimeout time.Duration `env:"HS_REQUEST_TIMEOUT" envDefault:"30s"`
	// RefreshTimeout bounds the shared refresh call; 0 waits indefinitely
	RefreshTimeout time.Duration `env:"HS_REFRESH_TIMEOUT" envDefault:"0s"`

	Storage          string `env:"HS_STORAGE" envDefault:"file"`
	StorageDir       string `env:"HS_STORAGE_DIR" envDefault:"~/.config/homesvc"`
	StorageNamespace string `env:"HS_STORAGE_NAMESPACE" envDefault:"homesvc"`
	RedisURL         string `env:"HS_REDIS_URL"`

	// RateLimit is requests per second; 0 disables limiting
	RateLimit float64 `env:"HS_RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"HS_RATE_BURST" envDefault:"1"`

	LogLevel  string `env:"HS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HS_LOG_FORMAT" envDefault:"console"`
}

// Default returns the configuration with every default applied and no environment read
func Default() *Config {
	cfg := &Config{}
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Load reads envFiles (missing files are skipped) and then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return LoadFrom(nil)
}

// LoadFrom parses environment into a Config. A nil map reads the process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// AuthPaths returns the configured account endpoint paths
func (c *Config) AuthPaths() httpdomain.AuthPaths {
	return httpdomain.AuthPaths{
		Login:          c.LoginPath,
		Refresh:        c.RefreshPath,
		ExternalLogin:  c.ExternalLoginPath,
		ForgotPassword: c.ForgotPasswordPath,
		ResetPassword:  c.ResetPasswordPath,
		ResendOTP:      c.ResendOTPPath,
	}
}

// Endpoint returns the backend target
func (c *Config) Endpoint() httpdomain.BackendEndpoint {
	return httpdomain.BackendEndpoint{BaseURL: c.APIURL, UserAgent: c.UserAgent}
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	v := NewConfigValidator()
	var errs []error

	if err := v.ValidateAPIEndpoint(c.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("HS_API_URL: %w", err))
	}
	paths := map[string]string{
		"HS_LOGIN_PATH":           c.LoginPath,
		"HS_REFRESH_PATH":         c.RefreshPath,
		"HS_EXTERNAL_LOGIN_PATH":  c.ExternalLoginPath,
		"HS_FORGOT_PASSWORD_PATH": c.ForgotPasswordPath,
		"HS_RESET_PASSWORD_PATH":  c.ResetPasswordPath,
		"HS_RESEND_OTP_PATH":      c.ResendOTPPath,
	}
	for _, key := range sortedKeys(paths) {
		if err := v.ValidatePath(paths[key]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if err := v.ValidateTimeout(c.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("HS_REQUEST_TIMEOUT: %w", err))
	}
	if c.RefreshTimeout < 0 {
		errs = append(errs, fmt.Errorf("HS_REFRESH_TIMEOUT: must not be negative"))
	}
	if err := v.ValidateStorage(c.Storage, c.RedisURL); err != nil {
		errs = append(errs, fmt.Errorf("HS_STORAGE: %w", err))
	}
	if c.Storage == "file" || c.Storage == "sqlite" {
		if err := v.ValidateStorageDir(c.StorageDir); err != nil {
			errs = append(errs, fmt.Errorf("HS_STORAGE_DIR: %w", err))
		}
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("HS_RATE_LIMIT: must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("HS_RATE_BURST: must be at least 1 when rate limiting"))
	}
	if err := v.ValidateLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("HS_LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("HS_LOG_FORMAT: unsupported format %q (must be console or json)", c.LogFormat))
	}

	return errors.Join(errs...)
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ConfigValidator validates configuration values
type ConfigValidator struct{}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateAPIEndpoint validates an API endpoint URL
func (v *ConfigValidator) ValidateAPIEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("API endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must include host")
	}

	return nil
}

// ValidatePath validates a backend endpoint path
func (v *ConfigValidator) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with /: %s", path)
	}
	if strings.ContainsAny(path, "?# ") {
		return fmt.Errorf("path cannot contain a query, fragment or spaces: %s", path)
	}
	return nil
}

// ValidateLogLevel validates log level value
func (v *ConfigValidator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

	normalizedLevel := strings.ToLower(strings.TrimSpace(level))

	for _, valid := range validLevels {
		if normalizedLevel == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid log level: %s (valid levels: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateStorage validates the storage backend selection
func (v *ConfigValidator) ValidateStorage(backend, redisURL string) error {
	switch backend {
	case "file", "sqlite", "memory":
		return nil
	case "redis":
		if redisURL == "" {
			return fmt.Errorf("HS_REDIS_URL is required for the redis backend")
		}
		u, err := url.Parse(redisURL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("unsupported redis URL scheme: %s", u.Scheme)
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage backend: %q (valid backends: file, sqlite, redis, memory)", backend)
	}
}

// ValidateStorageDir checks that the storage directory exists or can be created
func (v *ConfigValidator) ValidateStorageDir(path string) error {
	if path == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}

	expandedPath := expandPath(path)

	info, err := os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Created on first write; walk up to the first existing parent.
			dir := filepath.Dir(expandedPath)
			for dir != filepath.Dir(dir) {
				if _, err := os.Stat(dir); err == nil {
					return nil
				}
				dir = filepath.Dir(dir)
			}
			return nil
		}
		return fmt.Errorf("failed to check storage directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("storage path exists but is not a directory: %s", path)
	}

	return nil
}

// ValidateTimeout validates a request timeout
func (v *ConfigValidator) ValidateTimeout(timeout time.Duration) error {
	minTimeout := 1 * time.Second
	maxTimeout := 5 * time.Minute

	if timeout < minTimeout {
		return fmt.Errorf("timeout too short (minimum 1s)")
	}

	if timeout > maxTimeout {
		return fmt.Errorf("timeout too long (maximum 5m)")
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}

	return os.ExpandEnv(path)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

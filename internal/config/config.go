// Package config loads and validates configuration from environment
// variables, optionally overridden by a JSON config file that uses the same
// variable names.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Export settings.
	Endpoint    string // OTLP/HTTP JSON endpoint, including the /v1/traces path.
	ServiceName string
	Headers     map[string]string // Sent opaquely on every upload, typically auth.
	Timeout     time.Duration     // Upload request timeout.

	// Storage settings.
	StorageRoot     string        // Root for span and context files.
	RetentionMaxAge time.Duration // Files older than this are swept.
	LockTimeout     time.Duration // Bound on any file-lock acquisition.

	// Behavior settings.
	RedactInputs    bool // Mask prompts, tool IO, and paths in span attributes.
	PreserveFlushed bool // Keep store files after a successful flush (debugging).

	// Logging settings.
	LogLevel string
	LogFile  string // Empty = default under the user's home directory.
}

// Load reads configuration from the environment, or from a JSON config file
// when path is non-empty. A missing config file falls back to the
// environment, matching how hosts probe for optional hook config.
func Load(path string) (Config, error) {
	if path != "" {
		cfg, err := fromFile(path)
		if err == nil {
			return cfg, cfg.Validate()
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	cfg := fromEnv()
	return cfg, cfg.Validate()
}

func defaults() Config {
	return Config{
		Endpoint:        "http://localhost:4318/v1/traces",
		ServiceName:     "spanlink",
		Timeout:         30 * time.Second,
		StorageRoot:     filepath.Join(os.TempDir(), "spanlink"),
		RetentionMaxAge: 24 * time.Hour,
		LockTimeout:     10 * time.Second,
		LogLevel:        "info",
	}
}

func fromEnv() Config {
	d := defaults()
	return Config{
		Endpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", d.Endpoint),
		ServiceName:     envStr("OTEL_SERVICE_NAME", d.ServiceName),
		Headers:         parseHeaders(envStr("OTEL_EXPORTER_OTLP_HEADERS", "")),
		Timeout:         time.Duration(envInt("OTEL_EXPORTER_OTLP_TIMEOUT", int(d.Timeout/time.Second))) * time.Second,
		StorageRoot:     envStr("SPANLINK_STORAGE_ROOT", d.StorageRoot),
		RetentionMaxAge: envDuration("SPANLINK_RETENTION_MAX_AGE", d.RetentionMaxAge),
		LockTimeout:     envDuration("SPANLINK_LOCK_TIMEOUT", d.LockTimeout),
		RedactInputs:    envBool("SPANLINK_REDACT", false),
		PreserveFlushed: envBool("SPANLINK_PRESERVE_FLUSHED", false),
		LogLevel:        envStr("SPANLINK_LOG_LEVEL", d.LogLevel),
		LogFile:         envStr("SPANLINK_LOG_FILE", ""),
	}
}

// fileConfig mirrors the environment variable names so one set of docs
// covers both sources.
type fileConfig struct {
	Endpoint        *string `json:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName     *string `json:"OTEL_SERVICE_NAME"`
	Headers         *string `json:"OTEL_EXPORTER_OTLP_HEADERS"`
	TimeoutSeconds  *int    `json:"OTEL_EXPORTER_OTLP_TIMEOUT"`
	StorageRoot     *string `json:"SPANLINK_STORAGE_ROOT"`
	RetentionMaxAge *string `json:"SPANLINK_RETENTION_MAX_AGE"`
	LockTimeout     *string `json:"SPANLINK_LOCK_TIMEOUT"`
	Redact          *bool   `json:"SPANLINK_REDACT"`
	PreserveFlushed *bool   `json:"SPANLINK_PRESERVE_FLUSHED"`
	LogLevel        *string `json:"SPANLINK_LOG_LEVEL"`
	LogFile         *string `json:"SPANLINK_LOG_FILE"`
}

func fromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := defaults()
	setStr(&cfg.Endpoint, fc.Endpoint)
	setStr(&cfg.ServiceName, fc.ServiceName)
	if fc.Headers != nil {
		cfg.Headers = parseHeaders(*fc.Headers)
	}
	if fc.TimeoutSeconds != nil {
		cfg.Timeout = time.Duration(*fc.TimeoutSeconds) * time.Second
	}
	setStr(&cfg.StorageRoot, fc.StorageRoot)
	if err := setDuration(&cfg.RetentionMaxAge, fc.RetentionMaxAge); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := setDuration(&cfg.LockTimeout, fc.LockTimeout); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if fc.Redact != nil {
		cfg.RedactInputs = *fc.Redact
	}
	if fc.PreserveFlushed != nil {
		cfg.PreserveFlushed = *fc.PreserveFlushed
	}
	setStr(&cfg.LogLevel, fc.LogLevel)
	setStr(&cfg.LogFile, fc.LogFile)
	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("config: endpoint %q must start with http:// or https://", c.Endpoint)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("config: service name is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: upload timeout must be positive")
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("config: storage root is required")
	}
	if c.RetentionMaxAge <= 0 {
		return fmt.Errorf("config: retention max age must be positive")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("config: lock timeout must be positive")
	}
	return nil
}

// SpanDir is where generation record files live.
func (c Config) SpanDir() string { return filepath.Join(c.StorageRoot, "spans") }

// ContextDir is where generation and conversation context documents live.
func (c Config) ContextDir() string { return filepath.Join(c.StorageRoot, "context") }

// parseHeaders parses the OTEL header format: key1=value1,key2=value2.
func parseHeaders(s string) map[string]string {
	if s == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func setStr(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", *v, err)
	}
	*dst = d
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

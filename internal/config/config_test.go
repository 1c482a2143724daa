package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Shield the test from ambient collector configuration.
	for _, key := range []string{
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_SERVICE_NAME",
		"OTEL_EXPORTER_OTLP_HEADERS",
		"SPANLINK_RETENTION_MAX_AGE",
		"SPANLINK_LOCK_TIMEOUT",
		"SPANLINK_REDACT",
		"SPANLINK_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4318/v1/traces", cfg.Endpoint)
	assert.Equal(t, "spanlink", cfg.ServiceName)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.RetentionMaxAge)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.False(t, cfg.RedactInputs)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://collector.example.com/v1/traces")
	t.Setenv("OTEL_SERVICE_NAME", "my-agent")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=secret, x-team = infra")
	t.Setenv("OTEL_EXPORTER_OTLP_TIMEOUT", "5")
	t.Setenv("SPANLINK_RETENTION_MAX_AGE", "48h")
	t.Setenv("SPANLINK_LOCK_TIMEOUT", "500ms")
	t.Setenv("SPANLINK_REDACT", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://collector.example.com/v1/traces", cfg.Endpoint)
	assert.Equal(t, "my-agent", cfg.ServiceName)
	assert.Equal(t, map[string]string{"x-api-key": "secret", "x-team": "infra"}, cfg.Headers)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 48*time.Hour, cfg.RetentionMaxAge)
	assert.Equal(t, 500*time.Millisecond, cfg.LockTimeout)
	assert.True(t, cfg.RedactInputs)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "https://file.example.com/v1/traces",
		"OTEL_SERVICE_NAME": "from-file",
		"OTEL_EXPORTER_OTLP_TIMEOUT": 10,
		"SPANLINK_LOCK_TIMEOUT": "2s",
		"SPANLINK_PRESERVE_FLUSHED": true
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/v1/traces", cfg.Endpoint)
	assert.Equal(t, "from-file", cfg.ServiceName)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.True(t, cfg.PreserveFlushed)

	// Unset keys keep their defaults.
	assert.Equal(t, 24*time.Hour, cfg.RetentionMaxAge)
}

func TestLoad_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "env-wins")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "env-wins", cfg.ServiceName)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidDurationInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"SPANLINK_LOCK_TIMEOUT": "soon"}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := defaults()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad endpoint scheme", func(c *Config) { c.Endpoint = "ftp://host" }},
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }},
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"empty storage root", func(c *Config) { c.StorageRoot = "" }},
		{"zero retention", func(c *Config) { c.RetentionMaxAge = 0 }},
		{"negative lock timeout", func(c *Config) { c.LockTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("no-equals-sign"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseHeaders("a=1,b=2"))
	assert.Equal(t, map[string]string{"a": "1"}, parseHeaders(" a = 1 "))
}

func TestDirs(t *testing.T) {
	cfg := defaults()
	cfg.StorageRoot = "/var/lib/spanlink"
	assert.Equal(t, filepath.Join("/var/lib/spanlink", "spans"), cfg.SpanDir())
	assert.Equal(t, filepath.Join("/var/lib/spanlink", "context"), cfg.ContextDir())
}

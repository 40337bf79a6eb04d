package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
[aws]
regions = ["us-east-1", "eu-west-1"]
profile = "production"
endpoint = "http://localhost:4566"

[output]
dir = "/var/lib/inventory"

[scanner]
concurrency = 4
reservation_states = ["active"]
timeout = "2m"
interval = "1h"

[otel]
endpoint = "localhost:4317"
insecure = true
service_name = "inventory"

[otel.traces]
enabled = true
sample_rate = 1.0

[otel.metrics]
enabled = true

[metrics]
textfile = "/var/lib/node_exporter/inventory.prom"

[log]
level = "debug"
`
	path := writeTempConfig(t, "config.toml", content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.AWS.Regions)
	assert.Equal(t, "production", cfg.AWS.Profile)
	assert.Equal(t, "http://localhost:4566", cfg.AWS.Endpoint)
	assert.Equal(t, "/var/lib/inventory", cfg.Output.Dir)
	assert.Equal(t, 4, cfg.Scanner.Concurrency)
	assert.Equal(t, []string{"active"}, cfg.Scanner.ReservationStates)
	assert.Equal(t, 2*time.Minute, cfg.Scanner.Timeout)
	assert.Equal(t, time.Hour, cfg.Scanner.Interval)
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.True(t, cfg.OTEL.Insecure)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.Traces.SampleRate)
	assert.True(t, cfg.OTEL.Metrics.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/inventory.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	content := `
aws:
  regions: [us-west-2]
  access_key_id: AKIDEXAMPLE
  secret_access_key: secret
scanner:
  concurrency: 2
  timeout: 30s
output:
  dir: out
`
	path := writeTempConfig(t, "config.yaml", content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"us-west-2"}, cfg.AWS.Regions)
	assert.Equal(t, "AKIDEXAMPLE", cfg.AWS.AccessKeyID)
	assert.Equal(t, 2, cfg.Scanner.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Scanner.Timeout)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, "inventory", cfg.OTEL.ServiceName)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTempConfig(t, "config.toml", "")
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Empty(t, cfg.AWS.Regions)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, 1, cfg.Scanner.Concurrency)
	assert.Zero(t, cfg.Scanner.Timeout)
	assert.Zero(t, cfg.Scanner.Interval)
	assert.Equal(t, "inventory", cfg.OTEL.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	content := `
[aws
regions = "not an array"
`
	path := writeTempConfig(t, "config.toml", content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "config.yml", "aws: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := `
[scanner]
timeout = "not-a-duration"
`
	path := writeTempConfig(t, "config.toml", content)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse timeout")

	path = writeTempConfig(t, "interval.toml", "[scanner]\ninterval = \"hourly\"\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse interval")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Scanner.Concurrency = 0 }, "concurrency"},
		{"negative timeout", func(c *Config) { c.Scanner.Timeout = -time.Second }, "timeout"},
		{"negative interval", func(c *Config) { c.Scanner.Interval = -time.Minute }, "interval"},
		{"key without secret", func(c *Config) { c.AWS.AccessKeyID = "AKID" }, "set together"},
		{"secret without key", func(c *Config) { c.AWS.SecretAccessKey = "s" }, "set together"},
		{"both keys", func(c *Config) { c.AWS.AccessKeyID, c.AWS.SecretAccessKey = "AKID", "s" }, ""},
		{"sample rate too high", func(c *Config) { c.OTEL.Traces.SampleRate = 1.5 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

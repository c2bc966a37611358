package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConnectionString = "Endpoint=sb://acme.servicebus.windows.net/;SharedAccessKeyName=full;SharedAccessKey=c2VjcmV0"

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, "pushbricks", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)

	assert.Equal(t, 30*time.Second, cfg.HTTPClient.Timeout)
	assert.True(t, cfg.HTTPClient.Compression)
	assert.Equal(t, 64, cfg.HTTPClient.MaxConcurrency)
	assert.False(t, cfg.HTTPClient.LogPayloads)
	assert.Equal(t, 1024, cfg.HTTPClient.MaxPayloadLogBytes)
	assert.True(t, cfg.HTTPClient.Retry.Enabled)
	assert.Equal(t, []time.Duration{10 * time.Second, 5 * time.Minute, 20 * time.Minute}, cfg.HTTPClient.Retry.Intervals)

	assert.Equal(t, "2020-06", cfg.Hub.APIVersion)
	assert.Equal(t, time.Hour, cfg.Hub.TokenTTL)
	assert.False(t, cfg.Hub.IsConfigured())
}

func TestLoadFromBytesOverridesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
app:
  env: staging
log:
  level: debug
  pretty: true
httpclient:
  timeout: 5s
  compression: false
  maxconcurrency: 8
  retry:
    intervals: [1s, 2s]
hub:
  connectionstring: "` + testConnectionString + `"
  name: devices
  ratelimit: 2.5
  burst: 3
`))
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Env)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, 5*time.Second, cfg.HTTPClient.Timeout)
	assert.False(t, cfg.HTTPClient.Compression)
	assert.Equal(t, 8, cfg.HTTPClient.MaxConcurrency)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.HTTPClient.Retry.Intervals)

	assert.True(t, cfg.Hub.IsConfigured())
	assert.Equal(t, "devices", cfg.Hub.Name)
	assert.InDelta(t, 2.5, cfg.Hub.RateLimit, 0.0001)
	assert.Equal(t, 3, cfg.Hub.Burst)
}

func TestEnvironmentTakesPrecedence(t *testing.T) {
	t.Setenv("PUSHBRICKS_HTTPCLIENT_MAXCONCURRENCY", "4")
	t.Setenv("PUSHBRICKS_HTTPCLIENT_RETRY_ENABLED", "false")
	t.Setenv("PUSHBRICKS_HUB_NAME", "fromenv")

	cfg, err := LoadFromBytes([]byte("httpclient:\n  maxconcurrency: 16\nhub:\n  name: fromyaml\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.HTTPClient.MaxConcurrency)
	assert.False(t, cfg.HTTPClient.Retry.Enabled)
	assert.Equal(t, "fromenv", cfg.Hub.Name)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  env: production\nlog:\n  level: warn\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.production.yaml"), []byte("log:\n  level: error\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.App.Env)
	assert.Equal(t, "error", cfg.Log.Level)

	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("malformed file fails", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("log: [unclosed"), 0o600))
		_, err := LoadFile(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.yaml")
	})
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown environment", "app:\n  env: moon\n", "app.env"},
		{"unknown log level", "log:\n  level: loud\n", "log.level"},
		{"zero concurrency", "httpclient:\n  maxconcurrency: 0\n", "httpclient.maxconcurrency"},
		{"negative interval", "httpclient:\n  retry:\n    intervals: [1s, -1s]\n", "httpclient.retry.intervals[1]"},
		{"connection string without hub", "hub:\n  connectionstring: x\n", "hub.name"},
		{"rate limit without burst", "hub:\n  ratelimit: 1\n  burst: 0\n", "hub.burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("httpclient:\n  logpayloads: true\n  maxpayloadlogbytes: 64\n"))
	require.NoError(t, err)

	cc := cfg.HTTPClient.ClientConfig()
	assert.Equal(t, 30*time.Second, cc.Timeout)
	assert.True(t, cc.Compression)
	assert.Equal(t, 64, cc.MaxConcurrency)
	assert.True(t, cc.Retry)
	assert.True(t, cc.LogPayloads)
	assert.Equal(t, 64, cc.MaxPayloadLogBytes)
	assert.Len(t, cc.RetryIntervals, 3)

	cc.RetryIntervals[0] = time.Millisecond
	assert.Equal(t, 10*time.Second, cfg.HTTPClient.Retry.Intervals[0])
}

func TestGetters(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("observability:\n  enabled: true\n  service:\n    name: nhctl\ncustom:\n  count: 7\n  wait: 1500ms\n"))
	require.NoError(t, err)

	assert.Equal(t, "nhctl", cfg.GetString("observability.service.name"))
	assert.Equal(t, "fallback", cfg.GetString("missing.key", "fallback"))
	assert.Equal(t, 7, cfg.GetInt("custom.count"))
	assert.Equal(t, 3, cfg.GetInt("custom.absent", 3))
	assert.True(t, cfg.GetBool("observability.enabled"))
	assert.Equal(t, 1500*time.Millisecond, cfg.GetDuration("custom.wait"))
	assert.True(t, cfg.Exists("custom.count"))
	assert.NotEmpty(t, cfg.All())

	_, err = cfg.GetRequiredString("missing.key")
	assert.Error(t, err)
	name, err := cfg.GetRequiredString("observability.service.name")
	require.NoError(t, err)
	assert.Equal(t, "nhctl", name)

	var section struct {
		Count int `koanf:"count"`
	}
	require.NoError(t, cfg.Unmarshal("custom", &section))
	assert.Equal(t, 7, section.Count)

	var empty *Config
	assert.Error(t, empty.Unmarshal("", &section))
	assert.False(t, empty.Exists("app.name"))
}

func TestConfigErrors(t *testing.T) {
	err := NewMissingFieldError("hub.name")
	assert.Equal(t, "config: hub.name: required (set PUSHBRICKS_HUB_NAME or hub.name in config.yaml)", err.Error())
	assert.NoError(t, errors.Unwrap(err))

	invalid := NewInvalidFieldError("app.env", "invalid environment: moon", []string{EnvDevelopment, EnvProduction})
	assert.Equal(t, "config: app.env: invalid environment: moon (one of: development, production)", invalid.Error())
	assert.Equal(t, CategoryInvalid, invalid.Category)

	notConfigured := NewNotConfiguredError("hub", "hub.connectionstring")
	assert.Contains(t, notConfigured.Error(), "PUSHBRICKS_HUB_CONNECTIONSTRING")
	assert.True(t, IsNotConfigured(notConfigured))
	assert.True(t, IsNotConfigured(fmt.Errorf("installation: %w", notConfigured)))
	assert.True(t, IsNotConfigured(ErrNotConfigured))
	assert.False(t, IsNotConfigured(invalid))
	assert.False(t, IsNotConfigured(nil))
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "PUSHBRICKS_HTTPCLIENT_RETRY_ENABLED", EnvVar("httpclient.retry.enabled"))
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polypay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.stripe.com/v1", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "inline", cfg.Callbacks.Executor)
	assert.Equal(t, time.Minute, cfg.EphemeralKeys.RefreshMargin)
	assert.False(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, "127.0.0.1:12111", cfg.Mock.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://127.0.0.1:12111/v1
  publishable_key: pk_test_file
  timeout: 5s
callbacks:
  executor: serial
  queue_size: 8
circuit_breaker:
  enabled: true
  max_failures: 3
  reset_timeout: 10s
log:
  level: debug
  format: json
`)
	t.Setenv("POLYPAY_API_PUBLISHABLE_KEY", "pk_test_env")
	t.Setenv("POLYPAY_EPHEMERAL_KEYS_ENDPOINT", "http://127.0.0.1:12111/v1/ephemeral_keys")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:12111/v1", cfg.API.BaseURL)
	assert.Equal(t, "pk_test_env", cfg.API.PublishableKey)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "serial", cfg.Callbacks.Executor)
	assert.Equal(t, 8, cfg.Callbacks.QueueSize)
	assert.Equal(t, 3, cfg.CircuitBreaker.MaxFailures)
	assert.Equal(t, 10*time.Second, cfg.CircuitBreaker.ResetTimeout)
	assert.Equal(t, "http://127.0.0.1:12111/v1/ephemeral_keys", cfg.EphemeralKeys.Endpoint)

	var buf bytes.Buffer
	cfg.Log.NewLogger(&buf).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"secret key":       "api:\n  publishable_key: sk_test_123\n",
		"bad executor":     "callbacks:\n  executor: threads\n",
		"bad parameter":    "api:\n  publishable_key_parameter: polypay-key\n",
		"bad log level":    "log:\n  level: chatty\n",
		"breaker failures": "circuit_breaker:\n  enabled: true\n  max_failures: 0\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBundledConfigIsValid(t *testing.T) {
	cfg, err := Load("../../configs/polypay.yaml")
	require.NoError(t, err)
	assert.Equal(t, "cus_local", cfg.EphemeralKeys.CustomerID)
	assert.Equal(t, "configs/mock_seed.yaml", cfg.Mock.SeedFile)
}

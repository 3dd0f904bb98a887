package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
backend:
  base_url: https://data.example.com
  api_key: backend-key
auth:
  base_url: https://auth.example.com
  api_key: auth-key
payment:
  provider: lemon
  base_url: https://pay.example.com
  api_key: pay-key
  settings:
    store_id: store-1
    variant_standard: var-std
    variant_extended: var-ext
    embed: true
webhook:
  token: hook-secret
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://data.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "lemon", cfg.Payment.Provider)
	assert.Equal(t, "hook-secret", cfg.Webhook.Token)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Backend.TimeoutSec)
	assert.Equal(t, float64(5), cfg.Backend.RateLimitRPS)
	assert.Equal(t, ":8787", cfg.Webhook.Addr)
	assert.Equal(t, "cart.db", cfg.Cart.DBPath)
	assert.Equal(t, 0.8, cfg.Player.InitialVolume)
	assert.Equal(t, 300, cfg.Suggest.DebounceMs)
	assert.Equal(t, 8, cfg.Suggest.MaxResults)
}

func TestLoad_DecodesPaymentSettings(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	var settings struct {
		StoreID string `mapstructure:"store_id"`
		Embed   bool   `mapstructure:"embed"`
	}
	require.NoError(t, cfg.Payment.DecodeSettings(&settings))
	assert.Equal(t, "store-1", settings.StoreID)
	assert.True(t, settings.Embed)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing webhook token",
			content: `
backend:
  base_url: https://data.example.com
  api_key: backend-key
auth:
  base_url: https://auth.example.com
  api_key: auth-key
payment:
  provider: lemon
  base_url: https://pay.example.com
  api_key: pay-key
`,
		},
		{
			name: "invalid backend URL",
			content: `
backend:
  base_url: not-a-url
  api_key: backend-key
auth:
  base_url: https://auth.example.com
  api_key: auth-key
payment:
  provider: lemon
  base_url: https://pay.example.com
  api_key: pay-key
webhook:
  token: hook-secret
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BACKEND_API_KEY", "env-backend-key")
	t.Setenv("WEBHOOK_TOKEN", "env-hook-secret")

	path := writeConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-backend-key", cfg.Backend.APIKey)
	assert.Equal(t, "env-hook-secret", cfg.Webhook.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "backend: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sixfold.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "15m", cfg.Auth.TokenExpiry)
	assert.Equal(t, 1, cfg.Jobs.Workers)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, "2024-10", cfg.Shopify.APIVersion)
	assert.Equal(t, 50, cfg.Shopify.PageSize)
	assert.False(t, cfg.Embeddings.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sixfold.toml")
	content := `
[database]
path = "/tmp/test-sixfold.db"

[server]
port = 9100

[shopify]
shop_domain = "acme.myshopify.com"
page_size = 25

[jobs]
workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-sixfold.db", cfg.Database.Path)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "acme.myshopify.com", cfg.Shopify.ShopDomain)
	assert.Equal(t, 25, cfg.Shopify.PageSize)
	assert.Equal(t, 4, cfg.Jobs.Workers)

	// Unset keys fall back to defaults
	assert.Equal(t, "2024-10", cfg.Shopify.APIVersion)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/sixfold.toml")
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("SIXFOLD_SERVER_PORT", "9999")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
}

func TestGetDatabasePathOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("DB_PATH", "/tmp/override.db")
	path, err := GetDatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", path)
}

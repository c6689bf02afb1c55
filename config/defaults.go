package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "sixfold.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	// Auth defaults
	v.SetDefault("auth.token_expiry", "15m")
	v.SetDefault("auth.refresh_expiry", "720h") // 30 days
	v.SetDefault("auth.magic_link_expiry", "15m")
	v.SetDefault("auth.magic_link_base_url", "http://localhost:5173/auth/magic")
	v.SetDefault("auth.min_password_len", 10)

	// Jobs (async queue) defaults
	v.SetDefault("jobs.workers", 1)
	v.SetDefault("jobs.poll_seconds", 5)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.retain_days", 30)

	// Shopify defaults
	v.SetDefault("shopify.api_version", "2024-10")
	v.SetDefault("shopify.page_size", 50)

	// Email defaults
	v.SetDefault("email.from", "sixfold <auth@localhost>")

	// Embeddings defaults
	v.SetDefault("embeddings.enabled", false)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
}

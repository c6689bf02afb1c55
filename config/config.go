package config

// Config represents the core sixfold configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Shopify    ShopifyConfig    `mapstructure:"shopify"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Email      EmailConfig      `mapstructure:"email"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the sixfold HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"` // 0 = DefaultServerPort
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is used when server.port is not configured
const DefaultServerPort = 8600

// AuthConfig configures sessions, tokens, and magic links
type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`         // empty = generated at startup
	TokenExpiry      string `mapstructure:"token_expiry"`       // duration, default 15m
	RefreshExpiry    string `mapstructure:"refresh_expiry"`     // duration, default 720h
	MagicLinkExpiry  string `mapstructure:"magic_link_expiry"`  // duration, default 15m
	MagicLinkBaseURL string `mapstructure:"magic_link_base_url"`
	MinPasswordLen   int    `mapstructure:"min_password_len"`
}

// JobsConfig configures the async job queue
type JobsConfig struct {
	Workers      int `mapstructure:"workers"`       // concurrent workers (default: 1)
	PollSeconds  int `mapstructure:"poll_seconds"`  // dequeue poll interval (default: 5)
	MaxAttempts  int `mapstructure:"max_attempts"`  // attempts before a job is dead (default: 3)
	RetainDays   int `mapstructure:"retain_days"`   // completed/dead job retention (default: 30)
}

// ShopifyConfig configures the Shopify Admin API integration
type ShopifyConfig struct {
	ShopDomain    string `mapstructure:"shop_domain"`    // e.g. acme.myshopify.com
	AccessToken   string `mapstructure:"access_token"`   // Admin API access token
	WebhookSecret string `mapstructure:"webhook_secret"` // HMAC shared secret
	APIVersion    string `mapstructure:"api_version"`    // e.g. 2024-10
	PageSize      int    `mapstructure:"page_size"`      // resources per sync page (default: 50)
}

// StripeConfig configures the Stripe payments integration
type StripeConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"` // STRIPE_WEBHOOK_SECRET
}

// EmailConfig configures transactional email delivery via Resend
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"` // e.g. "sixfold <auth@example.com>"
}

// EmbeddingsConfig configures knowledge chunk embedding generation
type EmbeddingsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`  // OpenAI-compatible API key
	BaseURL string `mapstructure:"base_url"` // empty = api.openai.com
	Model   string `mapstructure:"model"`    // default text-embedding-3-small
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

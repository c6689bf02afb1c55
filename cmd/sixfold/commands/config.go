package commands

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/errors"
)

// ConfigCmd groups configuration operations
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sixfold configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as TOML",
	Long:  "Print the configuration after merging defaults, config files, and environment overrides.",
	RunE:  runConfigShow,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// Secrets are not printed
	cfg.Auth.JWTSecret = redact(cfg.Auth.JWTSecret)
	cfg.Stripe.APIKey = redact(cfg.Stripe.APIKey)
	cfg.Stripe.WebhookSecret = redact(cfg.Stripe.WebhookSecret)
	cfg.Shopify.AccessToken = redact(cfg.Shopify.AccessToken)
	cfg.Shopify.WebhookSecret = redact(cfg.Shopify.WebhookSecret)
	cfg.Email.ResendAPIKey = redact(cfg.Email.ResendAPIKey)
	cfg.Embeddings.APIKey = redact(cfg.Embeddings.APIKey)

	encoder := toml.NewEncoder(os.Stdout)
	encoder.Indent = "  "
	if err := encoder.Encode(cfg); err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sixfold/sixfold/cmd/sixfold/commands"
	"github.com/sixfold/sixfold/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sixfold",
	Short: "sixfold - multi-tenant ontology backend",
	Long: `sixfold - multi-tenant ontology backend.

Groups own a six-dimension ontology (people, things, connections, events,
knowledge) behind a REST API, with first-party auth, Stripe payments, and
Shopify sync.

Examples:
  sixfold server           # Start the HTTP server and job workers
  sixfold db migrate       # Apply pending schema migrations
  sixfold db stats         # Show database statistics
  sixfold config show      # Print the resolved configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithLevel(false, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

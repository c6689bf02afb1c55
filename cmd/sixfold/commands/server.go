package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/db"
	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/logger"
	"github.com/sixfold/sixfold/server"
)

// ServerCmd starts the HTTP server with background job workers
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the sixfold HTTP server",
	Long: `Start the sixfold HTTP server.

Binds the REST API, starts the background job workers, and blocks until
SIGINT/SIGTERM. Pending database migrations are applied on startup.`,
	RunE: runServer,
}

var serverPortFlag int

func init() {
	ServerCmd.Flags().IntVarP(&serverPortFlag, "port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if serverPortFlag != 0 {
		cfg.Server.Port = serverPortFlag
	}

	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return errors.Wrap(err, "failed to resolve database path")
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	srv, err := server.New(cfg, database, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to initialize server")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infow("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

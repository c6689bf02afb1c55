package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/db"
	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/jobs"
	"github.com/sixfold/sixfold/logger"
)

// DbCmd groups database operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the sixfold database",
	Long: `Manage the sixfold database.

Examples:
  sixfold db migrate       # Apply pending schema migrations
  sixfold db stats         # Show row counts and queue depth`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
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

	version, err := db.SchemaVersion(database)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	fmt.Printf("Database migrated to schema version %s\n", version)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return errors.Wrap(err, "failed to resolve database path")
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	version, err := db.SchemaVersion(database)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path:  %s\n", dbPath)
	fmt.Printf("Schema Version: %s\n\n", version)

	tables := []string{"groups", "things", "connections", "events", "knowledge", "users", "sessions", "jobs", "payment_records"}
	for _, table := range tables {
		var count int
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return errors.Wrapf(err, "failed to count %s", table)
		}
		fmt.Printf("%-16s %d\n", table+":", count)
	}

	stats, err := jobs.NewQueue(database).GetStats(context.Background())
	if err != nil {
		return errors.Wrap(err, "failed to read queue stats")
	}
	fmt.Printf("\nJob Queue\n")
	fmt.Printf("  queued: %d  running: %d  completed: %d  failed: %d  dead: %d\n",
		stats.Queued, stats.Running, stats.Completed, stats.Failed, stats.Dead)

	return nil
}

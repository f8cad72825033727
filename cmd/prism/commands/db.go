package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/db"
	"github.com/teranos/prism/display"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/pulse/async"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: logger.SymDB + " Manage prism databases",
	Long: logger.SymDB + ` db - Manage the job database and the local source schema

Examples:
  prism db migrate            # Migrate the job database
  prism db migrate --source   # Also create the reference source schema (sqlite sources only)
  prism db stats              # Job counts by queue and status`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job database statistics",
	RunE:  runDbStats,
}

var migrateSourceFlag bool

func init() {
	dbMigrateCmd.Flags().BoolVar(&migrateSourceFlag, "source", false, "Also migrate the sqlite source database")
	dbStatsCmd.Flags().Bool("json", false, "Output as JSON")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	database.Close()
	display.Success("Job database %s is up to date", cfg.Database.Path)

	if !migrateSourceFlag {
		return nil
	}
	if cfg.Source.Driver != am.DriverSQLite {
		return errors.WithHint(
			errors.Newf("cannot migrate a %s source", cfg.Source.Driver),
			"only sqlite sources use the reference schema; other sources own theirs")
	}
	source, err := db.Open(cfg.Source.DSN, logger.Logger)
	if err != nil {
		return errors.Wrapf(err, "failed to open source database at %s", cfg.Source.DSN)
	}
	defer source.Close()
	if err := db.MigrateSource(source, logger.Logger); err != nil {
		return err
	}
	display.Success("Source database %s is up to date", cfg.Source.DSN)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := async.NewStore(database)
	counts, err := store.CountByStatus("")
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{
			"path": cfg.Database.Path,
			"jobs": counts,
		})
	}

	fmt.Printf("%s Database Statistics\n", logger.SymDB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	var rows [][]string
	for _, status := range []async.JobStatus{async.JobStatusQueued, async.JobStatusRunning, async.JobStatusCompleted, async.JobStatusFailed} {
		rows = append(rows, []string{string(status), strconv.Itoa(counts[status])})
	}
	return display.Table([]string{"Status", "Jobs"}, rows)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/prism/cmd/prism/commands"
	"github.com/teranos/prism/logger"
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "prism - project an EAV source into search and graph stores",
	Long: `prism - keeps a document search store and a property graph in step
with an entity-attribute-value relational source.

Available commands:
  am       - Manage prism configuration
  db       - Manage the job database
  pulse    - Run the sync daemon (worker pools + reconcile ticker)
  schema   - Define search and graph store schemas
  reindex  - Re-project every row of some document kinds
  catchup  - Run one reconcile pass
  trigger  - Enqueue the sync of one source row
  version  - Show version information

Examples:
  prism am show             # Show current configuration
  prism db migrate          # Create the job tables
  prism schema              # Define store schemas
  prism pulse start         # Start the daemon
  prism reindex entity      # Re-project all entities`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON (for deployed workers)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.SchemaCmd)
	rootCmd.AddCommand(commands.ReindexCmd)
	rootCmd.AddCommand(commands.CatchupCmd)
	rootCmd.AddCommand(commands.TriggerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

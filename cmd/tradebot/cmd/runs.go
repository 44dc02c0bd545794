package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the journal database",
	Long: `Show the most recent runs recorded in the SQLite journal,
newest first.

Example:
  tradebot runs --db runs.db --limit 10`,
	RunE: runRuns,
}

var (
	runsDBPath string
	runsLimit  int
)

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().StringVar(&runsDBPath, "db", "runs.db", "path to the journal database")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(runsDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	runs, err := j.ListRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-28s %-9s %-10s %-20s %9s %8s %6s\n",
		"RUN", "MODE", "SYMBOL", "CREATED", "RETURN", "TRADES", "WIN%")
	for _, r := range runs {
		created := time.Unix(r.Created, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Printf("%-28s %-9s %-10s %-20s %8.2f%% %8d %5.1f%%\n",
			r.RunID, r.Mode, r.Symbol, created,
			r.ReturnRate*100, r.TradeCount, r.WinRate*100)
	}
	return nil
}

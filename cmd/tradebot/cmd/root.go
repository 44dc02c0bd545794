package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradebot",
	Short: "A single-symbol trading bot with backtest, paper and live modes",
	Long: `Tradebot evaluates trigger conditions over candle history, asks a
strategy for signals, sizes them into risk-checked orders and simulates
or submits fills.

Modes:
  backtest - replay a candle series from CSV or an exchange
  paper    - simulate fills against a persistent local account
  live     - evaluate one tick against a real exchange account

Configuration lives in a YAML or JSON file; see 'tradebot config init'.`,
}

var (
	verbose bool
	logger  zerolog.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cobra.OnInitialize(func() {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	})
}

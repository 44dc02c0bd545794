package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/backtest"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/telemetry"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a candle series and report performance",
	Long: `Run the full pipeline over historical candles and print the
resulting metrics. Candles come from a CSV file or from the exchange,
per the config's data section.

Example:
  tradebot backtest -f configs/btc.yaml`,
	RunE: runBacktest,
}

var backtestConfigPath string

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&backtestConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(backtestConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	candles, err := loadCandles(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	logger.Info().Int("candles", len(candles)).Str("symbol", cfg.Symbol).Msg("starting backtest")

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	result, err := engine.Run(candles, cfg.Backtest.InitialCash)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	backtest.PrintResult(os.Stdout, cfg.Symbol, result)

	if cfg.Output.Format != "none" {
		if err := backtest.WriteReport(cfg.Output.Path, cfg.Output.Format, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("\nReport saved to: %s\n", cfg.Output.Path)
	}

	stats := telemetry.NewRegistry()
	return persistRun(ctx, cfg, "backtest", candles, result, stats)
}

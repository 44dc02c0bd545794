package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/backtest"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/exchange"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/paper"
	"github.com/rustyeddy/tradebot/telemetry"
)

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Simulate trading against a persistent local account",
	Long: `Run the pipeline over fresh candles and carry the resulting
account across invocations via a JSON state file. The first run starts
from the configured initial cash; later runs resume where the last one
ended.

With --follow the run never ends: closed candles arrive over the
exchange websocket and are traded one bar at a time until interrupted.

Examples:
  tradebot paper -f configs/btc.yaml
  tradebot paper -f configs/btc.yaml --follow`,
	RunE: runPaper,
}

var (
	paperConfigPath string
	paperFollow     bool
)

func init() {
	rootCmd.AddCommand(paperCmd)

	paperCmd.Flags().StringVarP(&paperConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	paperCmd.Flags().BoolVar(&paperFollow, "follow", false, "trade live candles from the exchange websocket until interrupted")
	paperCmd.MarkFlagRequired("config")
}

func runPaper(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(paperConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if paperFollow {
		return runPaperFollow(cfg)
	}

	ctx := context.Background()
	candles, err := loadCandles(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	logger.Info().Int("candles", len(candles)).Str("state", cfg.Paper.StatePath).Msg("starting paper run")

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	store := paper.NewStore(cfg.Paper.StatePath)
	result, err := paper.Run(engine, candles, cfg.Paper.InitialCash, store)
	if err != nil {
		return fmt.Errorf("paper run: %w", err)
	}

	backtest.PrintResult(os.Stdout, cfg.Symbol, result)
	fmt.Printf("\nAccount state saved to: %s\n", cfg.Paper.StatePath)

	if cfg.Output.Format != "none" {
		if err := backtest.WriteReport(cfg.Output.Path, cfg.Output.Format, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	stats := telemetry.NewRegistry()
	return persistRun(ctx, cfg, "paper", candles, result, stats)
}

// runPaperFollow seeds indicator history over REST, then hands the
// websocket candle feed to the follow loop until SIGINT or SIGTERM.
func runPaperFollow(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ex, err := newExchange(cfg)
	if err != nil {
		return err
	}

	intervalSec, err := market.ParseInterval(cfg.Data.CandleInterval)
	if err != nil {
		return err
	}
	lookback := int64(cfg.Triggers.MAWindow + 2)
	endMs := time.Now().UnixMilli()
	history, err := ex.FetchCandles(ctx, exchange.CandleRequest{
		Symbol:    cfg.Symbol,
		Interval:  cfg.Data.CandleInterval,
		StartTime: endMs - lookback*intervalSec*1000,
		EndTime:   endMs,
	})
	if err != nil {
		return fmt.Errorf("seed history: %w", err)
	}
	logger.Info().Int("seed_candles", len(history)).Str("symbol", cfg.Symbol).Msg("following live candles")

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	stream := exchange.NewKlineStream(cfg.Exchange.StreamURL, cfg.Symbol, cfg.Data.CandleInterval, logger)
	candles := make(chan market.Candle)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- stream.Run(ctx, candles)
	}()

	store := paper.NewStore(cfg.Paper.StatePath)
	if err := paper.Follow(ctx, engine, history, candles, cfg.Paper.InitialCash, store, logger); err != nil {
		return err
	}

	if err := <-streamErr; err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Str("state", cfg.Paper.StatePath).Msg("follow stopped, account saved")
	return nil
}

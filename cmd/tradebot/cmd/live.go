package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/exchange"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
	"github.com/rustyeddy/tradebot/telemetry"
	"github.com/rustyeddy/tradebot/trigger"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Evaluate one tick against a real exchange account",
	Long: `Sync the exchange account, fetch recent candles, evaluate the
trigger and strategy once, and plan orders for the latest closed bar.

Orders are only submitted with --execute; without it the planned orders
are logged and dropped. Exchange calls retry transient failures with
exponential backoff.

Example:
  tradebot live -f configs/btc.yaml --execute`,
	RunE: runLive,
}

var (
	liveConfigPath string
	liveExecute    bool
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVarP(&liveConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	liveCmd.Flags().BoolVar(&liveExecute, "execute", false, "actually submit planned orders to the exchange")
	liveCmd.MarkFlagRequired("config")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(liveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	stats := telemetry.NewRegistry()
	retryer := exchange.NewRetryer(logger, stats)

	ex, err := newExchange(cfg)
	if err != nil {
		return err
	}

	var snap *exchange.Snapshot
	err = retryer.Do("sync account", func() error {
		var syncErr error
		snap, syncErr = exchange.SyncAccount(ctx, ex)
		return syncErr
	})
	if err != nil {
		return fmt.Errorf("sync account: %w", err)
	}

	cashAsset := cfg.Exchange.CashAsset
	if cashAsset == "" {
		cashAsset = exchange.InferCashAsset(cfg.Symbol)
	}
	account := exchange.AccountFromSnapshot(snap, cfg.Symbol, cashAsset)
	logger.Info().Float64("cash", account.Cash).
		Float64("position", account.PositionQty(cfg.Symbol)).
		Msg("account synced")

	// A little more history than the moving average window so the
	// trigger and strategy always have enough closed bars.
	intervalSec, err := market.ParseInterval(cfg.Data.CandleInterval)
	if err != nil {
		return err
	}
	lookback := int64(cfg.Triggers.MAWindow + 2)
	endMs := time.Now().UnixMilli()
	startMs := endMs - lookback*intervalSec*1000

	var candles []market.Candle
	err = retryer.Do("fetch candles", func() error {
		var fetchErr error
		candles, fetchErr = ex.FetchCandles(ctx, exchange.CandleRequest{
			Symbol:    cfg.Symbol,
			Interval:  cfg.Data.CandleInterval,
			StartTime: startMs,
			EndTime:   endMs,
		})
		return fetchErr
	})
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("exchange returned no candles for %s", cfg.Symbol)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	latest := candles[len(candles)-1]
	now := time.Now().Unix()

	triggered := engine.Trigger.ShouldFire(trigger.Context{Candle: latest, History: candles, Now: now})
	if !triggered {
		logger.Info().Msg("trigger did not fire")
		stats.RecordLive(false, 0, 0, 0)
		return writeLiveMetrics(cfg, stats)
	}

	sctx := strategy.Context{Candle: latest, History: candles, Account: &account, Now: now}
	signals := engine.Strategy.OnTick(sctx)

	var planned []broker.OrderRequest
	for _, signal := range signals {
		orders, err := engine.Flow.Plan(signal, sctx, engine.Orders)
		if err != nil {
			if errors.Is(err, risk.ErrRejected) {
				logger.Warn().Err(err).Str("signal", signal.String()).Msg("signal rejected")
				continue
			}
			return err
		}
		planned = append(planned, orders...)
	}

	sent := 0
	for _, order := range planned {
		logger.Info().
			Str("id", order.ClientOrderID).
			Str("side", string(order.Side)).
			Float64("quantity", order.Quantity).
			Float64("limit", order.LimitPrice).
			Msg("planned order")
		if !liveExecute {
			continue
		}
		err := retryer.Do("place order", func() error {
			ack, placeErr := ex.PlaceOrder(ctx, order)
			if placeErr != nil {
				return placeErr
			}
			logger.Info().Str("exchange_id", ack.ExchangeOrderID).Str("status", string(ack.Status)).Msg("order submitted")
			return nil
		})
		if err != nil {
			return fmt.Errorf("place order %s: %w", order.ClientOrderID, err)
		}
		sent++
	}
	if !liveExecute && len(planned) > 0 {
		fmt.Printf("Dry run: %d order(s) planned, none submitted (use --execute)\n", len(planned))
	}

	stats.RecordLive(true, len(signals), len(planned), sent)
	return writeLiveMetrics(cfg, stats)
}

func writeLiveMetrics(cfg *config.Config, stats *telemetry.Registry) error {
	if cfg.Output.MetricsPath == "" {
		return nil
	}
	return stats.WriteFile(cfg.Output.MetricsPath)
}

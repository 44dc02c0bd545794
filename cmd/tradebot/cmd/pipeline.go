package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/tradebot/backtest"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/exchange"
	"github.com/rustyeddy/tradebot/internal/id"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/orderflow"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/storage"
	"github.com/rustyeddy/tradebot/strategy"
	"github.com/rustyeddy/tradebot/telemetry"
	"github.com/rustyeddy/tradebot/trigger"
)

// buildEngine assembles the full signal-to-fill pipeline from config.
func buildEngine(cfg *config.Config) (*backtest.Engine, error) {
	var triggers []trigger.Trigger
	if cfg.Triggers.TimeEnabled {
		triggers = append(triggers, trigger.NewTimeTrigger(cfg.Triggers.TimeMinutes))
	}
	if cfg.Triggers.PriceEnabled {
		triggers = append(triggers, trigger.NewPriceTrigger(
			cfg.Triggers.MAWindow, cfg.Triggers.BuyThreshold, cfg.Triggers.SellThreshold))
	}
	mode := trigger.All
	if cfg.Triggers.TriggerModeAny {
		mode = trigger.Any
	}

	strat, err := strategy.ByName(cfg.Strategy.Name, strategy.Params{
		MAWindow:      cfg.Triggers.MAWindow,
		BuyThreshold:  cfg.Triggers.BuyThreshold,
		SellThreshold: cfg.Triggers.SellThreshold,
	})
	if err != nil {
		return nil, err
	}

	manager, err := risk.NewManager(cfg.RiskLimits())
	if err != nil {
		return nil, err
	}

	orderKind := broker.Market
	if cfg.Orders.OrderType == "limit" {
		orderKind = broker.Limit
	}

	return &backtest.Engine{
		Trigger:  trigger.NewEngine(mode, triggers),
		Strategy: strat,
		Flow:     orderflow.NewFlow(manager),
		Orders: orderflow.Config{
			Symbol:         cfg.Symbol,
			OrderKind:      orderKind,
			LimitOffsetBps: cfg.Orders.LimitPriceOffsetBps,
			BuyCashRatio:   cfg.Strategy.BuyCashRatio,
			SellPosRatio:   cfg.Strategy.SellPosRatio,
			RebuyCashRatio: cfg.Strategy.RebuyCashRatio,
		},
		Costs: backtest.Costs{
			FeeRate:     cfg.Orders.FeeRate,
			SlippageBps: cfg.Orders.SlippageBps,
		},
	}, nil
}

func newExchange(cfg *config.Config) (*exchange.Binance, error) {
	if cfg.Exchange.Name != "binance" {
		return nil, fmt.Errorf("unsupported exchange %q", cfg.Exchange.Name)
	}
	return exchange.NewBinance(exchange.BinanceConfig{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		RecvWindow: cfg.Exchange.RecvWindow,
	})
}

// loadCandles fetches the candle series for a run from the configured
// source, clipped to the backtest window when one is set.
func loadCandles(ctx context.Context, cfg *config.Config) ([]market.Candle, error) {
	var (
		candles []market.Candle
		err     error
	)
	switch cfg.Data.Source {
	case "csv":
		candles, err = market.LoadCSV(cfg.Data.CSVPath)
	case "exchange":
		ex, exErr := newExchange(cfg)
		if exErr != nil {
			return nil, exErr
		}
		candles, err = ex.FetchCandles(ctx, exchange.CandleRequest{
			Symbol:    cfg.Symbol,
			Interval:  cfg.Data.CandleInterval,
			StartTime: cfg.Backtest.StartTime * 1000,
			EndTime:   cfg.Backtest.EndTime * 1000,
		})
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Backtest.StartTime == 0 && cfg.Backtest.EndTime == 0 {
		return candles, nil
	}
	clipped := candles[:0:0]
	for _, candle := range candles {
		if cfg.Backtest.StartTime != 0 && candle.Time < cfg.Backtest.StartTime {
			continue
		}
		if cfg.Backtest.EndTime != 0 && candle.Time > cfg.Backtest.EndTime {
			continue
		}
		clipped = append(clipped, candle)
	}
	return clipped, nil
}

// persistRun records a finished run everywhere the config asks for:
// the SQLite journal, Postgres, and the Prometheus textfile.
func persistRun(ctx context.Context, cfg *config.Config, mode string, candles []market.Candle, result *backtest.Result, stats *telemetry.Registry) error {
	last := telemetry.LastRun{
		ReturnRate:  result.Metrics.ReturnRate,
		MaxDrawdown: result.Metrics.MaxDrawdown,
		WinRate:     result.Metrics.WinRate,
		Sharpe:      result.Metrics.Sharpe,
	}
	if mode == "paper" {
		stats.RecordPaper(last, len(result.Trades))
	} else {
		stats.RecordBacktest(last, len(result.Trades))
	}

	var startTime, endTime int64
	if len(candles) > 0 {
		startTime = candles[0].Time
		endTime = candles[len(candles)-1].Time
	}

	if cfg.Journal.DBPath != "" {
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		runID := id.New()
		err = j.RecordRun(journal.RunRecord{
			RunID:       runID,
			Mode:        mode,
			Symbol:      cfg.Symbol,
			Created:     time.Now().Unix(),
			StartTime:   startTime,
			EndTime:     endTime,
			ReturnRate:  result.Metrics.ReturnRate,
			MaxDrawdown: result.Metrics.MaxDrawdown,
			WinRate:     result.Metrics.WinRate,
			TradeCount:  result.Metrics.TradeCount,
			Sharpe:      result.Metrics.Sharpe,
			EndingCash:  result.Account.Cash,
		})
		if err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
		for _, trade := range result.Trades {
			if err := j.RecordFill(journal.FillRecord{
				RunID:    runID,
				Time:     trade.Time,
				Symbol:   trade.Symbol,
				Side:     string(trade.Side),
				Price:    trade.Price,
				Quantity: trade.Quantity,
				Fee:      trade.Fee,
			}); err != nil {
				return fmt.Errorf("journal fill: %w", err)
			}
		}
		for _, point := range result.EquityCurve {
			if err := j.RecordEquity(journal.EquityRecord{
				RunID:  runID,
				Time:   point.Time,
				Equity: point.Equity,
			}); err != nil {
				return fmt.Errorf("journal equity: %w", err)
			}
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pg, err := storage.Connect(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		runID, err := pg.SaveRun(ctx, mode, runParams(cfg), result)
		if err != nil {
			return err
		}
		logger.Info().Str("run_id", runID).Msg("run saved to postgres")
	}

	if cfg.Output.MetricsPath != "" {
		if err := stats.WriteFile(cfg.Output.MetricsPath); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func runParams(cfg *config.Config) storage.RunParams {
	return storage.RunParams{
		Symbol:         cfg.Symbol,
		OrderType:      cfg.Orders.OrderType,
		FeeRate:        cfg.Orders.FeeRate,
		SlippageBps:    cfg.Orders.SlippageBps,
		MAWindow:       cfg.Triggers.MAWindow,
		BuyThreshold:   cfg.Triggers.BuyThreshold,
		SellThreshold:  cfg.Triggers.SellThreshold,
		BuyCashRatio:   cfg.Strategy.BuyCashRatio,
		SellPosRatio:   cfg.Strategy.SellPosRatio,
		RebuyCashRatio: cfg.Strategy.RebuyCashRatio,
		InitialCash:    cfg.Backtest.InitialCash,
	}
}

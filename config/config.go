package config

import (
	"fmt"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
)

// Config represents the complete bot configuration
type Config struct {
	Mode     string         `json:"mode" yaml:"mode"` // "backtest", "paper" or "live"
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Orders   OrdersConfig   `json:"orders" yaml:"orders"`
	Triggers TriggersConfig `json:"triggers" yaml:"triggers"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Paper    PaperConfig    `json:"paper" yaml:"paper"`
}

// OrdersConfig controls order construction and execution costs
type OrdersConfig struct {
	OrderType           string  `json:"order_type" yaml:"order_type"` // "market" or "limit"
	LimitPriceOffsetBps int     `json:"limit_price_offset_bps" yaml:"limit_price_offset_bps"`
	FeeRate             float64 `json:"fee_rate" yaml:"fee_rate"`
	SlippageBps         int     `json:"slippage_bps" yaml:"slippage_bps"`
}

// TriggersConfig controls when the strategy is asked for signals
type TriggersConfig struct {
	TimeEnabled    bool    `json:"time_enabled" yaml:"time_enabled"`
	TimeMinutes    int     `json:"time_minutes" yaml:"time_minutes"`
	PriceEnabled   bool    `json:"price_enabled" yaml:"price_enabled"`
	TriggerModeAny bool    `json:"trigger_mode_any" yaml:"trigger_mode_any"`
	MAWindow       int     `json:"ma_window" yaml:"ma_window"`
	BuyThreshold   float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold  float64 `json:"sell_threshold" yaml:"sell_threshold"`
}

// StrategyConfig contains strategy and position sizing parameters
type StrategyConfig struct {
	Name           string  `json:"name" yaml:"name"` // "threshold" or "noop"
	BuyCashRatio   float64 `json:"buy_cash_ratio" yaml:"buy_cash_ratio"`
	SellPosRatio   float64 `json:"sell_pos_ratio" yaml:"sell_pos_ratio"`
	RebuyCashRatio float64 `json:"rebuy_cash_ratio" yaml:"rebuy_cash_ratio"`
}

// RiskConfig contains the pre-trade check limits
type RiskConfig struct {
	MaxTradeRatio         float64 `json:"max_trade_ratio" yaml:"max_trade_ratio"`
	MinCashReserveRatio   float64 `json:"min_cash_reserve_ratio" yaml:"min_cash_reserve_ratio"`
	MaxPositionValueRatio float64 `json:"max_position_value_ratio" yaml:"max_position_value_ratio"`
}

// BacktestConfig contains backtest window parameters
type BacktestConfig struct {
	StartTime   int64   `json:"start_time" yaml:"start_time"`
	EndTime     int64   `json:"end_time" yaml:"end_time"`
	InitialCash float64 `json:"initial_cash" yaml:"initial_cash"`
}

// DataConfig selects where candles come from
type DataConfig struct {
	Source         string `json:"source" yaml:"source"` // "csv" or "exchange"
	CSVPath        string `json:"csv_path,omitempty" yaml:"csv_path,omitempty"`
	CandleInterval string `json:"candle_interval" yaml:"candle_interval"`
}

// OutputConfig controls the report written after a run
type OutputConfig struct {
	Format      string `json:"format" yaml:"format"` // "json", "csv" or "none"
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	MetricsPath string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty"`
}

// ExchangeConfig contains exchange connection parameters
type ExchangeConfig struct {
	Name       string `json:"name" yaml:"name"` // "binance"
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	StreamURL  string `json:"stream_url,omitempty" yaml:"stream_url,omitempty"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APISecret  string `json:"api_secret,omitempty" yaml:"api_secret,omitempty"`
	RecvWindow int64  `json:"recv_window,omitempty" yaml:"recv_window,omitempty"`
	CashAsset  string `json:"cash_asset,omitempty" yaml:"cash_asset,omitempty"`
}

// StorageConfig contains optional Postgres persistence parameters
type StorageConfig struct {
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

// JournalConfig contains optional SQLite journaling parameters
type JournalConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// PaperConfig contains paper trading state parameters
type PaperConfig struct {
	StatePath   string  `json:"state_path,omitempty" yaml:"state_path,omitempty"`
	InitialCash float64 `json:"initial_cash" yaml:"initial_cash"`
}

// LoadFromFile loads configuration from a file (YAML or JSON based on
// content), applies environment overrides, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides secrets and connection strings from the
// environment so they never need to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRADEBOT_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("TRADEBOT_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("TRADEBOT_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("TRADEBOT_RECV_WINDOW"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Exchange.RecvWindow = n
		}
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Mode {
	case "backtest", "paper", "live":
	default:
		return fmt.Errorf("mode must be 'backtest', 'paper' or 'live'")
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Orders.OrderType != "market" && c.Orders.OrderType != "limit" {
		return fmt.Errorf("orders.order_type must be 'market' or 'limit'")
	}
	if c.Orders.FeeRate < 0 {
		return fmt.Errorf("orders.fee_rate must be non-negative")
	}
	if c.Orders.SlippageBps < 0 {
		return fmt.Errorf("orders.slippage_bps must be non-negative")
	}
	if c.Triggers.TimeEnabled && c.Triggers.TimeMinutes <= 0 {
		return fmt.Errorf("triggers.time_minutes must be positive when time trigger is enabled")
	}
	if c.Triggers.MAWindow <= 0 {
		return fmt.Errorf("triggers.ma_window must be positive")
	}
	if c.Triggers.BuyThreshold < 0 || c.Triggers.SellThreshold < 0 {
		return fmt.Errorf("trigger thresholds must be non-negative")
	}
	if c.Strategy.Name != "threshold" && c.Strategy.Name != "noop" {
		return fmt.Errorf("strategy.name must be 'threshold' or 'noop'")
	}
	for name, ratio := range map[string]float64{
		"strategy.buy_cash_ratio":   c.Strategy.BuyCashRatio,
		"strategy.sell_pos_ratio":   c.Strategy.SellPosRatio,
		"strategy.rebuy_cash_ratio": c.Strategy.RebuyCashRatio,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	limits := risk.Limits{
		MaxTradeRatio:         c.Risk.MaxTradeRatio,
		MinCashReserveRatio:   c.Risk.MinCashReserveRatio,
		MaxPositionValueRatio: c.Risk.MaxPositionValueRatio,
	}
	if err := limits.Validate(); err != nil {
		return err
	}
	if c.Mode == "backtest" && c.Backtest.InitialCash <= 0 {
		return fmt.Errorf("backtest.initial_cash must be positive")
	}
	if c.Data.Source != "csv" && c.Data.Source != "exchange" {
		return fmt.Errorf("data.source must be 'csv' or 'exchange'")
	}
	if c.Data.Source == "csv" && c.Data.CSVPath == "" {
		return fmt.Errorf("data.csv_path required for csv source")
	}
	if _, err := market.ParseInterval(c.Data.CandleInterval); err != nil {
		return fmt.Errorf("data.candle_interval: %w", err)
	}
	switch c.Output.Format {
	case "json", "csv", "none":
	default:
		return fmt.Errorf("output.format must be 'json', 'csv' or 'none'")
	}
	if c.Output.Format != "none" && c.Output.Path == "" {
		return fmt.Errorf("output.path required unless format is 'none'")
	}
	if c.Mode == "paper" && c.Paper.InitialCash <= 0 {
		return fmt.Errorf("paper.initial_cash must be positive")
	}
	if c.Mode == "live" && c.Data.Source != "exchange" {
		return fmt.Errorf("live mode requires data.source 'exchange'")
	}
	return nil
}

// RiskLimits converts the risk section into the checker's limits.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxTradeRatio:         c.Risk.MaxTradeRatio,
		MinCashReserveRatio:   c.Risk.MinCashReserveRatio,
		MaxPositionValueRatio: c.Risk.MaxPositionValueRatio,
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Mode:   "backtest",
		Symbol: "BTCUSDT",
		Orders: OrdersConfig{
			OrderType:           "market",
			LimitPriceOffsetBps: 0,
			FeeRate:             0.001,
			SlippageBps:         5,
		},
		Triggers: TriggersConfig{
			TimeEnabled:    false,
			TimeMinutes:    60,
			PriceEnabled:   true,
			TriggerModeAny: true,
			MAWindow:       20,
			BuyThreshold:   0.02,
			SellThreshold:  0.02,
		},
		Strategy: StrategyConfig{
			Name:           "threshold",
			BuyCashRatio:   0.3,
			SellPosRatio:   0.5,
			RebuyCashRatio: 0,
		},
		Risk: RiskConfig{
			MaxTradeRatio:         0.5,
			MinCashReserveRatio:   0.1,
			MaxPositionValueRatio: 0.8,
		},
		Backtest: BacktestConfig{
			InitialCash: 10000,
		},
		Data: DataConfig{
			Source:         "csv",
			CSVPath:        "./candles.csv",
			CandleInterval: "1m",
		},
		Output: OutputConfig{
			Format: "json",
			Path:   "./report.json",
		},
		Exchange: ExchangeConfig{
			Name:       "binance",
			BaseURL:    "https://api.binance.com",
			StreamURL:  "wss://stream.binance.com:9443",
			RecvWindow: 5000,
		},
		Paper: PaperConfig{
			StatePath:   "./paper_state.json",
			InitialCash: 10000,
		},
	}
}

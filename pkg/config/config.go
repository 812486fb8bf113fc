// Package config loads, validates and hot-reloads the bot configuration.
// Values come from a YAML file with environment-variable overrides for
// secrets; the loaded snapshot is immutable and swapped atomically on
// reload.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Trade    TradeConfig    `mapstructure:"trade"`
	Trailing TrailingConfig `mapstructure:"trailing"`
	Strategy StrategyConfig `mapstructure:"strategy"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Debug      bool   `mapstructure:"debug"`
}

type AppConfig struct {
	PollIntervalSec      int `mapstructure:"poll_interval_sec"`
	ReconcileIntervalSec int `mapstructure:"reconcile_interval_sec"`
}

type ExchangeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Passphrase string `mapstructure:"passphrase"`
	BaseURL    string `mapstructure:"base_url"`
	Simulated  bool   `mapstructure:"simulated"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type AdminConfig struct {
	Secret      string `mapstructure:"secret"`
	TokenTTLMin int    `mapstructure:"token_ttl_min"`
}

type TradeConfig struct {
	Symbols    []string           `mapstructure:"symbols"`
	Leverage   int                `mapstructure:"leverage"`
	MarginMode string             `mapstructure:"margin_mode"`
	QtyMode    string             `mapstructure:"qty_mode"`
	QtyBase    map[string]float64 `mapstructure:"qty_base"`
	QtyQuote   map[string]float64 `mapstructure:"qty_quote"`
	OrderType  string             `mapstructure:"order_type"`
}

type TrailingConfig struct {
	Enabled                 bool    `mapstructure:"enabled"`
	InitialTrailPct         float64 `mapstructure:"initial_trail_pct"`
	TightenTriggerProfitPct float64 `mapstructure:"tighten_trigger_profit_pct"`
	TightenedTrailPct       float64 `mapstructure:"tightened_trail_pct"`
	MinTrailPct             float64 `mapstructure:"min_trail_pct"`
}

type StrategyConfig struct {
	IgnoreSameDirection bool `mapstructure:"ignore_same_direction"`
	ReverseOnOpposite   bool `mapstructure:"reverse_on_opposite"`
	DedupSameBar        bool `mapstructure:"dedup_same_bar"`
	LockPerSymbol       bool `mapstructure:"lock_per_symbol"`
}

// BaseQty returns the fixed base quantity configured for symbol.
func (t TradeConfig) BaseQty(symbol string) float64 {
	return lookupQty(t.QtyBase, symbol)
}

// QuoteNotional returns the quote notional configured for symbol.
func (t TradeConfig) QuoteNotional(symbol string) float64 {
	return lookupQty(t.QtyQuote, symbol)
}

// lookupQty matches case-insensitively: viper lowercases map keys during
// unmarshal, so "BTC/USDT:USDT" arrives as "btc/usdt:usdt".
func lookupQty(m map[string]float64, symbol string) float64 {
	if v, ok := m[symbol]; ok {
		return v
	}
	return m[strings.ToLower(symbol)]
}

// PollInterval is the trailing-stop sweep interval.
func (a AppConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalSec) * time.Second
}

// ReconcileInterval is the configured reconciliation interval; the
// reconciliation loop applies its own minimum floor.
func (a AppConfig) ReconcileInterval() time.Duration {
	return time.Duration(a.ReconcileIntervalSec) * time.Second
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

func (a AdminConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMin) * time.Minute
}

// Load reads the configuration file at path, applies defaults and env
// overrides, and validates the result. A .env file in the working
// directory is honored when present.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, *viper.Viper, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.debug", false)
	v.SetDefault("app.poll_interval_sec", 300)
	v.SetDefault("app.reconcile_interval_sec", 600)
	v.SetDefault("exchange.base_url", "https://www.okx.com")
	v.SetDefault("exchange.timeout_sec", 10)
	v.SetDefault("exchange.simulated", false)
	v.SetDefault("admin.token_ttl_min", 60)
	v.SetDefault("trade.leverage", 3)
	v.SetDefault("trade.margin_mode", "cross")
	v.SetDefault("trade.qty_mode", "base")
	v.SetDefault("trade.order_type", "market")
	v.SetDefault("trailing.enabled", true)
	v.SetDefault("trailing.initial_trail_pct", 3.0)
	v.SetDefault("trailing.tighten_trigger_profit_pct", 1.0)
	v.SetDefault("trailing.tightened_trail_pct", 0.1)
	v.SetDefault("trailing.min_trail_pct", 0.1)
	v.SetDefault("strategy.ignore_same_direction", true)
	v.SetDefault("strategy.reverse_on_opposite", true)
	v.SetDefault("strategy.dedup_same_bar", true)
	v.SetDefault("strategy.lock_per_symbol", true)
}

// bindEnv maps secrets to conventional environment variables so they can
// stay out of the config file.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("exchange.api_key", "OKX_API_KEY")
	_ = v.BindEnv("exchange.api_secret", "OKX_API_SECRET")
	_ = v.BindEnv("exchange.passphrase", "OKX_PASSPHRASE")
	_ = v.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	_ = v.BindEnv("admin.secret", "ADMIN_SECRET")
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Trade.Symbols) == 0 {
		return errors.New("config: trade.symbols is empty")
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" || c.Exchange.Passphrase == "" {
		return errors.New("config: exchange credentials are required (OKX_API_KEY / OKX_API_SECRET / OKX_PASSPHRASE)")
	}
	if c.Webhook.Secret == "" {
		return errors.New("config: webhook.secret is required")
	}
	if c.Trade.Leverage < 1 {
		return fmt.Errorf("config: trade.leverage must be >= 1, got %d", c.Trade.Leverage)
	}
	switch c.Trade.MarginMode {
	case "cross", "isolated":
	default:
		return fmt.Errorf("config: trade.margin_mode must be cross or isolated, got %q", c.Trade.MarginMode)
	}
	switch c.Trade.OrderType {
	case "market", "limit":
	default:
		return fmt.Errorf("config: trade.order_type must be market or limit, got %q", c.Trade.OrderType)
	}
	switch c.Trade.QtyMode {
	case "base":
		for _, sym := range c.Trade.Symbols {
			if c.Trade.BaseQty(sym) <= 0 {
				return fmt.Errorf("config: trade.qty_base missing or non-positive for %s", sym)
			}
		}
	case "quote":
		for _, sym := range c.Trade.Symbols {
			if c.Trade.QuoteNotional(sym) <= 0 {
				return fmt.Errorf("config: trade.qty_quote missing or non-positive for %s", sym)
			}
		}
	default:
		return fmt.Errorf("config: trade.qty_mode must be base or quote, got %q", c.Trade.QtyMode)
	}
	if c.App.PollIntervalSec <= 0 {
		return errors.New("config: app.poll_interval_sec must be positive")
	}
	if c.App.ReconcileIntervalSec <= 0 {
		return errors.New("config: app.reconcile_interval_sec must be positive")
	}
	if c.Trailing.Enabled {
		if c.Trailing.InitialTrailPct <= 0 {
			return errors.New("config: trailing.initial_trail_pct must be positive")
		}
		if c.Trailing.TightenedTrailPct <= 0 {
			return errors.New("config: trailing.tightened_trail_pct must be positive")
		}
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeCfg struct {
	TargetVolumeUSDT float64  `yaml:"target_volume_usdt"`
	MinProfit        float64  `yaml:"min_profit"`
	MaxProfit        float64  `yaml:"max_profit"`
	FeeRate          float64  `yaml:"fee_rate"`
	BaseCoins        []string `yaml:"base_coins"`
}

type LimitsCfg struct {
	MaxTradesPerMinute int `yaml:"max_trades_per_minute"`
	MaxTradesPerHour   int `yaml:"max_trades_per_hour"`
	MaxTradesPerDay    int `yaml:"max_trades_per_day"`
	TriangleHoldSec    int `yaml:"triangle_hold_sec"`
	ScanIntervalSec    int `yaml:"scan_interval_sec"`
	TriangleDelayMs    int `yaml:"triangle_delay_ms"`
	LegPauseMs         int `yaml:"leg_pause_ms"`
	MaxConcurrent      int `yaml:"max_concurrent"`
	OrderBookDepth     int `yaml:"orderbook_depth"`
}

type BybitCfg struct {
	ApiKey     string `yaml:"api_key"`
	ApiSecret  string `yaml:"api_secret"`
	RestURL    string `yaml:"rest_url"`
	TestnetURL string `yaml:"testnet_rest_url"`
}

type TelegramCfg struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

type RedisCfg struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
}

type MetricsCfg struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Config struct {
	Testnet bool `yaml:"testnet"`
	Debug   bool `yaml:"debug"`

	Trade    TradeCfg    `yaml:"trade"`
	Limits   LimitsCfg   `yaml:"limits"`
	Bybit    BybitCfg    `yaml:"bybit"`
	Telegram TelegramCfg `yaml:"telegram"`
	Redis    RedisCfg    `yaml:"redis"`
	Metrics  MetricsCfg  `yaml:"metrics"`

	JournalFile string `yaml:"journal_file"`
}

// Load reads the YAML config (the path may be empty to run on env/defaults
// alone), overlays the environment and fills defaults.
func Load(path string) (*Config, error) {
	var c Config
	c.Testnet = true
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("TESTNET_MODE"); ok {
		c.Testnet = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("DEBUG_MODE"); ok {
		c.Debug = strings.EqualFold(v, "true")
	}
	if c.Testnet {
		envStr("BYBIT_TESTNET_API_KEY", &c.Bybit.ApiKey)
		envStr("BYBIT_TESTNET_API_SECRET", &c.Bybit.ApiSecret)
		envF64("TESTNET_TARGET_VOLUME", &c.Trade.TargetVolumeUSDT)
		envF64("TESTNET_MIN_PROFIT", &c.Trade.MinProfit)
	} else {
		envStr("BYBIT_MAINNET_API_KEY", &c.Bybit.ApiKey)
		envStr("BYBIT_MAINNET_API_SECRET", &c.Bybit.ApiSecret)
		envF64("MAINNET_TARGET_VOLUME", &c.Trade.TargetVolumeUSDT)
		envF64("MAINNET_MIN_PROFIT", &c.Trade.MinProfit)
	}
	envStr("TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	envInt("SCAN_INTERVAL", &c.Limits.ScanIntervalSec)
	envInt("MAX_TRADES_PER_MINUTE", &c.Limits.MaxTradesPerMinute)
	envInt("MAX_TRADES_PER_HOUR", &c.Limits.MaxTradesPerHour)
	envInt("MAX_TRADES_PER_DAY", &c.Limits.MaxTradesPerDay)
}

func (c *Config) applyDefaults() {
	if c.Trade.TargetVolumeUSDT == 0 {
		if c.Testnet {
			c.Trade.TargetVolumeUSDT = 10
		} else {
			c.Trade.TargetVolumeUSDT = 100
		}
	}
	if c.Trade.MinProfit == 0 {
		if c.Testnet {
			c.Trade.MinProfit = 0.01
		} else {
			c.Trade.MinProfit = 0.1
		}
	}
	if c.Trade.MaxProfit == 0 {
		c.Trade.MaxProfit = 5.0
	}
	if c.Trade.FeeRate == 0 {
		c.Trade.FeeRate = 0.001
	}
	if len(c.Trade.BaseCoins) == 0 {
		c.Trade.BaseCoins = []string{"USDT"}
	}
	if c.Limits.MaxTradesPerMinute == 0 {
		c.Limits.MaxTradesPerMinute = 5
	}
	if c.Limits.MaxTradesPerHour == 0 {
		c.Limits.MaxTradesPerHour = 30
	}
	if c.Limits.MaxTradesPerDay == 0 {
		c.Limits.MaxTradesPerDay = 100
	}
	if c.Limits.TriangleHoldSec == 0 {
		c.Limits.TriangleHoldSec = 5
	}
	if c.Limits.ScanIntervalSec == 0 {
		c.Limits.ScanIntervalSec = 15
	}
	if c.Limits.TriangleDelayMs == 0 {
		c.Limits.TriangleDelayMs = 500
	}
	if c.Limits.LegPauseMs == 0 {
		c.Limits.LegPauseMs = 1000
	}
	if c.Limits.MaxConcurrent == 0 {
		c.Limits.MaxConcurrent = 4
	}
	if c.Limits.OrderBookDepth == 0 {
		c.Limits.OrderBookDepth = 20
	}
	if c.Bybit.RestURL == "" {
		c.Bybit.RestURL = "https://api.bybit.com"
	}
	if c.Bybit.TestnetURL == "" {
		c.Bybit.TestnetURL = "https://api-testnet.bybit.com"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "trades:journal"
	}
	if c.JournalFile == "" {
		c.JournalFile = "trades_log.csv"
	}
}

// RestURL returns the API base for the configured network.
func (c *Config) RestURL() string {
	if c.Testnet {
		return c.Bybit.TestnetURL
	}
	return c.Bybit.RestURL
}

func (c *Config) NetworkName() string {
	if c.Testnet {
		return "Bybit Testnet"
	}
	return "Bybit Mainnet"
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Limits.ScanIntervalSec) * time.Second
}
func (c *Config) TriangleHold() time.Duration {
	return time.Duration(c.Limits.TriangleHoldSec) * time.Second
}
func (c *Config) TriangleDelay() time.Duration {
	return time.Duration(c.Limits.TriangleDelayMs) * time.Millisecond
}
func (c *Config) LegPause() time.Duration {
	return time.Duration(c.Limits.LegPauseMs) * time.Millisecond
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envF64(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

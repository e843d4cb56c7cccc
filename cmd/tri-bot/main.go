package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/you/tri-bot/internal/bot"
	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/connectors/cex/bybit"
	"github.com/you/tri-bot/internal/metrics"
	"github.com/you/tri-bot/internal/notify"
	"github.com/you/tri-bot/internal/tradelog"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml (optional, env-only works too)")
	metricsAddr := flag.String("metrics", "", "metrics listen addr (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	logger, err := bot.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	client, err := bybit.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("bybit client init failed", zap.Error(err))
	}

	notifier := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
	journal := tradelog.New(cfg, logger)
	defer journal.Close()

	logger.Info("starting",
		zap.String("network", cfg.NetworkName()),
		zap.Bool("testnet", cfg.Testnet),
		zap.Float64("target_volume_usdt", cfg.Trade.TargetVolumeUSDT),
		zap.Float64("min_profit", cfg.Trade.MinProfit),
		zap.Float64("max_profit", cfg.Trade.MaxProfit),
	)

	if err := bot.New(cfg, logger, client, notifier, journal).Run(ctx); err != nil {
		logger.Fatal("bot exited with error", zap.Error(err))
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/dnldd/klinescope/export"
	"github.com/dnldd/klinescope/fetch"
	"github.com/dnldd/klinescope/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// binanceTimeout is the timeout for each binance request.
	binanceTimeout = time.Second * 10
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	format, _ := export.ParseFormat(cfg.ExportFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scopeCfg := service.KlinescopeConfig{
		Symbols:           cfg.Symbols,
		ReferenceDate:     cfg.fetchReferenceDate(),
		Lookbacks:         cfg.Lookbacks,
		StreakMaxLength:   cfg.StreakMaxLength,
		StreakHistoryDays: cfg.StreakHistoryDays,
		RankLimit:         cfg.RankLimit,
		SkipDegenerate:    cfg.SkipDegenerate,
		Workers:           cfg.Workers,
		DBPath:            cfg.DBPath,
		DataDir:           cfg.DataDir,
		Sync:              cfg.Sync,
		BackfillDays:      cfg.BackfillDays,
		Binance: fetch.BinanceConfig{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecret,
			BaseURL:    cfg.BinanceBaseURL,
			QuoteAsset: cfg.QuoteAsset,
			Timeout:    binanceTimeout,
		},
		Daemon:         cfg.Daemon,
		SyncTime:       cfg.SyncTime,
		ReportTime:     cfg.ReportTime,
		RqliteEndpoint: cfg.RqliteEndpoint,
		RqliteUser:     cfg.RqliteUser,
		RqlitePass:     cfg.RqlitePass,
		ExportDir:      cfg.ExportDir,
		ExportFormat:   format,
		Cancel:         cancel,
	}
	scope, err := service.NewKlinescope(ctx, &scopeCfg)
	if err != nil {
		log.Error().Msgf("creating klinescope service: %v", err)
		os.Exit(1)
	}
	defer scope.Close()

	go handleTermination(ctx, cancel)
	err = scope.Run(ctx)
	if err != nil {
		log.Error().Msgf("running klinescope service: %v", err)
	}
}

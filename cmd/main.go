package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkarpushin/papertrade/config"
	"github.com/mkarpushin/papertrade/data"
	"github.com/mkarpushin/papertrade/data/repository"
	"github.com/mkarpushin/papertrade/data/session"
	"github.com/mkarpushin/papertrade/internal/externalApi/quoteApi"
	"github.com/mkarpushin/papertrade/internal/reportGenerator/xlsxGenerator"
	"github.com/mkarpushin/papertrade/internal/scheduler"
	"github.com/mkarpushin/papertrade/internal/service/tradingService"
	"github.com/mkarpushin/papertrade/internal/transport/webserver"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := repository.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisSession := session.NewRedisSession(redisClient, cfg)

	quoteApiClient := quoteApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	startingCash, err := decimal.NewFromString(cfg.StartingCash)
	if err != nil {
		slog.Error("invalid STARTING_CASH", slog.String("err", err.Error()))
		panic(err)
	}

	tradingSrv := tradingService.New(pgRepo, quoteApiClient, reportGenerator, startingCash)

	sched := scheduler.New()
	sched.NewIntervalJob("account valuation snapshot", tradingSrv.SnapshotValuations, cfg.Jobs.ValuationSnapshotInterval, false)
	sched.Start()
	defer sched.Stop()

	ctrl := webserver.NewController(tradingSrv, redisSession)

	srv := webserver.New(cfg, ctrl, redisSession)
	srv.Start()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	srv.Stop(shutdownCtx)
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}

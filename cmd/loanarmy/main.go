package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/app"
	"github.com/performlikemj/loanarmy-sub000/internal/config"
	"github.com/performlikemj/loanarmy-sub000/internal/observability"
	"github.com/performlikemj/loanarmy-sub000/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err.Error())
		os.Exit(1)
	}

	stopPyroscope, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err.Error())
		os.Exit(1)
	}

	pprofSrv, err := observability.StartPprofServer(cfg, logger)
	if err != nil {
		logger.Error("start pprof server", "error", err.Error())
		os.Exit(1)
	}

	runner, err := app.NewRunner(cfg, logger)
	if err != nil {
		logger.Error("build runner", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, runErr := runner.Detect(ctx)

	logger.Info("run summary",
		"window_key", result.WindowKey,
		"clubs_swept", result.ClubsSwept,
		"leagues", result.Leagues,
		"accepted", len(result.Accepted),
		"review", len(result.Review),
		"failures", len(result.Failures),
		"persisted", result.Persisted,
		"published", result.Published,
		"transfer_cache_active", result.TransferCache.Active,
		"stats_cache_active", result.StatsCache.Active,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if err := runner.Close(); err != nil {
		logger.Warn("close runner", "error", err.Error())
	}
	if err := observability.StopPprofServer(pprofSrv, logger, 5*time.Second); err != nil {
		logger.Warn("stop pprof server", "error", err.Error())
	}
	if err := stopPyroscope(); err != nil {
		logger.Warn("stop pyroscope", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownUptrace(shutdownCtx); err != nil {
		logger.Warn("shutdown uptrace", "error", err.Error())
	}

	if runErr != nil {
		logger.Error("detection run failed", "error", runErr.Error())
		os.Exit(1)
	}
}

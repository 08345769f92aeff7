package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/telmele/pictochat-touchgrass/internal/server"
	"github.com/telmele/pictochat-touchgrass/pkg/config"
	"github.com/telmele/pictochat-touchgrass/pkg/logging"
)

func main() {
	// .env is optional; it carries the tripcode secret in dev setups.
	_ = godotenv.Load()

	logger := logging.New(logging.ParseLevel(os.Getenv("PICTOCHAT_LOG_LEVEL")))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

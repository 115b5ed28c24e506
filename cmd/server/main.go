// Package main is the entry point for the sharpescan HTTP server.
//
// The server accepts combination search runs over a REST API, streams their
// progress over websockets and keeps the local price history fresh on a
// schedule. Configuration comes from environment variables (.env optional).
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/aristath/sharpescan/internal/app"
	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting sharpescan server")

	// Blocks until SIGINT or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

// Package app runs the long-lived sharpescan server process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/di"
	"github.com/aristath/sharpescan/internal/server"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

// Serve wires every dependency, starts the scheduler and the HTTP server, and
// blocks until ctx is cancelled or the server fails. Background runs are
// cancelled on the way out and recorded as failed.
func Serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	defer container.Close()

	var quota server.QuotaReporter
	if container.AlphaVantage != nil {
		quota = container.AlphaVantage
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Runs:      container.RunService,
		EventBus:  container.EventBus,
		Metrics:   container.Metrics.Handler(),
		Databases: container.Databases(),
		Quota:     quota,
	})

	container.Scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("HTTP server failed")
	}

	container.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.RunService.Shutdown()
	log.Info().Msg("Server stopped")
	return serveErr
}

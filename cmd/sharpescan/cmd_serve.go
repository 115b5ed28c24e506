package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/sharpescan/internal/app"
)

// serveCmd runs the HTTP API and scheduler
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	Long: `Serve the run API (/api/runs), run progress streams, /metrics and the
scheduled price sync and maintenance jobs until interrupted.

Examples:
  sharpescan serve
  sharpescan serve --port 9000`,
	RunE: runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting sharpescan server")
	return app.Serve(ctx, cfg, log)
}

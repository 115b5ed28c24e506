// Package main is the sharpescan command line: combination searches, price
// downloads and the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/pkg/logger"
)

var (
	logLevel  string
	logPretty bool
)

// rootCmd is the base command for the sharpescan CLI
var rootCmd = &cobra.Command{
	Use:   "sharpescan",
	Short: "Max-Sharpe portfolio search over asset combinations",
	Long: `sharpescan enumerates fixed-size subsets of a ticker universe, samples
capped long-only weightings for each, and reports the allocation with the
highest annualized Sharpe ratio, optionally backtesting it out of sample.

Configuration is read from the environment (.env optional); run profiles
are YAML files (see 'sharpescan profile').`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Human-readable console logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger, applying the persistent
// flags over the environment. Logs go to stderr so stdout stays clean.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.LogPretty = logPretty
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, log, nil
}

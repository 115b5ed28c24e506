package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/di"
	"github.com/aristath/sharpescan/internal/progress"
)

// simulateCmd runs a combination search in the foreground
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a combination search and write its results",
	Long: `Run a combination search for a profile (the Dow 30 study by default),
write bestPortfolios.csv and results.txt to the output directory, and
print the summary.

Examples:
  sharpescan simulate
  sharpescan simulate --profile study.yaml --workers 8
  sharpescan simulate --limit 1000 --trials 200 --seed 42 --backtest=false`,
	RunE: runSimulate,
}

// Simulate command flags
var (
	simProfilePath string
	simOutDir      string
	simWorkers     int
	simTrials      int
	simLimit       int
	simSeed        uint64
	simBacktest    bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simProfilePath, "profile", "", "Run profile YAML (default: built-in Dow 30 study)")
	simulateCmd.Flags().StringVar(&simOutDir, "out", "", "Output root; each run writes to <out>/<run id> (default: $SHARPESCAN_DATA_DIR/results)")
	simulateCmd.Flags().IntVar(&simWorkers, "workers", 0, "Worker goroutines (default: one per logical CPU)")
	simulateCmd.Flags().IntVar(&simTrials, "trials", 0, "Weight samples per combination")
	simulateCmd.Flags().IntVar(&simLimit, "limit", 0, "Maximum combinations to evaluate")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Random seed")
	simulateCmd.Flags().BoolVar(&simBacktest, "backtest", true, "Backtest the best allocation on the out-of-sample window")
}

// simulateOverrides are the profile fields set on the command line.
type simulateOverrides struct {
	trials, limit *int
	seed          *uint64
	backtest      *bool
}

// applyOverrides returns profile with the given overrides applied.
func applyOverrides(profile config.Profile, o simulateOverrides) config.Profile {
	if o.trials != nil {
		profile.TrialsPerCombination = *o.trials
	}
	if o.limit != nil {
		profile.ComboLimit = *o.limit
	}
	if o.seed != nil {
		profile.Seed = *o.seed
	}
	if o.backtest != nil && !*o.backtest {
		profile.OutOfSample = nil
	}
	return profile
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	profile := config.DefaultProfile()
	if simProfilePath != "" {
		if profile, err = config.LoadProfile(simProfilePath); err != nil {
			return err
		}
	}

	var o simulateOverrides
	flags := cmd.Flags()
	if flags.Changed("trials") {
		o.trials = &simTrials
	}
	if flags.Changed("limit") {
		o.limit = &simLimit
	}
	if flags.Changed("seed") {
		o.seed = &simSeed
	}
	if flags.Changed("backtest") {
		o.backtest = &simBacktest
	}
	profile = applyOverrides(profile, o)

	if simOutDir != "" {
		abs, err := filepath.Abs(simOutDir)
		if err != nil {
			return fmt.Errorf("failed to resolve output directory: %w", err)
		}
		cfg.OutputDir = abs
	}
	if simWorkers > 0 {
		cfg.Workers = simWorkers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.InitializeDatabases(cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()
	if err := di.InitializeServices(ctx, container, cfg, log); err != nil {
		return err
	}

	log.Info().
		Str("profile", profile.Name).
		Int("tickers", len(profile.Tickers)).
		Int("combo_size", profile.ComboSize).
		Int("workers", container.WorkerPool.Workers()).
		Msg("Starting simulation")

	outcome, err := container.RunService.Execute(ctx, profile, percentReporter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", outcome.Run.ID)
	for _, line := range outcome.Summary.Lines() {
		fmt.Fprintln(out, line)
	}
	return nil
}

// percentReporter prints whole-percent progress updates to w.
func percentReporter(w io.Writer) progress.Callback {
	last := -1
	return func(current, total int, _ string) {
		if total <= 0 {
			return
		}
		pct := current * 100 / total
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rEvaluated %d/%d combinations (%d%%)", current, total, pct)
		if current == total {
			fmt.Fprintln(w)
		}
	}
}

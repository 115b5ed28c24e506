package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/di"
	"github.com/aristath/sharpescan/internal/modules/historical"
)

// fetchCmd downloads daily closes into a wide CSV file
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download daily closes and write them as a wide CSV",
	Long: `Load daily closes for the given tickers through the price provider chain
(API cache, Alpha Vantage, local history) and write them as a
Date,T1,T2,... CSV usable as a profile's csv_path.

Examples:
  sharpescan fetch --tickers AAPL,MSFT,JPM --start 2024-08-01 --end 2024-12-31 --csv data/in.csv`,
	RunE: runFetch,
}

// Fetch command flags
var (
	fetchTickers []string
	fetchStart   string
	fetchEnd     string
	fetchCSV     string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringSliceVar(&fetchTickers, "tickers", nil, "Comma-separated tickers (default: Dow 30)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "First date, YYYY-MM-DD")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "Last date, YYYY-MM-DD")
	fetchCmd.Flags().StringVar(&fetchCSV, "csv", "", "Output CSV path")
	_ = fetchCmd.MarkFlagRequired("start")
	_ = fetchCmd.MarkFlagRequired("end")
	_ = fetchCmd.MarkFlagRequired("csv")
}

func runFetch(cmd *cobra.Command, args []string) error {
	start, end, err := config.Window{Start: fetchStart, End: fetchEnd}.Range()
	if err != nil {
		return err
	}
	tickers := normalizeTickers(fetchTickers)
	if len(tickers) == 0 {
		tickers = config.Dow30
	}

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
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

	series, err := container.PriceLoader.LoadAll(ctx, tickers, start, end, "")
	if err != nil {
		return err
	}
	if err := historical.WriteWideCSV(fetchCSV, series, tickers); err != nil {
		return err
	}

	rows := 0
	for _, t := range tickers {
		rows = max(rows, len(series[t]))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tickers (%d dates max) to %s\n", len(tickers), rows, fetchCSV)
	return nil
}

// normalizeTickers upper-cases, trims and de-duplicates tickers, keeping order.
func normalizeTickers(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

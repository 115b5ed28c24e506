package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/sharpescan/internal/clients/alphavantage"
)

// quoteCmd prints latest quotes from Alpha Vantage
var quoteCmd = &cobra.Command{
	Use:   "quote TICKER...",
	Short: "Print the latest quote for each ticker",
	Long: `Print the latest Alpha Vantage quote for each ticker. Each ticker costs one
request from the daily quota.

Examples:
  sharpescan quote AAPL MSFT`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuote,
}

var quoteTimeout time.Duration

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().DurationVar(&quoteTimeout, "timeout", 2*time.Minute, "Overall timeout")
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.AlphaVantage.APIKey == "" {
		return fmt.Errorf("ALPHAVANTAGE_API_KEY is not set")
	}

	client := alphavantage.NewClient(cfg.AlphaVantage.APIKey, log,
		alphavantage.WithDailyLimit(cfg.AlphaVantage.DailyLimit),
		alphavantage.WithPerMinute(cfg.AlphaVantage.PerMinute),
	)

	ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
	defer cancel()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tCHANGE\tDAY")
	for _, symbol := range normalizeTickers(args) {
		q, err := client.GetGlobalQuote(ctx, symbol)
		if err != nil {
			w.Flush()
			return fmt.Errorf("%s: %w", symbol, err)
		}
		fmt.Fprintf(w, "%s\t%.2f\t%+.2f%%\t%s\n", q.Symbol, q.Price, q.ChangePercent, q.LatestTradingDay.Format("2006-01-02"))
	}
	return w.Flush()
}

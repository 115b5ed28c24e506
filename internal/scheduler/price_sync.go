package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PriceSyncJob keeps the price history of a ticker universe current so runs
// can start without waiting on the API.
type PriceSyncJob struct {
	refresher PriceRefresher
	tickers   []string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewPriceSyncJob creates a price sync job for tickers.
func NewPriceSyncJob(refresher PriceRefresher, tickers []string, timeout time.Duration, log zerolog.Logger) *PriceSyncJob {
	return &PriceSyncJob{
		refresher: refresher,
		tickers:   append([]string(nil), tickers...),
		timeout:   timeout,
		log:       log.With().Str("job", "price_sync").Logger(),
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Run refreshes every ticker. Tickers left over when the API quota runs out
// are picked up by the next run.
func (j *PriceSyncJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	refreshed, err := j.refresher.Refresh(ctx, j.tickers)
	if err != nil {
		j.log.Error().Err(err).Int("refreshed", refreshed).Msg("Price sync incomplete")
		return err
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("tickers", len(j.tickers)).
		Dur("duration_ms", time.Since(start)).
		Msg("Price sync completed")
	return nil
}

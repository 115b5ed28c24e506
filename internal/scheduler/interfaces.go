package scheduler

import "context"

// PriceRefresher downloads and stores the latest prices for tickers.
type PriceRefresher interface {
	Refresh(ctx context.Context, tickers []string) (int, error)
}

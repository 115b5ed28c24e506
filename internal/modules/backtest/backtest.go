// Package backtest scores a fixed allocation over a later price window.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/historical"
	"github.com/aristath/sharpescan/internal/modules/risk"
)

// Holding is one position of an allocation.
type Holding struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// Holdings pairs the tickers of a combination with its weights, in
// combination order.
func Holdings(c domain.Combination, weights domain.WeightVector, universe []string) ([]Holding, error) {
	if c.Len() != len(weights) {
		return nil, fmt.Errorf("%w: %d weights for %d assets", domain.ErrMisalignedSeries, len(weights), c.Len())
	}
	tickers, err := c.Tickers(universe)
	if err != nil {
		return nil, err
	}
	out := make([]Holding, len(tickers))
	for i, t := range tickers {
		out[i] = Holding{Ticker: t, Weight: weights[i]}
	}
	return out, nil
}

// Result is the out-of-sample performance of an allocation.
type Result struct {
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Days     int          `json:"days"`
	Holdings []Holding    `json:"holdings"`
	Metrics  risk.Metrics `json:"metrics"`
}

// Evaluate scores holdings against aligned prices. The aligned tickers must
// be the holdings' tickers in the same order.
func Evaluate(aligned *historical.Aligned, holdings []Holding, riskFreeRate float64) (*Result, error) {
	if len(holdings) == 0 {
		return nil, fmt.Errorf("%w: no holdings", domain.ErrInvalidParameter)
	}
	if len(aligned.Tickers) != len(holdings) {
		return nil, fmt.Errorf("%w: %d price columns for %d holdings", domain.ErrMisalignedSeries, len(aligned.Tickers), len(holdings))
	}
	weights := make(domain.WeightVector, len(holdings))
	for i, h := range holdings {
		if aligned.Tickers[i] != h.Ticker {
			return nil, fmt.Errorf("%w: column %d is %s, holding is %s", domain.ErrMisalignedSeries, i, aligned.Tickers[i], h.Ticker)
		}
		weights[i] = h.Weight
	}

	m, err := aligned.ReturnsMatrix()
	if err != nil {
		return nil, err
	}
	daily, err := risk.PortfolioDailyReturn(m, weights)
	if err != nil {
		return nil, err
	}
	metrics, err := risk.Summarize(daily, riskFreeRate)
	if err != nil {
		return nil, err
	}

	return &Result{
		Start:    aligned.Dates[0],
		End:      aligned.Dates[len(aligned.Dates)-1],
		Days:     len(daily),
		Holdings: append([]Holding(nil), holdings...),
		Metrics:  metrics,
	}, nil
}

// PriceLoader supplies price series for a window.
type PriceLoader interface {
	LoadAll(ctx context.Context, tickers []string, start, end time.Time, csvPath string) (domain.PriceSeries, error)
}

// Backtester loads prices for the held tickers only and evaluates the allocation.
type Backtester struct {
	loader PriceLoader
	log    zerolog.Logger
}

// NewBacktester creates a backtester.
func NewBacktester(loader PriceLoader, log zerolog.Logger) *Backtester {
	return &Backtester{
		loader: loader,
		log:    log.With().Str("component", "backtest").Logger(),
	}
}

// Run evaluates holdings over [start, end].
func (b *Backtester) Run(ctx context.Context, holdings []Holding, start, end time.Time, csvPath string, riskFreeRate float64) (*Result, error) {
	tickers := make([]string, len(holdings))
	for i, h := range holdings {
		tickers[i] = h.Ticker
	}

	series, err := b.loader.LoadAll(ctx, tickers, start, end, csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest prices: %w", err)
	}
	aligned, err := historical.Align(series, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to align backtest prices: %w", err)
	}

	result, err := Evaluate(aligned, holdings, riskFreeRate)
	if err != nil {
		return nil, err
	}

	b.log.Info().
		Time("start", result.Start).
		Time("end", result.End).
		Int("days", result.Days).
		Float64("sharpe", result.Metrics.Sharpe).
		Msg("Backtest complete")
	return result, nil
}

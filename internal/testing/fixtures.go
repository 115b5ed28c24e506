package testing

import (
	"math/rand/v2"
	"time"

	"github.com/aristath/sharpescan/internal/domain"
)

// TradingDays returns n consecutive weekdays starting at start (or the next
// weekday when start falls on a weekend).
func TradingDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := start
	for len(days) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

// NewPriceFixtures builds a deterministic random-walk price series for every
// ticker over n trading days from start.
func NewPriceFixtures(tickers []string, start time.Time, n int, seed uint64) domain.PriceSeries {
	days := TradingDays(start, n)
	series := make(domain.PriceSeries, len(tickers))
	for i, ticker := range tickers {
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		price := 50 + 100*rng.Float64()
		points := make([]domain.PricePoint, n)
		for d, day := range days {
			points[d] = domain.PricePoint{Date: day, Ticker: ticker, Price: price}
			price *= 1 + (rng.Float64()-0.48)*0.04
		}
		series[ticker] = points
	}
	return series
}

// Date parses a YYYY-MM-DD literal and panics on malformed input.
func Date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

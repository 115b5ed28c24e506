package historical

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/returns"
)

// Aligned holds price columns sharing one date axis.
type Aligned struct {
	Tickers []string
	Dates   []time.Time
	// Prices[a][d] is the close of Tickers[a] on Dates[d].
	Prices [][]float64
}

// Align keeps the trading dates present for every ticker and lays the
// prices out as columns in ticker order. Duplicate dates within a series
// keep the last price.
func Align(series domain.PriceSeries, tickers []string) (*Aligned, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers to align", domain.ErrInsufficientData)
	}

	var missing []string
	byTicker := make([]map[time.Time]float64, len(tickers))
	counts := make(map[time.Time]int)
	for a, ticker := range tickers {
		points := series[ticker]
		if len(points) == 0 {
			missing = append(missing, ticker)
			continue
		}
		m := make(map[time.Time]float64, len(points))
		for _, p := range points {
			if _, seen := m[p.Date]; !seen {
				counts[p.Date]++
			}
			m[p.Date] = p.Price
		}
		byTicker[a] = m
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no prices for %s", domain.ErrInsufficientData, strings.Join(missing, ", "))
	}

	dates := make([]time.Time, 0, len(counts))
	for d, n := range counts {
		if n == len(tickers) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) < 2 {
		return nil, fmt.Errorf("%w: only %d common trading days across %d tickers",
			domain.ErrInsufficientData, len(dates), len(tickers))
	}

	prices := make([][]float64, len(tickers))
	for a := range tickers {
		col := make([]float64, len(dates))
		for d, date := range dates {
			col[d] = byTicker[a][date]
		}
		prices[a] = col
	}

	return &Aligned{
		Tickers: append([]string(nil), tickers...),
		Dates:   dates,
		Prices:  prices,
	}, nil
}

// Days returns the number of aligned trading days.
func (a *Aligned) Days() int { return len(a.Dates) }

// ReturnsMatrix converts the aligned prices into a day-by-asset returns matrix.
func (a *Aligned) ReturnsMatrix() (*returns.Matrix, error) {
	return returns.FromPrices(a.Prices)
}

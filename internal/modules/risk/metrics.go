// Package risk computes portfolio-level return and risk statistics from
// daily return series: annualized return, annualized volatility and Sharpe.
package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/returns"
)

const (
	// TradingDaysPerYear is the annualization factor for daily statistics.
	TradingDaysPerYear = 252

	// ZeroVolatility is the annualized volatility at or below which a series
	// is treated as riskless. Constant series leave rounding residue in the
	// sample variance, so an exact comparison with zero is not enough.
	ZeroVolatility = 1e-12
)

// Metrics summarizes a daily return series.
type Metrics struct {
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	Sharpe               float64 `json:"sharpe"`
}

// PortfolioDailyReturn returns, for every day, the weighted sum of the asset
// returns in m. The matrix must already be restricted to the weighted columns.
func PortfolioDailyReturn(m *returns.Matrix, weights domain.WeightVector) ([]float64, error) {
	if len(weights) == 0 || m.Assets() != len(weights) {
		return nil, fmt.Errorf("%w: %d weights for %d assets", domain.ErrMisalignedSeries, len(weights), m.Assets())
	}
	var out mat.VecDense
	out.MulVec(m.Dense(), mat.NewVecDense(len(weights), weights))
	return out.RawVector().Data, nil
}

// AnnualizedReturn is the arithmetic mean of daily returns times 252.
func AnnualizedReturn(daily []float64) (float64, error) {
	if len(daily) == 0 {
		return 0, fmt.Errorf("annualized return: %w", domain.ErrEmptySeries)
	}
	return stat.Mean(daily, nil) * TradingDaysPerYear, nil
}

// AnnualizedVolatility is the sample standard deviation (N-1) of daily
// returns times sqrt(252). A single observation has zero deviation.
func AnnualizedVolatility(daily []float64) (float64, error) {
	if len(daily) == 0 {
		return 0, fmt.Errorf("annualized volatility: %w", domain.ErrEmptySeries)
	}
	if len(daily) == 1 {
		return 0, nil
	}
	return stat.StdDev(daily, nil) * math.Sqrt(TradingDaysPerYear), nil
}

// SharpeRatio is (annReturn - riskFreeRate) / annVolatility.
//
// A riskless series (volatility at or below ZeroVolatility) scores 0 rather
// than +/-Inf: it carries no risk-adjusted signal, and an infinite score would
// win every comparison in the search.
func SharpeRatio(annReturn, annVolatility, riskFreeRate float64) float64 {
	if annVolatility <= ZeroVolatility {
		return 0
	}
	return (annReturn - riskFreeRate) / annVolatility
}

// Summarize computes all metrics of a daily series in one pass over the data.
func Summarize(daily []float64, riskFreeRate float64) (Metrics, error) {
	switch len(daily) {
	case 0:
		return Metrics{}, fmt.Errorf("summarize: %w", domain.ErrEmptySeries)
	case 1:
		ret := daily[0] * TradingDaysPerYear
		return Metrics{AnnualizedReturn: ret, Sharpe: SharpeRatio(ret, 0, riskFreeRate)}, nil
	}

	mean, std := stat.MeanStdDev(daily, nil)
	m := Metrics{
		AnnualizedReturn:     mean * TradingDaysPerYear,
		AnnualizedVolatility: std * math.Sqrt(TradingDaysPerYear),
	}
	m.Sharpe = SharpeRatio(m.AnnualizedReturn, m.AnnualizedVolatility, riskFreeRate)
	return m, nil
}

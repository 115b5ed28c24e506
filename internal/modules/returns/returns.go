// Package returns turns price sequences into daily return series and builds
// the day-by-asset returns matrix consumed by the simulation engine.
package returns

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/sharpescan/internal/domain"
)

// DailyReturns converts an ordered price sequence into simple daily returns.
// Element i is (prices[i+1]-prices[i]) / prices[i].
func DailyReturns(prices []float64) (domain.ReturnSeries, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 prices, got %d", domain.ErrInsufficientData, len(prices))
	}

	out := make(domain.ReturnSeries, len(prices)-1)
	for i := 0; i < len(prices)-1; i++ {
		prev := prices[i]
		if prev <= 0 || prices[i+1] <= 0 {
			return nil, fmt.Errorf("%w: non-positive price at day %d", domain.ErrInsufficientData, i)
		}
		out[i] = (prices[i+1] - prev) / prev
	}
	return out, nil
}

// Matrix is a rectangular [day][asset] returns matrix. It is read-only once
// built and safe for concurrent readers.
type Matrix struct {
	dense *mat.Dense
}

// BuildReturnsMatrix lays per-asset return series out as matrix columns.
// Every series must have the same length; callers align by trading day first.
func BuildReturnsMatrix(series []domain.ReturnSeries) (*Matrix, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no return series", domain.ErrInsufficientData)
	}

	days := len(series[0])
	if days == 0 {
		return nil, fmt.Errorf("%w: empty return series", domain.ErrInsufficientData)
	}
	for a, s := range series {
		if len(s) != days {
			return nil, fmt.Errorf("%w: asset %d has %d days, asset 0 has %d", domain.ErrMisalignedSeries, a, len(s), days)
		}
	}

	dense := mat.NewDense(days, len(series), nil)
	for a, s := range series {
		dense.SetCol(a, s)
	}
	return &Matrix{dense: dense}, nil
}

// FromPrices converts aligned per-asset price columns into a returns matrix.
func FromPrices(columns [][]float64) (*Matrix, error) {
	series := make([]domain.ReturnSeries, len(columns))
	for a, prices := range columns {
		r, err := DailyReturns(prices)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", a, err)
		}
		series[a] = r
	}
	return BuildReturnsMatrix(series)
}

// NewMatrix builds a Matrix from row-major [day][asset] data.
func NewMatrix(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", domain.ErrInsufficientData)
	}
	cols := len(rows[0])
	dense := mat.NewDense(len(rows), cols, nil)
	for d, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: day %d has %d assets, expected %d", domain.ErrMisalignedSeries, d, len(row), cols)
		}
		dense.SetRow(d, row)
	}
	return &Matrix{dense: dense}, nil
}

// Days returns the number of rows.
func (m *Matrix) Days() int {
	r, _ := m.dense.Dims()
	return r
}

// Assets returns the number of columns.
func (m *Matrix) Assets() int {
	_, c := m.dense.Dims()
	return c
}

// At returns the return of asset a on day d.
func (m *Matrix) At(d, a int) float64 {
	return m.dense.At(d, a)
}

// Row returns a copy of day d across all assets.
func (m *Matrix) Row(d int) []float64 {
	return mat.Row(nil, d, m.dense)
}

// Dense exposes the matrix for read-only linear algebra.
func (m *Matrix) Dense() mat.Matrix {
	return m.dense
}

// Columns copies the columns of a combination into a new days x k matrix.
func (m *Matrix) Columns(c domain.Combination) (*Matrix, error) {
	days, assets := m.dense.Dims()
	sub := mat.NewDense(days, c.Len(), nil)
	col := make([]float64, days)
	for j := 0; j < c.Len(); j++ {
		idx := c.At(j)
		if idx >= assets {
			return nil, fmt.Errorf("%w: asset index %d outside matrix of %d assets", domain.ErrMisalignedSeries, idx, assets)
		}
		mat.Col(col, idx, m.dense)
		sub.SetCol(j, col)
	}
	return &Matrix{dense: sub}, nil
}

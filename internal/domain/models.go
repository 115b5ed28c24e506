// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// WeightTolerance is the absolute tolerance used when checking that a
// weight vector sums to one and respects its cap.
const WeightTolerance = 1e-9

// PricePoint is a single closing price for a ticker on a trading day.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Price  float64   `json:"price"`
}

// PriceSeries maps a ticker to its price points sorted ascending by date.
type PriceSeries map[string][]PricePoint

// Prices extracts the raw price values of a series, preserving order.
func Prices(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// ReturnSeries is an ordered sequence of daily simple returns.
// Index i is the return realized between day i and day i+1 of the source prices.
type ReturnSeries []float64

// WeightVector holds portfolio weights aligned positionally with a Combination.
type WeightVector []float64

// Sum returns the total of all weights.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Validate checks the capped-simplex invariants: every weight in [0, maxPct]
// and the weights summing to one, both within WeightTolerance.
func (w WeightVector) Validate(maxPct float64) error {
	if len(w) == 0 {
		return fmt.Errorf("%w: empty weight vector", ErrInvalidParameter)
	}
	for i, v := range w {
		if math.IsNaN(v) || v < -WeightTolerance || v > maxPct+WeightTolerance {
			return fmt.Errorf("%w: weight[%d]=%g outside [0, %g]", ErrInvalidParameter, i, v, maxPct)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %g", ErrInvalidParameter, sum)
	}
	return nil
}

// Combination is a strictly increasing sequence of 0-based asset indices into
// the full universe. It is a value type: the wrapped slice is never shared.
type Combination struct {
	indices []int
}

// NewCombination builds a Combination from indices, which must be
// non-negative and strictly increasing.
func NewCombination(indices ...int) (Combination, error) {
	for i, idx := range indices {
		if idx < 0 {
			return Combination{}, fmt.Errorf("%w: negative index %d", ErrInvalidParameter, idx)
		}
		if i > 0 && idx <= indices[i-1] {
			return Combination{}, fmt.Errorf("%w: indices not strictly increasing at position %d", ErrInvalidParameter, i)
		}
	}
	return Combination{indices: slices.Clone(indices)}, nil
}

// MustCombination is NewCombination for literals known to be valid.
func MustCombination(indices ...int) Combination {
	c, err := NewCombination(indices...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the combination size.
func (c Combination) Len() int { return len(c.indices) }

// At returns the i-th asset index.
func (c Combination) At(i int) int { return c.indices[i] }

// Indices returns a copy of the asset indices.
func (c Combination) Indices() []int { return slices.Clone(c.indices) }

// Equal reports whether two combinations hold the same indices.
func (c Combination) Equal(other Combination) bool {
	return slices.Equal(c.indices, other.indices)
}

// Compare orders combinations lexicographically by their index sequences.
func (c Combination) Compare(other Combination) int {
	return slices.Compare(c.indices, other.indices)
}

// Key returns a stable string identity, e.g. "0-1-4".
func (c Combination) Key() string {
	parts := make([]string, len(c.indices))
	for i, idx := range c.indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, "-")
}

// String implements fmt.Stringer.
func (c Combination) String() string {
	return fmt.Sprint(c.indices)
}

// Tickers maps the combination back to ticker symbols of the universe.
func (c Combination) Tickers(universe []string) ([]string, error) {
	out := make([]string, len(c.indices))
	for i, idx := range c.indices {
		if idx >= len(universe) {
			return nil, fmt.Errorf("%w: index %d outside universe of %d", ErrInvalidParameter, idx, len(universe))
		}
		out[i] = universe[idx]
	}
	return out, nil
}

// MarshalJSON encodes the combination as a plain index array.
func (c Combination) MarshalJSON() ([]byte, error) {
	if c.indices == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.indices)
}

// UnmarshalJSON decodes an index array, enforcing the ordering invariant.
func (c *Combination) UnmarshalJSON(data []byte) error {
	var indices []int
	if err := json.Unmarshal(data, &indices); err != nil {
		return err
	}
	decoded, err := NewCombination(indices...)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// CombinationResult is the best allocation found for one enumerated combination.
type CombinationResult struct {
	Rank        int          `json:"rank"`
	Combination Combination  `json:"combination"`
	BestWeights WeightVector `json:"best_weights"`
	BestSharpe  float64      `json:"best_sharpe"`
}

// Package combinations enumerates fixed-size index subsets of an asset
// universe in lexicographic order.
package combinations

import (
	"fmt"
	"iter"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/aristath/sharpescan/internal/domain"
)

// Count returns C(n, k), saturating at math.MaxInt when the exact value does
// not fit in an int.
func Count(n, k int) int {
	if k < 0 || n < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	// GeneralizedBinomial works in log space; use it to rule out overflow
	// cheaply and compute the exact value multiplicatively.
	if combin.GeneralizedBinomial(float64(n), float64(k)) > math.MaxInt64/2 {
		return math.MaxInt
	}
	c := uint64(1)
	for i := 1; i <= k; i++ {
		hi, lo := bits.Mul64(c, uint64(n-k+i))
		if hi != 0 {
			return math.MaxInt
		}
		c = lo / uint64(i)
	}
	if c > math.MaxInt {
		return math.MaxInt
	}
	return int(c)
}

// Enumerator walks the k-subsets of {0..n-1} in lexicographic order, stopping
// after limit subsets. It holds only the current index run, never the full
// combination space.
type Enumerator struct {
	n, k    int
	limit   int
	emitted int
	current []int
	done    bool
}

// NewEnumerator validates n, k and limit and returns an enumerator positioned
// before the first combination.
func NewEnumerator(n, k, limit int) (*Enumerator, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: universe size must be positive, got %d", domain.ErrInvalidParameter, n)
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("%w: combination size %d outside [1, %d]", domain.ErrInvalidParameter, k, n)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative, got %d", domain.ErrInvalidParameter, limit)
	}
	e := &Enumerator{n: n, k: k, limit: limit, current: make([]int, k)}
	e.Reset()
	return e, nil
}

// Reset rewinds the enumerator to the first combination.
func (e *Enumerator) Reset() {
	for i := range e.current {
		e.current[i] = i
	}
	e.emitted = 0
	e.done = e.limit == 0
}

// Total is the number of combinations the enumerator yields: min(limit, C(n, k)).
func (e *Enumerator) Total() int {
	return min(e.limit, Count(e.n, e.k))
}

// Next returns the next combination and false once the sequence is exhausted.
func (e *Enumerator) Next() (domain.Combination, bool) {
	if e.done {
		return domain.Combination{}, false
	}
	c := domain.MustCombination(e.current...)
	e.emitted++
	if e.emitted >= e.limit || !e.advance() {
		e.done = true
	}
	return c, true
}

// advance moves current to its lexicographic successor. It returns false when
// current was the last combination.
func (e *Enumerator) advance() bool {
	// Rightmost position that can still move without colliding with the run
	// to its right.
	i := e.k - 1
	for i >= 0 && e.current[i] == e.n-e.k+i {
		i--
	}
	if i < 0 {
		return false
	}
	e.current[i]++
	for j := i + 1; j < e.k; j++ {
		e.current[j] = e.current[j-1] + 1
	}
	return true
}

// All yields (rank, combination) pairs from the first combination. Each call
// starts a fresh walk, so the sequence can be ranged over any number of times.
func (e *Enumerator) All() iter.Seq2[int, domain.Combination] {
	n, k, limit := e.n, e.k, e.limit
	return func(yield func(int, domain.Combination) bool) {
		walk := &Enumerator{n: n, k: k, limit: limit, current: make([]int, k)}
		walk.Reset()
		for rank := 0; ; rank++ {
			c, ok := walk.Next()
			if !ok || !yield(rank, c) {
				return
			}
		}
	}
}

const preallocLimit = 1 << 16

// FirstKCombinations returns up to limit k-subsets of {0..n-1} in
// lexicographic order.
func FirstKCombinations(n, k, limit int) ([]domain.Combination, error) {
	e, err := NewEnumerator(n, k, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Combination, 0, min(e.Total(), preallocLimit))
	for _, c := range e.All() {
		out = append(out, c)
	}
	return out, nil
}

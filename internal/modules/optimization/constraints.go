// Package optimization provides capped-simplex weight sampling for the
// combination search.
package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/sharpescan/internal/domain"
)

const (
	// MaxConcentration is the default cap per security (20%).
	MaxConcentration = 0.20

	// MaxRedistributionIterations bounds the water-filling loop.
	MaxRedistributionIterations = 100

	// capTolerance is how far above the cap a weight may sit and still count as capped.
	capTolerance = 1e-12
)

// CheckCap validates maxPct for n assets. The cap must lie in (0, 1] and be
// large enough for n capped weights to reach a total of one.
func CheckCap(n int, maxPct float64) error {
	if n <= 0 {
		return fmt.Errorf("%w: asset count must be positive, got %d", domain.ErrInvalidParameter, n)
	}
	if math.IsNaN(maxPct) || maxPct <= 0 || maxPct > 1 {
		return fmt.Errorf("%w: maxPct %g outside (0, 1]", domain.ErrInvalidParameter, maxPct)
	}
	if maxPct*float64(n) < 1-capTolerance {
		return fmt.Errorf("%w: %d assets capped at %.4f cannot sum to 1", domain.ErrInfeasibleCap, n, maxPct)
	}
	return nil
}

// MinFeasibleCap is the smallest cap for which n assets can sum to one.
func MinFeasibleCap(n int) float64 {
	if n <= 0 {
		return math.Inf(1)
	}
	return 1 / float64(n)
}

package optimization

import (
	"fmt"

	"github.com/aristath/sharpescan/internal/domain"
)

// Source supplies uniform draws in [0, 1). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// GenerateWeights samples a weight vector of length n from the capped simplex:
// every weight in [0, maxPct], summing to one.
//
// The sample is n uniform draws normalized by their sum, followed by
// water-filling against the cap. This is not uniform over the capped simplex
// (normalized uniforms concentrate toward the centre), which is acceptable for
// a robustness search over allocations.
func GenerateWeights(n int, maxPct float64, rng Source) (domain.WeightVector, error) {
	s, err := NewSampler(n, maxPct)
	if err != nil {
		return nil, err
	}
	w := make(domain.WeightVector, n)
	if err := s.Sample(w, rng); err != nil {
		return nil, err
	}
	return w, nil
}

// Sampler draws capped-simplex weight vectors of a fixed size, reusing its
// scratch space between draws. A Sampler is not safe for concurrent use.
type Sampler struct {
	n      int
	maxPct float64
	capped []bool
}

// NewSampler validates the cap for n assets and returns a sampler.
func NewSampler(n int, maxPct float64) (*Sampler, error) {
	if err := CheckCap(n, maxPct); err != nil {
		return nil, err
	}
	return &Sampler{n: n, maxPct: maxPct, capped: make([]bool, n)}, nil
}

// Size returns the length of the vectors this sampler produces.
func (s *Sampler) Size() int { return s.n }

// Sample overwrites dst, which must have length Size(), with a fresh draw.
func (s *Sampler) Sample(dst domain.WeightVector, rng Source) error {
	if len(dst) != s.n {
		return fmt.Errorf("%w: destination has %d slots, sampler size %d", domain.ErrInvalidParameter, len(dst), s.n)
	}

	sum := 0.0
	for i := range dst {
		v := rng.Float64()
		if !(v >= 0 && v < 1) {
			return fmt.Errorf("%w: random source produced %g outside [0, 1)", domain.ErrInvalidParameter, v)
		}
		dst[i] = v
		sum += v
	}
	if sum > 0 {
		for i := range dst {
			dst[i] /= sum
		}
	} else {
		for i := range dst {
			dst[i] = 1 / float64(s.n)
		}
	}

	return waterFill(dst, s.maxPct, s.capped)
}

// waterFill clips every weight above maxPct and spreads the clipped excess over
// the uncapped weights in proportion to their size (equally when they are all
// zero), repeating until nothing exceeds the cap. Total mass is conserved and
// each round caps at least one more index, so a feasible cap converges in at
// most len(w) rounds.
func waterFill(w []float64, maxPct float64, capped []bool) error {
	for i := range capped {
		capped[i] = false
	}

	for iter := 0; iter < MaxRedistributionIterations; iter++ {
		excess := 0.0
		clipped := false
		for i, v := range w {
			if v > maxPct+capTolerance {
				excess += v - maxPct
				w[i] = maxPct
				capped[i] = true
				clipped = true
			}
		}
		if !clipped {
			clampToCap(w, maxPct)
			return nil
		}

		room := 0.0
		free := 0
		for i, v := range w {
			if !capped[i] {
				room += v
				free++
			}
		}

		if free == 0 {
			// Everything sits at the cap; only rounding residue may remain.
			if excess <= domain.WeightTolerance {
				return nil
			}
			return fmt.Errorf("%w: %.3g excess left with every weight capped", domain.ErrWeightConvergence, excess)
		}

		if room > 0 {
			scale := excess / room
			for i := range w {
				if !capped[i] {
					w[i] += w[i] * scale
				}
			}
		} else {
			share := excess / float64(free)
			for i := range w {
				if !capped[i] {
					w[i] += share
				}
			}
		}
	}

	for i, v := range w {
		if v > maxPct+capTolerance {
			return fmt.Errorf("%w: weight[%d]=%g above cap %g after %d rounds",
				domain.ErrWeightConvergence, i, v, maxPct, MaxRedistributionIterations)
		}
	}
	clampToCap(w, maxPct)
	return nil
}

func clampToCap(w []float64, maxPct float64) {
	for i, v := range w {
		if v > maxPct {
			w[i] = maxPct
		}
	}
}

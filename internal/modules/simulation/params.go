package simulation

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/optimization"
)

// DefaultTrialsPerCombination is the number of weight draws scored per
// combination when none is configured.
const DefaultTrialsPerCombination = 1000

// RNGFactory builds the random source for one combination. It must be a pure
// function of (seed, rank) for results to be reproducible.
type RNGFactory func(seed uint64, rank int) optimization.Source

// PCGFactory seeds a PCG generator from the base seed and the combination's
// rank in enumeration order.
func PCGFactory(seed uint64, rank int) optimization.Source {
	return rand.New(rand.NewPCG(seed, uint64(rank)))
}

// Params configures one combination search.
type Params struct {
	ComboSize            int        `json:"combo_size" yaml:"combo_size"`
	ComboLimit           int        `json:"combo_limit" yaml:"combo_limit"`
	MaxPct               float64    `json:"max_pct" yaml:"max_pct"`
	TrialsPerCombination int        `json:"trials_per_combination" yaml:"trials_per_combination"`
	Seed                 uint64     `json:"seed" yaml:"seed"`
	RiskFreeRate         float64    `json:"risk_free_rate" yaml:"risk_free_rate"`
	RNGFactory           RNGFactory `json:"-" yaml:"-"`
}

// DefaultParams returns the 25-of-30 search: every combination, 20% cap,
// 1000 trials each.
func DefaultParams() Params {
	return Params{
		ComboSize:            25,
		ComboLimit:           142506,
		MaxPct:               optimization.MaxConcentration,
		TrialsPerCombination: DefaultTrialsPerCombination,
		Seed:                 1,
		RNGFactory:           PCGFactory,
	}
}

// Validate checks the parameters against a universe of assetCount assets.
func (p Params) Validate(assetCount int) error {
	if assetCount <= 0 {
		return fmt.Errorf("%w: asset count must be positive, got %d", domain.ErrInvalidParameter, assetCount)
	}
	if p.ComboSize < 1 || p.ComboSize > assetCount {
		return fmt.Errorf("%w: combo size %d outside [1, %d]", domain.ErrInvalidParameter, p.ComboSize, assetCount)
	}
	if p.ComboLimit < 0 {
		return fmt.Errorf("%w: combo limit must be non-negative, got %d", domain.ErrInvalidParameter, p.ComboLimit)
	}
	if p.TrialsPerCombination < 1 {
		return fmt.Errorf("%w: trials per combination must be positive, got %d", domain.ErrInvalidParameter, p.TrialsPerCombination)
	}
	return optimization.CheckCap(p.ComboSize, p.MaxPct)
}

func (p Params) rngFactory() RNGFactory {
	if p.RNGFactory == nil {
		return PCGFactory
	}
	return p.RNGFactory
}

package domain

import "errors"

// Error kinds raised by the analytics core. All of them describe structural or
// configuration problems; none are retried and a run aborts on the first one.
var (
	// ErrInsufficientData means too few price points to compute any return.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMisalignedSeries means return series of differing lengths were combined.
	ErrMisalignedSeries = errors.New("misaligned series")
	// ErrInfeasibleCap means maxPct is too small for n assets to sum to one.
	ErrInfeasibleCap = errors.New("infeasible weight cap")
	// ErrWeightConvergence means capped-simplex redistribution did not stabilize.
	ErrWeightConvergence = errors.New("weight redistribution did not converge")
	// ErrEmptySeries means a metric was computed over no data.
	ErrEmptySeries = errors.New("empty series")
	// ErrEmptyResults means an aggregate was requested over no results.
	ErrEmptyResults = errors.New("empty results")
	// ErrInvalidParameter flags a configuration value outside its domain.
	ErrInvalidParameter = errors.New("invalid parameter")
)

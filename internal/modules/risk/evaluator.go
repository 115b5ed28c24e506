package risk

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/returns"
)

// Evaluator scores weight vectors against one fixed returns matrix, reusing
// its output buffer between calls. It is not safe for concurrent use; give
// each worker its own.
type Evaluator struct {
	m            *returns.Matrix
	riskFreeRate float64
	out          *mat.VecDense
}

// NewEvaluator creates an evaluator for m.
func NewEvaluator(m *returns.Matrix, riskFreeRate float64) *Evaluator {
	return &Evaluator{
		m:            m,
		riskFreeRate: riskFreeRate,
		out:          mat.NewVecDense(m.Days(), nil),
	}
}

// Evaluate returns the metrics of the portfolio held with the given weights.
func (e *Evaluator) Evaluate(weights domain.WeightVector) (Metrics, error) {
	if len(weights) == 0 || e.m.Assets() != len(weights) {
		return Metrics{}, fmt.Errorf("%w: %d weights for %d assets", domain.ErrMisalignedSeries, len(weights), e.m.Assets())
	}
	e.out.MulVec(e.m.Dense(), mat.NewVecDense(len(weights), weights))
	return Summarize(e.out.RawVector().Data, e.riskFreeRate)
}

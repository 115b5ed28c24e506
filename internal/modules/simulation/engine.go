// Package simulation searches asset combinations for their best-Sharpe
// capped allocation.
package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/evaluation/workers"
	"github.com/aristath/sharpescan/internal/modules/combinations"
	"github.com/aristath/sharpescan/internal/modules/optimization"
	"github.com/aristath/sharpescan/internal/modules/returns"
	"github.com/aristath/sharpescan/internal/modules/risk"
	"github.com/aristath/sharpescan/internal/progress"
)

// Recorder observes completed combinations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CombinationEvaluated(trials int)
}

// Engine runs the combination search on a worker pool.
type Engine struct {
	log      zerolog.Logger
	pool     *workers.WorkerPool
	recorder Recorder
}

// NewEngine creates an engine backed by pool.
func NewEngine(pool *workers.WorkerPool, log zerolog.Logger) *Engine {
	return &Engine{
		log:  log.With().Str("component", "simulation_engine").Logger(),
		pool: pool,
	}
}

// SetRecorder attaches a recorder notified after every combination.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// SimulateSomeCombinations scores up to p.ComboLimit combinations of
// p.ComboSize assets drawn from the assetCount columns of m. It returns one
// result per combination in enumeration order.
//
// Every combination gets its own random source from p.RNGFactory(p.Seed,
// rank), so output is identical for any worker count. The first error from
// any combination aborts the run.
func (e *Engine) SimulateSomeCombinations(
	ctx context.Context,
	m *returns.Matrix,
	assetCount int,
	p Params,
	cb progress.Callback,
) ([]domain.CombinationResult, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil returns matrix", domain.ErrInsufficientData)
	}
	if m.Assets() != assetCount {
		return nil, fmt.Errorf("%w: matrix has %d assets, expected %d", domain.ErrMisalignedSeries, m.Assets(), assetCount)
	}
	if err := p.Validate(assetCount); err != nil {
		return nil, err
	}

	enum, err := combinations.NewEnumerator(assetCount, p.ComboSize, p.ComboLimit)
	if err != nil {
		return nil, err
	}
	total := enum.Total()
	factory := p.rngFactory()

	e.log.Info().
		Int("assets", assetCount).
		Int("combo_size", p.ComboSize).
		Int("combinations", total).
		Int("trials", p.TrialsPerCombination).
		Float64("max_pct", p.MaxPct).
		Uint64("seed", p.Seed).
		Int("workers", e.pool.Workers()).
		Msg("Starting combination search")
	start := time.Now()

	logEvery := max(total/20, 1)
	report := func(current, total int, message string) {
		if current%logEvery == 0 || current == total {
			e.log.Debug().Int("done", current).Int("total", total).Msg("Search progress")
		}
		progress.Call(cb, current, total, message)
	}

	results, err := workers.Run(ctx, e.pool, enum.All(), total,
		func(_ context.Context, rank int, c domain.Combination) (domain.CombinationResult, error) {
			res, err := bestOfTrials(m, c, rank, p, factory)
			if err != nil {
				return domain.CombinationResult{}, fmt.Errorf("combination %s: %w", c, err)
			}
			if e.recorder != nil {
				e.recorder.CombinationEvaluated(p.TrialsPerCombination)
			}
			return res, nil
		}, report)
	if err != nil {
		e.log.Error().Err(err).Msg("Combination search failed")
		return nil, err
	}

	e.log.Info().
		Int("combinations", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("Combination search finished")
	return results, nil
}

// bestOfTrials draws p.TrialsPerCombination weight vectors for c and keeps
// the one with the highest Sharpe. Ties keep the earlier trial.
func bestOfTrials(m *returns.Matrix, c domain.Combination, rank int, p Params, factory RNGFactory) (domain.CombinationResult, error) {
	sub, err := m.Columns(c)
	if err != nil {
		return domain.CombinationResult{}, err
	}
	sampler, err := optimization.NewSampler(c.Len(), p.MaxPct)
	if err != nil {
		return domain.CombinationResult{}, err
	}
	ev := risk.NewEvaluator(sub, p.RiskFreeRate)
	rng := factory(p.Seed, rank)

	trial := make(domain.WeightVector, c.Len())
	best := make(domain.WeightVector, c.Len())
	bestSharpe := math.Inf(-1)

	for t := 0; t < p.TrialsPerCombination; t++ {
		if err := sampler.Sample(trial, rng); err != nil {
			return domain.CombinationResult{}, err
		}
		metrics, err := ev.Evaluate(trial)
		if err != nil {
			return domain.CombinationResult{}, err
		}
		if t == 0 || metrics.Sharpe > bestSharpe {
			bestSharpe = metrics.Sharpe
			copy(best, trial)
		}
	}

	return domain.CombinationResult{
		Rank:        rank,
		Combination: c,
		BestWeights: best,
		BestSharpe:  bestSharpe,
	}, nil
}

// BestOverallSharpe returns the highest BestSharpe across results.
func BestOverallSharpe(results []domain.CombinationResult) (float64, error) {
	best, _, err := BestResult(results)
	if err != nil {
		return 0, err
	}
	return best.BestSharpe, nil
}

// BestResult returns the result with the highest BestSharpe and its position
// in results. Ties keep the earliest.
func BestResult(results []domain.CombinationResult) (domain.CombinationResult, int, error) {
	if len(results) == 0 {
		return domain.CombinationResult{}, -1, domain.ErrEmptyResults
	}
	bestIdx := 0
	for i := 1; i < len(results); i++ {
		if results[i].BestSharpe > results[bestIdx].BestSharpe {
			bestIdx = i
		}
	}
	return results[bestIdx], bestIdx, nil
}

package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/evaluation/workers"
	"github.com/aristath/sharpescan/internal/modules/optimization"
	"github.com/aristath/sharpescan/internal/modules/returns"
	"github.com/aristath/sharpescan/internal/modules/risk"
)

// randomMatrix builds a days x assets matrix of small pseudo-random returns.
func randomMatrix(t *testing.T, days, assets int, seed uint64) *returns.Matrix {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0))
	rows := make([][]float64, days)
	for d := range rows {
		rows[d] = make([]float64, assets)
		for a := range rows[d] {
			rows[d][a] = (rng.Float64() - 0.48) * 0.04
		}
	}
	m, err := returns.NewMatrix(rows)
	require.NoError(t, err)
	return m
}

func newEngine(workerCount int) *Engine {
	return NewEngine(workers.NewWorkerPool(workerCount), zerolog.Nop())
}

func testParams() Params {
	return Params{
		ComboSize:            3,
		ComboLimit:           10,
		MaxPct:               0.5,
		TrialsPerCombination: 50,
		Seed:                 7,
	}
}

func TestSimulate_SingleCombinationSingleTrial(t *testing.T) {
	m := randomMatrix(t, 40, 5, 1)
	p := testParams()
	p.ComboLimit = 1
	p.TrialsPerCombination = 1

	results, err := newEngine(2).SimulateSomeCombinations(context.Background(), m, 5, p, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []int{0, 1, 2}, results[0].Combination.Indices())
	assert.Equal(t, 0, results[0].Rank)
	assert.NoError(t, results[0].BestWeights.Validate(p.MaxPct))
}

func TestSimulate_OneResultPerCombinationInOrder(t *testing.T) {
	m := randomMatrix(t, 60, 6, 2)
	p := testParams()
	p.ComboLimit = 1000

	results, err := newEngine(4).SimulateSomeCombinations(context.Background(), m, 6, p, nil)
	require.NoError(t, err)
	require.Len(t, results, 20) // C(6,3)

	for i, r := range results {
		assert.Equal(t, i, r.Rank)
		assert.Equal(t, 3, r.Combination.Len())
		require.Len(t, r.BestWeights, 3)
		assert.NoError(t, r.BestWeights.Validate(p.MaxPct))
		if i > 0 {
			assert.Equal(t, -1, results[i-1].Combination.Compare(r.Combination))
		}
	}
}

func TestSimulate_DeterministicAcrossWorkerCounts(t *testing.T) {
	m := randomMatrix(t, 80, 7, 3)
	p := testParams()
	p.ComboLimit = 25

	single, err := newEngine(1).SimulateSomeCombinations(context.Background(), m, 7, p, nil)
	require.NoError(t, err)
	parallel, err := newEngine(8).SimulateSomeCombinations(context.Background(), m, 7, p, nil)
	require.NoError(t, err)
	again, err := newEngine(3).SimulateSomeCombinations(context.Background(), m, 7, p, nil)
	require.NoError(t, err)

	assert.Equal(t, single, parallel)
	assert.Equal(t, single, again)

	p.Seed = 8
	other, err := newEngine(3).SimulateSomeCombinations(context.Background(), m, 7, p, nil)
	require.NoError(t, err)
	assert.NotEqual(t, single[0].BestWeights, other[0].BestWeights)
}

func TestSimulate_BestTrialIsKept(t *testing.T) {
	m := randomMatrix(t, 50, 4, 4)
	p := testParams()
	p.ComboLimit = 1
	p.TrialsPerCombination = 200

	results, err := newEngine(1).SimulateSomeCombinations(context.Background(), m, 4, p, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Replay the same draws and track the first maximum.
	sub, err := m.Columns(results[0].Combination)
	require.NoError(t, err)
	ev := risk.NewEvaluator(sub, 0)
	sampler, err := optimization.NewSampler(3, p.MaxPct)
	require.NoError(t, err)
	rng := PCGFactory(p.Seed, 0)

	w := make(domain.WeightVector, 3)
	var bestWeights domain.WeightVector
	bestSharpe := math.Inf(-1)
	for i := 0; i < p.TrialsPerCombination; i++ {
		require.NoError(t, sampler.Sample(w, rng))
		metrics, err := ev.Evaluate(w)
		require.NoError(t, err)
		if i == 0 || metrics.Sharpe > bestSharpe {
			bestSharpe = metrics.Sharpe
			bestWeights = slices.Clone(w)
		}
	}

	assert.Equal(t, bestSharpe, results[0].BestSharpe)
	assert.Equal(t, bestWeights, results[0].BestWeights)
}

func TestSimulate_TiesKeepFirstTrial(t *testing.T) {
	// A constant matrix gives every trial a Sharpe of 0.
	rows := make([][]float64, 10)
	for d := range rows {
		rows[d] = []float64{0.001, 0.001, 0.001}
	}
	m, err := returns.NewMatrix(rows)
	require.NoError(t, err)

	p := testParams()
	p.ComboLimit = 1
	p.TrialsPerCombination = 20

	results, err := newEngine(1).SimulateSomeCombinations(context.Background(), m, 3, p, nil)
	require.NoError(t, err)

	first, err := optimization.GenerateWeights(3, p.MaxPct, PCGFactory(p.Seed, 0))
	require.NoError(t, err)
	assert.Equal(t, first, results[0].BestWeights)
	assert.Equal(t, 0.0, results[0].BestSharpe)
}

func TestSimulate_ZeroLimit(t *testing.T) {
	m := randomMatrix(t, 10, 4, 5)
	p := testParams()
	p.ComboLimit = 0

	results, err := newEngine(2).SimulateSomeCombinations(context.Background(), m, 4, p, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSimulate_InvalidInputs(t *testing.T) {
	m := randomMatrix(t, 10, 4, 6)
	engine := newEngine(2)

	tests := []struct {
		name       string
		assetCount int
		mutate     func(*Params)
		expected   error
	}{
		{"asset count mismatch", 5, func(*Params) {}, domain.ErrMisalignedSeries},
		{"combo larger than universe", 4, func(p *Params) { p.ComboSize = 5 }, domain.ErrInvalidParameter},
		{"zero trials", 4, func(p *Params) { p.TrialsPerCombination = 0 }, domain.ErrInvalidParameter},
		{"negative limit", 4, func(p *Params) { p.ComboLimit = -1 }, domain.ErrInvalidParameter},
		{"infeasible cap", 4, func(p *Params) { p.MaxPct = 0.2 }, domain.ErrInfeasibleCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			_, err := engine.SimulateSomeCombinations(context.Background(), m, tt.assetCount, p, nil)
			assert.ErrorIs(t, err, tt.expected)
		})
	}

	_, err := engine.SimulateSomeCombinations(context.Background(), nil, 4, testParams(), nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

// badSource yields a draw no uniform source can produce.
type badSource struct{}

func (badSource) Float64() float64 { return -1 }

func TestSimulate_PropagatesCombinationErrors(t *testing.T) {
	m := randomMatrix(t, 10, 4, 7)
	p := testParams()
	p.ComboLimit = 4
	p.RNGFactory = func(seed uint64, rank int) optimization.Source {
		if rank == 2 {
			return badSource{}
		}
		return PCGFactory(seed, rank)
	}

	results, err := newEngine(2).SimulateSomeCombinations(context.Background(), m, 4, p, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "[0 2 3]")
	assert.Nil(t, results)
}

func TestSimulate_ContextCancelled(t *testing.T) {
	m := randomMatrix(t, 20, 6, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(2).SimulateSomeCombinations(ctx, m, 6, testParams(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulate_ProgressAndRecorder(t *testing.T) {
	m := randomMatrix(t, 20, 5, 9)
	p := testParams()

	rec := &countingRecorder{}
	engine := newEngine(3)
	engine.SetRecorder(rec)

	var last, total int
	_, err := engine.SimulateSomeCombinations(context.Background(), m, 5, p, func(c, tot int, _ string) {
		last, total = c, tot
	})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, 10, last)
	assert.Equal(t, int64(10), rec.combinations.Load())
	assert.Equal(t, int64(10*p.TrialsPerCombination), rec.trials.Load())
}

type countingRecorder struct {
	combinations atomic.Int64
	trials       atomic.Int64
}

func (r *countingRecorder) CombinationEvaluated(trials int) {
	r.combinations.Add(1)
	r.trials.Add(int64(trials))
}

func TestBestOverallSharpe(t *testing.T) {
	results := []domain.CombinationResult{
		{Rank: 0, BestSharpe: 1.2},
		{Rank: 1, BestSharpe: 2.5},
		{Rank: 2, BestSharpe: 2.5},
		{Rank: 3, BestSharpe: -0.3},
	}

	best, err := BestOverallSharpe(results)
	require.NoError(t, err)
	assert.Equal(t, 2.5, best)

	r, idx, err := BestResult(results)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, r.Rank)

	_, err = BestOverallSharpe(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyResults)
}

func TestParams_Defaults(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, DefaultTrialsPerCombination, p.TrialsPerCombination)
	assert.NoError(t, p.Validate(30))
	assert.ErrorIs(t, p.Validate(20), domain.ErrInvalidParameter)
}

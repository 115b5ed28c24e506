package optimization

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpescan/internal/domain"
)

// fixedSource replays a fixed sequence of draws.
type fixedSource struct {
	values []float64
	pos    int
}

func (f *fixedSource) Float64() float64 {
	v := f.values[f.pos%len(f.values)]
	f.pos++
	return v
}

func assertOnCappedSimplex(t *testing.T, w domain.WeightVector, n int, maxPct float64) {
	t.Helper()
	require.Len(t, w, n)
	assert.InDelta(t, 1.0, w.Sum(), domain.WeightTolerance)
	for i, v := range w {
		assert.GreaterOrEqual(t, v, 0.0, "weight %d", i)
		assert.LessOrEqual(t, v, maxPct+domain.WeightTolerance, "weight %d", i)
	}
}

func TestGenerateWeights_Invariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	tests := []struct {
		n      int
		maxPct float64
	}{
		{2, 0.5},
		{2, 0.9},
		{5, 0.2},
		{5, 0.35},
		{10, 0.11},
		{25, 0.20},
		{25, 0.05},
		{30, 1.0},
		{60, 0.02},
	}

	for _, tt := range tests {
		for trial := 0; trial < 200; trial++ {
			w, err := GenerateWeights(tt.n, tt.maxPct, rng)
			require.NoError(t, err, "n=%d maxPct=%v", tt.n, tt.maxPct)
			assertOnCappedSimplex(t, w, tt.n, tt.maxPct)
		}
	}
}

func TestGenerateWeights_SingleAsset(t *testing.T) {
	w, err := GenerateWeights(1, 1.0, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, domain.WeightVector{1.0}, w)
}

func TestGenerateWeights_TightCapIsEqualWeight(t *testing.T) {
	w, err := GenerateWeights(5, 0.2, rand.New(rand.NewPCG(3, 9)))
	require.NoError(t, err)
	for _, v := range w {
		assert.InDelta(t, 0.2, v, domain.WeightTolerance)
	}
}

func TestGenerateWeights_InfeasibleCap(t *testing.T) {
	_, err := GenerateWeights(30, 0.02, rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, domain.ErrInfeasibleCap)
}

func TestGenerateWeights_InvalidParameters(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	_, err := GenerateWeights(0, 0.5, rng)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = GenerateWeights(3, 0, rng)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = GenerateWeights(3, 1.5, rng)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestGenerateWeights_Deterministic(t *testing.T) {
	a, err := GenerateWeights(25, 0.2, rand.New(rand.NewPCG(99, 5)))
	require.NoError(t, err)
	b, err := GenerateWeights(25, 0.2, rand.New(rand.NewPCG(99, 5)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateWeights_ZeroDrawsFallBackToEqual(t *testing.T) {
	w, err := GenerateWeights(4, 0.5, &fixedSource{values: []float64{0}})
	require.NoError(t, err)
	assert.Equal(t, domain.WeightVector{0.25, 0.25, 0.25, 0.25}, w)
}

func TestGenerateWeights_RedistributesProportionally(t *testing.T) {
	// Normalized draws are [0.7, 0.2, 0.1]. Capping at 0.5 frees 0.2, split
	// 2:1 between the uncapped weights.
	w, err := GenerateWeights(3, 0.5, &fixedSource{values: []float64{0.7, 0.2, 0.1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.2+0.2*2/3, w[1], 1e-12)
	assert.InDelta(t, 0.1+0.2/3, w[2], 1e-12)
}

func TestGenerateWeights_CascadingCaps(t *testing.T) {
	// The first round pushes the second weight over the cap as well.
	w, err := GenerateWeights(4, 0.3, &fixedSource{values: []float64{0.6, 0.25, 0.1, 0.05}})
	require.NoError(t, err)
	assertOnCappedSimplex(t, w, 4, 0.3)
	assert.InDelta(t, 0.3, w[0], 1e-12)
	assert.InDelta(t, 0.3, w[1], 1e-12)
	assert.InDelta(t, 0.4*2/3, w[2], 1e-12)
	assert.InDelta(t, 0.4/3, w[3], 1e-12)
}

func TestSampler_ReusesScratchSpace(t *testing.T) {
	s, err := NewSampler(6, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Size())

	rng := rand.New(rand.NewPCG(11, 12))
	w := make(domain.WeightVector, 6)
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Sample(w, rng))
		assertOnCappedSimplex(t, w, 6, 0.25)
	}

	err = s.Sample(make(domain.WeightVector, 5), rng)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestGenerateWeights_RejectsOutOfRangeDraws(t *testing.T) {
	for _, v := range []float64{-0.1, 1, math.NaN(), math.Inf(1)} {
		_, err := GenerateWeights(3, 0.5, &fixedSource{values: []float64{0.3, v}})
		assert.ErrorIs(t, err, domain.ErrInvalidParameter, "draw %v", v)
	}
}

func TestWaterFill_UnplaceableExcess(t *testing.T) {
	w := []float64{0.5, 0.5}
	err := waterFill(w, 0.3, make([]bool, 2))
	assert.ErrorIs(t, err, domain.ErrWeightConvergence)
}

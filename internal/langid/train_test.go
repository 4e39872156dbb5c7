package langid

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaussianCloud(rng *rand.Rand, n int, mean []float64, sd float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		x := make([]float64, len(mean))
		for j, mu := range mean {
			x[j] = mu + sd*rng.NormFloat64()
		}
		out[i] = x
	}
	return out
}

func TestTrainSingleComponentMatchesMoments(t *testing.T) {
	frames := [][]float64{{1, 10}, {3, 10}, {5, 16}}
	m, err := Train(frames, TrainOptions{Components: 1, RegCovar: 1e-9})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{3, 12}, m.Means()[0], 1e-9)
	// Population variances: (4+0+4)/3 and (4+4+16)/3.
	assert.InDeltaSlice(t, []float64{8.0 / 3, 8}, m.Covariances()[0], 1e-6)
	assert.InDeltaSlice(t, []float64{1}, m.Weights(), 1e-12)
}

func TestTrainSeparatesClusters(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	frames := append(
		gaussianCloud(rng, 300, []float64{-10, -10}, 1),
		gaussianCloud(rng, 300, []float64{10, 10}, 1)...,
	)

	m, err := Train(frames, TrainOptions{Components: 2, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, 2, m.Components())

	means := m.Means()
	lo, hi := means[0], means[1]
	if lo[0] > hi[0] {
		lo, hi = hi, lo
	}
	assert.InDelta(t, -10, lo[0], 0.5)
	assert.InDelta(t, 10, hi[0], 0.5)
	for _, w := range m.Weights() {
		assert.InDelta(t, 0.5, w, 0.05)
	}
}

func TestTrainDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	frames := gaussianCloud(rng, 200, []float64{0, 0, 0}, 2)

	a, err := Train(frames, TrainOptions{Components: 4, Seed: 9})
	require.NoError(t, err)
	b, err := Train(frames, TrainOptions{Components: 4, Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, a.Means(), b.Means())
	assert.Equal(t, a.Weights(), b.Weights())
}

func TestTrainErrors(t *testing.T) {
	_, err := Train([][]float64{{1}}, TrainOptions{Components: 2})
	require.ErrorIs(t, err, ErrTooFewFrames)

	_, err = Train([][]float64{{1, 2}, {3}}, TrainOptions{Components: 1})
	require.ErrorIs(t, err, ErrDimension)
}

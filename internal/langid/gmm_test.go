package langid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelScoreStandardNormal(t *testing.T) {
	m := unitModel(t, []float64{0, 0, 0})

	ll, err := m.Score([][]float64{{0, 0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, -1.5*math.Log(2*math.Pi), ll, 1e-12)

	ll, err = m.Score([][]float64{{1, 0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, -1.5*math.Log(2*math.Pi)-0.5, ll, 1e-12)
}

func TestModelScoreIsMeanOfFrames(t *testing.T) {
	m := unitModel(t, []float64{0, 0})
	frames := [][]float64{{0, 0}, {2, 0}, {0, -1}}

	per, err := m.ScoreSamples(frames)
	require.NoError(t, err)
	require.Len(t, per, 3)

	mean, err := m.Score(frames)
	require.NoError(t, err)
	assert.InDelta(t, (per[0]+per[1]+per[2])/3, mean, 1e-12)
}

func TestModelCovarianceTypesAgree(t *testing.T) {
	// Diagonal covariance diag(2, 0.5) expressed four ways.
	x := [][]float64{{0.3, -1.2}, {1, 1}}

	diag, err := NewModel(CovDiag, []float64{1}, [][]float64{{0.1, 0.2}}, [][]float64{{2, 0.5}})
	require.NoError(t, err)
	full, err := NewModel(CovFull, []float64{1}, [][]float64{{0.1, 0.2}}, [][]float64{{2, 0, 0, 0.5}})
	require.NoError(t, err)
	tied, err := NewModel(CovTied, []float64{1}, [][]float64{{0.1, 0.2}}, [][]float64{{2, 0, 0, 0.5}})
	require.NoError(t, err)

	want, err := diag.Score(x)
	require.NoError(t, err)
	for _, m := range []*Model{full, tied} {
		got, err := m.Score(x)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9, string(m.CovarianceType()))
	}

	sph, err := NewModel(CovSpherical, []float64{1}, [][]float64{{0, 0}}, [][]float64{{3}})
	require.NoError(t, err)
	sphDiag, err := NewModel(CovDiag, []float64{1}, [][]float64{{0, 0}}, [][]float64{{3, 3}})
	require.NoError(t, err)
	a, _ := sph.Score(x)
	b, _ := sphDiag.Score(x)
	assert.InDelta(t, b, a, 1e-12)
}

func TestModelFullCorrelated(t *testing.T) {
	// Sigma = [[2,1],[1,2]], |Sigma| = 3, Sigma^-1 = [[2,-1],[-1,2]]/3.
	m, err := NewModel(CovFull, []float64{1}, [][]float64{{0, 0}}, [][]float64{{2, 1, 1, 2}})
	require.NoError(t, err)

	x := []float64{1, 2}
	maha := (2*x[0]*x[0] - 2*x[0]*x[1] + 2*x[1]*x[1]) / 3
	want := -math.Log(2*math.Pi) - 0.5*math.Log(3) - 0.5*maha

	got, err := m.Score([][]float64{x})
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func TestModelMixtureLogSumExp(t *testing.T) {
	m, err := NewModel(CovDiag,
		[]float64{0.25, 0.75},
		[][]float64{{-1}, {2}},
		[][]float64{{1}, {4}},
	)
	require.NoError(t, err)

	x := 0.5
	p1 := 0.25 * math.Exp(-0.5*(x+1)*(x+1)) / math.Sqrt(2*math.Pi)
	p2 := 0.75 * math.Exp(-0.5*(x-2)*(x-2)/4) / math.Sqrt(2*math.Pi*4)

	got, err := m.Score([][]float64{{x}})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(p1+p2), got, 1e-12)
}

func TestNewModelRejectsInvalidParameters(t *testing.T) {
	cases := []struct {
		name    string
		cov     CovarianceType
		weights []float64
		means   [][]float64
		covs    [][]float64
	}{
		{"unknown type", "banded", []float64{1}, [][]float64{{0}}, [][]float64{{1}}},
		{"no components", CovDiag, nil, nil, nil},
		{"weights do not sum to one", CovDiag, []float64{0.5, 0.2}, [][]float64{{0}, {1}}, [][]float64{{1}, {1}}},
		{"negative weight", CovDiag, []float64{1.5, -0.5}, [][]float64{{0}, {1}}, [][]float64{{1}, {1}}},
		{"ragged means", CovDiag, []float64{0.5, 0.5}, [][]float64{{0, 0}, {1}}, [][]float64{{1, 1}, {1, 1}}},
		{"zero variance", CovDiag, []float64{1}, [][]float64{{0}}, [][]float64{{0}}},
		{"not positive definite", CovFull, []float64{1}, [][]float64{{0, 0}}, [][]float64{{1, 2, 2, 1}}},
		{"wrong covariance count", CovTied, []float64{0.5, 0.5}, [][]float64{{0}, {1}}, [][]float64{{1}, {1}}},
		{"non-finite mean", CovDiag, []float64{1}, [][]float64{{math.NaN()}}, [][]float64{{1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewModel(tc.cov, tc.weights, tc.means, tc.covs)
			require.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestModelScoreErrors(t *testing.T) {
	m := unitModel(t, []float64{0, 0})

	_, err := m.Score(nil)
	require.ErrorIs(t, err, ErrEmptyFeatures)

	_, err = m.Score([][]float64{{0, 0, 0}})
	require.ErrorIs(t, err, ErrDimension)
}

func TestModelAccessorsReturnCopies(t *testing.T) {
	m := unitModel(t, []float64{1, 2})
	means := m.Means()
	means[0][0] = 99
	assert.Equal(t, 1.0, m.Means()[0][0])
	assert.Equal(t, 1, m.Components())
	assert.Equal(t, 2, m.Dim())
	assert.Equal(t, CovDiag, m.CovarianceType())
}

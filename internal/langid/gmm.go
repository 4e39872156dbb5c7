package langid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CovarianceType selects how component covariances are parameterised.
type CovarianceType string

const (
	// CovFull stores one full DxD covariance matrix per component.
	CovFull CovarianceType = "full"
	// CovTied stores one full DxD covariance matrix shared by all components.
	CovTied CovarianceType = "tied"
	// CovDiag stores one variance vector of length D per component.
	CovDiag CovarianceType = "diag"
	// CovSpherical stores one scalar variance per component.
	CovSpherical CovarianceType = "spherical"
)

// IsValid reports whether c is a known covariance type.
func (c CovarianceType) IsValid() bool {
	switch c {
	case CovFull, CovTied, CovDiag, CovSpherical:
		return true
	}
	return false
}

const weightSumTolerance = 1e-6

var log2Pi = math.Log(2 * math.Pi)

// Model is a trained Gaussian mixture density. It is immutable after
// construction and safe for concurrent use.
type Model struct {
	covType CovarianceType
	weights []float64
	means   [][]float64
	covars  [][]float64

	logWeights []float64
	// Cholesky factors of the covariance (full: one per component, tied: one).
	chol []*mat.TriDense
	// Per-component inverse variances, expanded to D (diag, spherical).
	invVar [][]float64
	// Per-component log normalisation constant: -0.5*D*log(2pi) - 0.5*log|Sigma|.
	logNorm []float64
}

// NewModel validates the parameters and precomputes everything scoring
// needs. Covariances are laid out per covariance type:
//
//	full       K entries of D*D (row-major)
//	tied       1 entry of D*D
//	diag       K entries of D
//	spherical  K entries of 1
func NewModel(covType CovarianceType, weights []float64, means, covariances [][]float64) (*Model, error) {
	if !covType.IsValid() {
		return nil, fmt.Errorf("%w: unknown covariance type %q", ErrInvalidModel, covType)
	}
	k := len(weights)
	if k == 0 {
		return nil, fmt.Errorf("%w: no components", ErrInvalidModel)
	}
	if len(means) != k {
		return nil, fmt.Errorf("%w: %d weights but %d means", ErrInvalidModel, k, len(means))
	}
	d := len(means[0])
	if d == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional means", ErrInvalidModel)
	}
	for i, mu := range means {
		if len(mu) != d {
			return nil, fmt.Errorf("%w: mean %d has %d dims, want %d", ErrInvalidModel, i, len(mu), d)
		}
		for _, v := range mu {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: mean %d is not finite", ErrInvalidModel, i)
			}
		}
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrInvalidModel, i, w)
		}
	}
	if sum := floats.Sum(weights); math.Abs(sum-1) > weightSumTolerance {
		return nil, fmt.Errorf("%w: weights sum to %v", ErrInvalidModel, sum)
	}

	m := &Model{
		covType:    covType,
		weights:    cloneVec(weights),
		means:      cloneMat(means),
		covars:     cloneMat(covariances),
		logWeights: make([]float64, k),
		logNorm:    make([]float64, k),
	}
	for i, w := range weights {
		m.logWeights[i] = math.Log(w)
	}

	switch covType {
	case CovFull, CovTied:
		want := k
		if covType == CovTied {
			want = 1
		}
		if len(covariances) != want {
			return nil, fmt.Errorf("%w: %s covariance needs %d matrices, got %d", ErrInvalidModel, covType, want, len(covariances))
		}
		m.chol = make([]*mat.TriDense, want)
		logDets := make([]float64, want)
		for i, c := range covariances {
			if len(c) != d*d {
				return nil, fmt.Errorf("%w: covariance %d has %d entries, want %d", ErrInvalidModel, i, len(c), d*d)
			}
			var ch mat.Cholesky
			if ok := ch.Factorize(mat.NewSymDense(d, cloneVec(c))); !ok {
				return nil, fmt.Errorf("%w: covariance %d is not positive definite", ErrInvalidModel, i)
			}
			l := mat.NewTriDense(d, mat.Lower, nil)
			ch.LTo(l)
			m.chol[i] = l
			logDets[i] = ch.LogDet()
		}
		for i := range m.logNorm {
			ld := logDets[0]
			if covType == CovFull {
				ld = logDets[i]
			}
			m.logNorm[i] = -0.5*float64(d)*log2Pi - 0.5*ld
		}

	case CovDiag, CovSpherical:
		if len(covariances) != k {
			return nil, fmt.Errorf("%w: %s covariance needs %d entries, got %d", ErrInvalidModel, covType, k, len(covariances))
		}
		width := d
		if covType == CovSpherical {
			width = 1
		}
		m.invVar = make([][]float64, k)
		for i, c := range covariances {
			if len(c) != width {
				return nil, fmt.Errorf("%w: covariance %d has %d entries, want %d", ErrInvalidModel, i, len(c), width)
			}
			inv := make([]float64, d)
			logDet := 0.0
			for j := 0; j < d; j++ {
				v := c[0]
				if covType == CovDiag {
					v = c[j]
				}
				if !(v > 0) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("%w: covariance %d has non-positive variance", ErrInvalidModel, i)
				}
				inv[j] = 1 / v
				logDet += math.Log(v)
			}
			m.invVar[i] = inv
			m.logNorm[i] = -0.5*float64(d)*log2Pi - 0.5*logDet
		}
	}

	return m, nil
}

// CovarianceType returns the covariance parameterisation.
func (m *Model) CovarianceType() CovarianceType { return m.covType }

// Components returns the number of mixture components.
func (m *Model) Components() int { return len(m.weights) }

// Dim returns the feature dimensionality.
func (m *Model) Dim() int { return len(m.means[0]) }

// Weights returns a copy of the mixture weights.
func (m *Model) Weights() []float64 { return cloneVec(m.weights) }

// Means returns a copy of the component means.
func (m *Model) Means() [][]float64 { return cloneMat(m.means) }

// Covariances returns a copy of the covariance parameters in NewModel layout.
func (m *Model) Covariances() [][]float64 { return cloneMat(m.covars) }

// Score returns the mean per-frame log-likelihood of features under the
// mixture.
func (m *Model) Score(features [][]float64) (float64, error) {
	ll, err := m.ScoreSamples(features)
	if err != nil {
		return 0, err
	}
	return floats.Sum(ll) / float64(len(ll)), nil
}

// ScoreSamples returns the log-likelihood of every frame.
func (m *Model) ScoreSamples(features [][]float64) ([]float64, error) {
	if len(features) == 0 {
		return nil, ErrEmptyFeatures
	}
	d := m.Dim()
	out := make([]float64, len(features))
	comp := make([]float64, m.Components())
	diff := make([]float64, d)
	z := make([]float64, d)
	for t, x := range features {
		if len(x) != d {
			return nil, fmt.Errorf("%w: frame %d has %d dims, model has %d", ErrDimension, t, len(x), d)
		}
		m.componentLogProb(x, comp, diff, z)
		out[t] = floats.LogSumExp(comp)
	}
	return out, nil
}

// componentLogProb fills dst[k] with log(w_k) + log N(x | mu_k, Sigma_k).
func (m *Model) componentLogProb(x, dst, diff, z []float64) {
	for k, mu := range m.means {
		floats.SubTo(diff, x, mu)
		var maha float64
		switch m.covType {
		case CovFull, CovTied:
			l := m.chol[0]
			if m.covType == CovFull {
				l = m.chol[k]
			}
			maha = forwardSolveSq(l, diff, z)
		default:
			inv := m.invVar[k]
			for j, v := range diff {
				maha += v * v * inv[j]
			}
		}
		dst[k] = m.logWeights[k] + m.logNorm[k] - 0.5*maha
	}
}

// forwardSolveSq solves L z = b and returns |z|^2.
func forwardSolveSq(l *mat.TriDense, b, z []float64) float64 {
	n := len(b)
	var sq float64
	for i := 0; i < n; i++ {
		s := b[i]
		for j := 0; j < i; j++ {
			s -= l.At(i, j) * z[j]
		}
		z[i] = s / l.At(i, i)
		sq += z[i] * z[i]
	}
	return sq
}

func cloneVec(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func cloneMat(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = cloneVec(row)
	}
	return out
}

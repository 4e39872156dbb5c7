package langid

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// TrainOptions controls Train.
type TrainOptions struct {
	Components int     // mixture components; default 16
	MaxIter    int     // EM iterations; default 100
	Tol        float64 // stop when the mean log-likelihood gain drops below Tol; default 1e-3
	RegCovar   float64 // added to every variance; default 1e-6
	Seed       uint64  // seeds k-means++ initialisation
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Components <= 0 {
		o.Components = 16
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 100
	}
	if o.Tol <= 0 {
		o.Tol = 1e-3
	}
	if o.RegCovar <= 0 {
		o.RegCovar = 1e-6
	}
	return o
}

// ErrTooFewFrames is returned when there are fewer frames than components.
var ErrTooFewFrames = errors.New("langid: not enough frames to train")

// Train fits a diagonal-covariance mixture to frames with expectation
// maximisation. Means are seeded with k-means++ so a fixed Seed yields a
// reproducible model.
func Train(frames [][]float64, opts TrainOptions) (*Model, error) {
	opts = opts.withDefaults()
	n, k := len(frames), opts.Components
	if n < k {
		return nil, fmt.Errorf("%w: %d frames for %d components", ErrTooFewFrames, n, k)
	}
	d := len(frames[0])
	if d == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional frames", ErrDimension)
	}
	for i, x := range frames {
		if len(x) != d {
			return nil, fmt.Errorf("%w: frame %d has %d dims, want %d", ErrDimension, i, len(x), d)
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	means := seedKMeansPP(frames, k, rng)

	// Start every component from the global variance.
	globalVar := columnVariance(frames, opts.RegCovar)
	vars := make([][]float64, k)
	weights := make([]float64, k)
	for c := range vars {
		vars[c] = cloneVec(globalVar)
		weights[c] = 1 / float64(k)
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}

	diff := make([]float64, d)
	prev := math.Inf(-1)
	iter := 0
	for iter = 1; iter <= opts.MaxIter; iter++ {
		m, err := NewModel(CovDiag, weights, means, vars)
		if err != nil {
			return nil, fmt.Errorf("EM iteration %d: %w", iter, err)
		}

		// E step.
		var total float64
		for i, x := range frames {
			m.componentLogProb(x, resp[i], diff, nil)
			lse := floats.LogSumExp(resp[i])
			total += lse
			for c := range resp[i] {
				resp[i][c] = math.Exp(resp[i][c] - lse)
			}
		}
		mean := total / float64(n)

		// M step.
		for c := 0; c < k; c++ {
			var nk float64
			mu := make([]float64, d)
			for i, x := range frames {
				r := resp[i][c]
				nk += r
				floats.AddScaled(mu, r, x)
			}
			nk += 10 * math.SmallestNonzeroFloat64
			floats.Scale(1/nk, mu)

			v := make([]float64, d)
			for i, x := range frames {
				r := resp[i][c]
				for j := range v {
					dj := x[j] - mu[j]
					v[j] += r * dj * dj
				}
			}
			for j := range v {
				v[j] = v[j]/nk + opts.RegCovar
			}
			weights[c] = nk / float64(n)
			means[c] = mu
			vars[c] = v
		}
		floats.Scale(1/floats.Sum(weights), weights)

		if math.Abs(mean-prev) < opts.Tol {
			break
		}
		prev = mean
	}

	m, err := NewModel(CovDiag, weights, means, vars)
	if err != nil {
		return nil, err
	}
	slog.Debug("mixture trained", "components", k, "frames", n, "iterations", min(iter, opts.MaxIter))
	return m, nil
}

// seedKMeansPP picks k initial means, each chosen with probability
// proportional to its squared distance from the nearest mean so far.
func seedKMeansPP(frames [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(frames)
	means := make([][]float64, 0, k)
	means = append(means, cloneVec(frames[rng.IntN(n)]))

	dist := make([]float64, n)
	for i, x := range frames {
		dist[i] = sqDist(x, means[0])
	}
	for len(means) < k {
		total := floats.Sum(dist)
		next := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, v := range dist {
				target -= v
				if target <= 0 {
					next = i
					break
				}
			}
		}
		mu := cloneVec(frames[next])
		means = append(means, mu)
		for i, x := range frames {
			dist[i] = math.Min(dist[i], sqDist(x, mu))
		}
	}
	return means
}

func columnVariance(frames [][]float64, reg float64) []float64 {
	d := len(frames[0])
	mean := make([]float64, d)
	for _, x := range frames {
		floats.Add(mean, x)
	}
	floats.Scale(1/float64(len(frames)), mean)
	v := make([]float64, d)
	for _, x := range frames {
		for j := range v {
			diff := x[j] - mean[j]
			v[j] += diff * diff
		}
	}
	for j := range v {
		v[j] = v[j]/float64(len(frames)) + reg
	}
	return v
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return s
}

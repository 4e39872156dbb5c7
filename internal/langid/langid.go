// Package langid identifies the language spoken in an audio clip.
//
// Identification runs in three stages:
//
//	Store      language label -> trained Gaussian mixture, loaded once from disk
//	Extractor  audio file -> 13-dimensional MFCC frames (at most MaxDuration long)
//	Detector   scores the frames against every model and keeps the best label
//
// Scores are raw mean log-likelihoods. Models trained on different amounts of
// data produce scores on different scales and no normalization is applied.
package langid

import (
	"errors"
)

var (
	// ErrNoModels is returned when detection runs against an empty store.
	ErrNoModels = errors.New("langid: no language models available")

	// ErrDecode is returned when an audio file cannot be read or decoded.
	ErrDecode = errors.New("langid: cannot decode audio")

	// ErrEmptyAudio is returned when decoding yields no samples.
	ErrEmptyAudio = errors.New("langid: audio contains no samples")

	// ErrInvalidModel is returned when a model file is not a usable mixture model.
	ErrInvalidModel = errors.New("langid: invalid model")

	// ErrDimension is returned when features and model disagree on width.
	ErrDimension = errors.New("langid: feature dimension mismatch")

	// ErrEmptyFeatures is returned when scoring an empty feature matrix.
	ErrEmptyFeatures = errors.New("langid: empty feature matrix")
)

// Scorer is the capability every stored language model must provide: the
// mean per-frame log-likelihood of a feature sequence.
type Scorer interface {
	Score(features [][]float64) (float64, error)
}

// Score pairs a language label with the log-likelihood its model assigned.
type Score struct {
	Label         string  `json:"label"`
	LogLikelihood float64 `json:"log_likelihood"`
}

// Features is a frame-major feature matrix: one row per analysis frame in
// chronological order, one column per coefficient.
type Features [][]float64

// Rows returns the number of frames.
func (f Features) Rows() int { return len(f) }

// Cols returns the coefficient count, or 0 for an empty matrix.
func (f Features) Cols() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

package langid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// ExtractorConfig controls decoding and MFCC analysis.
//
// Defaults follow the common librosa front end:
//
//	SampleRate:  44100
//	MaxDuration: 5 s
//	FFTSize:     2048
//	HopSize:     512
//	NumMels:     128
//	NumMFCC:     13
//	FMax:        SampleRate/2
//	TopDB:       80
type ExtractorConfig struct {
	SampleRate  int     // analysis sample rate in Hz; input is resampled to it
	MaxDuration float64 // seconds of audio kept from the start of the clip; <= 0 keeps all
	FFTSize     int     // FFT and window length, power of two
	HopSize     int     // samples between frame starts
	NumMels     int     // mel filters
	NumMFCC     int     // cepstral coefficients kept per frame
	FMin        float64 // lowest filter edge in Hz
	FMax        float64 // highest filter edge in Hz; 0 means Nyquist
	TopDB       float64 // dynamic range floor below the loudest bin; <= 0 disables
}

// DefaultExtractorConfig returns the configuration the shipped models were
// trained with.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		SampleRate:  44100,
		MaxDuration: 5,
		FFTSize:     2048,
		HopSize:     512,
		NumMels:     128,
		NumMFCC:     13,
		TopDB:       80,
	}
}

// Extractor turns audio into frame-major MFCC features. It holds only
// precomputed, read-only tables and is safe for concurrent use.
type Extractor struct {
	cfg     ExtractorConfig
	window  []float64
	melBank [][]float64
	dct     [][]float64
}

// NewExtractor validates cfg and precomputes the analysis tables.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	switch {
	case cfg.SampleRate <= 0:
		return nil, fmt.Errorf("langid: sample rate must be positive, got %d", cfg.SampleRate)
	case cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0:
		return nil, fmt.Errorf("langid: FFT size must be a power of two, got %d", cfg.FFTSize)
	case cfg.HopSize <= 0:
		return nil, fmt.Errorf("langid: hop size must be positive, got %d", cfg.HopSize)
	case cfg.NumMels <= 0:
		return nil, fmt.Errorf("langid: mel filter count must be positive, got %d", cfg.NumMels)
	case cfg.NumMFCC <= 0 || cfg.NumMFCC > cfg.NumMels:
		return nil, fmt.Errorf("langid: MFCC count must be in [1, %d], got %d", cfg.NumMels, cfg.NumMFCC)
	}
	if cfg.FMax <= 0 {
		cfg.FMax = float64(cfg.SampleRate) / 2
	}
	if cfg.FMin < 0 || cfg.FMin >= cfg.FMax {
		return nil, fmt.Errorf("langid: invalid frequency range [%v, %v]", cfg.FMin, cfg.FMax)
	}
	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.FFTSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.FMin, cfg.FMax),
		dct:     dctMatrix(cfg.NumMFCC, cfg.NumMels),
	}, nil
}

// Config returns the effective configuration.
func (e *Extractor) Config() ExtractorConfig { return e.cfg }

// Extract decodes the audio file at path and returns its MFCC features.
func (e *Extractor) Extract(path string) (Features, error) {
	audio, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return e.ExtractAudio(audio)
}

// ExtractAudio resamples decoded audio to the analysis rate and returns its
// MFCC features.
func (e *Extractor) ExtractAudio(a *Audio) (Features, error) {
	if a == nil || len(a.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	samples := a.Samples
	if a.SampleRate != e.cfg.SampleRate {
		// Trim before resampling so long clips are not converted in full.
		if e.cfg.MaxDuration > 0 {
			limit := int(math.Ceil(e.cfg.MaxDuration*float64(a.SampleRate))) + 1
			if len(samples) > limit {
				samples = samples[:limit]
			}
		}
		var err error
		samples, err = Resample(samples, a.SampleRate, e.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
	}
	return e.ExtractSamples(samples)
}

// Truncate returns the prefix of samples that fits in MaxDuration.
func (e *Extractor) Truncate(samples []float64) []float64 {
	if e.cfg.MaxDuration <= 0 {
		return samples
	}
	limit := int(e.cfg.MaxDuration * float64(e.cfg.SampleRate))
	if len(samples) > limit {
		return samples[:limit]
	}
	return samples
}

// ExtractSamples computes MFCC features from mono samples already at the
// analysis rate. The input is truncated to MaxDuration first. The result has
// 1 + len/HopSize rows of NumMFCC columns.
func (e *Extractor) ExtractSamples(samples []float64) (Features, error) {
	samples = e.Truncate(samples)
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	power := e.powerSpectrogram(samples)
	logMel := e.logMelSpectrogram(power)

	features := make(Features, len(logMel))
	for t, frame := range logMel {
		row := make([]float64, e.cfg.NumMFCC)
		for k, basis := range e.dct {
			row[k] = floats.Dot(basis, frame)
		}
		features[t] = row
	}
	return features, nil
}

// powerSpectrogram frames the zero-padded, centred signal and returns
// |FFT|^2 for every frame.
func (e *Extractor) powerSpectrogram(samples []float64) [][]float64 {
	nfft, hop := e.cfg.FFTSize, e.cfg.HopSize
	pad := nfft / 2

	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	numFrames := 1 + len(samples)/hop
	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, nfft/2+1)

	spec := make([][]float64, numFrames)
	for t := 0; t < numFrames; t++ {
		start := t * hop
		for i := 0; i < nfft; i++ {
			frame[i] = padded[start+i] * e.window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		bins := make([]float64, len(coeffs))
		for k, c := range coeffs {
			re, im := real(c), imag(c)
			bins[k] = re*re + im*im
		}
		spec[t] = bins
	}
	return spec
}

// logMelSpectrogram applies the mel filterbank and converts power to
// decibels, clamping the dynamic range to TopDB below the global peak.
func (e *Extractor) logMelSpectrogram(power [][]float64) [][]float64 {
	const amin = 1e-10

	out := make([][]float64, len(power))
	peak := math.Inf(-1)
	for t, bins := range power {
		mel := make([]float64, len(e.melBank))
		for m, filter := range e.melBank {
			v := floats.Dot(filter, bins)
			mel[m] = 10 * math.Log10(math.Max(v, amin))
			if mel[m] > peak {
				peak = mel[m]
			}
		}
		out[t] = mel
	}

	if e.cfg.TopDB > 0 {
		floor := peak - e.cfg.TopDB
		for _, mel := range out {
			for m, v := range mel {
				if v < floor {
					mel[m] = floor
				}
			}
		}
	}
	return out
}

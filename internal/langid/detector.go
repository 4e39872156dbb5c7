package langid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nadzzz/aryad/internal/observe"
)

// Result is the outcome of one identification.
type Result struct {
	// Label is the best-scoring language.
	Label string `json:"label"`

	// Scores lists every model that scored, best first.
	Scores []Score `json:"scores"`
}

// Detector classifies audio against a Store. It keeps no per-call state and
// can be shared across goroutines.
type Detector struct {
	store     *Store
	extractor *Extractor
	metrics   *observe.Metrics
}

// DetectorOption customises a Detector.
type DetectorOption func(*Detector)

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) DetectorOption {
	return func(d *Detector) { d.metrics = m }
}

// NewDetector returns a Detector over store using extractor for features.
func NewDetector(store *Store, extractor *Extractor, opts ...DetectorOption) *Detector {
	if store == nil {
		store = NewStore(nil)
	}
	d := &Detector{store: store, extractor: extractor, metrics: observe.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Store returns the model store the detector reads.
func (d *Detector) Store() *Store { return d.store }

// Detect identifies the language spoken in the audio file at path.
func (d *Detector) Detect(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	if d.store.Len() == 0 {
		return nil, d.noModels(ctx, start)
	}
	features, err := d.extractor.Extract(path)
	if err != nil {
		slog.Error("audio decode failed", "path", path, "error", err)
		return nil, d.fail(ctx, start, "decode_error", err)
	}
	return d.classify(ctx, start, features)
}

// DetectAudio identifies the language of already-decoded audio.
func (d *Detector) DetectAudio(ctx context.Context, a *Audio) (*Result, error) {
	start := time.Now()
	if d.store.Len() == 0 {
		return nil, d.noModels(ctx, start)
	}
	features, err := d.extractor.ExtractAudio(a)
	if err != nil {
		slog.Error("feature extraction failed", "error", err)
		return nil, d.fail(ctx, start, "decode_error", err)
	}
	return d.classify(ctx, start, features)
}

// DetectSamples identifies the language of mono samples already at the
// extractor's sample rate.
func (d *Detector) DetectSamples(ctx context.Context, samples []float64) (*Result, error) {
	return d.DetectAudio(ctx, &Audio{Samples: samples, SampleRate: d.extractor.Config().SampleRate})
}

// Scores returns every model's log-likelihood for the file at path, best
// first.
func (d *Detector) Scores(ctx context.Context, path string) ([]Score, error) {
	res, err := d.Detect(ctx, path)
	if err != nil {
		return nil, err
	}
	return res.Scores, nil
}

// DetectFeatures scores a precomputed feature matrix.
func (d *Detector) DetectFeatures(ctx context.Context, features Features) (*Result, error) {
	start := time.Now()
	if d.store.Len() == 0 {
		return nil, d.noModels(ctx, start)
	}
	return d.classify(ctx, start, features)
}

func (d *Detector) noModels(ctx context.Context, start time.Time) error {
	slog.Error("language detection failed", "error", ErrNoModels)
	return d.fail(ctx, start, "no_models", ErrNoModels)
}

func (d *Detector) classify(ctx context.Context, start time.Time, features Features) (*Result, error) {
	scores := make([]Score, 0, d.store.Len())
	for _, label := range d.store.labels {
		if err := ctx.Err(); err != nil {
			return nil, d.fail(ctx, start, "canceled", err)
		}
		ll, err := d.store.models[label].Score(features)
		if err != nil {
			slog.Warn("language model could not score features", "language", label, "error", err)
			continue
		}
		scores = append(scores, Score{Label: label, LogLikelihood: ll})
	}
	if len(scores) == 0 {
		err := fmt.Errorf("%w: no model accepted %d-dimensional features", ErrNoModels, features.Cols())
		slog.Error("language detection failed", "error", err)
		return nil, d.fail(ctx, start, "no_scores", err)
	}

	// Stable sort keeps label order for exact ties.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].LogLikelihood > scores[j].LogLikelihood
	})

	res := &Result{Label: scores[0].Label, Scores: scores}
	d.metrics.RecordDetection(ctx, res.Label, "ok", time.Since(start).Seconds())
	slog.Info("language detected", "language", res.Label, "log_likelihood", scores[0].LogLikelihood, "frames", features.Rows())
	return res, nil
}

func (d *Detector) fail(ctx context.Context, start time.Time, status string, err error) error {
	d.metrics.RecordDetection(ctx, "", status, time.Since(start).Seconds())
	return err
}

// Package observe provides the OpenTelemetry metric instruments used across
// aryad. Metrics are exported through a Prometheus bridge (see InitProvider)
// and scraped from the health server's /metrics endpoint.
//
// Tests should build their own Metrics with NewMetrics and a private
// MeterProvider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nadzzz/aryad"

// Metrics holds every instrument recorded by the daemon.
type Metrics struct {
	// DetectDuration tracks spoken-language identification latency.
	DetectDuration metric.Float64Histogram

	// Detections counts identification outcomes. Attributes: label, status.
	Detections metric.Int64Counter

	// ModelLoads counts model files seen by the store loader. Attributes: status.
	ModelLoads metric.Int64Counter

	// STTDuration, LLMDuration and TTSDuration track provider latencies.
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// Messages counts assistant requests. Attributes: source_transport, status.
	Messages metric.Int64Counter
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.DetectDuration, err = m.Float64Histogram("aryad.langid.duration",
		metric.WithDescription("Latency of spoken-language identification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("aryad.langid.detections",
		metric.WithDescription("Spoken-language identification outcomes."),
	); err != nil {
		return nil, err
	}
	if met.ModelLoads, err = m.Int64Counter("aryad.langid.model_loads",
		metric.WithDescription("Language model files processed at startup."),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("aryad.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("aryad.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("aryad.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("aryad.assistant.messages",
		metric.WithDescription("Messages handled by the assistant pipeline."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns a Metrics bound to the global OTel MeterProvider. Instruments
// created before InitProvider runs are delegated once the provider is set.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: creating default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordDetection records one language identification.
func (m *Metrics) RecordDetection(ctx context.Context, label, status string, seconds float64) {
	m.DetectDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
	m.Detections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("label", label),
		attribute.String("status", status),
	))
}

// RecordModelLoad counts one processed model file.
func (m *Metrics) RecordModelLoad(ctx context.Context, status string) {
	m.ModelLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordMessage counts one assistant request.
func (m *Metrics) RecordMessage(ctx context.Context, transport, status string) {
	m.Messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("status", status),
	))
}

// RecordStage records the latency of an STT, LLM or TTS call.
func (m *Metrics) RecordStage(ctx context.Context, h metric.Float64Histogram, backend, status string, seconds float64) {
	h.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
}

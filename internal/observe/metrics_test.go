package observe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordDetection(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDetection(ctx, "french", "ok", 0.12)
	m.RecordDetection(ctx, "english", "ok", 0.08)
	m.RecordModelLoad(ctx, "loaded")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
			if md.Name == "aryad.langid.detections" {
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				require.EqualValues(t, 2, total)
			}
		}
	}
	require.True(t, names["aryad.langid.duration"])
	require.True(t, names["aryad.langid.model_loads"])
}

func TestDefaultIsSingleton(t *testing.T) {
	require.Same(t, Default(), Default())
}

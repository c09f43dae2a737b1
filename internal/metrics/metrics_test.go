package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/kart-io/agentmem/internal/metrics"
)

func TestNewWithNoProviderUsesNoop(t *testing.T) {
	f, err := metrics.New(metrics.Config{})
	require.NoError(t, err)
	require.NotNil(t, f)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		f.RecordIngestLatency(ctx, 10*time.Millisecond, "scope-1")
		f.RecordQueryLatency(ctx, 5*time.Millisecond, "scope-1")
		f.RecordExtractionOutcome(ctx, "applied")
		f.RecordRerankerFallback(ctx)
	})
}

// TestRecordedInstrumentsReachTheProvider wires a real SDK meter provider
// with a manual reader and confirms every Record* method lands in the
// collected metric set under its registered instrument name.
func TestRecordedInstrumentsReachTheProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.Default()),
	)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	f, err := metrics.New(metrics.Config{Provider: provider, Name: "agentmem-test"})
	require.NoError(t, err)

	ctx := context.Background()
	f.RecordIngestLatency(ctx, 10*time.Millisecond, "g1/s1")
	f.RecordQueryLatency(ctx, 20*time.Millisecond, "g1/s1")
	f.RecordExtractionOutcome(ctx, "applied")
	f.RecordRerankerFallback(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["agentmem.ingest.latency"])
	assert.True(t, names["agentmem.query.latency"])
	assert.True(t, names["agentmem.profile.extraction.outcomes"])
	assert.True(t, names["agentmem.reranker.fallbacks"])
}

func TestNilFactoryRecordMethodsAreNoops(t *testing.T) {
	var f *metrics.Factory
	ctx := context.Background()
	assert.NotPanics(t, func() {
		f.RecordIngestLatency(ctx, time.Second, "scope-1")
		f.RecordQueryLatency(ctx, time.Second, "scope-1")
		f.RecordExtractionOutcome(ctx, "failed")
		f.RecordRerankerFallback(ctx)
	})
}

// Package metrics exposes the counters and histograms the memory engine
// records during ingest, query and background extraction, built on OTel's
// metric API so the core never requires a collector to be present.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Factory builds and holds the instruments used across the memory engine.
// New with no Provider builds it over a no-op meter provider, and every
// Record* method does nothing on a nil *Factory.
type Factory struct {
	meter metric.Meter

	ingestLatency      metric.Float64Histogram
	queryLatency       metric.Float64Histogram
	extractionOutcomes metric.Int64Counter
	rerankerFallbacks  metric.Int64Counter
}

// Config selects the meter provider a Factory pulls its meter from. A nil
// Provider yields a no-op meter.
type Config struct {
	Provider metric.MeterProvider
	Name     string
}

// New builds a Factory. If any instrument fails to register, New returns
// that error and no Factory.
func New(cfg Config) (*Factory, error) {
	provider := cfg.Provider
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	name := cfg.Name
	if name == "" {
		name = "agentmem"
	}
	meter := provider.Meter(name)

	f := &Factory{meter: meter}

	var err error
	if f.ingestLatency, err = meter.Float64Histogram(
		"agentmem.ingest.latency",
		metric.WithDescription("episode ingest latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if f.queryLatency, err = meter.Float64Histogram(
		"agentmem.query.latency",
		metric.WithDescription("query_memory latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if f.extractionOutcomes, err = meter.Int64Counter(
		"agentmem.profile.extraction.outcomes",
		metric.WithDescription("profile extraction job outcomes, by result"),
	); err != nil {
		return nil, err
	}
	if f.rerankerFallbacks, err = meter.Int64Counter(
		"agentmem.reranker.fallbacks",
		metric.WithDescription("count of query_memory calls that fell back to raw similarity after a reranker error"),
	); err != nil {
		return nil, err
	}
	return f, nil
}

// RecordIngestLatency records the duration of one add_memory_episode call.
func (f *Factory) RecordIngestLatency(ctx context.Context, d time.Duration, scope string) {
	if f == nil {
		return
	}
	f.ingestLatency.Record(ctx, d.Seconds(), metric.WithAttributes(scopeAttr(scope)))
}

// RecordQueryLatency records the duration of one query_memory call.
func (f *Factory) RecordQueryLatency(ctx context.Context, d time.Duration, scope string) {
	if f == nil {
		return
	}
	f.queryLatency.Record(ctx, d.Seconds(), metric.WithAttributes(scopeAttr(scope)))
}

// RecordExtractionOutcome increments the extraction outcome counter for
// outcome (e.g. "applied", "failed", "no_commands").
func (f *Factory) RecordExtractionOutcome(ctx context.Context, outcome string) {
	if f == nil {
		return
	}
	f.extractionOutcomes.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordRerankerFallback increments the reranker-fallback counter.
func (f *Factory) RecordRerankerFallback(ctx context.Context) {
	if f == nil {
		return
	}
	f.rerankerFallbacks.Add(ctx, 1)
}

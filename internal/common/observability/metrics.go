// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	clientprom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	serviceName    string
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	itemCounter    otelmetric.Int64Counter
	itemDuration   otelmetric.Float64Histogram
	tracerShutdown func(context.Context) error
}

// New exports otel metrics through the default prometheus registerer.
func New(serviceName string) *Observability {
	return NewWithRegisterer(serviceName, clientprom.DefaultRegisterer)
}

func NewWithRegisterer(serviceName string, reg clientprom.Registerer) *Observability {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{serviceName: serviceName}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	itemCounter, _ := meter.Int64Counter(
		"queue.items.processed",
		otelmetric.WithDescription("Number of work items processed"),
	)

	itemDuration, _ := meter.Float64Histogram(
		"queue.items.duration",
		otelmetric.WithDescription("Work item processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		serviceName:   serviceName,
		meterProvider: provider,
		meter:         meter,
		itemCounter:   itemCounter,
		itemDuration:  itemDuration,
	}
}

// StartSpan starts a span on the global tracer provider, which is a no-op
// until EnableTracing installs an exporter.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(o.serviceName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordItemProcessed(ctx context.Context, queueType, status string) {
	if o.itemCounter != nil {
		o.itemCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("queue_type", queueType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordItemDuration(ctx context.Context, duration time.Duration, queueType, status string) {
	if o.itemDuration != nil {
		o.itemDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("queue_type", queueType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.tracerShutdown != nil {
		if err := o.tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shut down tracer provider: %v", err)
		}
	}
	if o.meterProvider != nil {
		o.meterProvider.Shutdown(ctx)
	}
}

package observability

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	metricznoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// disabledProvider is returned by NewProvider when observability is off.
// The httpclient tracking instruments then resolve to no-op meters and tracers.
type disabledProvider struct{}

func newNoopProvider() Provider { return disabledProvider{} }

func (disabledProvider) TracerProvider() trace.TracerProvider { return noop.NewTracerProvider() }

func (disabledProvider) MeterProvider() metric.MeterProvider { return metricznoop.NewMeterProvider() }

func (disabledProvider) Shutdown(context.Context) error { return nil }

func (disabledProvider) ForceFlush(context.Context) error { return nil }

// Package otelsetup wires up the OpenTelemetry metric provider the
// rest of beads records instruments against. By default metrics are
// discarded; setting BEADS_METRICS_STDOUT opts into periodic export for
// local debugging against a single data directory.
package otelsetup

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// EnvEnableStdout enables periodic stdout export of recorded metrics
// when set to any non-empty value.
const EnvEnableStdout = "BEADS_METRICS_STDOUT"

const exportInterval = 30 * time.Second

// Provider is a metric.MeterProvider paired with the shutdown function
// that flushes and releases it.
type Provider struct {
	metric.MeterProvider
	Shutdown func(context.Context) error
}

// NewProvider builds the process-wide meter provider. With
// EnvEnableStdout unset it returns a no-op provider so every Add/Record
// call on an instrument is free.
func NewProvider() *Provider {
	if os.Getenv(EnvEnableStdout) == "" {
		return &Provider{
			MeterProvider: noop.NewMeterProvider(),
			Shutdown:      func(context.Context) error { return nil },
		}
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return &Provider{
			MeterProvider: noop.NewMeterProvider(),
			Shutdown:      func(context.Context) error { return nil },
		}
	}

	sdk := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	return &Provider{MeterProvider: sdk, Shutdown: sdk.Shutdown}
}

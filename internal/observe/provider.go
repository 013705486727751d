// Package observe provides the relay's observability surface: OpenTelemetry
// metric instruments bridged to a Prometheus /metrics endpoint, and the
// per-minute sampler that publishes gateway statistics.
package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK provider.
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "yomiage".
	ServiceName string

	// ServiceVersion is reported in telemetry.
	ServiceVersion string
}

// InitProvider initialises a [sdkmetric.MeterProvider] with a Prometheus
// exporter and registers it as the global OTel meter provider, so metrics
// end up in the default Prometheus registry served on /metrics.
//
// Returns a shutdown function that flushes the provider. Call it in a defer
// from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "yomiage"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

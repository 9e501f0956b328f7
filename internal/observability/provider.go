package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider holds the OpenTelemetry meter provider and exporter.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *Metrics
	promExporter  *prometheus.Exporter
}

// Config configures the observability provider.
type Config struct {
	// EnablePrometheus enables the Prometheus metrics exporter.
	EnablePrometheus bool
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{EnablePrometheus: true}
}

// NewProvider creates a new observability provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Provider{}

	if cfg.EnablePrometheus {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, err
		}
		p.promExporter = exporter
		p.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
		)
	} else {
		p.MeterProvider = sdkmetric.NewMeterProvider()
	}

	otel.SetMeterProvider(p.MeterProvider)

	metrics, err := NewMetrics(p.MeterProvider)
	if err != nil {
		return nil, err
	}
	p.Metrics = metrics

	return p, nil
}

// PrometheusHandler returns an http.Handler for the /metrics endpoint.
func (p *Provider) PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.MeterProvider != nil {
		return p.MeterProvider.Shutdown(ctx)
	}
	return nil
}

package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs a global meter provider backed by a Prometheus
// exporter. It returns the /metrics handler and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// StateCounts reports how many simulations are queued and running.
type StateCounts func(ctx context.Context) (queued, running int, err error)

// RegisterStateGauges exposes queue depth as observable gauges, sampled on
// every scrape.
func RegisterStateGauges(counts StateCounts) (otelmetric.Registration, error) {
	meter := otel.Meter("simplane/controller")

	queued, err := meter.Int64ObservableGauge("simplane_simulations_queued",
		otelmetric.WithDescription("Simulations submitted but not yet started"))
	if err != nil {
		return nil, err
	}
	running, err := meter.Int64ObservableGauge("simplane_simulations_running",
		otelmetric.WithDescription("Simulations running on the cluster"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		q, r, err := counts(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(queued, int64(q))
		o.ObserveInt64(running, int64(r))
		return nil
	}, queued, running)
}

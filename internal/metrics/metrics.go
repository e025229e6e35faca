package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/markberger/kinesisctl/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const scopeName = "github.com/markberger/kinesisctl"

// Meter is the process-wide meter. It is a no-op until Init enables export,
// so instruments must be created after Init has run.
var Meter metric.Meter = noop.NewMeterProvider().Meter(scopeName)

// Init installs a Prometheus-backed meter provider and serves it on
// cfg.Addr. The returned function flushes and stops both.
func Init(ctx context.Context, cfg config.MetricsConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	Meter = provider.Meter(scopeName)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"addr": cfg.Addr, "path": cfg.Path}).Info("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics endpoint failed")
		}
	}()

	return func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), provider.Shutdown(ctx))
	}, nil
}

package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultServiceName is used when the config does not name the service.
	DefaultServiceName = "mailgate"

	// DefaultServiceVersion is used when no version is provided.
	DefaultServiceVersion = "unknown"

	// instrumentationScope prefixes the meter/tracer names handed out by
	// Meter and Tracer.
	instrumentationScope = "github.com/giantswarm/mailgate"
)

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName is the logical service name reported in telemetry.
	ServiceName string

	// ServiceVersion is the running version reported in telemetry.
	ServiceVersion string

	// Enabled controls whether real providers are created. When false,
	// no-op providers are used and recording has zero overhead.
	Enabled bool
}

// Instrumentation bundles the meter and tracer providers plus the gateway's
// pre-created metric instruments.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics  *Metrics
	registry *prometheus.Registry

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates the instrumentation for the process. With Enabled=false the
// returned value is fully functional but records nothing.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	}
	if hostname, err := os.Hostname(); err == nil {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(hostname)))
	}

	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(); err != nil {
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = metricnoop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// initializeProviders wires a Prometheus reader into the SDK meter provider
// and creates a plain SDK tracer provider. Spans stay in-process unless an
// exporter is configured by the embedding process; the gateway only needs
// span context propagation and metric export.
func (i *Instrumentation) initializeProviders() error {
	i.registry = prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(i.registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(i.resource),
		sdkmetric.WithReader(exporter),
	)
	i.meterProvider = meterProvider
	i.shutdownFuncs = append(i.shutdownFuncs, meterProvider.Shutdown)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(i.resource),
	)
	i.tracerProvider = tracerProvider
	i.shutdownFuncs = append(i.shutdownFuncs, tracerProvider.Shutdown)

	return nil
}

// Shutdown flushes and stops all providers. Safe to call more than once.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope ("http", "flow",
// "storage", "security").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(instrumentationScope + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(instrumentationScope + scope)
}

// Metrics returns the instrument holder for recording metric values.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// PrometheusHandler returns an HTTP handler serving the metrics registry,
// or nil when instrumentation is disabled.
func (i *Instrumentation) PrometheusHandler() http.Handler {
	if i.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})
}

// SizeCallback reports the current size of a store component.
type SizeCallback func() int64

// RegisterStoreSizeCallbacks registers the observable gauges for active
// sessions and pending CSRF states. The store calls this once after
// instrumentation is attached; the callbacks must be lock-free.
func (i *Instrumentation) RegisterStoreSizeCallbacks(sessionCount, stateCount SizeCallback) error {
	if i.meterProvider == nil {
		return fmt.Errorf("meter provider not initialized")
	}

	meter := i.Meter("storage")

	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if sessionCount != nil {
				observer.ObserveInt64(i.metrics.SessionsActive, sessionCount())
			}
			if stateCount != nil {
				observer.ObserveInt64(i.metrics.StatesPending, stateCount())
			}
			return nil
		},
		i.metrics.SessionsActive,
		i.metrics.StatesPending,
	)

	return err
}

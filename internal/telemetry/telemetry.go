package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	ErrInvalidConfig         = errors.New("invalid telemetry configuration")
	ErrMissingServiceName    = errors.New("service name is required")
	ErrMissingServiceVersion = errors.New("service version is required")
	ErrInvalidSampleRate     = errors.New("sample rate must be between 0.0 and 1.0")
)

type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	OTLPEndpoint     string
	EnableTracing    bool
	EnableMetrics    bool
	EnablePrometheus bool
	SampleRate       float64
}

type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	traceExporter  sdktrace.SpanExporter
	metricExporter sdkmetric.Exporter
	registry       *prometheus.Registry
}

type Option func(*telemetryOptions)

type telemetryOptions struct {
	traceExporter  sdktrace.SpanExporter
	metricExporter sdkmetric.Exporter
}

func WithTraceExporter(exporter sdktrace.SpanExporter) Option {
	return func(opts *telemetryOptions) {
		opts.traceExporter = exporter
	}
}

func WithMetricExporter(exporter sdkmetric.Exporter) Option {
	return func(opts *telemetryOptions) {
		opts.metricExporter = exporter
	}
}

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrMissingServiceName)
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrMissingServiceVersion)
	}

	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidSampleRate)
	}

	return nil
}

func Initialize(ctx context.Context, cfg Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &telemetryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	res, err := createResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tel := &Telemetry{}

	if cfg.EnableTracing {
		tp, exp, err := initializeTracing(ctx, res, cfg, options.traceExporter)
		if err != nil {
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
		otel.SetTracerProvider(tp)
		tel.tracerProvider = tp
		tel.traceExporter = exp
	}

	if cfg.EnableMetrics {
		if err := tel.initializeMetrics(ctx, res, cfg, options.metricExporter); err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
		otel.SetMeterProvider(tel.meterProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tel, nil
}

func createResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
	)
}

func initializeTracing(ctx context.Context, res *resource.Resource, cfg Config, providedExporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, sdktrace.SpanExporter, error) {
	exporter := providedExporter
	if exporter == nil {
		// Plaintext gRPC towards the local collector.
		var err error
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter),
	)

	return tp, exporter, nil
}

// initializeMetrics attaches an OTLP periodic reader when an endpoint or
// exporter is available and a Prometheus reader when scraping is enabled.
func (t *Telemetry) initializeMetrics(ctx context.Context, res *resource.Resource, cfg Config, providedExporter sdkmetric.Exporter) error {
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	exporter := providedExporter
	if exporter == nil && cfg.OTLPEndpoint != "" {
		var err error
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
	}
	if exporter != nil {
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
		t.metricExporter = exporter
	}

	if cfg.EnablePrometheus {
		registry := prometheus.NewRegistry()
		reader, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
		t.registry = registry
	}

	t.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
	return nil
}

func createSampler(sampleRate float64) sdktrace.Sampler {
	if sampleRate <= 0.0 {
		return sdktrace.NeverSample()
	}

	if sampleRate >= 1.0 {
		return sdktrace.AlwaysSample()
	}

	return sdktrace.ParentBased(
		sdktrace.TraceIDRatioBased(sampleRate),
	)
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Meter returns a named meter, falling back to a no-op meter when metrics
// are disabled so callers can build instruments unconditionally.
func (t *Telemetry) Meter(name string) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return t.meterProvider.Meter(name)
}

// MetricsHandler serves the Prometheus exposition of recorded metrics.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t == nil || t.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("# prometheus exposition is disabled\n"))
		})
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) TracerProvider() *sdktrace.TracerProvider {
	return t.tracerProvider
}

func (t *Telemetry) MeterProvider() *sdkmetric.MeterProvider {
	return t.meterProvider
}

// Package observability wires OpenTelemetry logging, metrics, and
// tracing for the coordinator and bot binaries. All exporters speak
// OTLP over HTTP.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the telemetry backend.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled turns OTLP export on. When false every signal gets a
	// no-op provider and logs go to stdout as JSON.
	Enabled bool

	// Endpoint is the OTLP HTTP collector host:port. Empty falls back
	// to the standard OTEL_EXPORTER_OTLP_ENDPOINT environment variable.
	Endpoint string
}

// ShutdownFunc flushes and stops every provider Setup created.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes tracing, metrics, and logging, installs the global
// providers, and makes the returned logger the slog default. Callers
// must invoke the shutdown function on exit to flush buffered telemetry.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}

	tp, err := initTracerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer provider: %w", err)
	}
	mp, err := initMeterProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init meter provider: %w", err)
	}
	lp, logger, err := initLogger(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	slog.SetDefault(logger)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
	}
	return shutdown, nil
}

// newResource merges service identity with the SDK defaults. Partial
// merge conflicts are non-fatal; the resource stays usable.
func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	serviceResource, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithSchemaURL(semconv.SchemaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service resource: %w", err)
	}

	res, err := resource.Merge(resource.Default(), serviceResource)
	if err != nil {
		if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
			return res, nil
		}
		return nil, fmt.Errorf("failed to merge resources: %w", err)
	}
	return res, nil
}

func initTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithTimeout(10 * time.Second)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	}

	// Exporter creation uses a fresh context so shutdown of the caller's
	// context cannot wedge it.
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

func initMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithTimeout(10 * time.Second)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

func initLogger(ctx context.Context, cfg Config) (*sdklog.LoggerProvider, *slog.Logger, error) {
	if !cfg.Enabled {
		return sdklog.NewLoggerProvider(), slog.New(slog.NewJSONHandler(os.Stdout, nil)), nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []otlploghttp.Option{otlploghttp.WithTimeout(10 * time.Second)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlploghttp.WithEndpoint(cfg.Endpoint), otlploghttp.WithInsecure())
	}

	exporter, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(5*time.Second),
		)),
		sdklog.WithResource(res),
	)

	logger := otelslog.NewLogger(cfg.ServiceName, otelslog.WithLoggerProvider(lp))
	return lp, logger, nil
}

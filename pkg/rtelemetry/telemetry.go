package rtelemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	globalConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc shuts down the TracerProvider started by Init.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error { return nil }

// Init initializes OpenTelemetry and sets up the global TracerProvider
// from cfg. If cfg.Enabled is false, it returns a no-op shutdown function
// and the global TracerProvider remains the default no-op provider, so
// every rtelemetry.StartSpan call elsewhere in the coordinator is a cheap
// no-op rather than needing its own enabled check.
func Init(ctx context.Context, cfg *Config) (ShutdownFunc, error) {
	configOnce.Do(func() { globalConfig = cfg })

	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	sampler := createSampler(cfg)

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
		trace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}

// Enabled returns whether OpenTelemetry tracing is currently enabled.
func Enabled() bool {
	return currentConfig().Enabled
}

func currentConfig() *Config {
	configOnce.Do(func() { globalConfig = LoadFromEnv() })
	return globalConfig
}

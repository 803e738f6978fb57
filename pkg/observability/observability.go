// Package observability provides OpenTelemetry tracing and metrics for the
// marketplace node: OTLP gRPC export, contract lifecycle counters, and an
// auction duration histogram.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batch flush interval
	Enabled        bool
	Insecure       bool // dev only
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "agora-node",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       false,
	}
}

// Provider manages the trace and metric providers plus marketplace metrics.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	contractsCreated metric.Int64Counter
	contractsAwarded metric.Int64Counter
	contractsSettled metric.Int64Counter
	contractsFailed  metric.Int64Counter
	bidsReceived     metric.Int64Counter
	auctionDuration  metric.Float64Histogram
}

// New creates an observability provider. With Enabled false it is a no-op
// shell whose record methods are safe to call.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("agora.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("agora.marketplace",
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter("agora.marketplace",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.contractsCreated, err = p.meter.Int64Counter("agora.contracts.created",
		metric.WithDescription("Contracts posted to the marketplace"),
		metric.WithUnit("{contract}"),
	)
	if err != nil {
		return err
	}
	p.contractsAwarded, err = p.meter.Int64Counter("agora.contracts.awarded",
		metric.WithDescription("Contracts awarded to a winning bid"),
		metric.WithUnit("{contract}"),
	)
	if err != nil {
		return err
	}
	p.contractsSettled, err = p.meter.Int64Counter("agora.contracts.settled",
		metric.WithDescription("Contracts settled after approved delivery"),
		metric.WithUnit("{contract}"),
	)
	if err != nil {
		return err
	}
	p.contractsFailed, err = p.meter.Int64Counter("agora.contracts.failed",
		metric.WithDescription("Contracts that expired, failed, or were disputed"),
		metric.WithUnit("{contract}"),
	)
	if err != nil {
		return err
	}
	p.bidsReceived, err = p.meter.Int64Counter("agora.bids.received",
		metric.WithDescription("Bids accepted into bidding windows"),
		metric.WithUnit("{bid}"),
	)
	if err != nil {
		return err
	}
	p.auctionDuration, err = p.meter.Float64Histogram("agora.auction.duration",
		metric.WithDescription("Winner selection duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("agora.marketplace")
	}
	return p.tracer
}

// StartSpan starts a new span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

func (p *Provider) RecordContractCreated(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.contractsCreated != nil {
		p.contractsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (p *Provider) RecordContractAwarded(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.contractsAwarded != nil {
		p.contractsAwarded.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (p *Provider) RecordContractSettled(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.contractsSettled != nil {
		p.contractsSettled.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (p *Provider) RecordContractFailed(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.contractsFailed != nil {
		p.contractsFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (p *Provider) RecordBidReceived(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.bidsReceived != nil {
		p.bidsReceived.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (p *Provider) RecordAuctionDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if p.auctionDuration != nil {
		p.auctionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}
}

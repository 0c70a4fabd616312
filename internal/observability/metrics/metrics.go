package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	chargesAllowed      metric.Int64Counter
	chargesDenied       metric.Int64Counter
	fallbackActivations metric.Int64Counter
	providerRequests    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "vylin"
	}
	meter := provider.Meter(name)

	chargesAllowed, err := meter.Int64Counter("vylin_quota_charges_allowed_total")
	if err != nil {
		return nil, err
	}
	chargesDenied, err := meter.Int64Counter("vylin_quota_charges_denied_total")
	if err != nil {
		return nil, err
	}
	fallbackActivations, err := meter.Int64Counter("vylin_quota_fallback_activations_total")
	if err != nil {
		return nil, err
	}
	providerRequests, err := meter.Int64Counter("vylin_provider_requests_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("vylin_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		chargesAllowed:      chargesAllowed,
		chargesDenied:       chargesDenied,
		fallbackActivations: fallbackActivations,
		providerRequests:    providerRequests,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordChargeAllowed increments admitted charge counts.
func (m *Metrics) RecordChargeAllowed(ctx context.Context, category string, degraded bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.Bool("degraded", degraded),
	)
	m.chargesAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordChargeDenied increments denied charge counts.
func (m *Metrics) RecordChargeDenied(ctx context.Context, category, reason string, degraded bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("reason", strings.TrimSpace(reason)),
		attribute.Bool("degraded", degraded),
	)
	m.chargesDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFallbackActivation increments fallback-path activations.
func (m *Metrics) RecordFallbackActivation(ctx context.Context, cause string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("cause", strings.TrimSpace(cause)))
	m.fallbackActivations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderRequest increments downstream provider call counts.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.providerRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments perimeter rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"category": {},
	"reason":   {},
	"degraded": {},
	"cause":    {},
	"provider": {},
	"outcome":  {},
	"endpoint": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

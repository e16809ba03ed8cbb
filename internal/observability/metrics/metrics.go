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
	decisionsCreated  metric.Int64Counter
	decisionsResolved metric.Int64Counter
	quotaDenied       metric.Int64Counter
	generatorFallback metric.Int64Counter
	votesCast         metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
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
		name = "zarver"
	}
	meter := provider.Meter(name)

	decisionsCreated, err := meter.Int64Counter("zarver_decisions_created_total")
	if err != nil {
		return nil, err
	}
	decisionsResolved, err := meter.Int64Counter("zarver_decisions_resolved_total")
	if err != nil {
		return nil, err
	}
	quotaDenied, err := meter.Int64Counter("zarver_quota_denied_total")
	if err != nil {
		return nil, err
	}
	generatorFallback, err := meter.Int64Counter("zarver_generator_fallback_total")
	if err != nil {
		return nil, err
	}
	votesCast, err := meter.Int64Counter("zarver_votes_cast_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("zarver_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("zarver_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		decisionsCreated:  decisionsCreated,
		decisionsResolved: decisionsResolved,
		quotaDenied:       quotaDenied,
		generatorFallback: generatorFallback,
		votesCast:         votesCast,
		rateLimitAllowed:  rateLimitAllowed,
		rateLimitDenied:   rateLimitDenied,
	}, nil
}

// RecordDecisionCreated increments decision creation counts.
func (m *Metrics) RecordDecisionCreated(ctx context.Context, privacyLevel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("privacy_level", strings.TrimSpace(privacyLevel)))
	m.decisionsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDecisionResolved increments decision resolution counts.
func (m *Metrics) RecordDecisionResolved(ctx context.Context, roll int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Int("roll", roll))
	m.decisionsResolved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaDenied increments quota denial counts.
func (m *Metrics) RecordQuotaDenied(ctx context.Context, plan string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("plan", strings.TrimSpace(plan)))
	m.quotaDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGeneratorFallback increments fallback alternative counts.
func (m *Metrics) RecordGeneratorFallback(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.generatorFallback.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordVoteCast increments vote counts.
func (m *Metrics) RecordVoteCast(ctx context.Context, value string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("value", strings.TrimSpace(value)))
	m.votesCast.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, userID, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("user_id", strings.TrimSpace(userID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, userID, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("user_id", strings.TrimSpace(userID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
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
	"user_id":       {},
	"plan":          {},
	"endpoint":      {},
	"status_code":   {},
	"privacy_level": {},
	"roll":          {},
	"value":         {},
	"reason":        {},
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

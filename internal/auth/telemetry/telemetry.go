// Package telemetry owns the OpenTelemetry tracer and meters of the token
// server and exposes the meters to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/aussiebroadwan/tokend"

// Span attribute keys. Never put token, code or secret values in these.
const (
	AttrClientID  = "oauth.client_id"
	AttrGrantType = "oauth.grant_type"
	AttrOutcome   = "oauth.outcome"
	AttrTokenKind = "oauth.token_kind"
	AttrFamilyID  = "oauth.token.family_id"
)

type Config struct {
	ServiceName string

	// Enabled wires a Prometheus exporter. When false the meters are still
	// created but nothing is exported.
	Enabled bool
}

// Telemetry is safe for concurrent use. A nil *Telemetry records nothing.
type Telemetry struct {
	tracer   trace.Tracer
	registry *prometheus.Registry
	shutdown func(context.Context) error

	grantRequests  metric.Int64Counter
	grantDuration  metric.Float64Histogram
	tokensIssued   metric.Int64Counter
	replayDetected metric.Int64Counter
}

func New(cfg Config) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tokend"
	}

	registry := prometheus.NewRegistry()
	var (
		mp       metric.MeterProvider
		shutdown = func(context.Context) error { return nil }
	)
	if cfg.Enabled {
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
		}
		sdk := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		mp, shutdown = sdk, sdk.Shutdown
	} else {
		mp = sdkmetric.NewMeterProvider()
	}

	t := &Telemetry{
		tracer:   otel.GetTracerProvider().Tracer(scope),
		registry: registry,
		shutdown: shutdown,
	}
	if err := t.initInstruments(mp.Meter(scope)); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) initInstruments(meter metric.Meter) error {
	var err, errs error

	t.grantRequests, err = meter.Int64Counter("tokend.grant.requests",
		metric.WithDescription("Token endpoint requests by grant type and outcome"),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	t.grantDuration, err = meter.Float64Histogram("tokend.grant.duration",
		metric.WithDescription("Time spent handling a grant"),
		metric.WithUnit("ms"))
	errs = errors.Join(errs, err)

	t.tokensIssued, err = meter.Int64Counter("tokend.tokens.issued",
		metric.WithDescription("Tokens issued by kind"),
		metric.WithUnit("{token}"))
	errs = errors.Join(errs, err)

	t.replayDetected, err = meter.Int64Counter("tokend.grant.replay_detected",
		metric.WithDescription("Redeemed codes or refresh tokens presented again"),
		metric.WithUnit("{event}"))
	errs = errors.Join(errs, err)

	if errs != nil {
		return fmt.Errorf("telemetry: create instruments: %w", errs)
	}
	return nil
}

// Handler serves the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// StartSpan starts a span on the global tracer provider.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordGrant counts one token request and its duration.
func (t *Telemetry) RecordGrant(ctx context.Context, grantType, outcome string, d time.Duration) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrGrantType, grantType),
		attribute.String(AttrOutcome, outcome),
	)
	t.grantRequests.Add(ctx, 1, attrs)
	t.grantDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

func (t *Telemetry) RecordTokenIssued(ctx context.Context, kind string) {
	if t == nil {
		return
	}
	t.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTokenKind, kind)))
}

// RecordReplay counts a redeemed code or refresh token presented again.
func (t *Telemetry) RecordReplay(ctx context.Context, grantType string) {
	if t == nil {
		return
	}
	t.replayDetected.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrGrantType, grantType)))
}

// RecordError marks the span failed (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

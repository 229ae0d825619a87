// Package observability wires tracing and Prometheus metrics for the escrow
// engine, the oracle worker and the HTTP API.
//
// This provides:
//   - An OpenTelemetry tracer provider (stdout or OTLP/HTTP exporter, opt-in)
//   - Span helpers that record error status and count spans
//   - Prometheus metrics for engine operations, custody and the oracle
package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/aaas-network/aaas/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Tracing
// ═══════════════════════════════════════════════════════════════════════════

// Exporter names accepted by TracingConfig.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig configures the tracer provider.
type TracingConfig struct {
	ServiceName string
	Exporter    string // none | stdout | otlp
	Endpoint    string // OTLP/HTTP endpoint URL, used when Exporter is otlp
	SampleRatio float64
}

// DefaultTracingConfig returns production defaults (tracing off).
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "aaas",
		Exporter:    ExporterNone,
		SampleRatio: 1.0,
	}
}

// SetupTracing installs a global tracer provider for cfg.
//
// Tracing is opt-in: with the none exporter SetupTracing registers nothing
// and returns a no-op shutdown. The returned shutdown flushes pending spans
// and should be deferred by the caller.
func SetupTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch strings.ToLower(cfg.Exporter) {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	case ExporterOTLP:
		if cfg.Endpoint == "" {
			return noop, errors.New("otlp exporter requires an endpoint")
		}
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return noop, fmt.Errorf("trace resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan begins a span for operation. The returned end function records
// err on the span (if any) and ends it.
func StartSpan(ctx context.Context, tracer trace.Tracer, operation string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		TracesRecorded.Inc()
		if err != nil {
			TraceErrors.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Engine Metrics ─────────────────────────────────────────────────────────

// Operations tracks engine operations by name and outcome (ok, rejected, error).
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "escrow",
	Name:      "operations_total",
	Help:      "Total engine operations by operation and outcome.",
}, []string{"operation", "outcome"})

// Rejections tracks rejected operations by error category.
var Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "escrow",
	Name:      "rejections_total",
	Help:      "Total rejected operations by error category.",
}, []string{"operation", "category"})

// ChallengesCreated tracks created challenges by goal kind.
var ChallengesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "escrow",
	Name:      "challenges_created_total",
	Help:      "Total challenges created by goal kind.",
}, []string{"goal"})

// VotesCast tracks community votes by choice.
var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "escrow",
	Name:      "votes_total",
	Help:      "Total community votes by choice.",
}, []string{"choice"})

// ─── Custody Metrics ────────────────────────────────────────────────────────

// StakeMoved tracks base units moved through custody by transfer type.
var StakeMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "custody",
	Name:      "base_units_total",
	Help:      "Total base units moved through custody by transfer type.",
}, []string{"type"})

// ─── Oracle Metrics ─────────────────────────────────────────────────────────

// OracleSweeps tracks completed oracle sweeps.
var OracleSweeps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "oracle",
	Name:      "sweeps_total",
	Help:      "Total oracle sweeps.",
})

// OracleSubmissions tracks oracle verification submissions by result.
var OracleSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "oracle",
	Name:      "submissions_total",
	Help:      "Total oracle verification submissions by result (completed, incomplete, failed).",
}, []string{"result"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aaas",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})

// ─── Recording Helpers ──────────────────────────────────────────────────────

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// ObserveOperation counts one engine operation. Rule violations count as
// rejected with their category; anything else non-nil is an error.
func ObserveOperation(operation string, err error) {
	switch {
	case err == nil:
		Operations.WithLabelValues(operation, OutcomeOK).Inc()
	case domain.IsRejection(err):
		Operations.WithLabelValues(operation, OutcomeRejected).Inc()
		Rejections.WithLabelValues(operation, string(domain.CategoryOf(err))).Inc()
	default:
		Operations.WithLabelValues(operation, OutcomeError).Inc()
	}
}

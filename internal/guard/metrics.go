package guard

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the guard's OpenTelemetry instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	verificationAttempts metric.Int64Counter
	verificationOutcomes metric.Int64Counter
	verificationDuration metric.Float64Histogram
	probeRequests        metric.Int64Counter
	ticks                metric.Int64Counter
	escalations          metric.Int64Counter
	mismatchCount        metric.Int64Gauge
	hostShutdowns        metric.Int64Counter
}

// NewMetrics registers the guard instruments on meter. A nil meter falls back
// to a no-op meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("meowauth")
	}

	m := &Metrics{}
	var err error

	m.verificationAttempts, err = meter.Int64Counter(
		"guard_verification_attempts_total",
		metric.WithDescription("Verification round-trips started against the authority"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification attempts counter: %w", err)
	}

	m.verificationOutcomes, err = meter.Int64Counter(
		"guard_verification_outcomes_total",
		metric.WithDescription("Verification results by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification outcomes counter: %w", err)
	}

	m.verificationDuration, err = meter.Float64Histogram(
		"guard_verification_duration_seconds",
		metric.WithDescription("Verification round-trip duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification duration histogram: %w", err)
	}

	m.probeRequests, err = meter.Int64Counter(
		"guard_probe_requests_total",
		metric.WithDescription("Address probe requests by service and availability"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe requests counter: %w", err)
	}

	m.ticks, err = meter.Int64Counter(
		"guard_ticks_total",
		metric.WithDescription("Drift checks by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticks counter: %w", err)
	}

	m.escalations, err = meter.Int64Counter(
		"guard_escalations_total",
		metric.WithDescription("Re-verifications triggered by sustained drift"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalations counter: %w", err)
	}

	m.mismatchCount, err = meter.Int64Gauge(
		"guard_mismatch_count",
		metric.WithDescription("Current consecutive mismatch count"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mismatch gauge: %w", err)
	}

	m.hostShutdowns, err = meter.Int64Counter(
		"guard_host_shutdowns_total",
		metric.WithDescription("Host shutdowns requested by the guard"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create host shutdowns counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordVerification(ctx context.Context, outcome VerificationOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verificationAttempts.Add(ctx, 1)
	m.verificationOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.Kind.String())))
	m.verificationDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome.Kind.String())))
}

func (m *Metrics) recordProbe(ctx context.Context, res ProbeResult) {
	if m == nil {
		return
	}
	m.probeRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", res.Service),
		attribute.Bool("available", res.Observed),
	))
}

func (m *Metrics) recordTick(ctx context.Context, report TickReport) {
	if m == nil {
		return
	}
	m.ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", report.Result.String())))
	m.mismatchCount.Record(ctx, int64(report.Mismatches))
	switch report.Result {
	case TickEscalatedRecovered:
		m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "recovered")))
	case TickEscalatedFailed:
		m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
	}
}

func (m *Metrics) recordShutdown(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.hostShutdowns.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

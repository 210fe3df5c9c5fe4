package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "marketforge"

// Metrics holds all MarketForge metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SetupsStarted   metric.Int64Counter
	SetupsSucceeded metric.Int64Counter
	SetupsFailed    metric.Int64Counter
	SetupDuration   metric.Float64Histogram
	VerifyAttempts  metric.Int64Histogram
	Resolutions     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SetupsStarted, err = meter.Int64Counter("marketforge.setups.started",
		metric.WithDescription("Number of provisioning sagas started"))
	if err != nil {
		return nil, err
	}

	m.SetupsSucceeded, err = meter.Int64Counter("marketforge.setups.succeeded",
		metric.WithDescription("Number of provisioning sagas completed"))
	if err != nil {
		return nil, err
	}

	m.SetupsFailed, err = meter.Int64Counter("marketforge.setups.failed",
		metric.WithDescription("Number of provisioning sagas failed, by reason"))
	if err != nil {
		return nil, err
	}

	m.SetupDuration, err = meter.Float64Histogram("marketforge.setup.duration_seconds",
		metric.WithDescription("Provisioning saga duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.VerifyAttempts, err = meter.Int64Histogram("marketforge.verify.attempts",
		metric.WithDescription("Reads needed before a written tenant became visible"))
	if err != nil {
		return nil, err
	}

	m.Resolutions, err = meter.Int64Counter("marketforge.resolutions",
		metric.WithDescription("Host resolutions, by matched rule"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SetupStarted counts a new saga.
func (m *Metrics) SetupStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SetupsStarted.Add(ctx, 1)
}

// SetupFinished records the outcome of a saga. An empty reason means success.
func (m *Metrics) SetupFinished(ctx context.Context, seconds float64, reason string) {
	if m == nil {
		return
	}
	m.SetupDuration.Record(ctx, seconds)
	if reason == "" {
		m.SetupsSucceeded.Add(ctx, 1)
		return
	}
	m.SetupsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// VerifyFinished records how many reads a visibility check took.
func (m *Metrics) VerifyFinished(ctx context.Context, attempts int, visible bool) {
	if m == nil {
		return
	}
	m.VerifyAttempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.Bool("visible", visible)))
}

// Resolved counts a host resolution by the rule that decided it.
func (m *Metrics) Resolved(ctx context.Context, rule string, found bool) {
	if m == nil {
		return
	}
	m.Resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule", rule),
		attribute.Bool("found", found),
	))
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "magi"

// Metrics holds the council's metric instruments.
type Metrics struct {
	DecisionsStarted   metric.Int64Counter
	DecisionsCompleted metric.Int64Counter
	DecisionsDegraded  metric.Int64Counter
	Verdicts           metric.Int64Counter
	DecisionDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsStarted, err = meter.Int64Counter("magi.decisions.started",
		metric.WithDescription("Number of council runs started"))
	if err != nil {
		return nil, err
	}

	m.DecisionsCompleted, err = meter.Int64Counter("magi.decisions.completed",
		metric.WithDescription("Number of council runs completed"))
	if err != nil {
		return nil, err
	}

	m.DecisionsDegraded, err = meter.Int64Counter("magi.decisions.degraded",
		metric.WithDescription("Number of council runs resolved by a fallback path"))
	if err != nil {
		return nil, err
	}

	m.Verdicts, err = meter.Int64Counter("magi.verdicts",
		metric.WithDescription("Final verdicts by outcome"))
	if err != nil {
		return nil, err
	}

	m.DecisionDuration, err = meter.Float64Histogram("magi.decision.duration_seconds",
		metric.WithDescription("Council run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCompletion records the instruments for one finished run.
func (m *Metrics) RecordCompletion(ctx context.Context, verdict string, degraded bool, seconds float64) {
	m.DecisionsCompleted.Add(ctx, 1)
	m.Verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	m.DecisionDuration.Record(ctx, seconds)
	if degraded {
		m.DecisionsDegraded.Add(ctx, 1)
	}
}

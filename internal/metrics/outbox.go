package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outbox event outcomes recorded by OutboxMetrics.
const (
	OutcomeDone     = "done"
	OutcomeRetry    = "retry"
	OutcomeDead     = "dead"
	OutcomeDeferred = "deferred"
)

// OutboxMetrics records how claimed outbox events were settled.
type OutboxMetrics interface {
	// RecordClaimed adds the size of a claimed batch.
	RecordClaimed(ctx context.Context, count int)
	// RecordOutcome counts one settled event.
	RecordOutcome(ctx context.Context, outcome string)
}

type outboxMetrics struct {
	claimedCounter metric.Int64Counter
	outcomeCounter metric.Int64Counter
}

// NewOutboxMetrics creates an OutboxMetrics implementation on the given meter provider.
func NewOutboxMetrics(meterProvider metric.MeterProvider, namespace string) (OutboxMetrics, error) {
	meter := meterProvider.Meter(namespace)

	claimedCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_claimed_total", namespace),
		metric.WithDescription("Total number of outbox events claimed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create claimed counter: %w", err)
	}

	outcomeCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_events_total", namespace),
		metric.WithDescription("Total number of outbox events settled, by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}

	return &outboxMetrics{
		claimedCounter: claimedCounter,
		outcomeCounter: outcomeCounter,
	}, nil
}

func (o *outboxMetrics) RecordClaimed(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	o.claimedCounter.Add(ctx, int64(count))
}

func (o *outboxMetrics) RecordOutcome(ctx context.Context, outcome string) {
	o.outcomeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// NoOpOutboxMetrics discards all outbox measurements.
type NoOpOutboxMetrics struct{}

// NewNoOpOutboxMetrics creates a no-op OutboxMetrics implementation.
func NewNoOpOutboxMetrics() OutboxMetrics {
	return &NoOpOutboxMetrics{}
}

func (n *NoOpOutboxMetrics) RecordClaimed(ctx context.Context, count int) {}

func (n *NoOpOutboxMetrics) RecordOutcome(ctx context.Context, outcome string) {}

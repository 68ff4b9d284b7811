package ledger

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type ledgerMetrics struct {
	applied   metric.Int64Counter
	quantity  metric.Int64Counter
	rejected  metric.Int64Counter
	reversals metric.Int64Counter
}

var (
	metricsOnce sync.Once
	instruments ledgerMetrics
)

// meters returns the ledger instruments. They bind to the global meter
// provider, so they are no-ops until telemetry is initialized.
func meters() *ledgerMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("stockledger/ledger")
		instruments.applied, _ = meter.Int64Counter("ledger_movements_applied_total",
			metric.WithDescription("Movements applied to the ledger"))
		instruments.quantity, _ = meter.Int64Counter("ledger_movement_quantity_total",
			metric.WithDescription("Units moved by applied movements"))
		instruments.rejected, _ = meter.Int64Counter("ledger_movements_rejected_total",
			metric.WithDescription("Movements rejected by the ledger, by error code"))
		instruments.reversals, _ = meter.Int64Counter("ledger_reversals_total",
			metric.WithDescription("Deleted movements, by reversal outcome"))
	})
	return &instruments
}

func (m *ledgerMetrics) recordApplied(ctx context.Context, mv *Movement) {
	attrs := metric.WithAttributes(attribute.String("type", string(mv.Type)))
	m.applied.Add(ctx, 1, attrs)
	m.quantity.Add(ctx, mv.Quantity, attrs)
}

func (m *ledgerMetrics) recordRejected(ctx context.Context, mv *Movement, code string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(mv.Type)),
		attribute.String("code", code),
	))
}

func (m *ledgerMetrics) recordReversal(ctx context.Context, outcome ReversalOutcome) {
	m.reversals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome.Kind))))
}

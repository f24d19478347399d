package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// CheckoutMetrics counts the outcomes the checkout path can take. The
// orphaned-headers counter in particular backs the reconciliation alert:
// any non-zero value means a header survived a failed rollback.
type CheckoutMetrics struct {
	OrdersPlaced      metric.Int64Counter
	ValidationErrors  metric.Int64Counter
	Rollbacks         metric.Int64Counter
	OrphanedHeaders   metric.Int64Counter
	IdempotentReplays metric.Int64Counter
}

func NewCheckoutMetrics() (*CheckoutMetrics, error) {
	meter := otel.Meter("checkout")

	ordersPlaced, err := meter.Int64Counter("checkout.orders_placed",
		metric.WithDescription("Orders successfully committed"))
	if err != nil {
		return nil, err
	}

	validationErrors, err := meter.Int64Counter("checkout.validation_errors",
		metric.WithDescription("Checkout requests rejected before any write"))
	if err != nil {
		return nil, err
	}

	rollbacks, err := meter.Int64Counter("checkout.rollbacks",
		metric.WithDescription("Partial insertions rolled back"))
	if err != nil {
		return nil, err
	}

	orphanedHeaders, err := meter.Int64Counter("checkout.orphaned_headers",
		metric.WithDescription("Order headers left behind by a failed rollback"))
	if err != nil {
		return nil, err
	}

	idempotentReplays, err := meter.Int64Counter("checkout.idempotent_replays",
		metric.WithDescription("Retried checkouts answered with a previously created order"))
	if err != nil {
		return nil, err
	}

	return &CheckoutMetrics{
		OrdersPlaced:      ordersPlaced,
		ValidationErrors:  validationErrors,
		Rollbacks:         rollbacks,
		OrphanedHeaders:   orphanedHeaders,
		IdempotentReplays: idempotentReplays,
	}, nil
}

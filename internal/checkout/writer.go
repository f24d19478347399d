package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rmarques/storefront-checkout/internal/domain"
)

// OrderStore is the slice of the order store the writer needs: single-row
// insert with a store-generated id, and delete by id. The access path offers
// no multi-statement transaction across the header and its lines, which is
// the whole reason the writer exists.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertLine(ctx context.Context, orderID string, line *domain.OrderLine) error
	DeleteLines(ctx context.Context, orderID string) error
	DeleteOrder(ctx context.Context, orderID string) error
}

// Writer persists an order aggregate: header first, then lines one at a
// time. A failed line insert aborts the attempt and compensates by deleting
// whatever was already written; there is no per-line retry. Retrying a whole
// checkout is the idempotency guard's job, not the writer's.
type Writer struct {
	store  OrderStore
	logger *slog.Logger
}

func NewWriter(store OrderStore, logger *slog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Commit returns the generated order id on success. On a mid-sequence
// failure it returns PartialInsertionError after rolling back, or
// OrphanedHeaderError if the rollback itself failed.
func (w *Writer) Commit(ctx context.Context, order *domain.Order) (string, error) {
	if len(order.Lines) == 0 {
		return "", fmt.Errorf("refusing to persist order with no lines")
	}

	if err := w.store.InsertOrder(ctx, order); err != nil {
		return "", fmt.Errorf("insert order header: %w", err)
	}

	for i := range order.Lines {
		if err := w.store.InsertLine(ctx, order.ID, &order.Lines[i]); err != nil {
			return "", w.rollback(ctx, order.ID, err)
		}
	}

	return order.ID, nil
}

// rollback deletes the lines written so far and then the header, in that
// order, so no observer ever sees a line pointing at a deleted header.
func (w *Writer) rollback(ctx context.Context, orderID string, cause error) error {
	w.logger.Warn("rolling back partially inserted order", "order_id", orderID, "error", cause)

	if err := w.store.DeleteLines(ctx, orderID); err != nil {
		w.logger.Error("rollback failed, order header orphaned", "order_id", orderID, "error", err)
		return &OrphanedHeaderError{OrderID: orderID, Cause: err}
	}

	if err := w.store.DeleteOrder(ctx, orderID); err != nil {
		w.logger.Error("rollback failed, order header orphaned", "order_id", orderID, "error", err)
		return &OrphanedHeaderError{OrderID: orderID, Cause: err}
	}

	return &PartialInsertionError{OrderID: orderID, Cause: cause}
}

package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rmarques/storefront-checkout/internal/domain"
)

// OrderCompleter transitions orders out of pending. The bool result reports
// whether a transition actually happened.
type OrderCompleter interface {
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error)
}

// Handler consumes order.placed events and marks the order completed. It is
// a stand-in for a real fulfillment pipeline; what matters here is that the
// status transition is idempotent, because the broker redelivers on any
// consumer failure.
type Handler struct {
	store  OrderCompleter
	logger *slog.Logger
}

func NewHandler(store OrderCompleter, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	updated, err := h.store.UpdateStatus(ctx, event.OrderID, domain.OrderStatusCompleted)
	if err != nil {
		return fmt.Errorf("complete order %s: %w", event.OrderID, err)
	}

	if !updated {
		// Redelivery or an order already cancelled; either way, done.
		h.logger.Info("order already transitioned, skipping", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("order completed", "order_id", event.OrderID, "user_id", event.UserID)
	return nil
}

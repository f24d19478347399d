package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rmarques/storefront-checkout/internal/catalog"
	"github.com/rmarques/storefront-checkout/internal/domain"
	"github.com/rmarques/storefront-checkout/internal/telemetry"
)

// EventPublisher is the slice of the messaging producer the service uses.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service runs one checkout end to end: claim the idempotency key, build
// the aggregate against the catalog, commit it, record the result. It holds
// no lock across the sequence; same-key serialization lives entirely in the
// guard's storage.
type Service struct {
	catalog  catalog.Lookup
	guard    *Guard
	writer   *Writer
	producer EventPublisher
	metrics  *telemetry.CheckoutMetrics
	logger   *slog.Logger
}

// NewService wires a checkout service. producer and metrics may be nil.
func NewService(lookup catalog.Lookup, guard *Guard, writer *Writer, producer EventPublisher, metrics *telemetry.CheckoutMetrics, logger *slog.Logger) *Service {
	return &Service{
		catalog:  lookup,
		guard:    guard,
		writer:   writer,
		producer: producer,
		metrics:  metrics,
		logger:   logger,
	}
}

type Result struct {
	OrderID string
	// Replayed is true when the order was created by an earlier attempt
	// with the same idempotency key.
	Replayed bool
}

// Checkout places an order for userID. key may be empty, in which case a
// weaker content-derived key is used (see DeriveKey).
func (s *Service) Checkout(ctx context.Context, userID, key string, req domain.CheckoutRequest) (*Result, error) {
	if key == "" {
		key = DeriveKey(userID, req.Lines, time.Now())
		s.logger.Debug("no idempotency key supplied, derived one from cart content", "idempotency_key", key)
	}

	outcome, err := s.guard.Begin(ctx, key, userID)
	if err != nil {
		return nil, err
	}

	switch outcome.Decision {
	case AlreadyCompleted:
		if s.metrics != nil {
			s.metrics.IdempotentReplays.Add(ctx, 1)
		}
		s.logger.Info("replaying completed checkout", "idempotency_key", key, "order_id", outcome.OrderID)
		return &Result{OrderID: outcome.OrderID, Replayed: true}, nil
	case InProgress:
		return nil, ErrInProgress
	}

	// Past this point the key is claimed: every exit path must either
	// complete the attempt or release it.

	order, err := Build(ctx, userID, req.Lines, s.catalog)
	if err != nil {
		s.guard.Release(context.WithoutCancel(ctx), key)
		var verr *ValidationError
		if errors.As(err, &verr) && s.metrics != nil {
			s.metrics.ValidationErrors.Add(ctx, 1)
		}
		return nil, err
	}

	// The write sequence must run to completion even if the client
	// disconnects; cancellation only loses the response, never aborts a
	// partially committed order.
	wctx := context.WithoutCancel(ctx)

	orderID, err := s.writer.Commit(wctx, order)
	if err != nil {
		var orphaned *OrphanedHeaderError
		if errors.As(err, &orphaned) {
			if s.metrics != nil {
				s.metrics.OrphanedHeaders.Add(ctx, 1)
			}
			// Keep the key claimed: releasing it would let a retry place a
			// second order while the orphaned header is still around. The
			// stale-attempt TTL bounds how long the key stays blocked.
			s.logger.Error("order header requires manual reconciliation", "order_id", orphaned.OrderID)
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.Rollbacks.Add(ctx, 1)
		}
		s.guard.Release(wctx, key)
		return nil, err
	}

	if err := s.guard.Complete(wctx, key, orderID); err != nil {
		// The order is durable; failing the request now would invite the
		// exact duplicate the guard exists to prevent.
		s.logger.Error("order committed but attempt not marked completed", "idempotency_key", key, "order_id", orderID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.OrdersPlaced.Add(ctx, 1)
	}
	s.logger.Info("order placed", "order_id", orderID, "user_id", userID, "total_amount", order.TotalAmount)

	if s.producer != nil {
		event := domain.OrderPlacedEvent{
			OrderID:     orderID,
			UserID:      userID,
			Lines:       order.Lines,
			TotalAmount: order.TotalAmount,
			Timestamp:   order.CreatedAt,
		}
		if err := s.producer.Publish(wctx, orderID, event); err != nil {
			s.logger.Error("failed to publish order placed event", "error", err, "order_id", orderID)
		}
	}

	return &Result{OrderID: orderID}, nil
}

package checkout

import (
	"errors"
	"fmt"
)

// ErrInProgress reports that another attempt with the same idempotency key
// is mid-commit. Callers map it to HTTP 409 and retry later.
var ErrInProgress = errors.New("checkout already in progress for this key")

type ValidationKind string

const (
	EmptyCart       ValidationKind = "empty_cart"
	InvalidQuantity ValidationKind = "invalid_quantity"
	ProductNotFound ValidationKind = "product_not_found"
)

// ValidationError is client-caused and maps to HTTP 400. It is never
// retried automatically and triggers no writes.
type ValidationError struct {
	Kind      ValidationKind
	ProductID string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case EmptyCart:
		return "no items in cart"
	case InvalidQuantity:
		return fmt.Sprintf("invalid quantity for product %s", e.ProductID)
	case ProductNotFound:
		return fmt.Sprintf("product %s not found", e.ProductID)
	default:
		return "invalid checkout request"
	}
}

// PartialInsertionError reports that a line insert failed after the header
// was written and the partial order was rolled back.
type PartialInsertionError struct {
	OrderID string
	Cause   error
}

func (e *PartialInsertionError) Error() string {
	return fmt.Sprintf("order %s rolled back after partial insertion: %v", e.OrderID, e.Cause)
}

func (e *PartialInsertionError) Unwrap() error { return e.Cause }

// OrphanedHeaderError reports the worst case: line insertion failed and the
// compensating delete failed too, leaving a header behind. The order id is
// carried for operator reconciliation; this is the documented cost of not
// having a cross-entity transaction on the write path.
type OrphanedHeaderError struct {
	OrderID string
	Cause   error
}

func (e *OrphanedHeaderError) Error() string {
	return fmt.Sprintf("order %s left orphaned: rollback failed: %v", e.OrderID, e.Cause)
}

func (e *OrphanedHeaderError) Unwrap() error { return e.Cause }

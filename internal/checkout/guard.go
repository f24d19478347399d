package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Decision int

const (
	Proceed Decision = iota
	InProgress
	AlreadyCompleted
)

// Attempt is one row of the checkout_attempts table.
type Attempt struct {
	Key       string
	UserID    string
	OrderID   string
	Status    AttemptStatus
	UpdatedAt time.Time
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// AttemptStore serializes attempts on the same idempotency key across
// processes. InsertAttempt must be insert-first-wins (a unique constraint on
// the key, not an in-process lock), ReclaimAttempt must be a conditional
// update that succeeds for at most one caller.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, key, userID string) (bool, error)
	GetAttempt(ctx context.Context, key string) (*Attempt, error)
	ReclaimAttempt(ctx context.Context, key string, staleBefore time.Time) (bool, error)
	CompleteAttempt(ctx context.Context, key, orderID string) error
	DeleteAttempt(ctx context.Context, key string) error
}

// Guard decides whether a checkout attempt may proceed. Retried requests
// carrying the same key either get the original order id back or a 409
// while the first attempt is still mid-commit. Without the guard, a client
// retrying after a timeout double-charges; that is the bug class this
// package exists to close.
type Guard struct {
	store      AttemptStore
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewGuard(store AttemptStore, staleAfter time.Duration, logger *slog.Logger) *Guard {
	return &Guard{store: store, staleAfter: staleAfter, logger: logger}
}

type Outcome struct {
	Decision Decision
	OrderID  string
}

// Begin claims the key. Exactly one concurrent caller gets Proceed; the
// rest observe InProgress until the winner completes or releases, or
// AlreadyCompleted with the winner's order id afterwards.
func (g *Guard) Begin(ctx context.Context, key, userID string) (Outcome, error) {
	// Two passes: the row can vanish between a losing insert and the
	// follow-up read when a failed attempt releases its claim.
	for range 2 {
		inserted, err := g.store.InsertAttempt(ctx, key, userID)
		if err != nil {
			return Outcome{}, fmt.Errorf("claim idempotency key: %w", err)
		}
		if inserted {
			return Outcome{Decision: Proceed}, nil
		}

		attempt, err := g.store.GetAttempt(ctx, key)
		if err != nil {
			return Outcome{}, fmt.Errorf("load checkout attempt: %w", err)
		}
		if attempt == nil {
			continue
		}

		if attempt.Status == AttemptCompleted {
			return Outcome{Decision: AlreadyCompleted, OrderID: attempt.OrderID}, nil
		}

		// An in_progress row older than staleAfter belongs to a crashed
		// attempt; exactly one retrier takes it over.
		staleBefore := time.Now().UTC().Add(-g.staleAfter)
		if attempt.UpdatedAt.Before(staleBefore) {
			reclaimed, err := g.store.ReclaimAttempt(ctx, key, staleBefore)
			if err != nil {
				return Outcome{}, fmt.Errorf("reclaim stale attempt: %w", err)
			}
			if reclaimed {
				g.logger.Warn("reclaimed stale checkout attempt", "idempotency_key", key)
				return Outcome{Decision: Proceed}, nil
			}
		}

		return Outcome{Decision: InProgress}, nil
	}

	return Outcome{Decision: InProgress}, nil
}

// Complete records the order id so later retries replay it.
func (g *Guard) Complete(ctx context.Context, key, orderID string) error {
	if err := g.store.CompleteAttempt(ctx, key, orderID); err != nil {
		return fmt.Errorf("complete checkout attempt: %w", err)
	}
	return nil
}

// Release frees the key after a failed attempt so a retry can proceed.
func (g *Guard) Release(ctx context.Context, key string) {
	if err := g.store.DeleteAttempt(ctx, key); err != nil {
		g.logger.Error("failed to release idempotency key", "idempotency_key", key, "error", err)
	}
}

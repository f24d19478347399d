package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmarques/storefront-checkout/internal/catalog"
	"github.com/rmarques/storefront-checkout/internal/domain"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.OrderPlacedEvent
}

func (p *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.OrderPlacedEvent))
	return nil
}

func testService(store *fakeOrderStore, attempts *fakeAttemptStore, publisher EventPublisher) *Service {
	lookup := fixedCatalog(map[string]catalog.Product{
		"p1": {ID: "p1", Name: "Widget", Price: 19.99},
	})
	logger := discardLogger()
	guard := NewGuard(attempts, time.Minute, logger)
	writer := NewWriter(store, logger)
	return NewService(lookup, guard, writer, publisher, nil, logger)
}

func oneLineRequest() domain.CheckoutRequest {
	return domain.CheckoutRequest{
		Lines: []domain.CartLine{{ProductID: "p1", Quantity: 2, Price: 0.01}},
		// Client-claimed total disagrees with the catalog; it must lose.
		TotalAmount: 0.02,
	}
}

func TestService_Checkout(t *testing.T) {
	store := newFakeOrderStore()
	attempts := newFakeAttemptStore()
	publisher := &fakePublisher{}
	service := testService(store, attempts, publisher)

	result, err := service.Checkout(context.Background(), "user-1", "key-1", oneLineRequest())

	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.False(t, result.Replayed)

	require.NotNil(t, store.insertedOrder)
	assert.Equal(t, 39.98, store.insertedOrder.TotalAmount)

	attempt, err := attempts.GetAttempt(context.Background(), "key-1")
	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, AttemptCompleted, attempt.Status)
	assert.Equal(t, "order-1", attempt.OrderID)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "order-1", publisher.events[0].OrderID)
	assert.Equal(t, 39.98, publisher.events[0].TotalAmount)
}

func TestService_SequentialRetryReplaysOrder(t *testing.T) {
	store := newFakeOrderStore()
	attempts := newFakeAttemptStore()
	service := testService(store, attempts, nil)
	ctx := context.Background()

	first, err := service.Checkout(ctx, "user-1", "key-1", oneLineRequest())
	require.NoError(t, err)

	writesAfterFirst := store.writeCount

	second, err := service.Checkout(ctx, "user-1", "key-1", oneLineRequest())
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Replayed)
	// The retry must not touch the order store at all.
	assert.Equal(t, writesAfterFirst, store.writeCount)
}

func TestService_EmptyCartWritesNothing(t *testing.T) {
	store := newFakeOrderStore()
	attempts := newFakeAttemptStore()
	service := testService(store, attempts, nil)

	_, err := service.Checkout(context.Background(), "user-1", "key-1", domain.CheckoutRequest{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, EmptyCart, verr.Kind)
	assert.Zero(t, store.writeCount)

	// The key is released so a corrected retry can proceed.
	attempt, err := attempts.GetAttempt(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

func TestService_RolledBackAttemptReleasesKey(t *testing.T) {
	store := newFakeOrderStore()
	store.failLineAfter = 0
	attempts := newFakeAttemptStore()
	service := testService(store, attempts, nil)
	ctx := context.Background()

	_, err := service.Checkout(ctx, "user-1", "key-1", oneLineRequest())

	var perr *PartialInsertionError
	require.ErrorAs(t, err, &perr)

	attempt, err := attempts.GetAttempt(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, attempt)

	// A retry after the transient fault clears goes through.
	store.failLineAfter = -1
	result, err := service.Checkout(ctx, "user-1", "key-1", oneLineRequest())
	require.NoError(t, err)
	assert.False(t, result.Replayed)
}

func TestService_OrphanedHeaderKeepsKeyClaimed(t *testing.T) {
	store := newFakeOrderStore()
	store.failLineAfter = 0
	store.deleteLinesErr = errors.New("delete timed out")
	attempts := newFakeAttemptStore()
	service := testService(store, attempts, nil)
	ctx := context.Background()

	_, err := service.Checkout(ctx, "user-1", "key-1", oneLineRequest())

	var oerr *OrphanedHeaderError
	require.ErrorAs(t, err, &oerr)

	// The attempt stays claimed so retries cannot stack a second order on
	// top of the orphan.
	attempt, err := attempts.GetAttempt(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, AttemptInProgress, attempt.Status)

	_, err = service.Checkout(ctx, "user-1", "key-1", oneLineRequest())
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestService_EmptyKeyDerivesOne(t *testing.T) {
	store := newFakeOrderStore()
	attempts := newFakeAttemptStore()
	service := testService(store, attempts, nil)
	ctx := context.Background()

	first, err := service.Checkout(ctx, "user-1", "", oneLineRequest())
	require.NoError(t, err)

	// Same cart, same user, same bucket: the derived key dedupes the retry.
	second, err := service.Checkout(ctx, "user-1", "", oneLineRequest())
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Replayed)
}

func TestService_ConcurrentRetrySingleOrder(t *testing.T) {
	store := newFakeOrderStore()
	attempts := newFakeAttemptStore()
	service := testService(store, attempts, nil)
	ctx := context.Background()

	const callers = 4
	results := make([]*Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = service.Checkout(ctx, "user-1", "key-1", oneLineRequest())
		}()
	}
	wg.Wait()

	var created int
	for i := range callers {
		switch {
		case errs[i] == nil && !results[i].Replayed:
			created++
		case errs[i] == nil && results[i].Replayed:
			assert.Equal(t, "order-1", results[i].OrderID)
		default:
			assert.ErrorIs(t, errs[i], ErrInProgress)
		}
	}
	assert.Equal(t, 1, created)
	require.NotNil(t, store.insertedOrder)
}

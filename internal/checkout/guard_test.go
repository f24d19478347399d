package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAttemptStore mimics the unique-constraint semantics of the
// checkout_attempts table.
type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]*Attempt)}
}

func (s *fakeAttemptStore) InsertAttempt(_ context.Context, key, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[key]; exists {
		return false, nil
	}
	s.attempts[key] = &Attempt{
		Key:       key,
		UserID:    userID,
		Status:    AttemptInProgress,
		UpdatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (s *fakeAttemptStore) GetAttempt(_ context.Context, key string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[key]
	if !ok {
		return nil, nil
	}
	copied := *attempt
	return &copied, nil
}

func (s *fakeAttemptStore) ReclaimAttempt(_ context.Context, key string, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[key]
	if !ok || attempt.Status != AttemptInProgress || !attempt.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	attempt.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *fakeAttemptStore) CompleteAttempt(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.attempts[key]; ok {
		attempt.OrderID = orderID
		attempt.Status = AttemptCompleted
		attempt.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *fakeAttemptStore) DeleteAttempt(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key)
	return nil
}

func TestGuard_FirstAttemptProceeds(t *testing.T) {
	guard := NewGuard(newFakeAttemptStore(), time.Minute, discardLogger())

	outcome, err := guard.Begin(context.Background(), "key-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, Proceed, outcome.Decision)
}

func TestGuard_CompletedAttemptReplays(t *testing.T) {
	store := newFakeAttemptStore()
	guard := NewGuard(store, time.Minute, discardLogger())
	ctx := context.Background()

	_, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)
	require.NoError(t, guard.Complete(ctx, "key-1", "order-42"))

	outcome, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, outcome.Decision)
	assert.Equal(t, "order-42", outcome.OrderID)
}

func TestGuard_FreshInProgressBlocks(t *testing.T) {
	store := newFakeAttemptStore()
	guard := NewGuard(store, time.Minute, discardLogger())
	ctx := context.Background()

	_, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)

	outcome, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, InProgress, outcome.Decision)
}

func TestGuard_StaleAttemptIsReclaimed(t *testing.T) {
	store := newFakeAttemptStore()
	guard := NewGuard(store, time.Minute, discardLogger())
	ctx := context.Background()

	_, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)

	// Age the attempt past the stale TTL, as if its owner crashed.
	store.mu.Lock()
	store.attempts["key-1"].UpdatedAt = time.Now().UTC().Add(-2 * time.Minute)
	store.mu.Unlock()

	outcome, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, outcome.Decision)
}

func TestGuard_ReleasedKeyCanBeRetried(t *testing.T) {
	store := newFakeAttemptStore()
	guard := NewGuard(store, time.Minute, discardLogger())
	ctx := context.Background()

	_, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)
	guard.Release(ctx, "key-1")

	outcome, err := guard.Begin(ctx, "key-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, outcome.Decision)
}

func TestGuard_ConcurrentBeginsAdmitOne(t *testing.T) {
	store := newFakeAttemptStore()
	guard := NewGuard(store, time.Minute, discardLogger())
	ctx := context.Background()

	const attempts = 8
	outcomes := make([]Outcome, attempts)

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := guard.Begin(ctx, "key-1", "user-1")
			assert.NoError(t, err)
			outcomes[i] = outcome
		}()
	}
	wg.Wait()

	var proceeded int
	for _, outcome := range outcomes {
		switch outcome.Decision {
		case Proceed:
			proceeded++
		case AlreadyCompleted:
			t.Fatalf("no attempt completed, got AlreadyCompleted")
		}
	}
	assert.Equal(t, 1, proceeded)
}

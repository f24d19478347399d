package checkout

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rmarques/storefront-checkout/internal/domain"
)

func TestDeriveKey_StableWithinBucket(t *testing.T) {
	lines := []domain.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}
	at := time.Date(2025, 6, 1, 12, 1, 30, 0, time.UTC)

	first := DeriveKey("user-1", lines, at)
	second := DeriveKey("user-1", lines, at.Add(30*time.Second))

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "derived-"))
}

func TestDeriveKey_IgnoresLineOrderAndClientHints(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := DeriveKey("user-1", []domain.CartLine{
		{ProductID: "p1", Quantity: 2, Price: 1.00, Name: "A"},
		{ProductID: "p2", Quantity: 1},
	}, at)
	b := DeriveKey("user-1", []domain.CartLine{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 2, Price: 9.99, Name: "B"},
	}, at)

	assert.Equal(t, a, b)
}

func TestDeriveKey_DistinguishesCartsUsersAndBuckets(t *testing.T) {
	lines := []domain.CartLine{{ProductID: "p1", Quantity: 2}}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := DeriveKey("user-1", lines, at)

	otherQty := DeriveKey("user-1", []domain.CartLine{{ProductID: "p1", Quantity: 3}}, at)
	otherUser := DeriveKey("user-2", lines, at)
	otherBucket := DeriveKey("user-1", lines, at.Add(10*time.Minute))

	assert.NotEqual(t, base, otherQty)
	assert.NotEqual(t, base, otherUser)
	assert.NotEqual(t, base, otherBucket)
}

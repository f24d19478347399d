package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rmarques/storefront-checkout/internal/domain"
)

// keyTimeBucket bounds how long a derived key keeps matching retries of the
// same cart. Coarse on purpose: two identical carts from the same user
// inside one bucket are assumed to be the same logical checkout.
const keyTimeBucket = 5 * time.Minute

// DeriveKey builds a fallback idempotency key from the user, the cart
// content and a coarse time bucket. It is weaker than a caller-supplied
// key: the same cart submitted twice on purpose within the bucket collapses
// into one order, and a retry that straddles a bucket boundary does not
// dedupe. Callers that care should send an Idempotency-Key header.
func DeriveKey(userID string, lines []domain.CartLine, at time.Time) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s:%d", line.ProductID, line.Quantity))
	}
	sort.Strings(parts)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%d", userID, strings.Join(parts, ","), at.UTC().Truncate(keyTimeBucket).Unix())

	return "derived-" + hex.EncodeToString(h.Sum(nil))
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rmarques/storefront-checkout/internal/catalog"
	"github.com/rmarques/storefront-checkout/internal/domain"
)

// Build validates the cart against the catalog and produces the order
// aggregate in memory. Prices and names come from the catalog, never from
// the client; whatever the client sent for price/name/total is treated as a
// stale display hint. The only I/O here is the catalog read.
func Build(ctx context.Context, userID string, lines []domain.CartLine, lookup catalog.Lookup) (*domain.Order, error) {
	if len(lines) == 0 {
		return nil, &ValidationError{Kind: EmptyCart}
	}

	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, &ValidationError{Kind: InvalidQuantity, ProductID: line.ProductID}
		}
	}

	order := &domain.Order{
		UserID: userID,
		Status: domain.OrderStatusPending,
		Lines:  make([]domain.OrderLine, 0, len(lines)),
	}

	var total float64
	for _, line := range lines {
		product, err := lookup.Resolve(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, &ValidationError{Kind: ProductNotFound, ProductID: line.ProductID}
			}
			return nil, fmt.Errorf("resolve product %s: %w", line.ProductID, err)
		}

		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    line.Quantity,
		})
		total += product.Price * float64(line.Quantity)
	}

	order.TotalAmount = roundCents(total)
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt

	return order, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

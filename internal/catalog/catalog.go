package catalog

import (
	"context"
	"errors"
)

// ErrProductNotFound reports that the catalog has no entry for a product id.
var ErrProductNotFound = errors.New("product not found in catalog")

// Product is the catalog's answer for one product id: the authoritative
// price and display name at the time of the lookup.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Lookup resolves product ids against the catalog store. The catalog is a
// separate system from the order store; its data is eventually consistent
// relative to orders, which is why checkout snapshots name and price into
// the order lines instead of joining at read time.
type Lookup interface {
	Resolve(ctx context.Context, productID string) (*Product, error)
}

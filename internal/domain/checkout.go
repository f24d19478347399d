package domain

// CartLine is one entry of a checkout request. Name and Price are whatever
// the client had cached for display; the builder resolves the authoritative
// values from the catalog and ignores these for pricing.
type CartLine struct {
	ProductID string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// CheckoutRequest lives only for the duration of one checkout call.
type CheckoutRequest struct {
	Lines       []CartLine `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
}

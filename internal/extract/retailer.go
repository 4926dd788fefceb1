package extract

import (
	"fmt"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// Retailer is the extractor for one supported site. Its strategies are tried
// in order against a single parsed document; the first success wins.
type Retailer struct {
	shop       string
	strategies []Strategy
}

// NewRetailer builds a Retailer labelled shop.
func NewRetailer(shop string, strategies ...Strategy) *Retailer {
	return &Retailer{shop: shop, strategies: strategies}
}

// Shop returns the human label stored on rules created through this extractor.
func (r *Retailer) Shop() string {
	return r.shop
}

// Extract parses body and returns the first snapshot any strategy produces.
func (r *Retailer) Extract(body []byte) (alert.Snapshot, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return alert.Snapshot{}, fmt.Errorf("%s: %w", r.shop, err)
	}
	lastErr := fmt.Errorf("%w: no strategies", alert.ErrFieldMissing)
	for _, s := range r.strategies {
		name, price, err := s.Apply(doc)
		if err != nil {
			lastErr = err
			continue
		}
		return alert.Snapshot{Shop: r.shop, ProductName: name, Price: price}, nil
	}
	return alert.Snapshot{}, fmt.Errorf("%s: %w", r.shop, lastErr)
}

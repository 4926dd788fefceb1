// Package notifier holds the message shapes shared by the alert.Notifier
// implementations in its subpackages.
package notifier

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// Text renders the human-readable alert sent to chat users.
func Text(n alert.Notification) string {
	name := n.Snapshot.ProductName
	if name == "" {
		name = n.Rule.ProductName
	}
	shop := n.Snapshot.Shop
	if shop == "" {
		shop = n.Rule.Shop
	}
	return fmt.Sprintf("%s (%s) is now %s (threshold %s)\n%s",
		name,
		shop,
		n.Snapshot.Price.StringFixed(2),
		n.Rule.Threshold.StringFixed(2),
		n.Rule.URL,
	)
}

// Payload is the machine-readable form of a notification, published for
// collaborators that render their own messages.
type Payload struct {
	RuleID        string          `json:"rule_id"`
	Owner         string          `json:"owner"`
	URL           string          `json:"url"`
	Shop          string          `json:"shop"`
	ProductName   string          `json:"product_name"`
	Price         decimal.Decimal `json:"price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Threshold     decimal.Decimal `json:"threshold"`
	Text          string          `json:"text"`
	SentAt        time.Time       `json:"sent_at"`
}

// NewPayload builds the Payload for n.
func NewPayload(n alert.Notification, sentAt time.Time) Payload {
	return Payload{
		RuleID:        n.Rule.ID,
		Owner:         n.Owner,
		URL:           n.Rule.URL,
		Shop:          n.Snapshot.Shop,
		ProductName:   n.Snapshot.ProductName,
		Price:         n.Snapshot.Price,
		PreviousPrice: n.PreviousPrice,
		Threshold:     n.Rule.Threshold,
		Text:          Text(n),
		SentAt:        sentAt.UTC(),
	}
}

// Package alert defines the core types shared across the price monitoring subsystems.
package alert

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rule is a user's standing instruction to watch one product page.
type Rule struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	URL         string          `json:"url"`
	Shop        string          `json:"shop"`
	ProductName string          `json:"product_name"`
	LastPrice   decimal.Decimal `json:"last_price"`
	Threshold   decimal.Decimal `json:"threshold"`
	// NotifiedPrice is the price the last notification fired at while the
	// rule stayed at or below its threshold. Null while the rule is armed.
	NotifiedPrice decimal.NullDecimal `json:"notified_price"`
	CreatedAt     time.Time           `json:"created_at"`
	CheckedAt     *time.Time          `json:"checked_at,omitempty"`
}

// Snapshot is the result of one successful extraction.
type Snapshot struct {
	Shop        string          `json:"shop"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
}

// Observation is what a monitoring pass writes back for one rule.
type Observation struct {
	ProductName   string
	LastPrice     decimal.Decimal
	NotifiedPrice decimal.NullDecimal
	CheckedAt     time.Time
}

// Notification is one intent to tell a rule's owner about a price drop.
type Notification struct {
	Owner         string
	Rule          Rule
	Snapshot      Snapshot
	PreviousPrice decimal.Decimal
}

// OutcomeKind classifies a single fetch attempt.
type OutcomeKind string

// Fetch outcome values.
const (
	OutcomeOK           OutcomeKind = "ok"
	OutcomeNotFound     OutcomeKind = "not_found"
	OutcomeServerError  OutcomeKind = "server_error"
	OutcomeNetworkError OutcomeKind = "network_error"
	OutcomeTimeout      OutcomeKind = "timeout"
)

// FetchOutcome is the tagged result of one network attempt.
type FetchOutcome struct {
	Kind     OutcomeKind
	URL      string
	Status   int
	Body     []byte
	Err      error
	Duration time.Duration
}

// OK reports whether the fetch produced a usable body.
func (o FetchOutcome) OK() bool {
	return o.Kind == OutcomeOK
}

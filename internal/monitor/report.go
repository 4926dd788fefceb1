package monitor

import "time"

// Skip reasons recorded in PassReport.Skipped.
const (
	SkipNotFound     = "not_found"
	SkipServerError  = "server_error"
	SkipNetworkError = "network_error"
	SkipTimeout      = "timeout"
	SkipSiteDrift    = "site_drift"
	SkipNoExtractor  = "no_extractor"
	SkipCanceled     = "canceled"
	SkipPanic        = "panic"
)

// PassReport summarizes one monitoring pass.
type PassReport struct {
	StartedAt        time.Time      `json:"started_at"`
	Duration         time.Duration  `json:"duration"`
	Rules            int            `json:"rules"`
	Updated          int            `json:"updated"`
	Skipped          map[string]int `json:"skipped"`
	StoreFailures    int            `json:"store_failures"`
	Notified         int            `json:"notified"`
	DeliveryFailures int            `json:"delivery_failures"`
}

// SkippedTotal sums Skipped over all reasons.
func (r PassReport) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

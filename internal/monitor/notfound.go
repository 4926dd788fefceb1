package monitor

import "sync"

// NotFoundTracker counts consecutive 404s per rule so that a vanished
// product is reported loudly once and quietly afterwards.
type NotFoundTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewNotFoundTracker creates an empty tracker.
func NewNotFoundTracker() *NotFoundTracker {
	return &NotFoundTracker{counts: make(map[string]int)}
}

// Observe records a 404 for ruleID and returns the consecutive count.
func (t *NotFoundTracker) Observe(ruleID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[ruleID]++
	return t.counts[ruleID]
}

// Reset clears the count after a successful fetch.
func (t *NotFoundTracker) Reset(ruleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, ruleID)
}

// Retain drops counts for rules that no longer exist.
func (t *NotFoundTracker) Retain(ruleIDs []string) {
	keep := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		keep[id] = struct{}{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.counts {
		if _, ok := keep[id]; !ok {
			delete(t.counts, id)
		}
	}
}

func (t *NotFoundTracker) count(ruleID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[ruleID]
}

// Package memory contains an in-memory alert.Notifier for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// Notifier stores delivered notifications for inspection.
type Notifier struct {
	mu     sync.RWMutex
	sent   []alert.Notification
	failOn map[string]error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{failOn: make(map[string]error)}
}

// FailFor makes deliveries to owner fail with err until cleared with a nil err.
func (n *Notifier) FailFor(owner string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failOn, owner)
		return
	}
	n.failOn[owner] = err
}

// Notify records the notification.
func (n *Notifier) Notify(_ context.Context, note alert.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.failOn[note.Owner]; ok {
		return fmt.Errorf("%w: %w", alert.ErrDelivery, err)
	}
	n.sent = append(n.sent, note)
	return nil
}

// Sent returns the recorded notifications.
func (n *Notifier) Sent() []alert.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]alert.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

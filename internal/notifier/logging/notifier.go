// Package logging implements an alert.Notifier that only writes log lines.
// It is the default in development.
package logging

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/notifier"
)

// Notifier logs every notification at info level.
type Notifier struct {
	logger *zap.Logger
}

// New returns a logging Notifier.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger}
}

// Notify writes the notification to the log.
func (n *Notifier) Notify(_ context.Context, note alert.Notification) error {
	n.logger.Info("price alert",
		zap.String("owner", note.Owner),
		zap.String("rule_id", note.Rule.ID),
		zap.String("url", note.Rule.URL),
		zap.String("shop", note.Snapshot.Shop),
		zap.String("price", note.Snapshot.Price.String()),
		zap.String("previous_price", note.PreviousPrice.String()),
		zap.String("threshold", note.Rule.Threshold.String()),
		zap.String("text", notifier.Text(note)),
	)
	return nil
}

package logging

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

func TestNotifyLogsAlert(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	n := New(zap.New(core))

	err := n.Notify(context.Background(), alert.Notification{
		Owner:    "alice",
		Rule:     alert.Rule{ID: "rule-1", URL: "https://www.dns-shop.ru/product/1", Threshold: decimal.RequireFromString("100")},
		Snapshot: alert.Snapshot{Shop: "DNS", ProductName: "Mouse", Price: decimal.RequireFromString("99")},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("price alert").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "alice", fields["owner"])
	require.Equal(t, "99", fields["price"])
}

func TestNewToleratesNilLogger(t *testing.T) {
	t.Parallel()

	require.NoError(t, New(nil).Notify(context.Background(), alert.Notification{}))
}

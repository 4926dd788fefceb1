package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return "rule-" + string(rune('0'+s.n)), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func sampleRule(owner string, created time.Time) alert.Rule {
	return alert.Rule{
		Owner:       owner,
		URL:         "https://www.ozon.ru/product/1",
		Shop:        "Ozon",
		ProductName: "Kettle",
		LastPrice:   decimal.RequireFromString("1299.90"),
		Threshold:   decimal.RequireFromString("999"),
		CreatedAt:   created,
	}
}

func TestRuleStoreCreateAssignsID(t *testing.T) {
	t.Parallel()

	store := NewRuleStore(&seqIDs{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.CreateRule(context.Background(), sampleRule("alice", base))
	require.NoError(t, err)
	require.Equal(t, "rule-1", first.ID)

	explicit := sampleRule("alice", base.Add(time.Minute))
	explicit.ID = "custom"
	second, err := store.CreateRule(context.Background(), explicit)
	require.NoError(t, err)
	require.Equal(t, "custom", second.ID)

	_, err = store.CreateRule(context.Background(), explicit)
	require.Error(t, err)

	rules, err := store.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "rule-1", rules[0].ID)
}

func TestRuleStoreCreateWithoutIDSource(t *testing.T) {
	t.Parallel()

	_, err := NewRuleStore(nil).CreateRule(context.Background(), sampleRule("alice", time.Now()))
	require.Error(t, err)

	_, err = NewRuleStore(failingIDs{}).CreateRule(context.Background(), sampleRule("alice", time.Now()))
	require.ErrorContains(t, err, "entropy exhausted")
}

func TestRuleStoreOwnerScoping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRuleStore(&seqIDs{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := store.CreateRule(ctx, sampleRule("alice", base))
	require.NoError(t, err)
	b, err := store.CreateRule(ctx, sampleRule("bob", base.Add(time.Second)))
	require.NoError(t, err)

	aliceRules, err := store.ListRulesByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceRules, 1)
	require.Equal(t, a.ID, aliceRules[0].ID)

	require.ErrorIs(t, store.DeleteRule(ctx, "alice", b.ID), alert.ErrNotFound)
	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.DeleteRule(ctx, "bob", b.ID))
	require.ErrorIs(t, store.DeleteRule(ctx, "bob", b.ID), alert.ErrNotFound)
	bobRules, err := store.ListRulesByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, bobRules)
}

func TestRuleStoreRecordObservation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRuleStore(&seqIDs{})
	created, err := store.CreateRule(ctx, sampleRule("alice", time.Now()))
	require.NoError(t, err)

	checked := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	obs := alert.Observation{
		ProductName:   "Kettle Pro",
		LastPrice:     decimal.RequireFromString("899"),
		NotifiedPrice: decimal.NewNullDecimal(decimal.RequireFromString("899")),
		CheckedAt:     checked,
	}
	require.NoError(t, store.RecordObservation(ctx, created.ID, obs))

	rules, err := store.ListRulesByOwner(ctx, "alice")
	require.NoError(t, err)
	got := rules[0]
	require.Equal(t, "Kettle Pro", got.ProductName)
	require.True(t, got.LastPrice.Equal(obs.LastPrice))
	require.True(t, got.NotifiedPrice.Valid)
	require.Equal(t, checked, *got.CheckedAt)
	require.Equal(t, "alice", got.Owner)
	require.True(t, got.Threshold.Equal(decimal.RequireFromString("999")))

	// Returned rules are copies.
	*got.CheckedAt = time.Time{}
	again, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Equal(t, checked, *again[0].CheckedAt)

	require.ErrorIs(t, store.RecordObservation(ctx, "missing", obs), alert.ErrNotFound)
}

package rules

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/extract"
	"github.com/JakeFAU/pricewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/pricewatch/internal/storage/memory"
)

const ozonPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Electric Kettle","offers":{"@type":"Offer","price":"1299.90","priceCurrency":"RUB"}}
</script></head><body></body></html>`

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]alert.FetchOutcome
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) alert.FetchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if out, ok := f.pages[url]; ok {
		return out
	}
	return alert.FetchOutcome{Kind: alert.OutcomeNotFound, URL: url, Status: 404}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("rule-%d", s.n), nil
}

type failingStore struct {
	*memory.RuleStore
}

func (failingStore) CreateRule(context.Context, alert.Rule) (alert.Rule, error) {
	return alert.Rule{}, fmt.Errorf("disk full")
}

func newService(t *testing.T, store alert.Store) (*Service, *fakeFetcher) {
	t.Helper()
	fetcher := &fakeFetcher{pages: map[string]alert.FetchOutcome{
		"https://www.ozon.ru/product/kettle-1": {
			Kind: alert.OutcomeOK, Status: 200, Body: []byte(ozonPage),
		},
		"https://www.ozon.ru/product/redesigned": {
			Kind: alert.OutcomeOK, Status: 200, Body: []byte("<html><body>new layout</body></html>"),
		},
		"https://www.ozon.ru/product/flaky": {
			Kind: alert.OutcomeServerError, Status: 503,
		},
	}}
	clock := fixedClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New(ratelimit.Config{MaxConcurrent: 2})
	svc := New(store, fetcher, extract.Default(), limiter, clock, &seqIDs{}, time.Second, zap.NewNop())
	return svc, fetcher
}

func TestCreatePersistsExtractedSnapshot(t *testing.T) {
	t.Parallel()

	store := memory.NewRuleStore(nil)
	svc, _ := newService(t, store)

	rule, err := svc.Create(context.Background(), "alice", "  https://www.ozon.ru/product/kettle-1#reviews ", decimal.RequireFromString("999"))
	require.NoError(t, err)
	require.Equal(t, "rule-1", rule.ID)
	require.Equal(t, "alice", rule.Owner)
	require.Equal(t, "https://www.ozon.ru/product/kettle-1", rule.URL)
	require.Equal(t, "Ozon", rule.Shop)
	require.Equal(t, "Electric Kettle", rule.ProductName)
	require.True(t, decimal.RequireFromString("1299.90").Equal(rule.LastPrice))
	require.False(t, rule.NotifiedPrice.Valid)
	require.Equal(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC), rule.CreatedAt)

	listed, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, rule.ID, listed[0].ID)
}

func TestCreateUnknownDomainPersistsNothing(t *testing.T) {
	t.Parallel()

	store := memory.NewRuleStore(nil)
	svc, fetcher := newService(t, store)

	_, err := svc.Create(context.Background(), "alice", "https://unknown-shop.example/x", decimal.RequireFromString("10"))
	require.ErrorIs(t, err, alert.ErrNoExtractorForDomain)
	require.ErrorIs(t, err, alert.ErrValidation)
	require.Zero(t, fetcher.calls)

	all, err := store.ListRules(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	svc, fetcher := newService(t, memory.NewRuleStore(nil))
	ctx := context.Background()
	ten := decimal.RequireFromString("10")

	tests := []struct {
		name      string
		owner     string
		url       string
		threshold decimal.Decimal
		want      error
	}{
		{"empty url", "alice", "   ", ten, alert.ErrInvalidURL},
		{"bad scheme", "alice", "ftp://www.ozon.ru/product/1", ten, alert.ErrInvalidURL},
		{"no host", "alice", "https:///product/1", ten, alert.ErrInvalidURL},
		{"unparseable", "alice", "http://%zz", ten, alert.ErrInvalidURL},
		{"zero threshold", "alice", "https://www.ozon.ru/product/kettle-1", decimal.Zero, alert.ErrInvalidThreshold},
		{"negative threshold", "alice", "https://www.ozon.ru/product/kettle-1", decimal.RequireFromString("-5"), alert.ErrInvalidThreshold},
		{"missing owner", " ", "https://www.ozon.ru/product/kettle-1", ten, alert.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.owner, tt.url, tt.threshold)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, alert.ErrValidation)
		})
	}
	require.Zero(t, fetcher.calls)
}

func TestCreateExtractionFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewRuleStore(nil)
	svc, _ := newService(t, store)
	ctx := context.Background()
	ten := decimal.RequireFromString("10")

	_, err := svc.Create(ctx, "alice", "https://www.ozon.ru/product/redesigned", ten)
	require.ErrorIs(t, err, alert.ErrExtractionFailed)
	require.ErrorIs(t, err, alert.ErrFieldMissing)

	_, err = svc.Create(ctx, "alice", "https://www.ozon.ru/product/flaky", ten)
	require.ErrorIs(t, err, alert.ErrExtractionFailed)

	_, err = svc.Create(ctx, "alice", "https://www.ozon.ru/product/missing", ten)
	require.ErrorIs(t, err, alert.ErrExtractionFailed)

	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCreateStoreFailure(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, failingStore{memory.NewRuleStore(nil)})
	_, err := svc.Create(context.Background(), "alice", "https://www.ozon.ru/product/kettle-1", decimal.RequireFromString("10"))
	require.ErrorIs(t, err, alert.ErrStore)
	require.NotErrorIs(t, err, alert.ErrValidation)
}

func TestCreateWaitsForFetchSlot(t *testing.T) {
	t.Parallel()

	store := memory.NewRuleStore(nil)
	fetcher := &fakeFetcher{pages: map[string]alert.FetchOutcome{}}
	limiter := ratelimit.New(ratelimit.Config{MaxConcurrent: 1})
	held, err := limiter.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	clock := fixedClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	svc := New(store, fetcher, extract.Default(), limiter, clock, &seqIDs{}, time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = svc.Create(ctx, "alice", "https://www.ozon.ru/product/kettle-1", decimal.RequireFromString("10"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, fetcher.calls)

	all, err := store.ListRules(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	t.Parallel()

	store := memory.NewRuleStore(nil)
	svc, _ := newService(t, store)
	ctx := context.Background()

	rule, err := svc.Create(ctx, "alice", "https://www.ozon.ru/product/kettle-1", decimal.RequireFromString("999"))
	require.NoError(t, err)

	err = svc.Delete(ctx, "mallory", rule.ID)
	require.ErrorIs(t, err, alert.ErrNotFound)
	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, svc.Delete(ctx, "alice", rule.ID))
	require.ErrorIs(t, svc.Delete(ctx, "alice", rule.ID), alert.ErrNotFound)
}

func TestParseThreshold(t *testing.T) {
	t.Parallel()

	got, err := ParseThreshold("1 299,90 ₽")
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("1299.90").Equal(got))

	got, err = ParseThreshold("$49.99")
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("49.99").Equal(got))

	for _, bad := range []string{"", "free", "0", "-10"} {
		_, err := ParseThreshold(bad)
		require.ErrorIs(t, err, alert.ErrInvalidThreshold, bad)
	}
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	mu        sync.Mutex
	rules     map[string]alert.Rule
	order     []string
	listErr   error
	recordErr map[string]error
	records   int
}

func newFakeStore(rules ...alert.Rule) *fakeStore {
	s := &fakeStore{rules: map[string]alert.Rule{}, recordErr: map[string]error{}}
	for _, r := range rules {
		s.rules[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s
}

func (s *fakeStore) CreateRule(_ context.Context, rule alert.Rule) (alert.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	s.order = append(s.order, rule.ID)
	return rule, nil
}

func (s *fakeStore) ListRules(context.Context) ([]alert.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]alert.Rule, 0, len(s.order))
	for _, id := range s.order {
		if r, ok := s.rules[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListRulesByOwner(ctx context.Context, owner string) ([]alert.Rule, error) {
	all, err := s.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	var out []alert.Rule
	for _, r := range all {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteRule(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.Owner != owner {
		return alert.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *fakeStore) RecordObservation(ctx context.Context, id string, obs alert.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordErr[id]; err != nil {
		return err
	}
	r, ok := s.rules[id]
	if !ok {
		return alert.ErrNotFound
	}
	s.records++
	r.ProductName = obs.ProductName
	r.LastPrice = obs.LastPrice
	r.NotifiedPrice = obs.NotifiedPrice
	checked := obs.CheckedAt
	r.CheckedAt = &checked
	s.rules[id] = r
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) get(id string) alert.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[id]
}

// fakeFetcher serves a scripted outcome per URL. A nil script entry blocks
// until the fetch context is done and reports a timeout.
type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string]alert.FetchOutcome
	hang     map[string]bool
	onFetch  func()
	calls    atomic.Int64
	current  atomic.Int64
	peak     atomic.Int64
	hold     time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{outcomes: map[string]alert.FetchOutcome{}, hang: map[string]bool{}}
}

func (f *fakeFetcher) serve(url string, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[url] = alert.FetchOutcome{Kind: alert.OutcomeOK, URL: url, Status: 200, Body: []byte(body)}
}

func (f *fakeFetcher) fail(url string, kind alert.OutcomeKind, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[url] = alert.FetchOutcome{Kind: kind, URL: url, Status: status}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) alert.FetchOutcome {
	f.calls.Add(1)
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	out, ok := f.outcomes[url]
	hang := f.hang[url]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return alert.FetchOutcome{Kind: alert.OutcomeTimeout, URL: url, Err: ctx.Err()}
	}
	if !ok {
		return alert.FetchOutcome{Kind: alert.OutcomeNotFound, URL: url, Status: 404}
	}
	return out
}

// fakeRegistry parses bodies of the form "name|price".
type fakeRegistry struct{}

func (fakeRegistry) Extract(_ string, body []byte) (alert.Snapshot, error) {
	var name, price string
	for i, b := range body {
		if b == '|' {
			name, price = string(body[:i]), string(body[i+1:])
			break
		}
	}
	if name == "" {
		return alert.Snapshot{}, fmt.Errorf("test shop: %w: price", alert.ErrFieldMissing)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return alert.Snapshot{}, fmt.Errorf("test shop: %w: %v", alert.ErrFieldMissing, err)
	}
	return alert.Snapshot{Shop: "Test", ProductName: name, Price: p}, nil
}

// fakeNotifier fails deliveries to owners in failOn and blocks deliveries
// to owners in hangOn until the context is done.
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []alert.Notification
	failOn map[string]bool
	hangOn map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failOn: map[string]bool{}, hangOn: map[string]bool{}}
}

func (n *fakeNotifier) Notify(ctx context.Context, note alert.Notification) error {
	n.mu.Lock()
	hang := n.hangOn[note.Owner]
	n.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn[note.Owner] {
		return errors.New("chat unavailable")
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) owners() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, note := range n.sent {
		out = append(out, note.Owner)
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (b *fakeBlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = body
	return "memory://" + path, nil
}

type fakeHasher struct{ hash string }

func (h fakeHasher) Hash([]byte) (string, error) { return h.hash, nil }

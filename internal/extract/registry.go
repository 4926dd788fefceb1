package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// HostMatcher reports whether a lowercased hostname belongs to a retailer.
type HostMatcher func(host string) bool

// Domain matches host d exactly or any of its subdomains.
func Domain(d string) HostMatcher {
	d = strings.ToLower(strings.TrimSuffix(d, "."))
	return func(host string) bool {
		return host == d || strings.HasSuffix(host, "."+d)
	}
}

type entry struct {
	match     HostMatcher
	extractor alert.Extractor
}

// Registry maps a URL's host to an extractor through an ordered list of matchers.
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a matcher/extractor pair. Earlier registrations win.
func (r *Registry) Register(match HostMatcher, extractor alert.Extractor) {
	r.entries = append(r.entries, entry{match: match, extractor: extractor})
}

// Select chooses the extractor for rawURL.
func (r *Registry) Select(rawURL string) (alert.Extractor, bool) {
	host, err := Host(rawURL)
	if err != nil {
		return nil, false
	}
	for _, e := range r.entries {
		if e.match(host) {
			return e.extractor, true
		}
	}
	return nil, false
}

// Extract selects the extractor for rawURL and applies it to body.
func (r *Registry) Extract(rawURL string, body []byte) (alert.Snapshot, error) {
	ex, ok := r.Select(rawURL)
	if !ok {
		return alert.Snapshot{}, fmt.Errorf("%w: %s", alert.ErrNoExtractor, rawURL)
	}
	return ex.Extract(body)
}

// Shops lists the registered shop labels in match order.
func (r *Registry) Shops() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.extractor.Shop())
	}
	return out
}

// Host returns the lowercased hostname of rawURL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return host, nil
}

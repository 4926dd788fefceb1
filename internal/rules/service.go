// Package rules implements the user-facing operations on alert rules:
// creating a rule from a product URL, listing and deleting a user's rules.
package rules

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/extract"
	"github.com/JakeFAU/pricewatch/internal/policy/ratelimit"
)

const defaultFetchTimeout = 15 * time.Second

// Selector picks the extractor responsible for a URL.
type Selector interface {
	Select(rawURL string) (alert.Extractor, bool)
}

// Service creates, lists and deletes alert rules.
type Service struct {
	store        alert.Store
	fetcher      alert.Fetcher
	selector     Selector
	limiter      *ratelimit.Controller
	clock        alert.Clock
	ids          alert.IDGenerator
	fetchTimeout time.Duration
	logger       *zap.Logger
}

// New constructs a Service.
func New(
	store alert.Store,
	fetcher alert.Fetcher,
	selector Selector,
	limiter *ratelimit.Controller,
	clock alert.Clock,
	ids alert.IDGenerator,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	return &Service{
		store:        store,
		fetcher:      fetcher,
		selector:     selector,
		limiter:      limiter,
		clock:        clock,
		ids:          ids,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Create validates the request, fetches the product page once and persists
// a rule populated with the current product name and price. Nothing is
// stored unless every step succeeds.
func (s *Service) Create(ctx context.Context, owner, rawURL string, threshold decimal.Decimal) (alert.Rule, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return alert.Rule{}, fmt.Errorf("%w: owner is required", alert.ErrValidation)
	}
	normalized, err := validateURL(rawURL)
	if err != nil {
		return alert.Rule{}, err
	}
	if threshold.Sign() <= 0 {
		return alert.Rule{}, fmt.Errorf("%w: must be greater than zero, got %s", alert.ErrInvalidThreshold, threshold)
	}

	extractor, ok := s.selector.Select(normalized)
	if !ok {
		host, _ := extract.Host(normalized)
		return alert.Rule{}, fmt.Errorf("%w: %s", alert.ErrNoExtractorForDomain, host)
	}

	// The creation fetch counts against the same politeness budget as a pass.
	var out alert.FetchOutcome
	err = s.limiter.Do(ctx, func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		out = s.fetcher.Fetch(fetchCtx, normalized)
		return nil
	})
	if err != nil {
		return alert.Rule{}, fmt.Errorf("wait for fetch slot: %w", err)
	}
	if !out.OK() {
		s.logger.Info("initial fetch failed",
			zap.String("owner", owner),
			zap.String("url", normalized),
			zap.String("outcome", string(out.Kind)),
			zap.Int("status", out.Status),
			zap.Error(out.Err),
		)
		return alert.Rule{}, fmt.Errorf("%w: fetch %s", alert.ErrExtractionFailed, out.Kind)
	}

	snap, err := extractor.Extract(out.Body)
	if err != nil {
		s.logger.Warn("initial extraction failed",
			zap.String("owner", owner),
			zap.String("url", normalized),
			zap.String("shop", extractor.Shop()),
			zap.Error(err),
		)
		return alert.Rule{}, fmt.Errorf("%w: %w", alert.ErrExtractionFailed, err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return alert.Rule{}, fmt.Errorf("generate rule id: %w", err)
	}
	now := s.clock.Now().UTC()
	rule := alert.Rule{
		ID:          id,
		Owner:       owner,
		URL:         normalized,
		Shop:        snap.Shop,
		ProductName: snap.ProductName,
		LastPrice:   snap.Price,
		Threshold:   threshold,
		CreatedAt:   now,
		CheckedAt:   &now,
	}
	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return alert.Rule{}, fmt.Errorf("%w: create rule: %w", alert.ErrStore, err)
	}
	s.logger.Info("rule created",
		zap.String("rule_id", created.ID),
		zap.String("owner", owner),
		zap.String("shop", created.Shop),
		zap.String("price", created.LastPrice.String()),
		zap.String("threshold", threshold.String()),
	)
	return created, nil
}

// List returns the owner's rules.
func (s *Service) List(ctx context.Context, owner string) ([]alert.Rule, error) {
	rules, err := s.store.ListRulesByOwner(ctx, strings.TrimSpace(owner))
	if err != nil {
		return nil, fmt.Errorf("%w: list rules: %w", alert.ErrStore, err)
	}
	return rules, nil
}

// Delete removes a rule owned by owner. It returns alert.ErrNotFound when
// the rule does not exist or belongs to someone else.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if err := s.store.DeleteRule(ctx, strings.TrimSpace(owner), id); err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			return fmt.Errorf("rule %s: %w", id, alert.ErrNotFound)
		}
		return fmt.Errorf("%w: delete rule: %w", alert.ErrStore, err)
	}
	s.logger.Info("rule deleted", zap.String("rule_id", id), zap.String("owner", owner))
	return nil
}

// ParseThreshold reads a user-typed price such as "1 299,90 ₽".
func ParseThreshold(text string) (decimal.Decimal, error) {
	d, err := extract.NormalizePrice(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", alert.ErrInvalidThreshold, text)
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: must be greater than zero", alert.ErrInvalidThreshold)
	}
	return d, nil
}

func validateURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", alert.ErrInvalidURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", alert.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", alert.ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", alert.ErrInvalidURL)
	}
	u.Fragment = ""
	return u.String(), nil
}

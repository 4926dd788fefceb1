package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// RuleStore is an in-memory alert.Store.
type RuleStore struct {
	mu      sync.RWMutex
	rules   map[string]alert.Rule
	byOwner map[string]map[string]struct{}
	ids     alert.IDGenerator
}

// NewRuleStore constructs a RuleStore. ids assigns identifiers to rules
// created without one and may be nil when callers always set Rule.ID.
func NewRuleStore(ids alert.IDGenerator) *RuleStore {
	return &RuleStore{
		rules:   make(map[string]alert.Rule),
		byOwner: make(map[string]map[string]struct{}),
		ids:     ids,
	}
}

// CreateRule stores a new rule.
func (s *RuleStore) CreateRule(_ context.Context, rule alert.Rule) (alert.Rule, error) {
	if rule.ID == "" {
		if s.ids == nil {
			return alert.Rule{}, errors.New("rule id required")
		}
		id, err := s.ids.NewID()
		if err != nil {
			return alert.Rule{}, fmt.Errorf("generate rule id: %w", err)
		}
		rule.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return alert.Rule{}, fmt.Errorf("rule %s already exists", rule.ID)
	}
	s.rules[rule.ID] = cloneRule(rule)
	owned, ok := s.byOwner[rule.Owner]
	if !ok {
		owned = make(map[string]struct{})
		s.byOwner[rule.Owner] = owned
	}
	owned[rule.ID] = struct{}{}
	return cloneRule(rule), nil
}

// ListRules returns every rule, oldest first.
func (s *RuleStore) ListRules(_ context.Context) ([]alert.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alert.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	sortRules(out)
	return out, nil
}

// ListRulesByOwner returns the owner's rules, oldest first.
func (s *RuleStore) ListRulesByOwner(_ context.Context, owner string) ([]alert.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := s.byOwner[owner]
	out := make([]alert.Rule, 0, len(owned))
	for id := range owned {
		out = append(out, cloneRule(s.rules[id]))
	}
	sortRules(out)
	return out, nil
}

// DeleteRule removes a rule owned by owner.
func (s *RuleStore) DeleteRule(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.byOwner[owner]
	if _, ok := owned[id]; !ok {
		return alert.ErrNotFound
	}
	delete(owned, id)
	if len(owned) == 0 {
		delete(s.byOwner, owner)
	}
	delete(s.rules, id)
	return nil
}

// RecordObservation updates the fields a monitoring pass owns.
func (s *RuleStore) RecordObservation(_ context.Context, id string, obs alert.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return alert.ErrNotFound
	}
	r.ProductName = obs.ProductName
	r.LastPrice = obs.LastPrice
	r.NotifiedPrice = obs.NotifiedPrice
	checked := obs.CheckedAt
	r.CheckedAt = &checked
	s.rules[id] = r
	return nil
}

// Close is a no-op.
func (s *RuleStore) Close() error {
	return nil
}

func cloneRule(r alert.Rule) alert.Rule {
	if r.CheckedAt != nil {
		checked := *r.CheckedAt
		r.CheckedAt = &checked
	}
	return r
}

func sortRules(rules []alert.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}

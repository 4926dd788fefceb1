// Package sqlite provides a single-file alert rule store built on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// RuleStore persists alert rules in SQLite.
type RuleStore struct {
	db  *sql.DB
	ids alert.IDGenerator
}

// New opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func New(ctx context.Context, path string, ids alert.IDGenerator) (*RuleStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite.path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	store := &RuleStore{db: db, ids: ids}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *RuleStore) Close() error { return s.db.Close() }

// Ping checks that the database file is still usable.
func (s *RuleStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func (s *RuleStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS alert_rules (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	url            TEXT NOT NULL,
	shop           TEXT NOT NULL,
	product_name   TEXT NOT NULL,
	last_price     TEXT NOT NULL,
	threshold      TEXT NOT NULL,
	notified_price TEXT,
	created_at     TEXT NOT NULL,
	checked_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_alert_rules_owner ON alert_rules (owner);
CREATE INDEX IF NOT EXISTS idx_alert_rules_created_at_id ON alert_rules (created_at, id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateRule inserts a rule, assigning an ID when it has none.
func (s *RuleStore) CreateRule(ctx context.Context, rule alert.Rule) (alert.Rule, error) {
	if rule.ID == "" {
		if s.ids == nil {
			return alert.Rule{}, errors.New("rule id is required")
		}
		id, err := s.ids.NewID()
		if err != nil {
			return alert.Rule{}, fmt.Errorf("generate rule id: %w", err)
		}
		rule.ID = id
	}
	query := `
INSERT INTO alert_rules (id, owner, url, shop, product_name, last_price, threshold, notified_price, created_at, checked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Owner,
		rule.URL,
		rule.Shop,
		rule.ProductName,
		rule.LastPrice.String(),
		rule.Threshold.String(),
		nullableDecimal(rule.NotifiedPrice),
		formatTime(rule.CreatedAt),
		nullableTime(rule.CheckedAt),
	)
	if err != nil {
		return alert.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

const selectRules = `SELECT id, owner, url, shop, product_name, last_price, threshold, notified_price, created_at, checked_at FROM alert_rules`

// ListRules returns every rule, oldest first.
func (s *RuleStore) ListRules(ctx context.Context) ([]alert.Rule, error) {
	return s.queryRules(ctx, selectRules+` ORDER BY created_at, id`)
}

// ListRulesByOwner returns the owner's rules, oldest first.
func (s *RuleStore) ListRulesByOwner(ctx context.Context, owner string) ([]alert.Rule, error) {
	return s.queryRules(ctx, selectRules+` WHERE owner = ? ORDER BY created_at, id`, owner)
}

// DeleteRule removes a rule owned by owner.
func (s *RuleStore) DeleteRule(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(res)
}

// RecordObservation updates the fields a monitoring pass owns.
func (s *RuleStore) RecordObservation(ctx context.Context, id string, obs alert.Observation) error {
	query := `
UPDATE alert_rules
SET product_name = ?, last_price = ?, notified_price = ?, checked_at = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		obs.ProductName,
		obs.LastPrice.String(),
		nullableDecimal(obs.NotifiedPrice),
		formatTime(obs.CheckedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return requireAffected(res)
}

func (s *RuleStore) queryRules(ctx context.Context, query string, args ...any) ([]alert.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []alert.Rule
	for rows.Next() {
		var (
			rule      alert.Rule
			lastPrice string
			threshold string
			createdAt string
			checkedAt sql.NullString
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.Owner,
			&rule.URL,
			&rule.Shop,
			&rule.ProductName,
			&lastPrice,
			&threshold,
			&rule.NotifiedPrice,
			&createdAt,
			&checkedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if rule.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
			return nil, fmt.Errorf("parse last_price of %s: %w", rule.ID, err)
		}
		if rule.Threshold, err = decimal.NewFromString(threshold); err != nil {
			return nil, fmt.Errorf("parse threshold of %s: %w", rule.ID, err)
		}
		if rule.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", rule.ID, err)
		}
		if checkedAt.Valid {
			t, err := time.Parse(timeLayout, checkedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse checked_at of %s: %w", rule.ID, err)
			}
			rule.CheckedAt = &t
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return alert.ErrNotFound
	}
	return nil
}

// timeLayout has a fixed-width fraction so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// Package postgres provides a Postgres-backed alert rule store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "alert_rules"

// Config controls the Postgres connection pool used for alert rules.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// RuleStore persists alert rules in Postgres.
type RuleStore struct {
	pool  pool
	table string
	ids   alert.IDGenerator
}

// NewRuleStore connects to Postgres using the provided config.
func NewRuleStore(ctx context.Context, cfg Config, ids alert.IDGenerator) (*RuleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRuleStoreWithPool(p, cfg.Table, ids)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRuleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRuleStoreWithPool(p pool, table string, ids alert.IDGenerator) (*RuleStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RuleStore{pool: p, table: table, ids: ids}, nil
}

// EnsureSchema creates the rules table and its owner index when missing.
func (s *RuleStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	url            TEXT NOT NULL,
	shop           TEXT NOT NULL,
	product_name   TEXT NOT NULL,
	last_price     NUMERIC NOT NULL,
	threshold      NUMERIC NOT NULL CHECK (threshold > 0),
	notified_price NUMERIC,
	created_at     TIMESTAMPTZ NOT NULL,
	checked_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS %[1]s_owner_idx ON %[1]s (owner)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *RuleStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RuleStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// CreateRule inserts a rule, assigning an ID when it has none.
func (s *RuleStore) CreateRule(ctx context.Context, rule alert.Rule) (alert.Rule, error) {
	if rule.ID == "" {
		if s.ids == nil {
			return alert.Rule{}, fmt.Errorf("rule id is required")
		}
		id, err := s.ids.NewID()
		if err != nil {
			return alert.Rule{}, fmt.Errorf("generate rule id: %w", err)
		}
		rule.ID = id
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	owner,
	url,
	shop,
	product_name,
	last_price,
	threshold,
	notified_price,
	created_at,
	checked_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		rule.ID,
		rule.Owner,
		rule.URL,
		rule.Shop,
		rule.ProductName,
		rule.LastPrice.String(),
		rule.Threshold.String(),
		nullableDecimal(rule.NotifiedPrice),
		rule.CreatedAt,
		rule.CheckedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return alert.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

// ListRules returns every rule, oldest first.
func (s *RuleStore) ListRules(ctx context.Context) ([]alert.Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id`, ruleColumns, s.table)
	return s.queryRules(ctx, query)
}

// ListRulesByOwner returns the owner's rules, oldest first.
func (s *RuleStore) ListRulesByOwner(ctx context.Context, owner string) ([]alert.Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner = $1 ORDER BY created_at, id`, ruleColumns, s.table)
	return s.queryRules(ctx, query, owner)
}

// DeleteRule removes a rule owned by owner.
func (s *RuleStore) DeleteRule(ctx context.Context, owner, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND owner = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

// RecordObservation updates the fields a monitoring pass owns.
func (s *RuleStore) RecordObservation(ctx context.Context, id string, obs alert.Observation) error {
	query := fmt.Sprintf(`
UPDATE %s
SET product_name = $1, last_price = $2, notified_price = $3, checked_at = $4
WHERE id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		obs.ProductName,
		obs.LastPrice.String(),
		nullableDecimal(obs.NotifiedPrice),
		obs.CheckedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

const ruleColumns = `id, owner, url, shop, product_name, last_price::text, threshold::text, notified_price::text, created_at, checked_at`

func (s *RuleStore) queryRules(ctx context.Context, query string, args ...any) ([]alert.Rule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []alert.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func scanRule(row pgx.Row) (alert.Rule, error) {
	var (
		rule      alert.Rule
		lastPrice string
		threshold string
		notified  *string
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Owner,
		&rule.URL,
		&rule.Shop,
		&rule.ProductName,
		&lastPrice,
		&threshold,
		&notified,
		&rule.CreatedAt,
		&rule.CheckedAt,
	); err != nil {
		return alert.Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	var err error
	if rule.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
		return alert.Rule{}, fmt.Errorf("parse last_price of %s: %w", rule.ID, err)
	}
	if rule.Threshold, err = decimal.NewFromString(threshold); err != nil {
		return alert.Rule{}, fmt.Errorf("parse threshold of %s: %w", rule.ID, err)
	}
	if notified != nil {
		d, err := decimal.NewFromString(*notified)
		if err != nil {
			return alert.Rule{}, fmt.Errorf("parse notified_price of %s: %w", rule.ID, err)
		}
		rule.NotifiedPrice = decimal.NewNullDecimal(d)
	}
	return rule, nil
}

func nullableDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

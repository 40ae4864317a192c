package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool for packages that run their own SQL.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// ValidateAPIKey checks an admin API key against the api_keys table.
func (s *Store) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT is_active FROM api_keys
		WHERE api_key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, key).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query api key: %w", err)
	}
	if active {
		_, _ = s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE api_key = $1`, key)
	}
	return active, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func datePtr(t pgtype.Date) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func intPtr(t pgtype.Int4) *int {
	if t.Valid {
		v := int(t.Int32)
		return &v
	}
	return nil
}

// decimalArg renders a decimal for a numeric column, keeping nil as NULL.
func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(t pgtype.Text) (*decimal.Decimal, error) {
	if !t.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(t.String)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", t.String, err)
	}
	return &d, nil
}

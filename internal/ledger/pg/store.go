package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wpolak/cbotgo/internal/ledger"
)

// Store implements internal/ledger.Ledger against Postgres via the pgx
// stdlib driver, for deployments that want durable, queryable order history
// instead of (or alongside) the file-backed ledger.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fills (
	id         TEXT PRIMARY KEY,
	task_id    BIGINT NOT NULL,
	exchange   TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	type       TEXT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	simulated  BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Open connects to dsn and ensures the fills table exists.
func Open(dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger/pg: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordFill(ctx context.Context, f ledger.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (id, task_id, exchange, symbol, side, type, amount, price, simulated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.TaskID, f.Exchange, f.Symbol, f.Side, f.Type, f.Amount, f.Price, f.Simulated, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger/pg: insert fill: %w", err)
	}
	return nil
}

func (s *Store) ListFills(ctx context.Context, limit int) ([]ledger.Fill, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, exchange, symbol, side, type, amount, price, simulated, created_at
		FROM fills ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger/pg: query fills: %w", err)
	}
	defer rows.Close()

	var fills []ledger.Fill
	for rows.Next() {
		var f ledger.Fill
		if err := rows.Scan(&f.ID, &f.TaskID, &f.Exchange, &f.Symbol, &f.Side, &f.Type, &f.Amount, &f.Price, &f.Simulated, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger/pg: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

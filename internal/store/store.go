// Package store is the durable audit trail for submitted orders, fills,
// and resulting positions — a SQLite-backed read path supplementing the
// Registry's point-in-time health snapshot (spec §12 supplemented
// feature: an operator needs "what did we actually trade today", not
// just "is the engine alive"). Schema and connection handling are
// adapted from the teacher's pkg/db (single-writer SQLite, WAL mode,
// CREATE TABLE IF NOT EXISTS schema, no column migrations), trimmed from its multi-tenant
// strategy schema down to the three tables this core actually needs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: record not found")

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	client_order_id TEXT NOT NULL UNIQUE,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	realized_pnl REAL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	quantity REAL NOT NULL,
	avg_price REAL NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// Store wraps the SQL handle for the audit trail.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the SQLite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers a single writer.
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordOrder inserts the audit row for a newly submitted order and returns
// its row id (for RecordTrade's order_id reference). Re-submitting the same
// client_order_id (the idempotency key spec §4.4 relies on) is a harmless
// no-op rather than an error, and returns the original row's id.
func (s *Store) RecordOrder(ctx context.Context, clientOrderID, symbol, side string, quantity float64, status string, createdAt time.Time) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, client_order_id, symbol, side, quantity, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_order_id) DO UPDATE SET status = excluded.status
		RETURNING id
	`, uuid.NewString(), clientOrderID, symbol, side, quantity, status, createdAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store: record order: %w", err)
	}
	return id, nil
}

// RecordTrade inserts a fill row and upserts the resulting position.
func (s *Store) RecordTrade(ctx context.Context, orderID, symbol, side string, price, quantity, realizedPnl float64, newQty, newAvgPrice float64, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, symbol, side, price, quantity, realized_pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), orderID, symbol, side, price, quantity, realizedPnl, at); err != nil {
		return fmt.Errorf("store: insert trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO positions (symbol, quantity, avg_price, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_price = excluded.avg_price,
			updated_at = excluded.updated_at
	`, symbol, newQty, newAvgPrice, at); err != nil {
		return fmt.Errorf("store: upsert position: %w", err)
	}

	return tx.Commit()
}

// Order is an audit-trail row.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          string
	Quantity      float64
	Status        string
	CreatedAt     time.Time
}

// OrdersBySymbol returns the most recent orders for symbol, newest first.
func (s *Store) OrdersBySymbol(ctx context.Context, symbol string, limit int) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_order_id, symbol, side, quantity, status, created_at
		FROM orders WHERE symbol = ? ORDER BY created_at DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ClientOrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Position is the current audit-trail snapshot for one symbol.
type Position struct {
	Symbol    string
	Quantity  float64
	AvgPrice  float64
	UpdatedAt time.Time
}

// GetPosition returns symbol's current audited position, or ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, symbol string) (Position, error) {
	var p Position
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, quantity, avg_price, updated_at FROM positions WHERE symbol = ?
	`, symbol)
	if err := row.Scan(&p.Symbol, &p.Quantity, &p.AvgPrice, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, ErrNotFound
		}
		return Position{}, fmt.Errorf("store: scan position: %w", err)
	}
	return p, nil
}

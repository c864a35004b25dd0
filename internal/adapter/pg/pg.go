package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
	"github.com/shopspring/decimal"
)

var _ port.Journal = (*PgRepo)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
  id            UUID PRIMARY KEY,
  symbol        TEXT NOT NULL,
  sequence      BIGINT NOT NULL,
  ordinal       INTEGER NOT NULL DEFAULT 1,
  buy_order_id  BIGINT NOT NULL,
  sell_order_id BIGINT NOT NULL,
  price         NUMERIC(20, 2) NOT NULL,
  quantity      INTEGER NOT NULL,
  maker         TEXT NOT NULL,
  executed_at   TIMESTAMPTZ NOT NULL
)`,
	`ALTER TABLE trades ADD COLUMN IF NOT EXISTS ordinal INTEGER NOT NULL DEFAULT 1`,
	`DROP INDEX IF EXISTS trades_symbol_sequence_idx`,
	`CREATE INDEX IF NOT EXISTS trades_symbol_sequence_ordinal_idx ON trades (symbol, sequence DESC, ordinal DESC)`,
	`CREATE TABLE IF NOT EXISTS book_snapshots (
  symbol        TEXT NOT NULL,
  sequence      BIGINT NOT NULL,
  snapshot_json JSONB NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (symbol, sequence)
)`,
}

// PgRepo journals emitted trades and book snapshots. Nothing is read back into the book.
type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Migrate creates the journal tables if they do not exist.
func (p *PgRepo) Migrate(ctx context.Context) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("pg: migrate: %w", err)
			}
		}
		return nil
	})
}

func (p *PgRepo) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (p *PgRepo) SaveTrade(ctx context.Context, symbol string, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO trades(id, symbol, sequence, ordinal, buy_order_id, sell_order_id, price, quantity, maker, executed_at)
VALUES($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, t.ID, symbol, int64(t.Sequence), int32(t.Ordinal), int64(t.BuyOrderID), int64(t.SellOrderID),
		t.Price.StringFixed(domain.PriceDigits), int32(t.Quantity), string(t.Maker), t.Timestamp)
	return err
}

// SaveSnapshot persists the snapshot as JSONB keyed by (symbol, sequence).
func (p *PgRepo) SaveSnapshot(ctx context.Context, snap *domain.BookSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO book_snapshots(symbol, sequence, snapshot_json, created_at)
VALUES($1,$2,$3::jsonb,$4)
ON CONFLICT (symbol, sequence) DO UPDATE SET snapshot_json = EXCLUDED.snapshot_json, created_at = EXCLUDED.created_at
`, snap.Symbol, int64(snap.Sequence), string(b), snap.Timestamp)
	return err
}

// LatestSnapshot loads the newest journaled snapshot of symbol, nil if there is none.
func (p *PgRepo) LatestSnapshot(ctx context.Context, symbol string) (*domain.BookSnapshot, error) {
	var data string
	err := p.pool.QueryRow(ctx, `
SELECT snapshot_json::text FROM book_snapshots WHERE symbol = $1 ORDER BY sequence DESC LIMIT 1
`, symbol).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.BookSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (p *PgRepo) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT id::text, sequence, ordinal, buy_order_id, sell_order_id, price::text, quantity, maker, executed_at
FROM trades
WHERE symbol = $1
ORDER BY sequence DESC, ordinal DESC
LIMIT $2
`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Trade
	for rows.Next() {
		var (
			t                  domain.Trade
			seq, buyID, sellID int64
			qty, ordinal       int32
			price, maker       string
		)
		if err := rows.Scan(&t.ID, &seq, &ordinal, &buyID, &sellID, &price, &qty, &maker, &t.Timestamp); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("pg: trade %s price %q: %w", t.ID, price, err)
		}
		t.Sequence, t.BuyOrderID, t.SellOrderID = uint64(seq), uint64(buyID), uint64(sellID)
		t.Quantity = uint32(qty)
		t.Ordinal = int(ordinal)
		t.Maker = domain.Side(maker)
		res = append(res, &t)
	}
	return res, rows.Err()
}

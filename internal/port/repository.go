package port

import (
	"context"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// Journal is an append-only record of emitted events. It is never replayed into the book.
type Journal interface {
	SaveTrade(ctx context.Context, symbol string, t *domain.Trade) error
	SaveSnapshot(ctx context.Context, snap *domain.BookSnapshot) error
	// RecentTrades returns up to limit trades, newest first.
	RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
}

package core

import (
	"time"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// snapshot reads the book without mutating it.
func snapshot(ob *OrderBook, seq uint64, depth int, now time.Time) *domain.BookSnapshot {
	return &domain.BookSnapshot{
		Symbol:    ob.Symbol,
		Bids:      ob.Depth(domain.Buy, depth),
		Asks:      ob.Depth(domain.Sell, depth),
		Sequence:  seq,
		Timestamp: now,
	}
}

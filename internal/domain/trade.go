package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is emitted, never stored by the book.
type Trade struct {
	ID          string          `json:"id"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    uint32          `json:"quantity"`
	// Maker is the side whose order was resting before the aggressor arrived.
	Maker    Side   `json:"maker"`
	Sequence uint64 `json:"sequence"`
	// Ordinal numbers the trades of one admitted order from 1, in execution order.
	Ordinal   int       `json:"ordinal"`
	Timestamp time.Time `json:"timestamp"`
}

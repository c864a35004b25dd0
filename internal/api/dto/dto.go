package dto

import (
	"time"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// SubmitOrderRequest accepts price as a JSON string ("100.00") or number.
type SubmitOrderRequest struct {
	ID       uint64          `json:"id" binding:"required"`
	Side     domain.Side     `json:"side" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint32          `json:"quantity"`
}

func (r SubmitOrderRequest) Order() domain.Order {
	return domain.Order{ID: r.ID, Side: r.Side, Price: r.Price, Quantity: r.Quantity}
}

type SubmitOrderResponse struct {
	ID     uint64  `json:"id"`
	Trades []Trade `json:"trades"`
	Filled uint32  `json:"filled"`
}

type Trade struct {
	ID          string      `json:"id"`
	BuyOrderID  uint64      `json:"buy_order_id"`
	SellOrderID uint64      `json:"sell_order_id"`
	Price       string      `json:"price"`
	Quantity    uint32      `json:"quantity"`
	Maker       domain.Side `json:"maker"`
	Sequence    uint64      `json:"sequence"`
	Ordinal     int         `json:"ordinal"`
	Timestamp   time.Time   `json:"timestamp"`
}

type Level struct {
	Price    string `json:"price"`
	Orders   int    `json:"orders"`
	Quantity uint64 `json:"quantity"`
}

type GetOrderbookResponse struct {
	Symbol    string    `json:"symbol"`
	Sequence  uint64    `json:"sequence"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type GetTradesResponse struct {
	Trades []Trade `json:"trades"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func FromTrade(t *domain.Trade) Trade {
	return Trade{
		ID:          t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price.StringFixed(domain.PriceDigits),
		Quantity:    t.Quantity,
		Maker:       t.Maker,
		Sequence:    t.Sequence,
		Ordinal:     t.Ordinal,
		Timestamp:   t.Timestamp,
	}
}

func FromTrades(trades []domain.Trade) []Trade {
	res := make([]Trade, len(trades))
	for i := range trades {
		res[i] = FromTrade(&trades[i])
	}
	return res
}

func FromSnapshot(s *domain.BookSnapshot) GetOrderbookResponse {
	return GetOrderbookResponse{
		Symbol:    s.Symbol,
		Sequence:  s.Sequence,
		Bids:      fromLevels(s.Bids),
		Asks:      fromLevels(s.Asks),
		Timestamp: s.Timestamp,
	}
}

func fromLevels(levels []domain.Level) []Level {
	res := make([]Level, len(levels))
	for i, l := range levels {
		res[i] = Level{Price: l.Price.StringFixed(domain.PriceDigits), Orders: l.Orders, Quantity: l.Quantity}
	}
	return res
}

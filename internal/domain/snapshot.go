package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Level struct {
	Price    decimal.Decimal `json:"price"`
	Orders   int             `json:"orders"`
	Quantity uint64          `json:"quantity"`
}

// BookSnapshot lists levels best-to-worst on each side.
type BookSnapshot struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *BookSnapshot) DeepCopy() *BookSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Bids = append([]Level(nil), s.Bids...)
	cp.Asks = append([]Level(nil), s.Asks...)
	return &cp
}

func (s *BookSnapshot) BestBid() (Level, bool) {
	if s == nil || len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

func (s *BookSnapshot) BestAsk() (Level, bool) {
	if s == nil || len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// Equal compares book content. Timestamp is ignored.
func (s *BookSnapshot) Equal(o *BookSnapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Symbol != o.Symbol || s.Sequence != o.Sequence {
		return false
	}
	return levelsEqual(s.Bids, o.Bids) && levelsEqual(s.Asks, o.Asks)
}

func levelsEqual(a, b []Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || a[i].Orders != b[i].Orders || a[i].Quantity != b[i].Quantity {
			return false
		}
	}
	return true
}

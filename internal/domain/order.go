package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the counter side. Unknown sides map to themselves.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return s
}

// Order is the immutable intent handed to the engine. Sequence is assigned on admission;
// whatever the caller put there is overwritten.
type Order struct {
	ID       uint64          `json:"id"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint32          `json:"quantity"`
	Sequence uint64          `json:"sequence"`
}

// Validate checks the syntactic part of admission. Duplicate ids are the engine's concern.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: order is nil", ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", ErrInvalidOrder, o.Side)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: price must be > 0, got %s", ErrInvalidOrder, o.Price)
	}
	if !o.Price.Equal(o.Price.Truncate(PriceDigits)) {
		return fmt.Errorf("%w: price %s has more than %d fractional digits", ErrInvalidOrder, o.Price, PriceDigits)
	}
	if o.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidOrder)
	}
	return nil
}

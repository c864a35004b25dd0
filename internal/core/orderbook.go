package core

import (
	"container/list"
	"fmt"

	"github.com/google/btree"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const ladderDegree = 32

// restingOrder is the mutable view of an order while it sits in the book.
type restingOrder struct {
	domain.Order
	Remaining uint32
}

// PriceLevel is a FIFO of resting orders at one exact price.
type PriceLevel struct {
	price  decimal.Decimal
	orders *list.List // *restingOrder, ascending sequence
	volume uint64
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{price: price, orders: list.New()}
}

func (l *PriceLevel) Price() decimal.Decimal { return l.price }
func (l *PriceLevel) Len() int               { return l.orders.Len() }
func (l *PriceLevel) Volume() uint64         { return l.volume }

func (l *PriceLevel) front() *restingOrder {
	el := l.orders.Front()
	if el == nil {
		return nil
	}
	return el.Value.(*restingOrder)
}

func (l *PriceLevel) push(o *restingOrder) {
	l.orders.PushBack(o)
	l.volume += uint64(o.Remaining)
}

// fillFront takes qty off the head order and pops it once it is exhausted.
func (l *PriceLevel) fillFront(qty uint32) *restingOrder {
	el := l.orders.Front()
	o := el.Value.(*restingOrder)
	if qty > o.Remaining {
		panic(fmt.Errorf("%w: fill %d exceeds remaining %d of order %d", domain.ErrInvariantViolation, qty, o.Remaining, o.ID))
	}
	o.Remaining -= qty
	l.volume -= uint64(qty)
	if o.Remaining == 0 {
		l.orders.Remove(el)
	}
	return o
}

type ladder struct {
	side domain.Side
	tree *btree.BTreeG[*PriceLevel]
}

// newLadder orders levels best first: descending for bids, ascending for asks.
func newLadder(side domain.Side) *ladder {
	less := func(a, b *PriceLevel) bool { return a.price.LessThan(b.price) }
	if side == domain.Buy {
		less = func(a, b *PriceLevel) bool { return a.price.GreaterThan(b.price) }
	}
	return &ladder{side: side, tree: btree.NewG(ladderDegree, less)}
}

func (ld *ladder) get(price decimal.Decimal) (*PriceLevel, bool) {
	return ld.tree.Get(&PriceLevel{price: price})
}

func (ld *ladder) best() *PriceLevel {
	lvl, ok := ld.tree.Min()
	if !ok {
		return nil
	}
	return lvl
}

// OrderBook holds the two ladders of a single instrument. It is not safe for concurrent
// use; the engine serialises access.
type OrderBook struct {
	Symbol string
	bids   *ladder
	asks   *ladder
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   newLadder(domain.Buy),
		asks:   newLadder(domain.Sell),
	}
}

func (ob *OrderBook) ladder(side domain.Side) *ladder {
	if side == domain.Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert appends o to the tail of its price level. Validation is the caller's job.
func (ob *OrderBook) Insert(o domain.Order) {
	ld := ob.ladder(o.Side)
	lvl, ok := ld.get(o.Price)
	if !ok {
		lvl = newPriceLevel(o.Price)
		ld.tree.ReplaceOrInsert(lvl)
	}
	lvl.push(&restingOrder{Order: o, Remaining: o.Quantity})
}

// PeekBest returns the best level on side, or nil if that side is empty.
func (ob *OrderBook) PeekBest(side domain.Side) *PriceLevel {
	return ob.ladder(side).best()
}

// RemoveLevelIfEmpty drops the level at price when its queue is empty. Calling it on a
// missing or non-empty level is a no-op.
func (ob *OrderBook) RemoveLevelIfEmpty(side domain.Side, price decimal.Decimal) bool {
	ld := ob.ladder(side)
	lvl, ok := ld.get(price)
	if !ok || lvl.Len() > 0 {
		return false
	}
	ld.tree.Delete(lvl)
	return true
}

// Levels returns the number of distinct prices on side.
func (ob *OrderBook) Levels(side domain.Side) int {
	return ob.ladder(side).tree.Len()
}

// Depth aggregates up to depth levels of side, best first. depth <= 0 means all.
func (ob *OrderBook) Depth(side domain.Side, depth int) []domain.Level {
	ld := ob.ladder(side)
	n := ld.tree.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]domain.Level, 0, n)
	ld.tree.Ascend(func(lvl *PriceLevel) bool {
		if len(out) == n {
			return false
		}
		out = append(out, domain.Level{Price: lvl.price, Orders: lvl.Len(), Quantity: lvl.volume})
		return true
	})
	return out
}

// orders walks every resting order of side best level first, FIFO within a level.
func (ob *OrderBook) orders(side domain.Side, visit func(price decimal.Decimal, o *restingOrder) bool) {
	ob.ladder(side).tree.Ascend(func(lvl *PriceLevel) bool {
		for el := lvl.orders.Front(); el != nil; el = el.Next() {
			if !visit(lvl.price, el.Value.(*restingOrder)) {
				return false
			}
		}
		return true
	})
}

// CheckInvariants verifies ladder ordering, side routing, FIFO sequencing, that no level
// or resting order is empty and that the book is uncrossed.
func (ob *OrderBook) CheckInvariants() error {
	if err := ob.bids.check(); err != nil {
		return err
	}
	if err := ob.asks.check(); err != nil {
		return err
	}
	bid, ask := ob.bids.best(), ob.asks.best()
	if bid != nil && ask != nil && !bid.price.LessThan(ask.price) {
		return fmt.Errorf("%w: crossed book, bid %s >= ask %s", domain.ErrInvariantViolation, bid.price, ask.price)
	}
	return nil
}

func (ld *ladder) check() error {
	var (
		err  error
		prev *PriceLevel
	)
	ld.tree.Ascend(func(lvl *PriceLevel) bool {
		if prev != nil {
			improving := lvl.price.GreaterThan(prev.price)
			if ld.side == domain.Sell {
				improving = lvl.price.LessThan(prev.price)
			}
			if improving || lvl.price.Equal(prev.price) {
				err = fmt.Errorf("%w: %s ladder out of order at %s", domain.ErrInvariantViolation, ld.side, lvl.price)
				return false
			}
		}
		prev = lvl
		if lvl.Len() == 0 {
			err = fmt.Errorf("%w: empty %s level at %s", domain.ErrInvariantViolation, ld.side, lvl.price)
			return false
		}
		var (
			seq    uint64
			volume uint64
		)
		for el := lvl.orders.Front(); el != nil; el = el.Next() {
			o := el.Value.(*restingOrder)
			switch {
			case o.Side != ld.side:
				err = fmt.Errorf("%w: order %d (%s) on %s ladder", domain.ErrInvariantViolation, o.ID, o.Side, ld.side)
			case o.Remaining == 0:
				err = fmt.Errorf("%w: exhausted order %d still queued", domain.ErrInvariantViolation, o.ID)
			case o.Sequence <= seq:
				err = fmt.Errorf("%w: level %s not in sequence order at order %d", domain.ErrInvariantViolation, lvl.price, o.ID)
			case !o.Price.Equal(lvl.price):
				err = fmt.Errorf("%w: order %d priced %s in level %s", domain.ErrInvariantViolation, o.ID, o.Price, lvl.price)
			}
			if err != nil {
				return false
			}
			seq = o.Sequence
			volume += uint64(o.Remaining)
		}
		if volume != lvl.volume {
			err = fmt.Errorf("%w: level %s volume %d, orders sum to %d", domain.ErrInvariantViolation, lvl.price, lvl.volume, volume)
			return false
		}
		return true
	})
	return err
}

package core

import (
	"testing"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(id uint64, side domain.Side, price string, qty uint32) domain.Order {
	return domain.Order{ID: id, Side: side, Price: px(price), Quantity: qty, Sequence: id}
}

func TestInsertRoutesBySide(t *testing.T) {
	ob := NewOrderBook("SIM")
	ob.Insert(newOrder(1, domain.Buy, "100", 5))
	ob.Insert(newOrder(2, domain.Sell, "101", 7))

	assert.Equal(t, 1, ob.Levels(domain.Buy))
	assert.Equal(t, 1, ob.Levels(domain.Sell))
	assert.True(t, ob.PeekBest(domain.Buy).Price().Equal(px("100")))
	assert.True(t, ob.PeekBest(domain.Sell).Price().Equal(px("101")))
	require.NoError(t, ob.CheckInvariants())
}

func TestPeekBestOrdering(t *testing.T) {
	ob := NewOrderBook("SIM")
	for i, p := range []string{"99.5", "100.25", "98", "100"} {
		ob.Insert(newOrder(uint64(i+1), domain.Buy, p, 1))
	}
	for i, p := range []string{"105", "101.75", "103"} {
		ob.Insert(newOrder(uint64(i+10), domain.Sell, p, 1))
	}

	assert.True(t, ob.PeekBest(domain.Buy).Price().Equal(px("100.25")))
	assert.True(t, ob.PeekBest(domain.Sell).Price().Equal(px("101.75")))

	bids := ob.Depth(domain.Buy, 0)
	require.Len(t, bids, 4)
	for i := 1; i < len(bids); i++ {
		assert.True(t, bids[i].Price.LessThan(bids[i-1].Price), "bids must strictly decrease")
	}
	asks := ob.Depth(domain.Sell, 2)
	require.Len(t, asks, 2)
	assert.True(t, asks[0].Price.Equal(px("101.75")))
	assert.True(t, asks[1].Price.Equal(px("103")))
	require.NoError(t, ob.CheckInvariants())
}

func TestPeekBestEmpty(t *testing.T) {
	ob := NewOrderBook("SIM")
	assert.Nil(t, ob.PeekBest(domain.Buy))
	assert.Nil(t, ob.PeekBest(domain.Sell))
	assert.Empty(t, ob.Depth(domain.Buy, 0))
}

func TestSamePriceDifferentScaleSharesLevel(t *testing.T) {
	ob := NewOrderBook("SIM")
	ob.Insert(newOrder(1, domain.Buy, "100", 1))
	ob.Insert(newOrder(2, domain.Buy, "100.00", 2))

	require.Equal(t, 1, ob.Levels(domain.Buy))
	lvl := ob.PeekBest(domain.Buy)
	assert.Equal(t, 2, lvl.Len())
	assert.Equal(t, uint64(3), lvl.Volume())
	assert.Equal(t, uint64(1), lvl.front().ID)
}

func TestRemoveLevelIfEmptyIdempotent(t *testing.T) {
	ob := NewOrderBook("SIM")
	ob.Insert(newOrder(1, domain.Sell, "50", 4))

	assert.False(t, ob.RemoveLevelIfEmpty(domain.Sell, px("50")), "non-empty level stays")
	ob.PeekBest(domain.Sell).fillFront(4)
	assert.True(t, ob.RemoveLevelIfEmpty(domain.Sell, px("50")))
	assert.False(t, ob.RemoveLevelIfEmpty(domain.Sell, px("50")))
	assert.False(t, ob.RemoveLevelIfEmpty(domain.Buy, px("50")))
	assert.Equal(t, 0, ob.Levels(domain.Sell))
}

func TestFillFrontPopsExhaustedHead(t *testing.T) {
	ob := NewOrderBook("SIM")
	ob.Insert(newOrder(1, domain.Buy, "10", 5))
	ob.Insert(newOrder(2, domain.Buy, "10", 3))
	lvl := ob.PeekBest(domain.Buy)

	o := lvl.fillFront(2)
	assert.Equal(t, uint32(3), o.Remaining)
	assert.Equal(t, uint64(6), lvl.Volume())

	lvl.fillFront(3)
	assert.Equal(t, 1, lvl.Len())
	assert.Equal(t, uint64(2), lvl.front().ID)

	assert.Panics(t, func() { lvl.fillFront(4) })
}

func TestCheckInvariantsDetectsCorruption(t *testing.T) {
	t.Run("crossed", func(t *testing.T) {
		ob := NewOrderBook("SIM")
		ob.Insert(newOrder(1, domain.Buy, "101", 1))
		ob.Insert(newOrder(2, domain.Sell, "100", 1))
		assert.ErrorIs(t, ob.CheckInvariants(), domain.ErrInvariantViolation)
	})
	t.Run("empty level", func(t *testing.T) {
		ob := NewOrderBook("SIM")
		ob.Insert(newOrder(1, domain.Buy, "101", 1))
		ob.PeekBest(domain.Buy).fillFront(1)
		assert.ErrorIs(t, ob.CheckInvariants(), domain.ErrInvariantViolation)
	})
	t.Run("wrong side", func(t *testing.T) {
		ob := NewOrderBook("SIM")
		o := newOrder(1, domain.Sell, "101", 1)
		ob.bids.tree.ReplaceOrInsert(newPriceLevel(o.Price))
		lvl, _ := ob.bids.get(o.Price)
		lvl.push(&restingOrder{Order: o, Remaining: 1})
		assert.ErrorIs(t, ob.CheckInvariants(), domain.ErrInvariantViolation)
	})
	t.Run("out of sequence", func(t *testing.T) {
		ob := NewOrderBook("SIM")
		ob.Insert(newOrder(5, domain.Buy, "101", 1))
		ob.Insert(newOrder(3, domain.Buy, "101", 1))
		assert.ErrorIs(t, ob.CheckInvariants(), domain.ErrInvariantViolation)
	})
}

func TestOrdersWalkIsFIFO(t *testing.T) {
	ob := NewOrderBook("SIM")
	ob.Insert(newOrder(1, domain.Sell, "11", 1))
	ob.Insert(newOrder(2, domain.Sell, "10", 1))
	ob.Insert(newOrder(3, domain.Sell, "10", 1))

	var ids []uint64
	ob.orders(domain.Sell, func(_ decimal.Decimal, o *restingOrder) bool {
		ids = append(ids, o.ID)
		return true
	})
	assert.Equal(t, []uint64{2, 3, 1}, ids)
}

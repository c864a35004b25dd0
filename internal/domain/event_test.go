package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeEventJSON(t *testing.T) {
	ev := NewTradeEvent("SIM", Trade{BuyOrderID: 1, SellOrderID: 2, Price: decimal.NewFromInt(100), Quantity: 30})
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"trade","payload":{"price":100.00,"quantity":30}}`, string(b))
}

func TestBookEventJSON(t *testing.T) {
	snap := &BookSnapshot{
		Symbol: "SIM",
		Bids: []Level{
			{Price: decimal.RequireFromString("100.5"), Orders: 2, Quantity: 30},
			{Price: decimal.NewFromInt(99), Orders: 1, Quantity: 5},
		},
	}
	b, err := json.Marshal(NewBookEvent(snap))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"book","payload":{"bids":[["100.50",2],["99.00",1]],"asks":[]}}`, string(b))
}

func TestEventJSONRejectsMalformed(t *testing.T) {
	_, err := json.Marshal(Event{Type: EventTrade})
	assert.Error(t, err)
	_, err = json.Marshal(Event{Type: "quote"})
	assert.Error(t, err)
}

func TestSnapshotDeepCopyAndEqual(t *testing.T) {
	snap := &BookSnapshot{Symbol: "SIM", Bids: []Level{{Price: decimal.NewFromInt(10), Orders: 1, Quantity: 5}}}
	cp := snap.DeepCopy()
	assert.True(t, snap.Equal(cp))

	cp.Bids[0].Orders = 3
	assert.Equal(t, 1, snap.Bids[0].Orders)
	assert.False(t, snap.Equal(cp))

	best, ok := snap.BestBid()
	assert.True(t, ok)
	assert.True(t, best.Price.Equal(decimal.NewFromInt(10)))
	_, ok = snap.BestAsk()
	assert.False(t, ok)
}

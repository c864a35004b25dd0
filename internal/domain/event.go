package domain

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventTrade EventType = "trade"
	EventBook  EventType = "book"
)

// PriceDigits is the number of fractional digits prices carry on the wire.
const PriceDigits = 2

// Event is what the engine hands to the publishing side. Exactly one of Trade/Book is set.
type Event struct {
	Type     EventType
	Symbol   string
	Sequence uint64
	Trade    *Trade
	Book     *BookSnapshot
}

func NewTradeEvent(symbol string, t Trade) Event {
	return Event{Type: EventTrade, Symbol: symbol, Sequence: t.Sequence, Trade: &t}
}

func NewBookEvent(snap *BookSnapshot) Event {
	return Event{Type: EventBook, Symbol: snap.Symbol, Sequence: snap.Sequence, Book: snap}
}

type wireEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type wireTrade struct {
	Price    json.Number `json:"price"`
	Quantity uint32      `json:"quantity"`
}

type wireBook struct {
	Bids [][2]any `json:"bids"`
	Asks [][2]any `json:"asks"`
}

// MarshalJSON renders the subscriber contract:
//
//	{"type":"trade","payload":{"price":100.00,"quantity":30}}
//	{"type":"book","payload":{"bids":[["100.00",1]],"asks":[]}}
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventTrade:
		if e.Trade == nil {
			return nil, fmt.Errorf("trade event without trade")
		}
		return json.Marshal(wireEvent{Type: e.Type, Payload: wireTrade{
			Price:    json.Number(e.Trade.Price.StringFixed(PriceDigits)),
			Quantity: e.Trade.Quantity,
		}})
	case EventBook:
		if e.Book == nil {
			return nil, fmt.Errorf("book event without snapshot")
		}
		return json.Marshal(wireEvent{Type: e.Type, Payload: wireBook{
			Bids: wireLevels(e.Book.Bids),
			Asks: wireLevels(e.Book.Asks),
		}})
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

func wireLevels(levels []Level) [][2]any {
	out := make([][2]any, 0, len(levels))
	for _, l := range levels {
		out = append(out, [2]any{l.Price.StringFixed(PriceDigits), l.Orders})
	}
	return out
}

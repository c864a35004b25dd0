package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/metrics"
)

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Enqueue(ev domain.Event)
}

type discard struct{}

func (discard) Enqueue(domain.Event) {}

type EngineOption func(*Engine)

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSnapshotDepth limits the levels per side carried by book events. 0 publishes all.
func WithSnapshotDepth(depth int) EngineOption {
	return func(e *Engine) { e.depth = depth }
}

// WithInvariantChecks re-verifies the whole book after every processed order and panics
// on a violation. Cost is linear in resting orders.
func WithInvariantChecks(on bool) EngineOption {
	return func(e *Engine) { e.checkInvariants = on }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

type Stats struct {
	OrdersAccepted uint64 `json:"orders_accepted"`
	OrdersRejected uint64 `json:"orders_rejected"`
	Trades         uint64 `json:"trades"`
	Volume         uint64 `json:"volume"`
	LastSequence   uint64 `json:"last_sequence"`
	BidLevels      int    `json:"bid_levels"`
	AskLevels      int    `json:"ask_levels"`
}

// Engine owns one order book and is its only writer. Process holds mu for insert, match
// and snapshot, so orders are admitted and matched in one total order.
type Engine struct {
	symbol          string
	out             Publisher
	log             *slog.Logger
	metrics         *metrics.Metrics
	depth           int
	checkInvariants bool
	now             func() time.Time

	mu    sync.Mutex
	book  *OrderBook
	seq   uint64
	seen  map[uint64]struct{}
	stats Stats

	rejected atomic.Uint64
}

func NewEngine(symbol string, out Publisher, opts ...EngineOption) *Engine {
	if out == nil {
		out = discard{}
	}
	e := &Engine{
		symbol:          symbol,
		out:             out,
		log:             slog.Default(),
		checkInvariants: true,
		now:             time.Now,
		book:            NewOrderBook(symbol),
		seen:            make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine", "symbol", symbol)
	return e
}

func (e *Engine) Symbol() string { return e.symbol }

// Process admits o, crosses the book and publishes the resulting trades followed by one
// book snapshot. Invalid or duplicate orders return an error wrapping
// domain.ErrInvalidOrder and leave the book and the event stream untouched.
func (e *Engine) Process(ctx context.Context, o domain.Order) ([]domain.Trade, error) {
	start := time.Now()
	if err := o.Validate(); err != nil {
		e.reject(ctx, o, "invalid", err)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.seen[o.ID]; dup {
		err := fmt.Errorf("%w: %d", domain.ErrDuplicateOrder, o.ID)
		e.reject(ctx, o, "duplicate", err)
		return nil, err
	}
	e.seen[o.ID] = struct{}{}
	e.seq++
	o.Sequence = e.seq

	e.book.Insert(o)
	trades := e.match()
	if e.checkInvariants {
		if err := e.book.CheckInvariants(); err != nil {
			e.log.ErrorContext(ctx, "book corrupted", "order_id", o.ID, "error", err)
			panic(err)
		}
	}

	var volume uint64
	for _, t := range trades {
		volume += uint64(t.Quantity)
		e.log.InfoContext(ctx, fmt.Sprintf("TRADE %d @ %s", t.Quantity, t.Price.StringFixed(domain.PriceDigits)),
			"buy_order_id", t.BuyOrderID, "sell_order_id", t.SellOrderID, "maker", t.Maker, "taker", t.Maker.Opposite())
		e.out.Enqueue(domain.NewTradeEvent(e.symbol, t))
	}
	e.out.Enqueue(domain.NewBookEvent(snapshot(e.book, e.seq, e.depth, e.now())))

	e.stats.OrdersAccepted++
	e.stats.Trades += uint64(len(trades))
	e.stats.Volume += volume
	e.stats.LastSequence = e.seq
	e.metrics.ObserveAccepted(time.Since(start), len(trades), volume,
		e.book.Levels(domain.Buy), e.book.Levels(domain.Sell))

	e.log.DebugContext(ctx, "order processed",
		"order_id", o.ID, "side", o.Side, "price", o.Price, "quantity", o.Quantity,
		"sequence", o.Sequence, "trades", len(trades))
	return trades, nil
}

// match crosses the heads of the best levels until the book is uncrossed. The trade
// prints at the maker's price: the head with the lower sequence was resting first.
func (e *Engine) match() []domain.Trade {
	var trades []domain.Trade
	for {
		bid := e.book.PeekBest(domain.Buy)
		ask := e.book.PeekBest(domain.Sell)
		if bid == nil || ask == nil || bid.Price().LessThan(ask.Price()) {
			return trades
		}

		restingBid, restingAsk := bid.front(), ask.front()
		if restingBid == nil || restingAsk == nil {
			panic(fmt.Errorf("%w: empty best level", domain.ErrInvariantViolation))
		}

		qty := min(restingBid.Remaining, restingAsk.Remaining)
		maker, price := domain.Buy, restingBid.Price
		if restingAsk.Sequence < restingBid.Sequence {
			maker, price = domain.Sell, restingAsk.Price
		}

		bid.fillFront(qty)
		ask.fillFront(qty)

		trades = append(trades, domain.Trade{
			ID:          uuid.NewString(),
			BuyOrderID:  restingBid.ID,
			SellOrderID: restingAsk.ID,
			Price:       price,
			Quantity:    qty,
			Maker:       maker,
			Sequence:    e.seq,
			Ordinal:     len(trades) + 1,
			Timestamp:   e.now(),
		})

		e.book.RemoveLevelIfEmpty(domain.Buy, bid.Price())
		e.book.RemoveLevelIfEmpty(domain.Sell, ask.Price())
	}
}

func (e *Engine) reject(ctx context.Context, o domain.Order, reason string, err error) {
	e.rejected.Add(1)
	e.metrics.ObserveRejected(reason)
	e.log.WarnContext(ctx, "order rejected", "order_id", o.ID, "reason", reason, "error", err)
}

// Snapshot returns the current book, depth levels per side (0 = all).
func (e *Engine) Snapshot(depth int) *domain.BookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.book, e.seq, depth, e.now())
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.OrdersRejected = e.rejected.Load()
	s.BidLevels = e.book.Levels(domain.Buy)
	s.AskLevels = e.book.Levels(domain.Sell)
	return s
}

// IsRejection reports whether err came from admission rather than from the engine itself.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidOrder)
}

// Package stream fans engine events out to live subscribers (SSE and gRPC streams).
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

var _ port.EventSink = (*Hub)(nil)

// Message is one encoded event as sent to subscribers.
type Message struct {
	Type     domain.EventType
	Sequence uint64
	Data     []byte
}

// Hub encodes each event once and offers it to every subscriber. A subscriber that falls
// behind loses its oldest buffered messages; it never slows the hub down.
type Hub struct {
	log    *slog.Logger
	buffer int

	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	lastBook *Message
	closed   bool

	dropped atomic.Uint64
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:    log.With("component", "stream"),
		buffer: buffer,
		subs:   make(map[uint64]*Subscription),
	}
}

type Subscription struct {
	id   uint64
	hub  *Hub
	ch   chan Message
	mu   sync.Mutex
	done bool
}

// C delivers messages in publish order. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Message { return s.ch }

func (s *Subscription) Close() { s.hub.remove(s.id) }

func (s *Subscription) offer(m Message) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	for {
		select {
		case s.ch <- m:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped = true
		default:
		}
	}
}

func (s *Subscription) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
}

// Subscribe registers a subscriber. The latest book, if any, is queued first so a new
// client starts from a full picture.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{id: h.nextID, hub: h, ch: make(chan Message, h.buffer)}
	if h.closed {
		s.end()
		return s
	}
	if h.lastBook != nil {
		s.offer(*h.lastBook)
	}
	h.subs[s.id] = s
	h.log.Debug("subscriber joined", "id", s.id, "subscribers", len(h.subs))
	return s
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		s.end()
		h.log.Debug("subscriber left", "id", id, "subscribers", n)
	}
}

func (h *Hub) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	m := Message{Type: ev.Type, Sequence: ev.Sequence, Data: data}

	h.mu.Lock()
	if ev.Type == domain.EventBook {
		h.lastBook = &m
	}
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if s.offer(m) {
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts messages discarded from slow subscribers' buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close ends every subscription; later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()
	for _, s := range subs {
		s.end()
	}
}

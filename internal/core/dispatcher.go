package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/metrics"
	"github.com/olyamironova/auction-engine/internal/port"
)

const defaultSinkTimeout = 2 * time.Second

type DispatcherOption func(*Dispatcher)

func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSinkTimeout bounds a single Publish call.
func WithSinkTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithErrorHandler is called from the publishing goroutine for every failed delivery.
// The error wraps domain.ErrSinkUnavailable.
func WithErrorHandler(fn func(domain.Event, error)) DispatcherOption {
	return func(d *Dispatcher) { d.onError = fn }
}

type DispatchStats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// Dispatcher is the outbound boundary between the engine and the sink. Enqueue never
// blocks: with a full buffer the oldest queued event is dropped. A single goroutine
// delivers events to the sink in enqueue order.
type Dispatcher struct {
	sink    port.EventSink
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	onError func(domain.Event, error)

	mu      sync.RWMutex
	closed  bool
	queue   chan domain.Event
	started atomic.Bool
	done    chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(sink port.EventSink, size int, opts ...DispatcherOption) *Dispatcher {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		sink:    sink,
		log:     slog.Default(),
		timeout: defaultSinkTimeout,
		queue:   make(chan domain.Event, size),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "dispatcher")
	return d
}

func (d *Dispatcher) Enqueue(ev domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}
	for {
		select {
		case d.queue <- ev:
			return
		default:
		}
		select {
		case old := <-d.queue:
			d.drop(old, "buffer full")
		default:
		}
	}
}

func (d *Dispatcher) drop(ev domain.Event, reason string) {
	d.dropped.Add(1)
	d.metrics.ObserveDropped()
	d.log.Warn("event dropped", "reason", reason, "type", ev.Type, "sequence", ev.Sequence)
}

// Start launches the publishing goroutine. It returns when ctx is done or after Close
// has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.loop(ctx)
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.Event) {
	if d.sink == nil {
		d.delivered.Add(1)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sink.Publish(cctx, ev); err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrSinkUnavailable, err)
		d.failed.Add(1)
		d.metrics.ObserveSinkFailure()
		d.log.Error("publish failed", "type", ev.Type, "sequence", ev.Sequence, "error", err)
		if d.onError != nil {
			d.onError(ev, err)
		}
		return
	}
	d.delivered.Add(1)
}

// Close stops accepting events, lets the goroutine drain what is queued and waits for it.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	if d.started.Load() {
		<-d.done
	}
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

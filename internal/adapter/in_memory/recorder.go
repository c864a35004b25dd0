package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

var _ port.EventSink = (*Recorder)(nil)

// Recorder is an EventSink that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Publish(ctx context.Context, ev domain.Event) error {
	if ev.Book != nil {
		ev.Book = ev.Book.DeepCopy()
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Wait blocks until at least n events were recorded or ctx is done.
func (r *Recorder) Wait(ctx context.Context, n int) error {
	for {
		if r.Len() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.notify:
		}
	}
}

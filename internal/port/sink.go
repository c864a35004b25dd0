package port

import (
	"context"
	"errors"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// EventSink consumes engine events. Implementations may block; the engine never calls them
// from inside the matching critical section.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type SinkFunc func(ctx context.Context, ev domain.Event) error

func (f SinkFunc) Publish(ctx context.Context, ev domain.Event) error { return f(ctx, ev) }

// Fanout delivers every event to all sinks, even when an earlier one fails.
type Fanout []EventSink

func (f Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CacheSink keeps the latest book snapshot in c.
func CacheSink(c BookCache) EventSink {
	return SinkFunc(func(ctx context.Context, ev domain.Event) error {
		if ev.Type != domain.EventBook {
			return nil
		}
		return c.SetBook(ctx, ev.Symbol, ev.Book)
	})
}

// JournalSink appends trades and snapshots to j.
func JournalSink(j Journal) EventSink {
	return SinkFunc(func(ctx context.Context, ev domain.Event) error {
		switch ev.Type {
		case domain.EventTrade:
			return j.SaveTrade(ctx, ev.Symbol, ev.Trade)
		case domain.EventBook:
			return j.SaveSnapshot(ctx, ev.Book)
		}
		return nil
	})
}

package events

import (
	"context"
	"errors"
	"expvar"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	eventsPublishedTotal = expvar.NewInt("booking_events_published_total")
	eventsDroppedTotal   = expvar.NewInt("booking_events_dropped_total")
)

var ErrBusClosed = errors.New("event bus closed")

// Bus is an in-process fan-out of booking events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer. The returned cancel
// func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish hands the event to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (b *Bus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	eventsPublishedTotal.Add(1)
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			eventsDroppedTotal.Add(1)
			log.Warn().
				Int("subscriber", id).
				Str("event_type", string(event.Type)).
				Str("booking_id", event.BookingID.String()).
				Msg("Event subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Close closes every subscription. Later publishes fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Forward delivers events to deliver until ctx is done or the subscription
// is closed. A failed delivery is logged and skipped.
func Forward(ctx context.Context, name string, events <-chan Event, deliver func(context.Context, Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := deliver(ctx, event); err != nil {
				log.Warn().Err(err).
					Str("sink", name).
					Str("event_type", string(event.Type)).
					Str("booking_id", event.BookingID.String()).
					Msg("Event delivery failed")
			}
		}
	}
}

// Package notify provides the wake-up signaling between the sampler and
// its consumers. Events are sticky flags coalesced per subscriber: any
// number of publishes before a wake produce one wake carrying the union,
// so consumers always re-derive full state instead of trusting a count.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Event identifies what changed.
type Event uint8

const (
	MeasurementAdded Event = 1 << iota
	PlotReady
	CalibrationChanged
	ForceRedraw
)

// Set is a union of Events.
type Set uint8

// Has reports whether e is part of the set.
func (s Set) Has(e Event) bool {
	return s&Set(e) != 0
}

// Empty reports whether no event is pending.
func (s Set) Empty() bool {
	return s == 0
}

func (s Set) String() string {
	if s.Empty() {
		return "none"
	}

	var parts []string
	for _, it := range []struct {
		e    Event
		name string
	}{
		{MeasurementAdded, "measurement"},
		{PlotReady, "plot"},
		{CalibrationChanged, "calibration"},
		{ForceRedraw, "redraw"},
	} {
		if s.Has(it.e) {
			parts = append(parts, it.name)
		}
	}

	return strings.Join(parts, "|")
}

// Bus fans events out to all subscribers.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	mu      sync.Mutex
	pending Set
	wake    chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new consumer. Events published before Subscribe
// are not delivered to it.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		wake: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes sub from the bus. Future publishes no longer
// reach it; a wake already sent stays readable.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)

			return
		}
	}
}

// Publish marks e pending on every subscriber and wakes each one. The
// send is non-blocking: an already-pending wake absorbs the new one, so
// the bus lock is safe to hold across the whole fan-out even with
// Subscribe and Unsubscribe shifting the subscriber list concurrently.
// Publishers must complete their state mutation before calling Publish
// so a woken consumer always observes the new data.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		sub.mu.Lock()
		sub.pending |= Set(e)
		sub.mu.Unlock()

		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Take returns and clears the pending set without blocking.
func (s *Subscription) Take() Set {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.pending
	s.pending = 0

	return set
}

// Wait blocks until an event arrives, the timeout elapses, or ctx is
// cancelled, then returns the (possibly empty) coalesced pending set.
func (s *Subscription) Wait(ctx context.Context, timeout time.Duration) Set {
	// Anything published since the last wake is delivered immediately.
	if set := s.Take(); !set.Empty() {
		// Drain a stale wake so the next Wait does not return early.
		select {
		case <-s.wake:
		default:
		}

		return set
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.wake:
	case <-timer.C:
	case <-ctx.Done():
	}

	return s.Take()
}

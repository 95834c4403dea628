// Package lifecycle fans out app visibility and focus signals to the
// components that react to them.
package lifecycle

import "sync"

// EventType identifies an app lifecycle transition.
type EventType string

const (
	// EventVisible fires when the app becomes visible again after
	// being hidden (tab switch back).
	EventVisible EventType = "visible"
	// EventHidden fires when the app stops being visible.
	EventHidden EventType = "hidden"
	// EventFocus fires when the window regains input focus.
	EventFocus EventType = "focus"
	// EventBlur fires when the window loses input focus.
	EventBlur EventType = "blur"
	// EventForeground fires when the app process moves to the
	// foreground; the foreground push path takes over.
	EventForeground EventType = "foreground"
	// EventBackground fires when the app process moves to the
	// background; only the background delivery agent stays active.
	EventBackground EventType = "background"
)

// Bus is a small fan-out bus for lifecycle events. Producers are the
// host shell; consumers are the refresh scheduler and the delivery
// channel adapter.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan EventType
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish delivers the event to every subscriber. Slow subscribers
// drop events rather than blocking the producer. The sends happen
// under the lock so an Unsubscribe cannot close a channel mid-send;
// they are non-blocking, so holding it is safe.
func (b *Bus) Publish(ev EventType) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel receiving lifecycle events.
func (b *Bus) Subscribe() <-chan EventType {
	ch := make(chan EventType, 8)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

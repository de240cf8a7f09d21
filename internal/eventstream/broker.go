// Package eventstream provides a lightweight publish/subscribe broker for
// lifecycle events emitted across the core (rollback-point-stored,
// rollback-started, batch:completed, …). Grounded on
// cuemby-warren/pkg/events.Broker: per-subscriber buffered channels with
// drop-on-full semantics, so one slow subscriber never blocks the publisher
// or its peers.
package eventstream

import "sync"

// Event is one lifecycle notification. Name matches one of the emitted-event
// names enumerated in spec §4.4/§6 (e.g. "rollback-point-stored").
type Event struct {
	Name string
	Data map[string]interface{}
}

// Subscriber is a channel on which a subscriber receives Events.
type Subscriber chan *Event

const defaultBufferSize = 32

// Broker fans out published events to every active subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	bufferSize  int
}

// NewBroker returns a Broker with the default per-subscriber buffer size.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers and returns a new channel that receives future events.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, b.bufferSize)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe deregisters sub and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish fans out an event to every current subscriber. A subscriber whose
// buffer is full has the event dropped for it rather than blocking the
// publisher.
func (b *Broker) Publish(name string, data map[string]interface{}) {
	evt := &Event{Name: name, Data: data}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- evt:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes and closes every outstanding subscriber channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]bool)
}

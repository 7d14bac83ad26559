package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventTenantCreated EventType = "tenant.created"
	EventTenantUpdated EventType = "tenant.updated"
	EventTenantStale   EventType = "tenant.stale"
	EventTenantSynced  EventType = "tenant.synced"
	EventTenantResumed EventType = "tenant.resumed"
	EventTenantDeleted EventType = "tenant.deleted"

	EventWorkerSpawned     EventType = "worker.spawned"
	EventWorkerTerminating EventType = "worker.terminating"
	EventWorkerExited      EventType = "worker.exited"

	EventProvisionerRegistered   EventType = "provisioner.registered"
	EventProvisionerUnregistered EventType = "provisioner.unregistered"
)

// Event represents a provisioner lifecycle event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Publisher is the write side of a Broker
type Publisher interface {
	Publish(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans provisioner events out to subscribers. A subscription may be
// limited to some event types.
type Broker struct {
	mu      sync.RWMutex
	subs    map[Subscriber][]EventType
	queue   chan *Event
	stop    chan struct{}
	stopped sync.Once
	dropped atomic.Uint64
}

// NewBroker creates a broker. Events are queued until Start is called.
func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[Subscriber][]EventType),
		queue: make(chan *Event, 256),
		stop:  make(chan struct{}),
	}
}

// Start runs the fan-out loop in the background
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case event := <-b.queue:
				b.deliver(event)
			case <-b.stop:
				return
			}
		}
	}()
}

// Stop ends the fan-out loop. Later events are dropped.
func (b *Broker) Stop() {
	b.stopped.Do(func() { close(b.stop) })
}

// Subscribe returns a channel receiving the given event types, or every
// event when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subs[sub] = types
	return sub
}

// Unsubscribe closes a subscription. Closing twice is a no-op.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish queues an event without blocking. The event is dropped when the
// queue is full or the broker is stopped; tenant reconciliation must never
// wait on a subscriber.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stop:
		b.dropped.Add(1)
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, types := range b.subs {
		if len(types) > 0 && !slices.Contains(types, event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events or deliveries were dropped so far
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(*Event) {}

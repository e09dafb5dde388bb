// Package events decouples the parts of the catalog that change state (the
// collection store, the data-directory monitor) from the parts that react to
// it (websocket clients, notifiers).
package events

import (
	"sync"
	"time"
)

// EventType represents the type of an event.
type EventType string

const (
	// CollectionChanged is emitted after a user's collection is modified.
	CollectionChanged EventType = "collection_changed"
	// CatalogReloaded is emitted when the card data on disk has changed.
	CatalogReloaded EventType = "catalog_reloaded"
)

// AllTypes lists every event type the bus knows about.
var AllTypes = []EventType{CollectionChanged, CatalogReloaded}

// Action names the collection operation behind a CollectionChangedEvent.
type Action string

const (
	ActionOwned    Action = "owned"
	ActionWishlist Action = "wishlist"
	ActionQuantity Action = "quantity"
)

// Event represents something that happened in the system.
type Event interface {
	// Type returns the event type.
	Type() EventType
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType EventType
	timestamp time.Time
}

func (e *baseEvent) Type() EventType      { return e.eventType }
func (e *baseEvent) Timestamp() time.Time { return e.timestamp }

// CollectionChangedEvent describes the state of one card in one user's
// collection after a mutation.
type CollectionChangedEvent struct {
	baseEvent
	UserID     string
	CardID     string
	Action     Action
	Owned      bool
	Wishlisted bool
	Quantity   int
}

// NewCollectionChangedEvent creates a new collection changed event.
func NewCollectionChangedEvent(userID, cardID string, action Action) *CollectionChangedEvent {
	return &CollectionChangedEvent{
		baseEvent: baseEvent{
			eventType: CollectionChanged,
			timestamp: time.Now(),
		},
		UserID: userID,
		CardID: cardID,
		Action: action,
	}
}

// CatalogReloadedEvent is emitted after the monitor notices new data files.
type CatalogReloadedEvent struct {
	baseEvent
	Path  string // Directory that changed
	Files int    // Number of changed files folded into this event
}

// NewCatalogReloadedEvent creates a new catalog reloaded event.
func NewCatalogReloadedEvent(path string, files int) *CatalogReloadedEvent {
	return &CatalogReloadedEvent{
		baseEvent: baseEvent{
			eventType: CatalogReloaded,
			timestamp: time.Now(),
		},
		Path:  path,
		Files: files,
	}
}

// Publisher is the side of the bus used by event producers.
type Publisher interface {
	Publish(event Event)
}

// Handler is a function that handles an event.
type Handler func(event Event)

// Subscription represents a subscription to events.
type Subscription struct {
	id        int
	eventType EventType
	handler   Handler
	bus       *Bus
}

// Unsubscribe removes this subscription from the event bus.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

// Bus is a thread-safe event bus for publishing and subscribing to events.
type Bus struct {
	mu           sync.RWMutex
	handlers     map[EventType]map[int]*Subscription
	nextID       int
	asyncPublish bool
	wg           sync.WaitGroup
}

// NewBus creates a new event bus.
// If asyncPublish is true, event handlers are called asynchronously in goroutines.
func NewBus(asyncPublish bool) *Bus {
	return &Bus{
		handlers:     make(map[EventType]map[int]*Subscription),
		asyncPublish: asyncPublish,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]*Subscription)
	}

	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		eventType: eventType,
		handler:   handler,
		bus:       b,
	}
	b.handlers[eventType][sub.id] = sub
	return sub
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) []*Subscription {
	subs := make([]*Subscription, len(AllTypes))
	for i, et := range AllTypes {
		subs[i] = b.Subscribe(et, handler)
	}
	return subs
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[sub.eventType]; ok {
		delete(handlers, sub.id)
	}
}

// Publish sends an event to all subscribed handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type()]
	handlersCopy := make([]Handler, 0, len(handlers))
	for _, sub := range handlers {
		handlersCopy = append(handlersCopy, sub.handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlersCopy {
		if b.asyncPublish {
			b.wg.Add(1)
			go func(h Handler) {
				defer b.wg.Done()
				h(event)
			}(handler)
		} else {
			handler(event)
		}
	}
}

// Wait blocks until every asynchronously dispatched handler has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// HandlerCount returns the total number of subscribed handlers.
func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, handlers := range b.handlers {
		count += len(handlers)
	}
	return count
}

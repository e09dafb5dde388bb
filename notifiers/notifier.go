// Package notifiers forwards catalog and collection events to external
// notification services.
package notifiers

import (
	"github.com/rs/zerolog"

	"tcg_catalog/events"
)

// Notifier is the interface that all notification providers must implement.
type Notifier interface {
	// Name returns the notifier's name (e.g., "gotify").
	Name() string

	// Notify sends a notification for the given event. Events the notifier
	// does not care about are ignored without error.
	Notify(event events.Event) error

	// Close releases any resources held by the notifier.
	Close() error
}

// Manager manages multiple notifiers and routes events to them.
type Manager struct {
	notifiers []Notifier
	subs      []*events.Subscription
	log       zerolog.Logger
}

// NewManager creates a new notifier manager that listens to the event bus.
func NewManager(bus *events.Bus, log zerolog.Logger) *Manager {
	m := &Manager{
		notifiers: make([]Notifier, 0),
		log:       log.With().Str("component", "notifiers").Logger(),
	}
	m.subs = bus.SubscribeAll(m.handleEvent)
	return m
}

// Register adds a notifier to the manager.
func (m *Manager) Register(notifier Notifier) {
	m.notifiers = append(m.notifiers, notifier)
	m.log.Info().Str("notifier", notifier.Name()).Msg("Notifier registered")
}

// handleEvent routes an event to all registered notifiers. Delivery is best
// effort; failures are logged.
func (m *Manager) handleEvent(event events.Event) {
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(event); err != nil {
			m.log.Warn().
				Err(err).
				Str("notifier", notifier.Name()).
				Str("event", string(event.Type())).
				Msg("Notification failed")
		}
	}
}

// Close unsubscribes from the event bus and closes all notifiers.
func (m *Manager) Close() error {
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}

	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NotifierCount returns the number of registered notifiers.
func (m *Manager) NotifierCount() int {
	return len(m.notifiers)
}

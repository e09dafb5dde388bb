package notifiers

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"tcg_catalog/events"
)

// mockNotifier is a test notifier that counts calls.
type mockNotifier struct {
	name      string
	callCount int32
	lastEvent events.Event
	notifyErr error
	closeErr  error
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(event events.Event) error {
	atomic.AddInt32(&m.callCount, 1)
	m.lastEvent = event
	return m.notifyErr
}

func (m *mockNotifier) Close() error { return m.closeErr }

func TestManagerRegister(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus, zerolog.Nop())
	defer manager.Close()

	if manager.NotifierCount() != 0 {
		t.Errorf("expected 0 notifiers, got %d", manager.NotifierCount())
	}

	manager.Register(&mockNotifier{name: "test"})

	if manager.NotifierCount() != 1 {
		t.Errorf("expected 1 notifier, got %d", manager.NotifierCount())
	}
}

func TestManagerRoutesEventsToNotifiers(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus, zerolog.Nop())
	defer manager.Close()

	mock1 := &mockNotifier{name: "mock1"}
	mock2 := &mockNotifier{name: "mock2"}
	manager.Register(mock1)
	manager.Register(mock2)

	bus.Publish(events.NewCollectionChangedEvent("alice", "base1-4", events.ActionWishlist))

	if atomic.LoadInt32(&mock1.callCount) != 1 {
		t.Errorf("mock1: expected 1 call, got %d", mock1.callCount)
	}
	if atomic.LoadInt32(&mock2.callCount) != 1 {
		t.Errorf("mock2: expected 1 call, got %d", mock2.callCount)
	}
}

func TestManagerReceivesAllEventTypes(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus, zerolog.Nop())
	defer manager.Close()

	mock := &mockNotifier{name: "test"}
	manager.Register(mock)

	bus.Publish(events.NewCollectionChangedEvent("alice", "base1-4", events.ActionOwned))
	bus.Publish(events.NewCatalogReloadedEvent("data", 3))

	if atomic.LoadInt32(&mock.callCount) != 2 {
		t.Errorf("expected 2 calls for all event types, got %d", mock.callCount)
	}
	if mock.lastEvent.Type() != events.CatalogReloaded {
		t.Errorf("expected last event %s, got %s", events.CatalogReloaded, mock.lastEvent.Type())
	}
}

func TestManagerLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	bus := events.NewBus(false)
	manager := NewManager(bus, zerolog.New(&buf))
	defer manager.Close()

	failing := &mockNotifier{name: "broken", notifyErr: errors.New("boom")}
	ok := &mockNotifier{name: "ok"}
	manager.Register(failing)
	manager.Register(ok)

	bus.Publish(events.NewCatalogReloadedEvent("data", 1))

	if atomic.LoadInt32(&ok.callCount) != 1 {
		t.Errorf("expected notifier after a failing one to be called, got %d calls", ok.callCount)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"notifier":"broken"`)) {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestManagerCloseUnsubscribes(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus, zerolog.Nop())

	mock := &mockNotifier{name: "test"}
	manager.Register(mock)

	manager.Close()

	bus.Publish(events.NewCatalogReloadedEvent("data", 1))

	if atomic.LoadInt32(&mock.callCount) != 0 {
		t.Errorf("expected 0 calls after close, got %d", mock.callCount)
	}
}

func TestManagerCloseReturnsNotifierError(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus, zerolog.Nop())
	manager.Register(&mockNotifier{name: "test", closeErr: errors.New("close failed")})

	if err := manager.Close(); err == nil {
		t.Error("expected close error to be returned")
	}
}

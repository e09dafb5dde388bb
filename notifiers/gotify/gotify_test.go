package gotify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gotify/go-api-client/v2/gotify"
	"github.com/gotify/go-api-client/v2/models"
	"github.com/rs/zerolog"

	"tcg_catalog/config"
	"tcg_catalog/events"
)

// newTestNotifier creates a Notifier connected to a test server.
// The handler receives the MessageExternal that was sent.
func newTestNotifier(t *testing.T, handler func(*models.MessageExternal)) *Notifier {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/message" {
			t.Errorf("expected /message path, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Gotify-Key") != "test-token" {
			t.Errorf("expected X-Gotify-Key header 'test-token', got '%s'", r.Header.Get("X-Gotify-Key"))
		}

		var msg models.MessageExternal
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("failed to decode message: %v", err)
		}
		if handler != nil {
			handler(&msg)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(&models.MessageExternal{ID: 1})
	}))
	t.Cleanup(server.Close)

	parsedURL, _ := url.Parse(server.URL)
	return &Notifier{
		client:   gotify.NewClient(parsedURL, server.Client()),
		token:    "test-token",
		hostname: server.URL,
		log:      zerolog.Nop(),
	}
}

func wishlisted(userID, cardID string) *events.CollectionChangedEvent {
	e := events.NewCollectionChangedEvent(userID, cardID, events.ActionWishlist)
	e.Wishlisted = true
	return e
}

func TestNew_NilConfig(t *testing.T) {
	if n := New(nil, zerolog.Nop()); n != nil {
		t.Error("expected nil notifier for nil config")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.GotifyConfig
	}{
		{"disabled", &config.GotifyConfig{Hostname: "https://gotify.example.com", Token: "token"}},
		{"missing hostname", &config.GotifyConfig{Enabled: true, Token: "token"}},
		{"missing token", &config.GotifyConfig{Enabled: true, Hostname: "https://gotify.example.com"}},
		{"empty config", &config.GotifyConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if n := New(tt.cfg, zerolog.Nop()); n != nil {
				t.Error("expected nil notifier")
			}
		})
	}
}

func TestNew_ValidConfig(t *testing.T) {
	n := New(&config.GotifyConfig{
		Enabled:  true,
		Hostname: "https://gotify.example.com/",
		Token:    "test-token",
	}, zerolog.Nop())
	if n == nil {
		t.Fatal("expected non-nil notifier for valid config")
	}
	if n.Name() != "gotify" {
		t.Errorf("expected name 'gotify', got '%s'", n.Name())
	}
	if n.hostname != "https://gotify.example.com" {
		t.Errorf("expected trailing slash removed, got '%s'", n.hostname)
	}
	if err := n.Close(); err != nil {
		t.Errorf("unexpected error from Close: %v", err)
	}
}

func TestNotify_Wishlisted(t *testing.T) {
	var received *models.MessageExternal
	n := newTestNotifier(t, func(msg *models.MessageExternal) { received = msg })

	if err := n.Notify(wishlisted("alice", "base1-4")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received == nil {
		t.Fatal("expected message to be sent")
	}
	if received.Priority != PriorityNormal {
		t.Errorf("expected priority %d, got %d", PriorityNormal, received.Priority)
	}
	if received.Message != "alice wishlisted base1-4" {
		t.Errorf("unexpected message %q", received.Message)
	}
}

func TestNotify_WishlistedUsesCardName(t *testing.T) {
	var received *models.MessageExternal
	n := newTestNotifier(t, func(msg *models.MessageExternal) { received = msg })
	n.SetCardNamer(func(id string) string {
		if id == "base1-4" {
			return "Charizard"
		}
		return ""
	})

	n.Notify(wishlisted("alice", "base1-4"))
	if received == nil || !strings.Contains(received.Message, "Charizard (base1-4)") {
		t.Fatalf("expected card name in message, got %+v", received)
	}

	n.Notify(wishlisted("alice", "base1-5"))
	if received.Message != "alice wishlisted base1-5" {
		t.Errorf("expected id fallback for unknown card, got %q", received.Message)
	}
}

func TestNotify_IgnoresOtherCollectionChanges(t *testing.T) {
	calls := 0
	n := newTestNotifier(t, func(msg *models.MessageExternal) { calls++ })

	unwished := events.NewCollectionChangedEvent("alice", "base1-4", events.ActionWishlist)
	owned := events.NewCollectionChangedEvent("alice", "base1-4", events.ActionOwned)
	owned.Owned = true

	for _, e := range []events.Event{unwished, owned} {
		if err := n.Notify(e); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if calls != 0 {
		t.Errorf("expected no messages, got %d", calls)
	}
}

func TestNotify_CatalogReloaded(t *testing.T) {
	var received *models.MessageExternal
	n := newTestNotifier(t, func(msg *models.MessageExternal) { received = msg })

	if err := n.Notify(events.NewCatalogReloadedEvent("/srv/data", 12)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received == nil {
		t.Fatal("expected message to be sent")
	}
	if received.Priority != PriorityLow {
		t.Errorf("expected priority %d, got %d", PriorityLow, received.Priority)
	}
	if !strings.Contains(received.Message, "12 file(s)") {
		t.Errorf("expected file count in message, got %q", received.Message)
	}
}

func TestNotify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "internal error"})
	}))
	defer server.Close()

	parsedURL, _ := url.Parse(server.URL)
	n := &Notifier{
		client: gotify.NewClient(parsedURL, server.Client()),
		token:  "test-token",
		log:    zerolog.Nop(),
	}

	if err := n.Notify(events.NewCatalogReloadedEvent("data", 1)); err == nil {
		t.Error("expected error for server error response")
	}
}

func TestSendTest(t *testing.T) {
	var received *models.MessageExternal
	n := newTestNotifier(t, func(msg *models.MessageExternal) { received = msg })

	if err := n.SendTest(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if received == nil || received.Title == "" {
		t.Fatal("expected test message with a title")
	}
}

// Package gotify sends catalog notifications through Gotify using the
// official API client.
package gotify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gotify/go-api-client/v2/auth"
	"github.com/gotify/go-api-client/v2/client"
	"github.com/gotify/go-api-client/v2/client/message"
	"github.com/gotify/go-api-client/v2/gotify"
	"github.com/gotify/go-api-client/v2/models"
	"github.com/rs/zerolog"

	"tcg_catalog/config"
	"tcg_catalog/events"
)

// Priority levels for Gotify messages.
const (
	PriorityMin    = 0
	PriorityLow    = 2
	PriorityNormal = 5
	PriorityHigh   = 8
)

// Message is a formatted notification.
type Message struct {
	Title    string
	Message  string
	Priority int
}

// CardNamer resolves a card id to a display name. It returns "" for
// unknown cards.
type CardNamer func(cardID string) string

// Notifier implements notifiers.Notifier for Gotify.
type Notifier struct {
	client   *client.GotifyREST
	token    string
	hostname string
	cardName CardNamer
	log      zerolog.Logger
}

// New creates a Gotify notifier from configuration.
// Returns nil if Gotify is not configured or disabled.
func New(cfg *config.GotifyConfig, log zerolog.Logger) *Notifier {
	if cfg == nil || !cfg.IsValid() {
		return nil
	}
	log = log.With().Str("component", "gotify").Logger()

	hostname := strings.TrimSuffix(cfg.Hostname, "/")
	parsedURL, err := url.Parse(hostname)
	if err != nil {
		log.Error().Err(err).Str("hostname", hostname).Msg("Failed to parse Gotify URL")
		return nil
	}

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	return &Notifier{
		client:   gotify.NewClient(parsedURL, httpClient),
		token:    cfg.Token,
		hostname: hostname,
		log:      log,
	}
}

// SetCardNamer sets the lookup used to put card names in messages.
func (n *Notifier) SetCardNamer(namer CardNamer) {
	n.cardName = namer
}

// Name returns the notifier's name.
func (n *Notifier) Name() string {
	return "gotify"
}

// Notify sends a notification for the given event.
func (n *Notifier) Notify(event events.Event) error {
	msg := n.formatEvent(event)
	if msg == nil {
		return nil
	}
	return n.send(msg)
}

// formatEvent converts an event into a message, or nil for events that
// should not notify.
func (n *Notifier) formatEvent(event events.Event) *Message {
	switch e := event.(type) {
	case *events.CollectionChangedEvent:
		if e.Action != events.ActionWishlist || !e.Wishlisted {
			return nil
		}
		return n.formatWishlisted(e)
	case *events.CatalogReloadedEvent:
		return &Message{
			Title:    "Card catalog updated",
			Message:  fmt.Sprintf("%d file(s) changed in %s; the card index was reloaded.", e.Files, e.Path),
			Priority: PriorityLow,
		}
	default:
		return nil
	}
}

func (n *Notifier) formatWishlisted(e *events.CollectionChangedEvent) *Message {
	card := e.CardID
	if n.cardName != nil {
		if name := n.cardName(e.CardID); name != "" {
			card = fmt.Sprintf("%s (%s)", name, e.CardID)
		}
	}
	return &Message{
		Title:    "Added to wishlist",
		Message:  fmt.Sprintf("%s wishlisted %s", e.UserID, card),
		Priority: PriorityNormal,
	}
}

func (n *Notifier) send(msg *Message) error {
	params := message.NewCreateMessageParams()
	params.Body = &models.MessageExternal{
		Title:    msg.Title,
		Message:  msg.Message,
		Priority: msg.Priority,
	}

	if _, err := n.client.Message.CreateMessage(params, auth.TokenAuth(n.token)); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	n.log.Debug().Str("title", msg.Title).Msg("Notification sent")
	return nil
}

// Close releases resources held by the notifier.
func (n *Notifier) Close() error {
	return nil
}

// SendTest sends a test notification to verify connectivity.
func (n *Notifier) SendTest() error {
	return n.send(&Message{
		Title:    "TCG Catalog",
		Message:  "Test notification - Gotify is configured correctly!",
		Priority: PriorityNormal,
	})
}

// Package websocket pushes collection and catalog updates to connected
// browsers. Collection updates only reach the sockets of the user who owns
// the collection; catalog reloads go to everyone.
package websocket

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tcg_catalog/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests whose Origin host matches the Host header.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// MessageTypeCollectionUpdate is sent when a card in the user's collection changes.
	MessageTypeCollectionUpdate MessageType = "collection_update"
	// MessageTypeCatalogReloaded is sent when the card data was reloaded.
	MessageTypeCatalogReloaded MessageType = "catalog_reloaded"
)

// Message represents a WebSocket message sent to clients.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
	Payload   interface{} `json:"payload"`
}

// CollectionUpdatePayload is the state of one card after a collection change.
type CollectionUpdatePayload struct {
	CardID     string `json:"cardId"`
	Action     string `json:"action"`
	Owned      bool   `json:"owned"`
	Wishlisted bool   `json:"wishlisted"`
	Quantity   int    `json:"quantity"`
}

// CatalogReloadedPayload tells clients to refetch the card index.
type CatalogReloadedPayload struct {
	Files int `json:"files"`
}

// UserFunc identifies the user behind a websocket request. An empty result
// means the socket only receives public messages.
type UserFunc func(r *http.Request) string

// Client represents a connected WebSocket client.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// outgoing is a serialized message and its audience. An empty userID
// addresses every client.
type outgoing struct {
	userID string
	data   []byte
}

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outgoing
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	log        zerolog.Logger

	eventBus      *events.Bus
	subscriptions []*events.Subscription
}

// NewHub creates a new WebSocket hub.
func NewHub(eventBus *events.Bus, log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outgoing, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
		log:        log.With().Str("component", "websocket").Logger(),
		eventBus:   eventBus,
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	h.subscribeToEvents()

	h.wg.Add(1)
	go h.run()

	h.log.Info().Msg("WebSocket hub started")
}

// Stop gracefully shuts down the hub and closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	for _, sub := range h.subscriptions {
		sub.Unsubscribe()
	}
	h.subscriptions = nil

	close(h.stopCh)
	h.wg.Wait()

	h.log.Info().Msg("WebSocket hub stopped")
}

func (h *Hub) subscribeToEvents() {
	h.subscriptions = append(h.subscriptions,
		h.eventBus.Subscribe(events.CollectionChanged, func(e events.Event) {
			evt := e.(*events.CollectionChangedEvent)
			h.send(evt.UserID, Message{
				Type:      MessageTypeCollectionUpdate,
				Timestamp: evt.Timestamp().UnixMilli(),
				Payload: CollectionUpdatePayload{
					CardID:     evt.CardID,
					Action:     string(evt.Action),
					Owned:      evt.Owned,
					Wishlisted: evt.Wishlisted,
					Quantity:   evt.Quantity,
				},
			})
		}),
		h.eventBus.Subscribe(events.CatalogReloaded, func(e events.Event) {
			evt := e.(*events.CatalogReloadedEvent)
			h.send("", Message{
				Type:      MessageTypeCatalogReloaded,
				Timestamp: evt.Timestamp().UnixMilli(),
				Payload:   CatalogReloadedPayload{Files: evt.Files},
			})
		}),
	)
}

// send serializes a message and queues it for userID, or for everyone when
// userID is empty.
func (h *Hub) send(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal message")
		return
	}

	select {
	case h.broadcast <- outgoing{userID: userID, data: data}:
	default:
		h.log.Warn().Str("type", string(msg.Type)).Msg("Broadcast channel full, dropping message")
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("user", client.userID).Int("clients", clientCount).Msg("Client connected")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if msg.userID != "" && client.userID != msg.userID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	clientCount := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Str("user", client.userID).Int("clients", clientCount).Msg("Client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler returns an HTTP handler for WebSocket connections. identify may
// be nil, in which case every socket is anonymous.
func (h *Hub) Handler(identify UserFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if identify != nil {
			userID = identify(r)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug().Err(err).Msg("Upgrade failed")
			return
		}

		client := &Client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, 256),
			userID: userID,
		}

		select {
		case h.register <- client:
		case <-h.stopCh:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump reads from the connection to process pongs and detect close.
// Client messages are ignored.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopCh:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Msg("Read error")
			}
			return
		}
	}
}

// writePump writes queued messages, one frame each, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

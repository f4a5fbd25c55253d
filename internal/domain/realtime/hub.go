// Package realtime pushes booking events to connected websocket clients.
// Customers receive updates for their own bookings; business owners join the
// room of their business and receive every booking change there.
package realtime

import (
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/slotbook/slotbook-api/internal/domain/events"
)

// Redis channels shared by every API instance
const (
	businessChannelPrefix = "booking:business:"
	userEventsChannel     = "booking:user_events"
)

var (
	wsConnectionsGauge   = expvar.NewInt("booking_ws_connections")
	wsEventsSentTotal    = expvar.NewInt("booking_ws_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("booking_ws_events_dropped_total")
)

// Message is what a websocket client receives
type Message struct {
	Type       events.Type   `json:"type"`
	BusinessID uuid.UUID     `json:"business_id"`
	Booking    *events.Event `json:"booking"`
}

func newMessage(e events.Event) *Message {
	return &Message{Type: e.Type, BusinessID: e.BusinessID, Booking: &e}
}

type userEnvelope struct {
	UserID           string          `json:"user_id"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

type businessEnvelope struct {
	CustomerID       string          `json:"customer_id"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Connection is one websocket client
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub tracks local connections and fans events out across instances through
// Redis Pub/Sub. Without Redis it delivers to local clients only.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool
	// business ID -> connections on this instance watching it
	rooms map[uuid.UUID]map[*Connection]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

// NewHub creates a hub. redisClient may be nil.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		rooms:       make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, businessChannelPrefix+"*", userEventsChannel)
	}
	return h
}

// NewRelay creates a publish-only hub for processes without websocket
// clients, such as the completion worker. Deliver forwards events to the API
// instances over Redis; nothing is subscribed and Run is not needed.
func NewRelay(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		rooms:       make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
}

// Run processes registrations until Shutdown (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)
			log.Debug().Str("user_id", conn.UserID.String()).Msg("User connected to booking stream")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.UserID)
				}
			}
			for businessID, watchers := range h.rooms {
				delete(watchers, conn)
				if len(watchers) == 0 {
					delete(h.rooms, businessID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("User disconnected from booking stream")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case strings.HasPrefix(msg.Channel, businessChannelPrefix):
				h.handleBusinessPayload(strings.TrimPrefix(msg.Channel, businessChannelPrefix), msg.Payload)
			case msg.Channel == userEventsChannel:
				h.handleUserPayload(msg.Payload)
			}
		}
	}
}

func (h *Hub) handleBusinessPayload(rawID, payload string) {
	businessID, err := uuid.Parse(rawID)
	if err != nil {
		return
	}
	var env businessEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.SenderInstanceID == h.instanceID {
		return
	}
	// The customer gets its copy through the user channel.
	customerID, _ := uuid.Parse(env.CustomerID)
	h.broadcastLocal(businessID, env.Payload, customerID)
}

func (h *Hub) handleUserPayload(payload string) {
	var env userEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.SenderInstanceID == h.instanceID {
		return
	}
	userID, err := uuid.Parse(env.UserID)
	if err != nil {
		return
	}
	h.sendLocal(userID, env.Payload)
}

// Register adds a connection. It returns false when the hub is shutting down.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a connection and closes its Send channel
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// JoinBusiness subscribes one connection to the booking stream of a business
func (h *Hub) JoinBusiness(businessID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[businessID] == nil {
		h.rooms[businessID] = make(map[*Connection]bool)
	}
	h.rooms[businessID][conn] = true
}

// LeaveBusiness removes the subscription of one connection. Other
// connections of the same user keep theirs.
func (h *Hub) LeaveBusiness(businessID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if watchers := h.rooms[businessID]; watchers != nil {
		delete(watchers, conn)
		if len(watchers) == 0 {
			delete(h.rooms, businessID)
		}
	}
}

// Deliver pushes a booking event to the customer who owns the booking and to
// everyone watching the business. It has the signature events.Forward expects.
func (h *Hub) Deliver(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(newMessage(e))
	if err != nil {
		return err
	}

	h.sendLocal(e.CustomerID, data)
	h.broadcastLocal(e.BusinessID, data, e.CustomerID)

	if h.redis == nil {
		return nil
	}

	userPayload, err := json.Marshal(userEnvelope{UserID: e.CustomerID.String(), Payload: data, SenderInstanceID: h.instanceID})
	if err != nil {
		return err
	}
	if err := h.redis.Publish(ctx, userEventsChannel, userPayload).Err(); err != nil {
		return err
	}

	businessPayload, err := json.Marshal(businessEnvelope{CustomerID: e.CustomerID.String(), Payload: data, SenderInstanceID: h.instanceID})
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, businessChannelPrefix+e.BusinessID.String(), businessPayload).Err()
}

// broadcastLocal sends to every connection watching the business except
// those of skipUser, who is served by sendLocal.
func (h *Hub) broadcastLocal(businessID uuid.UUID, data []byte, skipUser uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.rooms[businessID] {
		if conn.UserID == skipUser {
			continue
		}
		enqueue(conn, data)
	}
}

func (h *Hub) sendLocal(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.connections[userID] {
		enqueue(conn, data)
	}
}

// enqueue must be called with h.mu held so Send cannot be closed underneath
func enqueue(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
		wsEventsSentTotal.Add(1)
	default:
		wsEventsDroppedTotal.Add(1)
		log.Warn().Str("user_id", conn.UserID.String()).Msg("WebSocket send buffer full")
	}
}

// ConnectionCount returns the number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// IsWatching reports whether any local connection of the user watches the business
func (h *Hub) IsWatching(businessID, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.rooms[businessID] {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}

// Shutdown stops the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}

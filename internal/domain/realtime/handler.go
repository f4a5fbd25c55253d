package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/slotbook/slotbook-api/internal/domain/catalog"
	"github.com/slotbook/slotbook-api/internal/middleware"
	"github.com/slotbook/slotbook-api/internal/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Businesses resolves business ownership for room subscriptions
type Businesses interface {
	Business(ctx context.Context, id uuid.UUID) (*catalog.Business, error)
}

// Handler serves the booking event stream
type Handler struct {
	hub        *Hub
	businesses Businesses
	upgrader   websocket.Upgrader
}

// NewHandler creates the websocket handler. An empty allowedOrigins accepts
// any origin.
func NewHandler(hub *Hub, businesses Businesses, allowedOrigins []string) *Handler {
	return &Handler{
		hub:        hub,
		businesses: businesses,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowedOrigins) == 0 || origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// clientCommand is what a client may send after connecting
type clientCommand struct {
	Type       string    `json:"type"`
	BusinessID uuid.UUID `json:"business_id"`
}

// WebSocket handles GET /ws[?business_id=...]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var watch []uuid.UUID
	for _, raw := range r.URL.Query()["business_id"] {
		businessID, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid business ID")
			return
		}
		if err := h.authorizeOwner(r.Context(), userID, businessID); err != nil {
			writeOwnerError(w, err)
			return
		}
		watch = append(watch, businessID)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Connection{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 64),
	}
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	for _, businessID := range watch {
		h.hub.JoinBusiness(businessID, client)
	}

	go h.wsReader(client)
	go h.wsWriter(client)
}

func (h *Handler) authorizeOwner(ctx context.Context, userID, businessID uuid.UUID) error {
	b, err := h.businesses.Business(ctx, businessID)
	if err != nil {
		return err
	}
	if !b.IsOwnedBy(userID) {
		return catalog.ErrNotOwner
	}
	return nil
}

func writeOwnerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrBusinessNotFound):
		response.NotFound(w, "Business not found")
	case errors.Is(err, catalog.ErrNotOwner):
		response.Forbidden(w, err.Error())
	default:
		log.Error().Err(err).Msg("Failed to check business owner")
		response.InternalError(w)
	}
}

func (h *Handler) wsReader(client *Connection) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", client.UserID.String()).Msg("WebSocket read error")
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "watch":
			if err := h.authorizeOwner(context.Background(), client.UserID, cmd.BusinessID); err != nil {
				log.Warn().Err(err).Str("user_id", client.UserID.String()).Str("business_id", cmd.BusinessID.String()).Msg("Watch rejected")
				continue
			}
			h.hub.JoinBusiness(cmd.BusinessID, client)
		case "unwatch":
			h.hub.LeaveBusiness(cmd.BusinessID, client)
		}
	}
}

func (h *Handler) wsWriter(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

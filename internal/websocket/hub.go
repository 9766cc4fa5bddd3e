package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/logger"
	"hrms/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients authenticate with the token query parameter, not cookies
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the frame pushed to subscribers
type Event struct {
	Type      string    `json:"type"`
	CompanyID uuid.UUID `json:"companyId"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type outbound struct {
	companyID uuid.UUID
	message   []byte
}

// Client represents a single connected WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// nil for super-admins, who receive every company's events
	companyID *uuid.UUID
}

// Hub tracks connected clients and fans out company events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan outbound, sendBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// Run dispatches hub traffic until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
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
			h.mu.Unlock()
			logger.Get().WithField("company", client.companyID).Debug("websocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logger.Get().Debug("websocket client disconnected")
			}
			h.mu.Unlock()
		case out := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.companyID != nil && *client.companyID != out.companyID {
					continue
				}
				select {
				case client.send <- out.message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount reports how many clients are currently registered
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues an event for the company's subscribers. It never blocks the caller;
// events are dropped when the hub is saturated.
func (h *Hub) Publish(companyID uuid.UUID, eventType string, payload any) {
	message, err := json.Marshal(Event{
		Type:      eventType,
		CompanyID: companyID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger.LogError("websocket", "Publish", eventType, companyID, err)
		return
	}

	select {
	case h.broadcast <- outbound{companyID: companyID, message: message}:
	default:
		logger.Get().WithFields(logrus.Fields{
			"type":    eventType,
			"company": companyID,
		}).Warn("websocket hub saturated, event dropped")
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Get().WithError(err).Warn("websocket read failed")
			}
			return
		}
	}
}

// ServeWs upgrades callers holding a reconciliation role, authenticated with ?token=
func ServeWs(hub *Hub, tokens *auth.TokenService, engine *authz.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			_ = c.Error(apperror.Unauthorized("Authorization is missing"))
			c.Abort()
			return
		}
		claims, err := tokens.VerifyAccess(tokenString)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if d := engine.CheckRole(claims, model.RoleAdmin, model.RoleFinance, model.RoleAccounts); !d.Allowed {
			_ = c.Error(d.Err)
			c.Abort()
			return
		}
		if !claims.IsSuperAdmin && claims.CompanyID == nil {
			_ = c.Error(authz.ErrCompanyRequired)
			c.Abort()
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Get().WithError(err).Warn("websocket upgrade failed")
			return
		}
		client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBufferSize)}
		if !claims.IsSuperAdmin {
			client.companyID = claims.CompanyID
		}
		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

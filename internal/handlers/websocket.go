package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/webrtc-collab/config"
	"github.com/mossy-p/webrtc-collab/internal/middleware"
	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/mossy-p/webrtc-collab/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client represents a WebSocket client connection. It is the room.Conn the
// coordinator talks to.
type Client struct {
	ref    string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

func newClient(conn *websocket.Conn, userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ref:    uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.ref }
func (c *Client) UserID() string { return c.userID }

// Send queues env for the write pump without blocking. It reports false
// when the connection is closed or its buffer is full.
func (c *Client) Send(env models.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return false
	}
	return c.SendEncoded(data)
}

// SendEncoded queues an already encoded envelope. data is shared with
// other recipients and must not be modified.
func (c *Client) SendEncoded(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		log.Printf("Failed to send message to peer %s, buffer full", c.ref)
		return false
	}
}

// SignalingHandler upgrades authenticated requests and runs one client per connection
type SignalingHandler struct {
	coord   *room.Coordinator
	cfg     config.ConnConfig
	metrics *HTTPMetrics
}

func NewSignalingHandler(coord *room.Coordinator, cfg config.ConnConfig, metrics *HTTPMetrics) *SignalingHandler {
	return &SignalingHandler{coord: coord, cfg: cfg, metrics: metrics}
}

// HandleSignaling handles WebSocket connections for signaling and the
// whiteboard. Must run behind middleware.JWTAuth.
func (h *SignalingHandler) HandleSignaling(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := newClient(conn, userID, h.cfg.SendBuffer)
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	h.metrics.connectionOpened()
	log.Printf("Peer %s connected as user %s", client.ref, userID)

	hello, _ := models.NewEnvelope(models.EventConnected, "", models.ConnectedPayload{
		Ref:    client.ref,
		UserID: userID,
	})
	client.Send(hello)

	go client.writePump()
	go h.readPump(client)
}

// readPump dispatches inbound envelopes in arrival order. Its exit is the
// single point where a closed connection is cleaned up.
func (h *SignalingHandler) readPump(c *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.coord.Disconnect(c)
		close(c.done)
		c.conn.Close()
		h.metrics.connectionClosed()
		log.Printf("Peer %s disconnected", c.ref)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Failed to parse message from peer %s: %v", c.ref, err)
			continue
		}
		h.dispatch(ctx, c, env)
	}
}

func (h *SignalingHandler) dispatch(ctx context.Context, c *Client, env models.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling %s from peer %s: %v\n%s", env.Type, c.ref, r, debug.Stack())
			c.Send(models.ErrorEnvelope(env.RoomID, "internal error"))
		}
	}()
	h.coord.Dispatch(ctx, c, env)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

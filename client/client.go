// Package client is a Go client for the collaboration server's websocket
// protocol, used by bots and integration tests.
//
// The server only relays WebRTC negotiation; it never creates peer
// connections. Peers form a full mesh and the newcomer drives it: after a
// successful Join the joining client sends an Offer to every ref in the
// participants list it receives, and existing members only Answer. This
// way each pair negotiates exactly once.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mossy-p/webrtc-collab/internal/models"
)

// Re-exported wire types so callers outside this module can use them.
type (
	Envelope        = models.Envelope
	EventType       = models.EventType
	Stroke          = models.Stroke
	FileMeta        = models.FileMeta
	ParticipantInfo = models.ParticipantInfo
)

var (
	ErrClosed      = errors.New("client: connection closed")
	ErrNoHandshake = errors.New("client: server did not send connected")
)

// Config controls dialing and per-frame timeouts. Zero disables a timeout.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// DefaultConfig returns timeouts suitable for interactive use
func DefaultConfig(wsURL, token string) Config {
	return Config{
		URL:              wsURL,
		Token:            token,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Client is one participant connection. Writes may be issued from any
// goroutine; Next must be called from a single reader.
type Client struct {
	cfg    Config
	ws     *websocket.Conn
	ref    string
	userID string
}

// Dial connects to the server, authenticating with cfg.Token, and waits
// for the connected event that carries the client's ref.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: empty URL")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	if cfg.Token != "" {
		q := u.Query()
		q.Set("token", cfg.Token)
		u.RawQuery = q.Encode()
	}

	dialCtx := ctx
	if cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	c := &Client{cfg: cfg, ws: ws}
	var hello models.Envelope
	if err := wsjson.Read(dialCtx, ws, &hello); err != nil {
		ws.Close(websocket.StatusInternalError, "handshake error")
		return nil, fmt.Errorf("client: read handshake: %w", err)
	}
	var connected models.ConnectedPayload
	if hello.Type != models.EventConnected || hello.Decode(&connected) != nil || connected.Ref == "" {
		ws.Close(websocket.StatusProtocolError, "unexpected handshake")
		return nil, ErrNoHandshake
	}
	c.ref = connected.Ref
	c.userID = connected.UserID
	return c, nil
}

// Ref is the server-assigned id other participants address signals to
func (c *Client) Ref() string { return c.ref }

// UserID is the authenticated user the server attached to this connection
func (c *Client) UserID() string { return c.userID }

func (c *Client) write(ctx context.Context, env models.Envelope) error {
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		return fmt.Errorf("client: write %s: %w", env.Type, err)
	}
	return nil
}

// Send writes env as is. The typed helpers below cover the protocol events.
func (c *Client) Send(ctx context.Context, env models.Envelope) error {
	return c.write(ctx, env)
}

func (c *Client) emit(ctx context.Context, t models.EventType, roomID string, payload any) error {
	env, err := models.NewEnvelope(t, roomID, payload)
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", t, err)
	}
	return c.write(ctx, env)
}

// Join enters roomID under userName. The server answers with participants.
func (c *Client) Join(ctx context.Context, roomID, userName string) error {
	return c.emit(ctx, models.EventJoinRoom, roomID, models.JoinPayload{UserID: c.userID, UserName: userName})
}

func (c *Client) Leave(ctx context.Context, roomID string) error {
	return c.emit(ctx, models.EventLeaveRoom, roomID, nil)
}

// Signal sends a negotiation message to the participant with ref to.
// payload is forwarded to the target unchanged.
func (c *Client) Signal(ctx context.Context, t models.EventType, to string, payload any) error {
	if !t.IsSignal() {
		return fmt.Errorf("client: %s is not a signaling event", t)
	}
	env, err := models.NewEnvelope(t, "", payload)
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", t, err)
	}
	env.To = to
	return c.write(ctx, env)
}

func (c *Client) Offer(ctx context.Context, to string, sdp any) error {
	return c.Signal(ctx, models.EventOffer, to, sdp)
}

func (c *Client) Answer(ctx context.Context, to string, sdp any) error {
	return c.Signal(ctx, models.EventAnswer, to, sdp)
}

func (c *Client) Candidate(ctx context.Context, to string, candidate any) error {
	return c.Signal(ctx, models.EventCandidate, to, candidate)
}

func (c *Client) Draw(ctx context.Context, roomID string, stroke models.Stroke) error {
	return c.emit(ctx, models.EventDraw, roomID, models.DrawPayload{Stroke: stroke})
}

// LoadWhiteboard asks for the room's stroke log. The reply arrives as a
// load-whiteboard event; see Strokes.
func (c *Client) LoadWhiteboard(ctx context.Context, roomID string) error {
	return c.emit(ctx, models.EventLoadWhiteboard, roomID, nil)
}

func (c *Client) ClearWhiteboard(ctx context.Context, roomID string) error {
	return c.emit(ctx, models.EventClearWhiteboard, roomID, nil)
}

func (c *Client) FileUploaded(ctx context.Context, roomID string, file models.FileMeta) error {
	return c.emit(ctx, models.EventFileUploaded, roomID, models.FilePayload{File: file})
}

// Next blocks for the next envelope from the server
func (c *Client) Next(ctx context.Context) (models.Envelope, error) {
	if c.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()
	}

	var env models.Envelope
	if err := wsjson.Read(ctx, c.ws, &env); err != nil {
		if isClosed(err) {
			return models.Envelope{}, ErrClosed
		}
		return models.Envelope{}, err
	}
	return env, nil
}

// WaitFor reads until an envelope of type t arrives, discarding others
func (c *Client) WaitFor(ctx context.Context, t models.EventType) (models.Envelope, error) {
	for {
		env, err := c.Next(ctx)
		if err != nil {
			return models.Envelope{}, err
		}
		if env.Type == t {
			return env, nil
		}
	}
}

func (c *Client) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "client close")
}

// Participants decodes the payload of a participants event
func Participants(env models.Envelope) ([]models.ParticipantInfo, error) {
	var list models.ParticipantsPayload
	if err := env.Decode(&list); err != nil {
		return nil, err
	}
	return list.Participants, nil
}

// Strokes decodes the payload of a load-whiteboard event
func Strokes(env models.Envelope) ([]models.Stroke, error) {
	var payload models.StrokesPayload
	if err := env.Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Strokes, nil
}

func isClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}

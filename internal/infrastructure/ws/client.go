// Package ws implements the real-time transport over websockets.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/application/connection"
	"github.com/scribemarket/scribemarket/internal/events"
)

// Dialer establishes websocket transports authenticated with the session's
// bearer token.
type Dialer struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	logger           zerolog.Logger
}

// NewDialer creates a websocket dialer for the given endpoint.
func NewDialer(url, token string, handshakeTimeout time.Duration, logger zerolog.Logger) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Dialer{
		URL:              url,
		Token:            token,
		HandshakeTimeout: handshakeTimeout,
		logger:           logger.With().Str("service", "ws").Logger(),
	}
}

// Dial connects and identifies the connection to the server.
func (d *Dialer) Dial(ctx context.Context, identityID string) (connection.Transport, error) {
	wsDialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.Token)

	conn, resp, err := wsDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", d.URL, err)
	}

	c := &Client{conn: conn, logger: d.logger}
	if err := c.identify(identityID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

type identifyPayload struct {
	IdentityID string `json:"identityId"`
}

type joinPayload struct {
	Room string `json:"room"`
}

// Client is one live websocket connection. Reads happen from a single
// goroutine (the manager's read loop); writes are serialized with a mutex.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  zerolog.Logger
}

func (c *Client) identify(identityID string) error {
	return c.write("identify", identifyPayload{IdentityID: identityID})
}

// ReadEvent blocks for the next inbound envelope.
func (c *Client) ReadEvent() (events.Envelope, error) {
	var env events.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return events.Envelope{}, fmt.Errorf("reading event: %w", err)
	}
	return env, nil
}

// Join subscribes this connection to a room.
func (c *Client) Join(ctx context.Context, roomID string) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(deadline)
		c.writeMu.Unlock()
	}
	return c.write("join", joinPayload{Room: roomID})
}

// Close performs a client-initiated graceful close.
func (c *Client) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(event string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

package signal

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
)

// ClientConn is the dialing side of the signaling transport: one
// WebSocket per call id, carried as the roomId query parameter.
// Sends are fire-and-forget; there is no retry or ack.
type ClientConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

// Dial connects to the signaling endpoint of serverURL for callID.
// http/https schemes are rewritten to ws/wss.
func Dial(ctx context.Context, serverURL string, callID domain.CallID) (*ClientConn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, errors.New("unsupported scheme: " + u.Scheme)
	}
	u.Path = "/api/ws/signal"
	q := u.Query()
	q.Set("roomId", string(callID))
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &ClientConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	go c.writeLoop()
	return c, nil
}

func (c *ClientConn) Send(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *ClientConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *ClientConn) writeLoop() {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("client write error")
			return
		}
	}
}

// Run delivers inbound frames to handle until the socket closes, then
// returns. The caller treats return as transport loss.
func (c *ClientConn) Run(ctx context.Context, handle func(core.Frame)) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			handle(core.Frame(data))
		}
	}
}

package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/app"
	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Registry  *app.Registry
	ReadLimit int64
}

func NewController(reg *app.Registry, readLimit int64) *Controller {
	return &Controller{Registry: reg, ReadLimit: readLimit}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
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

// Close marks the conn closed and seals the send channel. The write
// pump drains whatever is already queued, then closes the underlying
// socket; frames queued before Close still reach the wire.
func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades one signaling connection and binds it to the
// room named by the roomId query parameter for the connection's
// lifetime. Membership is keyed per connection, not per browser: the
// same client opening a second tab is a distinct member.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	callID, err := domain.ParseCallID(c.Query("roomId"))
	if err != nil {
		c.String(http.StatusBadRequest, "missing roomId")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	mid := domain.MemberID(uuid.NewString())
	log.Info().Str("module", "signal").Str("call", string(callID)).Str("member", string(mid)).Str("sid", c.GetString("client_token")).Msg("new WS connection")

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	if err := ctl.Registry.Join(callID, mid, conn); err != nil {
		// The room-full frame is already queued; sealing the send
		// channel lets the write pump flush it before tearing down.
		conn.Close()
		return
	}

	go ctl.readPump(ctx, mid, conn, cancel)
}

package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump reads frames until the transport dies, then removes the
// member from its room. An abrupt close and an orderly one take the
// same path: the registry's Leave is what turns either into peer-left.
func (ctl *Controller) readPump(ctx context.Context, mid domain.MemberID, c *wsSignalConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("member", string(mid)).Msg("readPump closing")
		cancel()
		ctl.Registry.Leave(mid)
		c.Close()
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleFrame(mid, data)
		}
	}
}

// handleFrame dispatches one inbound frame. Malformed or unknown frames
// are dropped without any error surfaced to the sender.
func (ctl *Controller) handleFrame(mid domain.MemberID, data []byte) {
	kind, err := protocol.PeekKind(data)
	if err != nil {
		log.Debug().Str("module", "signal").Str("member", string(mid)).Msg("dropped malformed frame")
		return
	}

	switch kind {
	case protocol.KindOffer, protocol.KindAnswer, protocol.KindCandidate:
		ctl.Registry.Relay(mid, core.Frame(data))
	case protocol.KindEndCall:
		ctl.Registry.EndCall(mid)
	default:
		log.Warn().Str("module", "signal").Str("kind", string(kind)).Msg("unexpected signal kind")
	}
}

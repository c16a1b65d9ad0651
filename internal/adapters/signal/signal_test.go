package signal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duocall/duocall/internal/adapters/signal"
	"github.com/duocall/duocall/internal/app"
	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctl := signal.NewController(app.NewRegistry(), 1<<20)
	r := gin.New()
	r.GET("/api/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(context.Background(), c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	conn   *signal.ClientConn
	frames chan core.Frame
}

func dialClient(t *testing.T, serverURL string, callID domain.CallID) *client {
	t.Helper()
	conn, err := signal.Dial(context.Background(), serverURL, callID)
	require.NoError(t, err)
	c := &client{conn: conn, frames: make(chan core.Frame, 64)}
	go conn.Run(context.Background(), func(f core.Frame) {
		c.frames <- f
	})
	t.Cleanup(conn.Close)
	return c
}

func (c *client) next(t *testing.T) core.Frame {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (c *client) nextEnvelope(t *testing.T) protocol.Envelope {
	t.Helper()
	env, err := protocol.Decode(c.next(t))
	require.NoError(t, err)
	return env
}

func (c *client) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f := <-c.frames:
		t.Fatalf("unexpected frame: %s", f)
	case <-time.After(d):
	}
}

// pairUp joins two clients to the same room and consumes the occupancy
// frames both sides see on the way in.
func pairUp(t *testing.T, serverURL string, callID domain.CallID) (*client, *client) {
	t.Helper()
	a := dialClient(t, serverURL, callID)
	env := a.nextEnvelope(t)
	require.Equal(t, protocol.KindRoomStatus, env.Type)
	require.Equal(t, 1, env.Peers)

	b := dialClient(t, serverURL, callID)
	for _, c := range []*client{a, b} {
		env := c.nextEnvelope(t)
		require.Equal(t, protocol.KindRoomStatus, env.Type)
		require.Equal(t, 2, env.Peers)
	}
	return a, b
}

func TestRoomStatusSequence(t *testing.T) {
	srv := newTestServer(t)
	pairUp(t, srv.URL, "room-a")
}

func TestRelayExcludesSender(t *testing.T) {
	srv := newTestServer(t)
	a, b := pairUp(t, srv.URL, "room-a")

	offer := protocol.OfferFrame(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"})
	require.NoError(t, a.conn.Send(core.Frame(offer)))

	// Delivered verbatim to the peer, never echoed to the sender.
	got := b.next(t)
	assert.Equal(t, string(offer), string(got))
	a.quiet(t, 100*time.Millisecond)
}

func TestSeparateRoomsDoNotCross(t *testing.T) {
	srv := newTestServer(t)
	a, _ := pairUp(t, srv.URL, "room-a")
	c, _ := pairUp(t, srv.URL, "room-b")

	require.NoError(t, a.conn.Send(core.Frame(protocol.CandidateFrame(webrtc.ICECandidateInit{Candidate: "cand"}))))
	c.quiet(t, 100*time.Millisecond)
}

func TestThirdConnectionRefused(t *testing.T) {
	srv := newTestServer(t)
	a, b := pairUp(t, srv.URL, "room-a")

	late := dialClient(t, srv.URL, "room-a")
	env := late.nextEnvelope(t)
	assert.Equal(t, protocol.KindRoomFull, env.Type)

	// The pair never learns about the refused connection.
	a.quiet(t, 100*time.Millisecond)
	b.quiet(t, 100*time.Millisecond)
}

func TestEndCallTranslated(t *testing.T) {
	srv := newTestServer(t)
	a, b := pairUp(t, srv.URL, "room-a")

	require.NoError(t, a.conn.Send(core.Frame(protocol.Control(protocol.KindEndCall))))

	env := b.nextEnvelope(t)
	assert.Equal(t, protocol.KindCallEnded, env.Type)
	a.quiet(t, 100*time.Millisecond)
}

func TestDisconnectBroadcastsPeerLeft(t *testing.T) {
	srv := newTestServer(t)
	a, b := pairUp(t, srv.URL, "room-a")

	b.conn.Close()

	env := a.nextEnvelope(t)
	assert.Equal(t, protocol.KindPeerLeft, env.Type)
}

func TestRejoinAfterDisconnect(t *testing.T) {
	srv := newTestServer(t)
	a, b := pairUp(t, srv.URL, "room-a")

	b.conn.Close()
	env := a.nextEnvelope(t)
	require.Equal(t, protocol.KindPeerLeft, env.Type)

	// A fresh connection takes the freed slot and both sides see the
	// room fill again.
	c := dialClient(t, srv.URL, "room-a")
	for _, cl := range []*client{a, c} {
		env := cl.nextEnvelope(t)
		require.Equal(t, protocol.KindRoomStatus, env.Type)
		require.Equal(t, 2, env.Peers)
	}
}

func TestMalformedFrameDroppedConnectionSurvives(t *testing.T) {
	srv := newTestServer(t)
	a, b := pairUp(t, srv.URL, "room-a")

	require.NoError(t, a.conn.Send(core.Frame("{broken")))
	require.NoError(t, a.conn.Send(core.Frame(protocol.Control(protocol.KindPeerLeft))))

	offer := protocol.OfferFrame(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "still-alive"})
	require.NoError(t, a.conn.Send(core.Frame(offer)))

	// Only the relayable frame arrives; the garbage and the
	// server-originated kind were dropped without killing the socket.
	got := b.nextEnvelope(t)
	assert.Equal(t, protocol.KindOffer, got.Type)
	require.NotNil(t, got.Offer)
	assert.Equal(t, "still-alive", got.Offer.SDP)
}

func TestMissingRoomIDRejected(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/ws/signal")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDialRejectsUnknownScheme(t *testing.T) {
	_, err := signal.Dial(context.Background(), "ftp://example.com", "room-a")
	assert.Error(t, err)
}

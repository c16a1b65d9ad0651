package app

import (
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) kinds(t *testing.T) []protocol.Kind {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Kind, 0, len(c.frames))
	for _, f := range c.frames {
		kind, err := protocol.PeekKind([]byte(f))
		require.NoError(t, err)
		out = append(out, kind)
	}
	return out
}

func (c *fakeConn) count(t *testing.T, kind protocol.Kind) int {
	t.Helper()
	n := 0
	for _, k := range c.kinds(t) {
		if k == kind {
			n++
		}
	}
	return n
}

func (c *fakeConn) lastStatusPeers(t *testing.T) int {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := -1
	for _, f := range c.frames {
		env, err := protocol.Decode([]byte(f))
		require.NoError(t, err)
		if env.Type == protocol.KindRoomStatus {
			peers = env.Peers
		}
	}
	return peers
}

func TestJoinBroadcastsOccupancy(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}

	require.NoError(t, reg.Join("abc", "a", a))
	assert.Equal(t, 1, a.lastStatusPeers(t))

	require.NoError(t, reg.Join("abc", "b", b))
	assert.Equal(t, 2, a.lastStatusPeers(t))
	assert.Equal(t, 2, b.lastStatusPeers(t))
	assert.Equal(t, 2, reg.MemberCount("abc"))
}

func TestThirdJoinRefused(t *testing.T) {
	reg := NewRegistry()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	err := reg.Join("abc", "c", c)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 1, c.count(t, protocol.KindRoomFull))
	assert.Equal(t, 2, reg.MemberCount("abc"))

	// Admitted members see nothing about the refused join.
	assert.Equal(t, 2, a.lastStatusPeers(t))
	assert.Equal(t, 2, b.lastStatusPeers(t))
}

func TestOccupancyNeverExceedsTwo(t *testing.T) {
	reg := NewRegistry()
	conns := []*fakeConn{{}, {}, {}, {}}
	ids := []string{"m0", "m1", "m2", "m3"}

	for i, c := range conns {
		_ = reg.Join("abc", domain.MemberID(ids[i]), c)
	}
	reg.Leave("m0")
	_ = reg.Join("abc", "m2", conns[2])

	for _, c := range conns {
		c.mu.Lock()
		for _, f := range c.frames {
			env, err := protocol.Decode([]byte(f))
			require.NoError(t, err)
			if env.Type == protocol.KindRoomStatus {
				assert.LessOrEqual(t, env.Peers, MaxRoomMembers)
			}
		}
		c.mu.Unlock()
	}
}

func TestRelayExcludesSender(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	frame := protocol.OfferFrame(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"})
	reg.Relay("a", frame)

	assert.Equal(t, 1, b.count(t, protocol.KindOffer))
	assert.Equal(t, 0, a.count(t, protocol.KindOffer))

	// Relayed payloads pass through byte-identical.
	b.mu.Lock()
	assert.Equal(t, core.Frame(frame), b.frames[len(b.frames)-1])
	b.mu.Unlock()
}

func TestRelayGateDropsOtherKinds(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	reg.Relay("a", protocol.Control(protocol.KindEndCall))
	reg.Relay("a", core.Frame("{broken"))

	assert.Equal(t, 0, b.count(t, protocol.KindEndCall))
	assert.Equal(t, 0, b.count(t, protocol.KindCallEnded))
}

func TestEndCallTranslated(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	reg.EndCall("a")

	assert.Equal(t, 1, b.count(t, protocol.KindCallEnded))
	assert.Equal(t, 0, a.count(t, protocol.KindCallEnded))
}

func TestLeaveBroadcastsPeerLeft(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	reg.Leave("b")
	assert.Equal(t, 1, a.count(t, protocol.KindPeerLeft))
	assert.Equal(t, 1, reg.MemberCount("abc"))

	// Empty room is discarded.
	reg.Leave("a")
	assert.Equal(t, 0, reg.RoomCount())
}

func TestLeaveIdempotent(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	reg.Leave("b")
	reg.Leave("b")
	assert.Equal(t, 1, a.count(t, protocol.KindPeerLeft))
}

func TestRejoinAfterLeave(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Join("abc", "a", a))
	require.NoError(t, reg.Join("abc", "b", b))

	reg.Leave("b")
	b2 := &fakeConn{}
	require.NoError(t, reg.Join("abc", "b2", b2))

	assert.Equal(t, 2, a.lastStatusPeers(t))
	assert.Equal(t, 2, b2.lastStatusPeers(t))
}

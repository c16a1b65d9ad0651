package protocol

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoomStatus(t *testing.T) {
	env, err := Decode(RoomStatus(2))
	require.NoError(t, err)
	assert.Equal(t, KindRoomStatus, env.Type)
	assert.Equal(t, 2, env.Peers)
}

func TestDecodeOfferRoundTrip(t *testing.T) {
	sd := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	env, err := Decode(OfferFrame(sd))
	require.NoError(t, err)
	require.NotNil(t, env.Offer)
	assert.Equal(t, sd.SDP, env.Offer.SDP)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"renegotiate"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRelayableGate(t *testing.T) {
	assert.True(t, KindOffer.Relayable())
	assert.True(t, KindAnswer.Relayable())
	assert.True(t, KindCandidate.Relayable())

	assert.False(t, KindEndCall.Relayable())
	assert.False(t, KindRoomStatus.Relayable())
	assert.False(t, KindCallEnded.Relayable())
	assert.False(t, KindPeerLeft.Relayable())
}

func TestPeekKind(t *testing.T) {
	ci := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host"}
	kind, err := PeekKind(CandidateFrame(ci))
	require.NoError(t, err)
	assert.Equal(t, KindCandidate, kind)
}

func TestDecodeAuxMuteNotice(t *testing.T) {
	n, ok := DecodeAux(EncodeMute(true))
	require.True(t, ok)
	assert.True(t, n.Muted)
}

func TestDecodeAuxChatText(t *testing.T) {
	_, ok := DecodeAux([]byte("hi"))
	assert.False(t, ok)

	// JSON that is not a mute notice is still chat.
	_, ok = DecodeAux([]byte(`{"type":"weather","muted":true}`))
	assert.False(t, ok)
}

package core

import "github.com/pion/webrtc/v4"

// Frame is one raw signaling payload (JSON text).
type Frame []byte

// SignalConn abstracts a signaling transport endpoint.
// Owned by the adapter; the adapter must Close() it. TrySend never
// blocks: a full send buffer is a dropped frame, not a stalled room.
type SignalConn interface {
	TrySend(Frame) error
	Close()
}

// AuxChannel is the data channel carried by an established peer
// transport. Sends are fire-and-forget; there is no delivery queue.
type AuxChannel interface {
	Send(data []byte) error
	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(data []byte))
	Close() error
}

// PeerTransport is the direct media+data connection driven by the
// negotiation engine. The concrete implementation wraps a pion
// PeerConnection; tests substitute a fake.
//
// Description ordering is the caller's job: AddICECandidate must not be
// called before a remote description has been applied via AcceptOffer
// or AcceptAnswer.
type PeerTransport interface {
	// CreateOffer builds and applies the local description, returning
	// the offer to transmit.
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer applies the remote offer, then builds and applies the
	// local answer, returning it for transmission.
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// AcceptAnswer applies the remote answer on the offering side.
	AcceptAnswer(answer webrtc.SessionDescription) error

	AddICECandidate(ci webrtc.ICECandidateInit) error
	AddLocalTrack(track webrtc.TrackLocal) error

	// CreateAuxChannel opens the auxiliary channel (initiator side).
	CreateAuxChannel() (AuxChannel, error)
	// OnAuxChannel arms acceptance of the remotely created channel.
	OnAuxChannel(fn func(AuxChannel))

	OnICECandidate(fn func(ci webrtc.ICECandidateInit))
	OnConnectionState(fn func(state webrtc.PeerConnectionState))
	OnRemoteTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))

	// Close tears the transport down. Safe to call more than once.
	Close()
}

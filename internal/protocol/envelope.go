// Package protocol defines the signaling wire format shared by the room
// registry and the client negotiation engine. Frames are JSON text; the
// relay only ever inspects the type field and forwards the raw bytes.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindRoomStatus Kind = "room-status"
	KindRoomFull   Kind = "room-full"
	KindOffer      Kind = "offer"
	KindAnswer     Kind = "answer"
	KindCandidate  Kind = "candidate"
	KindEndCall    Kind = "end-call"
	KindCallEnded  Kind = "call-ended"
	KindPeerLeft   Kind = "peer-left"
)

var ErrUnknownKind = errors.New("unknown frame kind")

// Envelope is the decoded form of one signaling frame. Only the fields
// matching Type are populated; the rest stay zero.
type Envelope struct {
	Type      Kind                       `json:"type"`
	Peers     int                        `json:"peers,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// Known reports whether k belongs to the closed frame set. Unknown kinds
// are a no-op for every receiver, never an error surfaced to the sender.
func (k Kind) Known() bool {
	switch k {
	case KindRoomStatus, KindRoomFull, KindOffer, KindAnswer,
		KindCandidate, KindEndCall, KindCallEnded, KindPeerLeft:
		return true
	}
	return false
}

// Relayable reports whether the registry forwards this kind verbatim to
// the other room member. end-call is deliberately excluded: the registry
// translates it instead of relaying it.
func (k Kind) Relayable() bool {
	return k == KindOffer || k == KindAnswer || k == KindCandidate
}

// Decode parses a frame. Malformed JSON or an unknown type yields an
// error; callers drop such frames without replying.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if !env.Type.Known() {
		return Envelope{}, ErrUnknownKind
	}
	return env, nil
}

// PeekKind extracts only the type field. The relay path uses this so
// payloads pass through byte-identical.
func PeekKind(data []byte) (Kind, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

func RoomStatus(peers int) []byte {
	b, _ := json.Marshal(Envelope{Type: KindRoomStatus, Peers: peers})
	return b
}

// Control marshals a payload-free frame (room-full, end-call, call-ended,
// peer-left).
func Control(k Kind) []byte {
	b, _ := json.Marshal(Envelope{Type: k})
	return b
}

func OfferFrame(sd webrtc.SessionDescription) []byte {
	b, _ := json.Marshal(Envelope{Type: KindOffer, Offer: &sd})
	return b
}

func AnswerFrame(sd webrtc.SessionDescription) []byte {
	b, _ := json.Marshal(Envelope{Type: KindAnswer, Answer: &sd})
	return b
}

func CandidateFrame(ci webrtc.ICECandidateInit) []byte {
	b, _ := json.Marshal(Envelope{Type: KindCandidate, Candidate: &ci})
	return b
}

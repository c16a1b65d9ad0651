// Package session drives one call's client-side lifecycle: it turns
// relayed signaling frames into an established peer transport, owns the
// auxiliary chat/mute channel, and survives peer departure and
// re-entry.
package session

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/media"
	"github.com/duocall/duocall/internal/protocol"
)

// Phase is the canonical call lifecycle state. Transitions are
// monotonic except for the peer-left -> connecting re-entry edge taken
// when the departed peer returns.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhasePeerLeft   Phase = "peer-left"
	PhaseTimeout    Phase = "timeout"
	PhaseEnded      Phase = "ended"
)

// Terminal reports whether no further negotiation can start from p.
// peer-left is deliberately not terminal: occupancy returning to 2
// restarts negotiation.
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseTimeout
}

// MuteMirror selects which side propagates its mute state over the
// auxiliary channel.
type MuteMirror string

const (
	MirrorInvitee MuteMirror = "invitee"
	MirrorBoth    MuteMirror = "both"
)

const (
	DefaultWaitDeadline = 30 * time.Second
	// DefaultCloseGrace lets the final end-call frame flush before the
	// signaling socket is closed underneath it.
	DefaultCloseGrace = 200 * time.Millisecond
)

// SignalSender is the outbound half of the signaling transport.
type SignalSender interface {
	Send(core.Frame) error
	Close()
}

// TransportFactory builds a fresh peer transport for each negotiation
// attempt. Re-entry after peer-left gets a new transport, never a
// reused one.
type TransportFactory func() (core.PeerTransport, error)

type Config struct {
	CallID       domain.CallID
	Initiator    bool
	WaitDeadline time.Duration
	CloseGrace   time.Duration
	MuteMirror   MuteMirror
}

// Session is the negotiation state machine for one call. All state
// lives behind one mutex; every asynchronous continuation re-acquires
// it and re-validates phase and epoch before acting, so a slow offer
// cannot resurrect a call the user already hung up.
type Session struct {
	cfg          Config
	signal       SignalSender
	newTransport TransportFactory
	source       media.Source
	remoteMeter  *media.Meter
	log          zerolog.Logger

	mu          sync.Mutex
	phase       Phase
	pt          core.PeerTransport
	aux         core.AuxChannel
	auxOpen     bool
	remoteReady bool
	pending     []webrtc.ICECandidateInit
	chat        []domain.ChatMessage
	remoteMuted bool
	endSent     bool
	waitTimer   *time.Timer
	// epoch counts transport teardowns. Continuations started against
	// an older epoch discard their results.
	epoch uint64

	onPhase func(Phase)
	onChat  func(domain.ChatMessage)
}

func New(cfg Config, signal SignalSender, factory TransportFactory, source media.Source) *Session {
	if cfg.WaitDeadline <= 0 {
		cfg.WaitDeadline = DefaultWaitDeadline
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	if cfg.MuteMirror == "" {
		cfg.MuteMirror = MirrorInvitee
	}
	return &Session{
		cfg:          cfg,
		signal:       signal,
		newTransport: factory,
		source:       source,
		remoteMeter:  media.NewMeter(),
		log:          log.With().Str("module", "session").Str("call", string(cfg.CallID)).Logger(),
		phase:        PhaseWaiting,
	}
}

// OnPhaseChange registers a listener invoked after each transition.
// The listener runs on the session's goroutine and must not call back
// into the session. Set before Start.
func (s *Session) OnPhaseChange(fn func(Phase)) { s.onPhase = fn }

// OnChatMessage registers a listener for new chat log entries, local
// and remote. Set before Start.
func (s *Session) OnChatMessage(fn func(domain.ChatMessage)) { s.onChat = fn }

// Start arms the wait deadline. The session sits in waiting until the
// room reports a second peer or the deadline fires.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPhase(PhaseWaiting)
	s.waitTimer = time.AfterFunc(s.cfg.WaitDeadline, s.waitExpired)
	s.log.Info().Bool("initiator", s.cfg.Initiator).Dur("deadline", s.cfg.WaitDeadline).Msg("session started")
}

func (s *Session) waitExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseWaiting {
		return
	}
	s.endLocked(PhaseTimeout)
	s.log.Warn().Msg("wait deadline expired")
	// Leaving the room here keeps its occupancy truthful for a peer
	// that shows up later.
	s.signal.Close()
}

// HandleFrame consumes one inbound signaling frame. Malformed frames
// and kinds that make no sense for the current role are dropped.
func (s *Session) HandleFrame(data core.Frame) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug().Msg("dropped malformed frame")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case protocol.KindRoomStatus:
		s.onRoomStatus(env.Peers)
	case protocol.KindRoomFull:
		s.log.Warn().Msg("room full, call refused")
		s.endLocked(PhaseEnded)
		s.signal.Close()
	case protocol.KindOffer:
		if env.Offer != nil && !s.cfg.Initiator {
			s.onOffer(*env.Offer)
		}
	case protocol.KindAnswer:
		if env.Answer != nil && s.cfg.Initiator {
			s.onAnswer(*env.Answer)
		}
	case protocol.KindCandidate:
		if env.Candidate != nil {
			s.onCandidate(*env.Candidate)
		}
	case protocol.KindCallEnded:
		s.log.Info().Msg("remote ended the call")
		s.endLocked(PhaseEnded)
		s.signal.Close()
	case protocol.KindPeerLeft:
		s.log.Info().Msg("peer left")
		s.peerGone()
	case protocol.KindEndCall:
		// Client-to-server only; the relay never delivers it here.
	}
}

// HangUp stops local media, closes the peer transport, and ends the
// session. Only the initiator signals end-call; the invitee's departure
// reaches the peer as peer-left via the room registry. Idempotent.
func (s *Session) HangUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnded {
		return
	}
	if s.cfg.Initiator && !s.endSent {
		s.endSent = true
		_ = s.signal.Send(protocol.Control(protocol.KindEndCall))
	}
	s.endLocked(PhaseEnded)
	sig := s.signal
	time.AfterFunc(s.cfg.CloseGrace, sig.Close)
	s.log.Info().Msg("hung up")
}

// Close releases everything without signaling anyone; for UI unmount.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(PhaseEnded)
	s.signal.Close()
}

// ToggleMute flips the local track gate and returns the new muted
// state. Depending on policy the new state is mirrored to the peer over
// the auxiliary channel.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled := !s.source.Enabled()
	s.source.SetEnabled(enabled)
	muted := !enabled

	mirror := s.cfg.MuteMirror == MirrorBoth ||
		(s.cfg.MuteMirror == MirrorInvitee && !s.cfg.Initiator)
	if mirror && s.auxOpen && s.aux != nil {
		_ = s.aux.Send(protocol.EncodeMute(muted))
	}
	return muted
}

// SendMessage appends the text to the local log immediately and
// transmits it only if the channel is open. No retry queue: a message
// sent before the channel opens stays a local-only echo.
func (s *Session) SendMessage(text string) {
	msg := domain.ChatMessage{Sender: domain.ChatSenderLocal, Text: text}
	s.mu.Lock()
	s.chat = append(s.chat, msg)
	aux, open := s.aux, s.auxOpen
	s.mu.Unlock()

	s.notifyChat(msg)
	if open && aux != nil {
		_ = aux.Send([]byte(text))
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) IsInitiator() bool { return s.cfg.Initiator }

func (s *Session) ChannelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auxOpen
}

func (s *Session) LocalMuted() bool { return !s.source.Enabled() }

func (s *Session) RemoteMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteMuted
}

func (s *Session) LocalSpeaking() bool { return s.source.Meter().Speaking() }

func (s *Session) RemoteSpeaking() bool { return s.remoteMeter.Speaking() }

// ChatLog returns a copy of the message log.
func (s *Session) ChatLog() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	if s.onPhase != nil {
		s.onPhase(p)
	}
}

func (s *Session) notifyChat(msg domain.ChatMessage) {
	if s.onChat != nil {
		s.onChat(msg)
	}
}

func (s *Session) stopWaitTimer() {
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
}

// endLocked is the single teardown path into a terminal phase: it stops
// local capture, closes the transport, and parks the session. Caller
// holds the lock.
func (s *Session) endLocked(p Phase) {
	s.stopWaitTimer()
	s.source.Stop()
	s.closeTransport()
	s.setPhase(p)
}

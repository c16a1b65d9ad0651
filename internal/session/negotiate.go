package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/media"
	"github.com/duocall/duocall/internal/protocol"
)

// onRoomStatus reacts to occupancy changes. Two peers in waiting means
// negotiation starts; two peers in peer-left means the departed side
// came back and negotiation restarts on a fresh transport.
func (s *Session) onRoomStatus(peers int) {
	s.log.Debug().Int("peers", peers).Str("phase", string(s.phase)).Msg("room status")
	if peers != 2 {
		return
	}
	if s.phase != PhaseWaiting && s.phase != PhasePeerLeft {
		return
	}
	s.startNegotiation()
}

// startNegotiation creates the peer transport, attaches local audio,
// and - on the initiator - opens the auxiliary channel and produces the
// offer. The non-initiator instead arms acceptance of the remote
// channel and waits for the offer. Caller holds the lock.
func (s *Session) startNegotiation() {
	s.stopWaitTimer()

	pt, err := s.newTransport()
	if err != nil {
		s.log.Error().Err(err).Msg("peer transport create")
		s.endLocked(PhaseEnded)
		s.signal.Close()
		return
	}
	s.pt = pt
	s.remoteReady = false
	s.setPhase(PhaseConnecting)

	epoch := s.epoch

	pt.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		// Trickle path; fire-and-forget like every signaling send.
		_ = s.signal.Send(protocol.CandidateFrame(ci))
	})
	pt.OnConnectionState(func(st webrtc.PeerConnectionState) {
		s.onConnectionState(epoch, st)
	})
	pt.OnRemoteTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go media.WatchTrack(track, receiver, s.remoteMeter)
	})

	if err := pt.AddLocalTrack(s.source.Track()); err != nil {
		s.log.Error().Err(err).Msg("attach local track")
	}

	if s.cfg.Initiator {
		ch, err := pt.CreateAuxChannel()
		if err != nil {
			s.log.Error().Err(err).Msg("create aux channel")
		} else {
			s.bindAux(ch)
		}
		go s.negotiateOffer(epoch, pt)
		return
	}

	pt.OnAuxChannel(func(ch core.AuxChannel) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		s.bindAux(ch)
	})
}

// negotiateOffer runs off the lock because description creation blocks.
// The continuation re-validates epoch and phase: a teardown that
// happened meanwhile turns the result into a no-op.
func (s *Session) negotiateOffer(epoch uint64, pt core.PeerTransport) {
	offer, err := pt.CreateOffer()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.phase.Terminal() {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("create offer")
		return
	}
	_ = s.signal.Send(protocol.OfferFrame(offer))
}

// onOffer handles the relayed offer on the non-initiator. The offer can
// beat the room-status frame that would normally start negotiation, so
// a missing transport is created on the spot. Caller holds the lock.
func (s *Session) onOffer(offer webrtc.SessionDescription) {
	if s.pt == nil {
		if s.phase != PhaseWaiting && s.phase != PhasePeerLeft {
			return
		}
		s.startNegotiation()
		if s.pt == nil {
			return
		}
	}
	pt := s.pt
	epoch := s.epoch

	go func() {
		answer, err := pt.AcceptOffer(offer)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.phase.Terminal() {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("accept offer")
			return
		}
		s.remoteReady = true
		s.flushCandidates(pt)
		_ = s.signal.Send(protocol.AnswerFrame(answer))
	}()
}

// onAnswer applies the relayed answer on the initiator. Caller holds
// the lock.
func (s *Session) onAnswer(answer webrtc.SessionDescription) {
	pt := s.pt
	if pt == nil {
		return
	}
	epoch := s.epoch

	go func() {
		err := pt.AcceptAnswer(answer)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.phase.Terminal() {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("accept answer")
			return
		}
		s.remoteReady = true
		s.flushCandidates(pt)
	}()
}

// onCandidate applies a relayed ICE candidate, buffering it while the
// remote description is not yet in place. The signaling transport does
// not order candidates against offer/answer, so early arrivals are
// normal, not an error. Caller holds the lock.
func (s *Session) onCandidate(ci webrtc.ICECandidateInit) {
	if s.pt == nil || !s.remoteReady {
		s.pending = append(s.pending, ci)
		s.log.Debug().Int("buffered", len(s.pending)).Msg("candidate buffered")
		return
	}
	if err := s.pt.AddICECandidate(ci); err != nil {
		s.log.Error().Err(err).Msg("add candidate")
	}
}

// flushCandidates replays candidates buffered before the remote
// description was applied. Caller holds the lock.
func (s *Session) flushCandidates(pt core.PeerTransport) {
	for _, ci := range s.pending {
		if err := pt.AddICECandidate(ci); err != nil {
			s.log.Error().Err(err).Msg("replay candidate")
		}
	}
	s.pending = nil
}

// onConnectionState is the transport's own connectivity watchdog. It is
// authoritative for connecting -> connected and for demoting a dead
// transport to peer-left; it may race the registry's explicit peer-left
// notice, and both paths converge in peerGone.
func (s *Session) onConnectionState(epoch uint64, st webrtc.PeerConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnected:
		if s.phase == PhaseConnecting {
			s.setPhase(PhaseConnected)
		}
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		s.peerGone()
	}
}

// peerGone is the single convergence point for "the other side is
// gone", whether reported by the registry or by the transport itself.
// Idempotent. Caller holds the lock.
func (s *Session) peerGone() {
	if s.phase == PhasePeerLeft || s.phase.Terminal() {
		return
	}
	s.closeTransport()
	s.setPhase(PhasePeerLeft)
}

// closeTransport tears down the peer transport and resets every piece
// of remote state, bumping the epoch so in-flight continuations and
// stale callbacks discard themselves. Caller holds the lock.
func (s *Session) closeTransport() {
	if s.pt != nil {
		s.pt.Close()
		s.pt = nil
	}
	s.aux = nil
	s.auxOpen = false
	s.remoteReady = false
	s.pending = nil
	s.remoteMuted = false
	s.remoteMeter.Reset()
	s.epoch++
}

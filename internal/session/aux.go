package session

import (
	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/protocol"
)

// bindAux wires the auxiliary channel's lifecycle and inbound frames
// into the session. Caller holds the lock; the callbacks re-acquire it
// and check the epoch so a channel from a torn-down transport cannot
// touch fresh state.
func (s *Session) bindAux(ch core.AuxChannel) {
	s.aux = ch
	epoch := s.epoch

	ch.OnOpen(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		s.auxOpen = true
		s.log.Debug().Msg("aux channel open")
	})
	ch.OnClose(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		s.auxOpen = false
		s.log.Debug().Msg("aux channel closed")
	})
	ch.OnMessage(func(data []byte) {
		s.onAuxMessage(epoch, data)
	})
}

// onAuxMessage demultiplexes one inbound data-channel frame: a mute
// notice updates remote mute state and stays out of the chat log;
// anything else is chat text from the peer.
func (s *Session) onAuxMessage(epoch uint64, data []byte) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}

	if notice, ok := protocol.DecodeAux(data); ok {
		s.remoteMuted = notice.Muted
		s.mu.Unlock()
		s.log.Debug().Bool("muted", notice.Muted).Msg("remote mute state")
		return
	}

	msg := domain.ChatMessage{Sender: domain.ChatSenderPeer, Text: string(data)}
	s.chat = append(s.chat, msg)
	s.mu.Unlock()
	s.notifyChat(msg)
}

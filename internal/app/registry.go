package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/protocol"
)

var ErrRoomFull = errors.New("room full")

// Registry owns the callID -> room table. All membership mutation and
// relaying goes through its mutex, which makes join/leave/relay on the
// same room sequential. Rooms are created on first join and discarded
// when the last member leaves; nothing is persisted.
type Registry struct {
	mu       sync.Mutex
	rooms    map[domain.CallID]*callRoom
	byMember map[domain.MemberID]*callRoom
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[domain.CallID]*callRoom),
		byMember: make(map[domain.MemberID]*callRoom),
	}
}

// Join registers conn under callID, creating the room if absent, and
// broadcasts the new occupancy to every member including the joiner.
// A room already at capacity answers the joiner with a room-full frame
// and returns ErrRoomFull; the member is not admitted.
func (r *Registry) Join(callID domain.CallID, mid domain.MemberID, conn core.SignalConn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[callID]
	if !ok {
		room = &callRoom{id: callID}
		r.rooms[callID] = room
	}
	if room.size() >= MaxRoomMembers {
		_ = conn.TrySend(protocol.Control(protocol.KindRoomFull))
		log.Warn().Str("module", "app.registry").Str("call", string(callID)).Str("member", string(mid)).Msg("join refused, room full")
		return ErrRoomFull
	}

	room.add(roomMember{id: mid, conn: conn})
	r.byMember[mid] = room
	room.broadcast(protocol.RoomStatus(room.size()))
	log.Info().Str("module", "app.registry").Str("call", string(callID)).Str("member", string(mid)).Int("peers", room.size()).Msg("member joined")
	return nil
}

// Relay forwards a negotiation frame verbatim to the other room member.
// Only offer/answer/candidate pass the gate; anything else is dropped
// without a reply to the sender.
func (r *Registry) Relay(mid domain.MemberID, data core.Frame) {
	kind, err := protocol.PeekKind(data)
	if err != nil || !kind.Relayable() {
		log.Debug().Str("module", "app.registry").Str("member", string(mid)).Msg("dropped non-relayable frame")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byMember[mid]
	if !ok {
		return
	}
	sent := room.forward(mid, data)
	log.Debug().Str("module", "app.registry").Str("call", string(room.id)).Str("kind", string(kind)).Int("sent_to", sent).Msg("relayed")
}

// EndCall translates a member's end-call into a call-ended frame for the
// other member. The sender's own transport is left open; the client
// closes it after its outgoing frame has flushed.
func (r *Registry) EndCall(mid domain.MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byMember[mid]
	if !ok {
		return
	}
	room.forward(mid, protocol.Control(protocol.KindCallEnded))
	log.Info().Str("module", "app.registry").Str("call", string(room.id)).Str("member", string(mid)).Msg("call ended by member")
}

// Leave removes a member on transport close, voluntary or abrupt, and
// tells the remaining member the peer is gone. Idempotent: a second
// Leave for the same member is a no-op.
func (r *Registry) Leave(mid domain.MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byMember[mid]
	if !ok {
		return
	}
	delete(r.byMember, mid)
	if !room.remove(mid) {
		return
	}
	if room.size() == 0 {
		delete(r.rooms, room.id)
		log.Info().Str("module", "app.registry").Str("call", string(room.id)).Msg("room discarded")
		return
	}
	room.broadcast(protocol.Control(protocol.KindPeerLeft))
	log.Info().Str("module", "app.registry").Str("call", string(room.id)).Str("member", string(mid)).Int("peers", room.size()).Msg("member left")
}

// MemberCount reports current occupancy; zero for an unknown call.
func (r *Registry) MemberCount(callID domain.CallID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[callID]; ok {
		return room.size()
	}
	return 0
}

// RoomCount is exposed for introspection and tests.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

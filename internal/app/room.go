package app

import (
	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
)

// MaxRoomMembers is the hard cap on signaling endpoints per call.
// A two-party call never needs more; a third join is refused.
const MaxRoomMembers = 2

type roomMember struct {
	id   domain.MemberID
	conn core.SignalConn
}

// callRoom holds one call's membership in join order. It has no lock of
// its own: every mutation happens under the owning Registry's mutex, so
// a relay can never observe a half-updated member set.
type callRoom struct {
	id      domain.CallID
	members []roomMember
}

func (r *callRoom) size() int { return len(r.members) }

func (r *callRoom) add(m roomMember) {
	r.members = append(r.members, m)
}

func (r *callRoom) remove(id domain.MemberID) bool {
	for i, m := range r.members {
		if m.id == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// broadcast sends f to every member, including the one that triggered
// the membership change.
func (r *callRoom) broadcast(f core.Frame) {
	for _, m := range r.members {
		_ = m.conn.TrySend(f)
	}
}

// forward sends f to every member except from. Send failures are
// dropped frames, not errors: signaling is fire-and-forget.
func (r *callRoom) forward(from domain.MemberID, f core.Frame) int {
	sent := 0
	for _, m := range r.members {
		if m.id == from {
			continue
		}
		if err := m.conn.TrySend(f); err == nil {
			sent++
		}
	}
	return sent
}

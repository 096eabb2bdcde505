package dispatcher

import "github.com/adwski/meetsignal/internal/model"

// handleLeave implements the inbound "leave" message: remove the
// participant and transition to CLOSED immediately, so a socket close that
// follows finds nothing left to remove (spec.md §8's idempotent-leave
// property).
func (s *Session) handleLeave() {
	s.state.Store(int32(StateClosed))
	s.leaveActive()
}

// leaveActive removes this session's bound participant (voluntary leave,
// socket close, or as the tail end of a kick) and broadcasts
// participant-left to everyone remaining, per spec.md §4.3's disconnect
// handling.
func (s *Session) leaveActive() {
	if s.roomID == "" || s.participantID == "" {
		return
	}
	s.removeAndAnnounce(s.participantID, false)
}

// removeAndAnnounce removes pid from s.roomID and broadcasts
// participant-left. When viaKick, the socket is closed as part of removal
// (registry.KickParticipant); otherwise the socket is assumed already
// gone or going.
func (s *Session) removeAndAnnounce(pid string, viaKick bool) {
	var res = struct {
		Removed     bool
		RoomDeleted bool
		NewHostID   string
	}{}

	if viaKick {
		r := s.d.reg.KickParticipant(s.roomID, pid)
		res.Removed, res.RoomDeleted, res.NewHostID = r.Removed, r.RoomDeleted, r.NewHostID
	} else {
		r := s.d.reg.RemoveParticipant(s.roomID, pid)
		res.Removed, res.RoomDeleted, res.NewHostID = r.Removed, r.RoomDeleted, r.NewHostID
	}
	if !res.Removed {
		return
	}

	s.d.reg.Broadcast(s.roomID, model.NewParticipantLeft(s.roomID, pid, s.nowMs()), "")

	if res.NewHostID != "" {
		if newHost, ok := s.d.reg.GetParticipant(s.roomID, res.NewHostID); ok {
			s.d.reg.Broadcast(s.roomID, model.NewParticipantUpdated(newHost, s.nowMs()), "")
		}
	}
}

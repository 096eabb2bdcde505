package dispatcher

import (
	"github.com/adwski/meetsignal/internal/codec"
	"github.com/adwski/meetsignal/internal/model"
	"github.com/adwski/meetsignal/internal/registry"
)

const errNotModerator = "Only moderators can perform this action"

func (s *Session) requireModerator() bool {
	p, ok := s.d.reg.GetParticipant(s.roomID, s.participantID)
	return ok && p.IsModerator
}

// handleModeratorAction implements spec.md §4.3's moderator-action
// handling: mute/unmute/kick/make-moderator. Non-moderators get
// errNotModerator and no state changes at all.
func (s *Session) handleModeratorAction(msg *model.Message) {
	if !s.requireModerator() {
		s.sendError(s.roomID, errNotModerator, "")
		return
	}
	target, ok := s.d.reg.GetParticipant(s.roomID, msg.TargetID)
	if !ok {
		return
	}

	switch msg.Action {
	case model.ActionMute:
		muted := true
		s.applyAndBroadcastPatch(target.ID, model.ParticipantPatch{IsMuted: &muted})
	case model.ActionUnmute:
		muted := false
		s.applyAndBroadcastPatch(target.ID, model.ParticipantPatch{IsMuted: &muted})
	case model.ActionMakeModerator:
		isMod := true
		s.applyAndBroadcastPatch(target.ID, model.ParticipantPatch{IsModerator: &isMod})
	case model.ActionKick:
		s.d.reg.SendTo(s.roomID, target.ID, model.NewModeratorKick(s.roomID, target.ID, s.nowMs()))
		s.removeAndAnnounce(target.ID, true)
	}
}

func (s *Session) applyAndBroadcastPatch(targetID string, patch model.ParticipantPatch) {
	p, ok := s.d.reg.UpdateParticipant(s.roomID, targetID, patch)
	if !ok {
		return
	}
	s.d.reg.Broadcast(s.roomID, model.NewParticipantUpdated(p, s.nowMs()), "")
}

// handleLockToggle implements room-locked/room-unlocked: moderator-only,
// toggles the lock, broadcasts the result.
func (s *Session) handleLockToggle(lock bool) {
	if !s.requireModerator() {
		s.sendError(s.roomID, errNotModerator, "")
		return
	}
	if lock {
		s.d.reg.LockRoom(s.roomID)
		s.d.reg.Broadcast(s.roomID, model.NewRoomLocked(s.roomID, s.participantID, s.nowMs()), "")
	} else {
		s.d.reg.UnlockRoom(s.roomID)
		s.d.reg.Broadcast(s.roomID, model.NewRoomUnlocked(s.roomID, s.participantID, s.nowMs()), "")
	}
}

// handleAdmitUser performs the WaitingParticipant -> Participant
// transition atomically relative to other registry observers (spec.md §3
// invariant 7), via a single Registry.AdmitFromWaiting call, and re-binds
// the candidate's own session to ACTIVE so its next frame is routed as an
// active participant. If the room filled up between the candidate being
// queued and being admitted, the candidate is told rather than left
// stranded in StateWaiting.
func (s *Session) handleAdmitUser(msg *model.Message) {
	if !s.requireModerator() {
		s.sendError(s.roomID, errNotModerator, "")
		return
	}

	var wp *model.WaitingParticipant
	p, err := s.d.reg.AdmitFromWaiting(s.roomID, msg.TargetID, func(candidate *model.WaitingParticipant) *model.Participant {
		wp = candidate
		return &model.Participant{
			ID:       candidate.ID,
			Name:     candidate.Name,
			RoomID:   s.roomID,
			JoinedAt: candidate.RequestedAt,
			Conn:     candidate.Conn,
		}
	})
	if err != nil {
		if wp != nil && err == registry.ErrRoomFull {
			s.d.reg.RejectFromWaitingRoom(s.roomID, wp.ID)
			s.notifyAndCloseCandidate(wp, "room filled up before you could be admitted")
		}
		return
	}

	if candidate, found := s.d.lookupSession(p.ID); found {
		candidate.state.Store(int32(StateActive))
	}

	joinedMsg := model.NewParticipantJoined(p, s.nowMs())
	s.d.reg.SendTo(s.roomID, p.ID, joinedMsg)
	for _, peer := range s.d.reg.ListParticipants(s.roomID) {
		if peer.ID == p.ID {
			continue
		}
		s.d.reg.SendTo(s.roomID, p.ID, model.NewParticipantJoined(peer, s.nowMs()))
	}
	s.d.reg.Broadcast(s.roomID, joinedMsg, p.ID)
}

// handleRejectUser notifies the candidate and closes their socket.
func (s *Session) handleRejectUser(msg *model.Message) {
	if !s.requireModerator() {
		s.sendError(s.roomID, errNotModerator, "")
		return
	}
	wp, ok := s.d.reg.RejectFromWaitingRoom(s.roomID, msg.TargetID)
	if !ok {
		return
	}
	s.notifyAndCloseCandidate(wp, msg.Reason)
}

// notifyAndCloseCandidate sends reject-user to a waiting candidate's socket
// and closes it, then marks its session closed so it never goes on
// thinking it's still queued. Shared by handleRejectUser and
// handleAdmitUser's room-filled-up-before-admission path.
func (s *Session) notifyAndCloseCandidate(wp *model.WaitingParticipant, reason string) {
	rejectMsg := model.NewRejectUser(s.roomID, wp.ID, reason, s.nowMs())
	if wp.Conn != nil {
		if encoded, err := codec.Encode(rejectMsg); err == nil {
			_ = wp.Conn.Send(encoded)
		}
		_ = wp.Conn.Close()
	}
	if candidate, found := s.d.lookupSession(wp.ID); found {
		candidate.state.Store(int32(StateClosed))
	}
}

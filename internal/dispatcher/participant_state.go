package dispatcher

import "github.com/adwski/meetsignal/internal/model"

// handleParticipantState merges a participant-updated delta, or a
// raise-hand/lower-hand toggle, into the Participant record and broadcasts
// the resulting state (not the raw delta) to everyone else. It is
// deliberately not echoed to the sender, per spec.md §9's noted asymmetry
// with chat.
func (s *Session) handleParticipantState(msg *model.Message) {
	patch := model.ParticipantPatch{}
	switch msg.Type {
	case model.TypeParticipantUpdated:
		patch.IsMuted = msg.IsMuted
		patch.IsVideoOff = msg.IsVideoOff
		patch.IsHandRaised = msg.IsHandRaised
	case model.TypeRaiseHand:
		raised := true
		patch.IsHandRaised = &raised
	case model.TypeLowerHand:
		lowered := false
		patch.IsHandRaised = &lowered
	}

	p, ok := s.d.reg.UpdateParticipant(s.roomID, s.participantID, patch)
	if !ok {
		return
	}
	s.d.reg.Broadcast(s.roomID, model.NewParticipantUpdated(p, s.nowMs()), s.participantID)
}

package dispatcher

import "github.com/adwski/meetsignal/internal/model"

// handleChat rewrites the sender id and fans the message out to the rest
// of the room, echoing a copy back to the sender so every client sees an
// ordering-consistent view of its own message (spec.md §4.3, §9's
// intentional echo/no-echo asymmetry with participant-updated).
func (s *Session) handleChat(msg *model.Message) {
	msg.ParticipantID = s.participantID
	msg.RoomID = s.roomID
	msg.Timestamp = s.nowMs()
	s.d.reg.Broadcast(s.roomID, msg, s.participantID)
	s.d.reg.SendTo(s.roomID, s.participantID, msg)
}

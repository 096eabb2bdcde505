package dispatcher

import "github.com/adwski/meetsignal/internal/model"

// handleRelay implements spec.md §4.3's relay handling for offer/answer/
// ice-candidate/file-*/quality-change: rewrite the sender id to the
// server-known id (never trust the client-supplied field) and deliver only
// to targetId within the same room. No broadcast, no echo — this is the
// "relay confidentiality" property of spec.md §8.
func (s *Session) handleRelay(msg *model.Message) {
	msg.ParticipantID = s.participantID
	msg.RoomID = s.roomID
	msg.Timestamp = s.nowMs()
	s.d.reg.SendTo(s.roomID, msg.TargetID, msg)
}

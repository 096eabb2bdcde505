package dispatcher

import (
	"time"

	"github.com/google/uuid"

	"github.com/adwski/meetsignal/internal/admission"
	"github.com/adwski/meetsignal/internal/model"
)

// handleJoin implements spec.md §4.3's join algorithm and §4.4's decision
// table together: registry lookups feed admission.Decide, whose result
// drives exactly one of create/add/queue/reject.
func (s *Session) handleJoin(msg *model.Message) {
	roomID := normalizeRoomID(msg.RoomID)

	_, exists := s.d.reg.GetRoom(roomID)
	passwordOK := s.d.reg.ValidatePassword(roomID, msg.Password)
	isLocked := s.d.reg.IsRoomLocked(roomID)
	creatorTokenValid := s.d.reg.ValidateCreatorToken(roomID, msg.CreatorToken)

	decision := admission.Decide(admission.Request{
		RoomExists:        exists,
		PasswordOK:        passwordOK,
		IsLocked:          isLocked,
		CreatorTokenValid: creatorTokenValid,
		IsHost:            msg.IsHost,
		HasCreatorToken:   msg.CreatorToken != "",
	})

	grantHost := msg.IsHost || creatorTokenValid

	switch decision {
	case admission.RejectRoomNotFound:
		s.sendError(roomID, "Room not found", model.ErrCodeRoomNotFound)
	case admission.RejectInvalidPassword:
		s.sendError(roomID, "Invalid room password", model.ErrCodeInvalidPassword)
	case admission.CreateAsHost:
		s.d.reg.GetOrCreateRoom(roomID, model.RoomConfig{Password: msg.Password})
		s.admitNewParticipant(roomID, msg.Name, true)
	case admission.AddAsParticipant:
		s.admitNewParticipant(roomID, msg.Name, grantHost)
	case admission.BypassLockAsHost:
		s.admitNewParticipant(roomID, msg.Name, true)
	case admission.AddToWaitingRoom:
		s.enterWaitingRoom(roomID, msg.Name)
	}
}

// admitNewParticipant mints an id, inserts the participant, binds this
// session to it, and performs the three-way announcement of spec.md §4.3
// steps 7-9, all before returning — which is what gives every other
// participant a participant-joined for the newcomer before any relay
// message naming the newcomer's id (spec.md §5).
func (s *Session) admitNewParticipant(roomID, name string, isHost bool) {
	pid := uuid.NewString()
	now := time.Now()
	p := &model.Participant{
		ID:       pid,
		Name:     name,
		RoomID:   roomID,
		JoinedAt: now,
		Conn:     s.conn,
	}

	if err := s.d.reg.AddParticipant(roomID, p, isHost); err != nil {
		s.sendError(roomID, "Room is full", "")
		return
	}

	s.roomID = roomID
	s.register(pid)
	s.state.Store(int32(StateActive))

	joinedMsg := model.NewParticipantJoined(p, s.nowMs())
	s.d.reg.Broadcast(roomID, joinedMsg, pid)
	s.d.reg.SendTo(roomID, pid, joinedMsg)

	for _, peer := range s.d.reg.ListParticipants(roomID) {
		if peer.ID == pid {
			continue
		}
		s.d.reg.SendTo(roomID, pid, model.NewParticipantJoined(peer, s.nowMs()))
	}
}

// enterWaitingRoom implements spec.md §4.3 step 4: queue the candidate,
// notify them and every moderator.
func (s *Session) enterWaitingRoom(roomID, name string) {
	wpID := uuid.NewString()
	wp := &model.WaitingParticipant{
		ID:          wpID,
		Name:        name,
		RoomID:      roomID,
		RequestedAt: time.Now(),
		Conn:        s.conn,
	}

	if err := s.d.reg.AddToWaitingRoom(roomID, wp); err != nil {
		s.sendError(roomID, "Room is full", "")
		return
	}

	s.roomID = roomID
	s.register(wpID)
	s.state.Store(int32(StateWaiting))

	waitMsg := model.NewWaitingRoom(roomID, wpID, name, s.nowMs())
	s.sendDirect(waitMsg)

	for _, mod := range s.d.reg.ListModerators(roomID) {
		s.d.reg.SendTo(roomID, mod.ID, waitMsg)
	}
}

// leaveWaiting removes this session's waiting entry on socket close. A
// waiting candidate is invisible to everyone but moderators and produces no
// departure announcement (spec.md §4.3's disconnect handling only
// broadcasts participant-left for a bound Participant).
func (s *Session) leaveWaiting() {
	if s.roomID == "" || s.participantID == "" {
		return
	}
	s.d.reg.RejectFromWaitingRoom(s.roomID, s.participantID)
}

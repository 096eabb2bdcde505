package dispatcher_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/meetsignal/internal/dispatcher"
	"github.com/adwski/meetsignal/internal/model"
	"github.com/adwski/meetsignal/internal/registry"
)

func lockFrame(lock bool) []byte {
	typ := model.TypeRoomLocked
	if !lock {
		typ = model.TypeRoomUnlocked
	}
	b, _ := json.Marshal(model.Message{Type: typ})
	return b
}

func admitUserFrame(targetID string) []byte {
	b, _ := json.Marshal(model.Message{Type: model.TypeAdmitUser, TargetID: targetID})
	return b
}

func rejectUserFrame(targetID, reason string) []byte {
	b, _ := json.Marshal(model.Message{Type: model.TypeRejectUser, TargetID: targetID, Reason: reason})
	return b
}

func joinWithTokenFrame(roomID, name, creatorToken string) []byte {
	b, _ := json.Marshal(model.Message{
		Type:         model.TypeJoin,
		RoomID:       roomID,
		Name:         name,
		CreatorToken: creatorToken,
	})
	return b
}

// TestLockedRoom_WaitingRoomFlow exercises spec.md §8 Scenario 4: a locked
// room queues a joiner in the waiting room, every moderator is notified, and
// admit-user transitions the candidate into a full participant, announced
// to itself, its new peers, and the rest of the room exactly as a direct
// join would be.
func TestLockedRoom_WaitingRoomFlow(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 10})
	d := dispatcher.New(dispatcher.Config{Registry: reg})

	aliceConn, bobConn := newFakeConn(), newFakeConn()
	alice := d.NewSession(aliceConn)
	alice.HandleFrame(joinFrame("ROOM1", "alice", true)) // host

	alice.HandleFrame(lockFrame(true))
	require.True(t, reg.IsRoomLocked("ROOM1"))
	require.Len(t, aliceConn.messagesOfType(model.TypeRoomLocked), 1)

	bob := d.NewSession(bobConn)
	bob.HandleFrame(joinFrame("ROOM1", "bob", false))

	assert.Equal(t, dispatcher.StateWaiting, bob.State())
	bobWaiting := bobConn.messagesOfType(model.TypeWaitingRoom)
	require.Len(t, bobWaiting, 1, "candidate must be told it's waiting")

	aliceWaiting := aliceConn.messagesOfType(model.TypeWaitingRoom)
	require.Len(t, aliceWaiting, 1, "the moderator must be notified of the waiting candidate")

	bobWaitingID := bob.ParticipantID()
	alice.HandleFrame(admitUserFrame(bobWaitingID))

	assert.Equal(t, dispatcher.StateActive, bob.State())
	bobJoined := bobConn.messagesOfType(model.TypeParticipantJoined)
	assert.Len(t, bobJoined, 2, "admitted candidate sees itself and its one peer")

	// alice's first participant-joined is her own, from her join.
	aliceJoined := aliceConn.messagesOfType(model.TypeParticipantJoined)
	require.Len(t, aliceJoined, 2, "the rest of the room is announced the admission")
	assert.Equal(t, "bob", aliceJoined[1].Name)
}

// TestLockedRoom_RejectUser exercises the reject side of Scenario 4: the
// candidate gets reject-user and its socket is closed, with no effect on
// the room's participant count.
func TestLockedRoom_RejectUser(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 10})
	d := dispatcher.New(dispatcher.Config{Registry: reg})

	aliceConn, bobConn := newFakeConn(), newFakeConn()
	alice := d.NewSession(aliceConn)
	alice.HandleFrame(joinFrame("ROOM1", "alice", true))
	alice.HandleFrame(lockFrame(true))

	bob := d.NewSession(bobConn)
	bob.HandleFrame(joinFrame("ROOM1", "bob", false))
	bobWaitingID := bob.ParticipantID()

	alice.HandleFrame(rejectUserFrame(bobWaitingID, "room is full for now"))

	rejected := bobConn.messagesOfType(model.TypeRejectUser)
	require.Len(t, rejected, 1)
	assert.Equal(t, "room is full for now", rejected[0].Reason)
	assert.False(t, bobConn.IsOpen(), "rejected candidate's socket must be closed")
	assert.Len(t, reg.ListParticipants("ROOM1"), 1, "rejecting a waiting candidate must not touch existing participants")
}

// TestLockedRoom_NonModeratorCannotToggleLockOrAdmit covers the lock-gate
// authorization edge: only a moderator may lock/unlock or admit/reject.
func TestLockedRoom_NonModeratorCannotToggleLockOrAdmit(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 10})
	d := dispatcher.New(dispatcher.Config{Registry: reg})

	aliceConn, bobConn := newFakeConn(), newFakeConn()
	alice := d.NewSession(aliceConn)
	alice.HandleFrame(joinFrame("ROOM1", "alice", true)) // host
	bob := d.NewSession(bobConn)
	bob.HandleFrame(joinFrame("ROOM1", "bob", false)) // plain participant

	bob.HandleFrame(lockFrame(true))

	assert.False(t, reg.IsRoomLocked("ROOM1"), "a non-moderator must not be able to lock the room")
	errs := bobConn.messagesOfType(model.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Only moderators can perform this action", errs[0].ErrMessage)

	bob.HandleFrame(admitUserFrame(alice.ParticipantID()))
	assert.Len(t, bobConn.messagesOfType(model.TypeError), 2, "a non-moderator must not be able to admit either")
}

// TestCreatorToken_BypassesLockAsHost exercises spec.md §8 Scenario 6: a
// join carrying a valid creator token skips the waiting room entirely, even
// while the room is locked, and is admitted with moderator rights.
func TestCreatorToken_BypassesLockAsHost(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 10})
	d := dispatcher.New(dispatcher.Config{Registry: reg})

	out, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{RoomID: "LATENT1"})
	require.NoError(t, err)
	reg.LockRoom(out.RoomID)

	conn := newFakeConn()
	s := d.NewSession(conn)
	s.HandleFrame(joinWithTokenFrame(out.RoomID, "owner", out.CreatorToken))

	assert.Equal(t, dispatcher.StateActive, s.State(), "valid creator token must skip the waiting room")
	joined := conn.messagesOfType(model.TypeParticipantJoined)
	require.Len(t, joined, 1)
	require.NotNil(t, joined[0].IsModerator)
	assert.True(t, *joined[0].IsModerator, "creator-token bypass grants moderator rights")

	waiting := conn.messagesOfType(model.TypeWaitingRoom)
	assert.Empty(t, waiting, "bypass must never route through the waiting room")
}

// TestAdmitUser_RoomFilledUpBeforeAdmission covers the race spec.md §3
// invariant 7 guards against: a candidate queues while the room has a free
// seat, but another participant joins normally before the moderator gets
// to admit-user. The candidate must be rejected and disconnected, not left
// stuck forever in the waiting room.
func TestAdmitUser_RoomFilledUpBeforeAdmission(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 10})
	d := dispatcher.New(dispatcher.Config{Registry: reg})

	out, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{MaxParticipants: 2})
	require.NoError(t, err)

	aliceConn := newFakeConn()
	alice := d.NewSession(aliceConn)
	alice.HandleFrame(joinWithTokenFrame(out.RoomID, "alice", out.CreatorToken))
	alice.HandleFrame(lockFrame(true))

	bobConn := newFakeConn()
	bob := d.NewSession(bobConn)
	bob.HandleFrame(joinFrame(out.RoomID, "bob", false))
	require.Equal(t, dispatcher.StateWaiting, bob.State())
	bobWaitingID := bob.ParticipantID()

	// carol takes the room's only other seat directly, via the creator
	// token's own lock bypass, simulating the race.
	carolConn := newFakeConn()
	carol := d.NewSession(carolConn)
	carol.HandleFrame(joinWithTokenFrame(out.RoomID, "carol", out.CreatorToken))
	require.Equal(t, dispatcher.StateActive, carol.State())

	alice.HandleFrame(admitUserFrame(bobWaitingID))

	assert.Equal(t, dispatcher.StateClosed, bob.State(), "a candidate that lost the capacity race must not be left waiting forever")
	rejected := bobConn.messagesOfType(model.TypeRejectUser)
	require.Len(t, rejected, 1, "the candidate must be told, not silently dropped")
	assert.False(t, bobConn.IsOpen())
	assert.Len(t, reg.ListParticipants(out.RoomID), 2, "the failed admission must not have touched room membership")
}

// TestCreatorToken_InvalidTokenStillQueuesOnLockedRoom ensures a wrong
// token on a locked, pre-existing room degrades to the ordinary
// waiting-room path rather than silently bypassing the lock.
func TestCreatorToken_InvalidTokenStillQueuesOnLockedRoom(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 10})
	d := dispatcher.New(dispatcher.Config{Registry: reg})

	out, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{RoomID: "LATENT2"})
	require.NoError(t, err)
	reg.LockRoom(out.RoomID)

	conn := newFakeConn()
	s := d.NewSession(conn)
	s.HandleFrame(joinWithTokenFrame(out.RoomID, "stranger", "not-the-real-token"))

	assert.Equal(t, dispatcher.StateWaiting, s.State())
	assert.Len(t, conn.messagesOfType(model.TypeWaitingRoom), 1)
}

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/meetsignal/internal/model"
	"github.com/adwski/meetsignal/internal/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(registry.Config{
		MaxLatentRooms:   10,
		LatentRoomMaxAge: 0,
	})
}

func addParticipant(t *testing.T, reg *registry.Registry, roomID, name string, isHost bool) *model.Participant {
	t.Helper()
	p := &model.Participant{ID: name, Name: name}
	require.NoError(t, reg.AddParticipant(roomID, p, isHost))
	return p
}

func TestAddParticipant_EnforcesCapacity(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{MaxParticipants: 2})

	addParticipant(t, reg, "ROOM1", "alice", true)
	addParticipant(t, reg, "ROOM1", "bob", false)

	err := reg.AddParticipant("ROOM1", &model.Participant{ID: "carol"}, false)
	assert.ErrorIs(t, err, registry.ErrRoomFull)

	room, ok := reg.GetRoom("ROOM1")
	require.True(t, ok)
	assert.LessOrEqual(t, len(room.Participants), room.MaxParticipants)
}

func TestAddParticipant_FirstJoinerBecomesHost(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})

	alice := addParticipant(t, reg, "ROOM1", "alice", false)
	assert.True(t, alice.IsModerator)

	room, ok := reg.GetRoom("ROOM1")
	require.True(t, ok)
	assert.Equal(t, "alice", room.HostID)
}

func TestRemoveParticipant_PromotesEarliestRemainingByJoinOrder(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})

	addParticipant(t, reg, "ROOM1", "alice", true)
	addParticipant(t, reg, "ROOM1", "bob", false)
	addParticipant(t, reg, "ROOM1", "carol", false)

	res := reg.RemoveParticipant("ROOM1", "alice")
	require.True(t, res.Removed)
	assert.Equal(t, "bob", res.NewHostID)

	room, ok := reg.GetRoom("ROOM1")
	require.True(t, ok)
	assert.Equal(t, "bob", room.HostID)
	bob, ok := reg.GetParticipant("ROOM1", "bob")
	require.True(t, ok)
	assert.True(t, bob.IsModerator)
}

func TestRemoveParticipant_DeletesEmptyAdHocRoom(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})
	addParticipant(t, reg, "ROOM1", "alice", true)

	res := reg.RemoveParticipant("ROOM1", "alice")
	require.True(t, res.Removed)
	assert.True(t, res.RoomDeleted)

	_, ok := reg.GetRoom("ROOM1")
	assert.False(t, ok, "ad-hoc room with zero participants must not survive")
}

func TestRemoveParticipant_LatentRoomSurvivesEmptying(t *testing.T) {
	reg := newTestRegistry(t)
	out, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{RoomID: "LATENT"})
	require.NoError(t, err)

	addParticipant(t, reg, out.RoomID, "alice", true)
	res := reg.RemoveParticipant(out.RoomID, "alice")
	require.True(t, res.Removed)
	assert.False(t, res.RoomDeleted)

	_, ok := reg.GetRoom(out.RoomID)
	assert.True(t, ok, "pre-created room must survive emptying")
}

func TestRemoveParticipant_Idempotent(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})
	addParticipant(t, reg, "ROOM1", "alice", true)

	first := reg.RemoveParticipant("ROOM1", "alice")
	assert.True(t, first.Removed)

	second := reg.RemoveParticipant("ROOM1", "alice")
	assert.False(t, second.Removed, "removing an already-removed participant must be a no-op")
}

func TestValidatePassword(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("unseen room accepts any password", func(t *testing.T) {
		assert.True(t, reg.ValidatePassword("UNSEEN", "anything"))
	})

	t.Run("unprotected room accepts any password", func(t *testing.T) {
		reg.GetOrCreateRoom("OPEN", model.RoomConfig{})
		assert.True(t, reg.ValidatePassword("OPEN", "whatever"))
	})

	t.Run("protected room requires exact match", func(t *testing.T) {
		reg.GetOrCreateRoom("PROT", model.RoomConfig{Password: "secret"})
		assert.True(t, reg.ValidatePassword("PROT", "secret"))
		assert.False(t, reg.ValidatePassword("PROT", "wrong"))
	})
}

func TestValidateCreatorToken(t *testing.T) {
	reg := newTestRegistry(t)
	out, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{RoomID: "LATENT"})
	require.NoError(t, err)

	assert.True(t, reg.ValidateCreatorToken(out.RoomID, out.CreatorToken))
	assert.False(t, reg.ValidateCreatorToken(out.RoomID, "wrong-token"))
	assert.False(t, reg.ValidateCreatorToken(out.RoomID, ""))
}

func TestPreCreateRoom_RejectsDuplicateID(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{RoomID: "FIXED"})
	require.NoError(t, err)

	_, err = reg.PreCreateRoom(registry.PreCreateRoomRequest{RoomID: "FIXED"})
	assert.ErrorIs(t, err, registry.ErrRoomIDTaken)
}

func TestPreCreateRoom_RejectsOverLatentCap(t *testing.T) {
	reg := registry.New(registry.Config{MaxLatentRooms: 1})
	_, err := reg.PreCreateRoom(registry.PreCreateRoomRequest{})
	require.NoError(t, err)

	_, err = reg.PreCreateRoom(registry.PreCreateRoomRequest{})
	assert.ErrorIs(t, err, registry.ErrLatentCapReached)
}

func TestAddToWaitingRoom_RejectsWhenRoomFull(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{MaxParticipants: 1})
	addParticipant(t, reg, "ROOM1", "alice", true)

	err := reg.AddToWaitingRoom("ROOM1", &model.WaitingParticipant{ID: "bob"})
	assert.ErrorIs(t, err, registry.ErrRoomFull)
}

func TestAdmitFromWaitingRoom_RemovesEntry(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})
	require.NoError(t, reg.AddToWaitingRoom("ROOM1", &model.WaitingParticipant{ID: "bob"}))

	wp, ok := reg.AdmitFromWaitingRoom("ROOM1", "bob")
	require.True(t, ok)
	assert.Equal(t, "bob", wp.ID)

	_, ok = reg.AdmitFromWaitingRoom("ROOM1", "bob")
	assert.False(t, ok, "admitting twice must fail the second time")
}

func TestAdmitFromWaiting_InsertsUnderOneLockAcquisition(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{MaxParticipants: 5})
	require.NoError(t, reg.AddToWaitingRoom("ROOM1", &model.WaitingParticipant{ID: "bob", Name: "bob"}))

	p, err := reg.AdmitFromWaiting("ROOM1", "bob", func(wp *model.WaitingParticipant) *model.Participant {
		return &model.Participant{ID: wp.ID, Name: wp.Name}
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	got, ok := reg.GetParticipant("ROOM1", "bob")
	require.True(t, ok)
	assert.Equal(t, "bob", got.Name)
}

func TestAdmitFromWaiting_RoomFullLeavesWaitingEntryInPlace(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{MaxParticipants: 1})
	// bob queues while the seat is free; alice takes it before he is admitted.
	require.NoError(t, reg.AddToWaitingRoom("ROOM1", &model.WaitingParticipant{ID: "bob", Name: "bob"}))
	addParticipant(t, reg, "ROOM1", "alice", true)

	p, err := reg.AdmitFromWaiting("ROOM1", "bob", func(wp *model.WaitingParticipant) *model.Participant {
		return &model.Participant{ID: wp.ID, Name: wp.Name}
	})
	assert.ErrorIs(t, err, registry.ErrRoomFull)
	assert.Nil(t, p)

	// bob must still be findable in the waiting room, not dropped, so a
	// caller can retry or explicitly notify him.
	_, stillInParticipants := reg.GetParticipant("ROOM1", "bob")
	assert.False(t, stillInParticipants)
	wp, ok := reg.RejectFromWaitingRoom("ROOM1", "bob")
	require.True(t, ok, "bob's waiting entry must survive a failed admission")
	assert.Equal(t, "bob", wp.ID)
}

func TestAdmitFromWaiting_UnknownCandidateFails(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})

	p, err := reg.AdmitFromWaiting("ROOM1", "nobody", func(wp *model.WaitingParticipant) *model.Participant {
		return &model.Participant{ID: wp.ID}
	})
	assert.ErrorIs(t, err, registry.ErrWaitingEntryNotFound)
	assert.Nil(t, p)
}

func TestPeakParticipants_TracksHighWaterMark(t *testing.T) {
	reg := newTestRegistry(t)
	reg.GetOrCreateRoom("ROOM1", model.RoomConfig{})

	addParticipant(t, reg, "ROOM1", "alice", true)
	addParticipant(t, reg, "ROOM1", "bob", false)
	reg.RemoveParticipant("ROOM1", "bob")

	assert.EqualValues(t, 2, reg.PeakParticipants())
}

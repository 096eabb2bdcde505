package admission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adwski/meetsignal/internal/admission"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		req  admission.Request
		want admission.Decision
	}{
		{
			"unseen room, plain join is rejected",
			admission.Request{RoomExists: false},
			admission.RejectRoomNotFound,
		},
		{
			"unseen room, isHost creates it",
			admission.Request{RoomExists: false, IsHost: true},
			admission.CreateAsHost,
		},
		{
			"unseen room, creator token alone also creates it",
			admission.Request{RoomExists: false, HasCreatorToken: true},
			admission.CreateAsHost,
		},
		{
			"existing room, wrong password is rejected",
			admission.Request{RoomExists: true, PasswordOK: false},
			admission.RejectInvalidPassword,
		},
		{
			"existing unlocked room admits normally",
			admission.Request{RoomExists: true, PasswordOK: true, IsLocked: false},
			admission.AddAsParticipant,
		},
		{
			"locked room queues to waiting room",
			admission.Request{RoomExists: true, PasswordOK: true, IsLocked: true, CreatorTokenValid: false},
			admission.AddToWaitingRoom,
		},
		{
			"locked room bypassed by valid creator token",
			admission.Request{RoomExists: true, PasswordOK: true, IsLocked: true, CreatorTokenValid: true},
			admission.BypassLockAsHost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, admission.Decide(tt.req))
		})
	}
}

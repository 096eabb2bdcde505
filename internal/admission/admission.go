// Package admission implements the pure decision logic of spec.md §4.4: no
// I/O, no registry mutation, just "given what the caller already knows
// about this room and this join attempt, what happens next." The
// dispatcher executes whatever Decide returns.
//
// No teacher component has password or lock semantics to ground this on
// directly; the shape — a small pure function returning a typed decision,
// called before delegating to storage — follows the teacher's service
// package's style of validating before mutating
// (service.CreateSignalingSession's membership check ahead of sw.Connect).
package admission

// Decision is the outcome of evaluating a join attempt against room state.
type Decision int

const (
	// RejectRoomNotFound: the room doesn't exist and the joiner presented
	// neither isHost nor a creator token.
	RejectRoomNotFound Decision = iota
	// RejectInvalidPassword: the room exists, has a password, and the
	// supplied candidate does not match it.
	RejectInvalidPassword
	// CreateAsHost: the room doesn't exist; it will be created and the
	// joiner admitted as its first participant (host).
	CreateAsHost
	// AddAsParticipant: the room exists, is unlocked, and the joiner is
	// admitted normally.
	AddAsParticipant
	// AddToWaitingRoom: the room exists and is locked; the joiner is queued
	// for moderator review.
	AddToWaitingRoom
	// BypassLockAsHost: the room exists, is locked, but the joiner's
	// creator token validated — they skip the waiting room and are admitted
	// as a host-grade moderator.
	BypassLockAsHost
)

// Request carries everything Decide needs to evaluate a single join
// attempt. PasswordOK and CreatorTokenValid must already reflect the
// registry's ValidatePassword/ValidateCreatorToken semantics (including
// their unknown-room defaults) — this package does not re-derive them.
type Request struct {
	RoomExists        bool
	PasswordOK        bool
	IsLocked          bool
	CreatorTokenValid bool
	IsHost            bool
	HasCreatorToken   bool
}

// Decide evaluates req against the decision table of spec.md §4.4,
// generalizing its two "room doesn't exist" rows with the dispatcher join
// algorithm's literal condition (spec.md §4.3 step 1): a join to an unseen
// room is rejected only when neither isHost nor a creator token was
// presented, since either signals explicit creation intent and the first
// participant becomes host regardless of which one was set.
func Decide(req Request) Decision {
	if !req.RoomExists {
		if req.IsHost || req.HasCreatorToken {
			return CreateAsHost
		}
		return RejectRoomNotFound
	}

	if !req.PasswordOK {
		return RejectInvalidPassword
	}

	if !req.IsLocked {
		return AddAsParticipant
	}

	if req.CreatorTokenValid {
		return BypassLockAsHost
	}
	return AddToWaitingRoom
}

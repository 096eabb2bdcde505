package model

import "time"

// DefaultMaxParticipants is the per-room capacity applied when a room is
// created without an explicit override.
const DefaultMaxParticipants = 8

// Conn is the minimal outbound socket abstraction the registry and
// dispatcher depend on. Any WebSocket library or hand-rolled framing layer
// satisfies this without the core importing it directly.
type Conn interface {
	Send(data []byte) error
	Close() error
	IsOpen() bool
}

// Participant is an admitted, live member of exactly one room.
type Participant struct {
	ID            string
	Name          string
	RoomID        string
	IsModerator   bool
	IsMuted       bool
	IsVideoOff    bool
	IsHandRaised  bool
	JoinedAt      time.Time
	Conn          Conn
}

// WaitingParticipant is a candidate pending moderator review for a locked
// room. It carries no room-state flags and is invisible to non-moderators.
type WaitingParticipant struct {
	ID          string
	Name        string
	RoomID      string
	RequestedAt time.Time
	Conn        Conn
}

// RoomConfig carries the subset of Room fields a caller may set at creation
// time (getOrCreateRoom / preCreateRoom).
type RoomConfig struct {
	MaxParticipants int
	Password        string
}

// Room is a single meeting's state: membership, waiting room, lock status,
// and host assignment. All mutation happens through the registry; Room
// itself has no behavior of its own beyond holding state.
type Room struct {
	ID              string
	Participants    map[string]*Participant
	WaitingRoom     map[string]*WaitingParticipant
	Password        string
	IsLocked        bool
	HostID          string
	CreatedAt       time.Time
	MaxParticipants int
	CreatorToken    string
	IsPreCreated    bool

	// JoinOrder records participant ids in the order they were admitted, so
	// host promotion after the host leaves can deterministically pick the
	// earliest-remaining participant.
	JoinOrder []string
}

// NewRoom constructs an empty room with the supplied id and defaults
// applied for any zero-valued RoomConfig fields.
func NewRoom(id string, cfg RoomConfig, now time.Time) *Room {
	max := cfg.MaxParticipants
	if max <= 0 {
		max = DefaultMaxParticipants
	}
	return &Room{
		ID:              id,
		Participants:    make(map[string]*Participant),
		WaitingRoom:     make(map[string]*WaitingParticipant),
		Password:        cfg.Password,
		CreatedAt:       now,
		MaxParticipants: max,
	}
}

// ParticipantPatch is the allowed subset of Participant fields a caller may
// merge via updateParticipant. A nil field means "leave unchanged".
type ParticipantPatch struct {
	IsMuted      *bool
	IsVideoOff   *bool
	IsHandRaised *bool
	IsModerator  *bool
}

// Apply merges the patch into p, leaving id/roomId/joinedAt untouched.
func (patch ParticipantPatch) Apply(p *Participant) {
	if patch.IsMuted != nil {
		p.IsMuted = *patch.IsMuted
	}
	if patch.IsVideoOff != nil {
		p.IsVideoOff = *patch.IsVideoOff
	}
	if patch.IsHandRaised != nil {
		p.IsHandRaised = *patch.IsHandRaised
	}
	if patch.IsModerator != nil {
		p.IsModerator = *patch.IsModerator
	}
}

// LatentRoom is the on-disk representation of a pre-created, empty room
// surviving across server restarts.
type LatentRoom struct {
	RoomID          string    `json:"roomId"`
	Password        string    `json:"password,omitempty"`
	CreatorToken    string    `json:"creatorToken"`
	CreatedAt       time.Time `json:"createdAt"`
	MaxParticipants int       `json:"maxParticipants"`
}

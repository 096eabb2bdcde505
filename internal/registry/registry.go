// Package registry implements the Room Registry: the single source of
// truth for room, participant, and waiting-room state. It is grounded on
// the teacher's backend/storage/memory.MemStore (mutex-guarded map,
// constructor-injected, no ambient singleton) generalized to the full
// operation set spec.md §4.2 requires.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adwski/meetsignal/internal/model"
)

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room is full")
	ErrRoomIDTaken          = errors.New("room id already exists")
	ErrLatentCapReached     = errors.New("latent room cap reached")
	ErrParticipantExists    = errors.New("participant already in room")
	ErrWaitingEntryNotFound = errors.New("waiting participant not found")
)

// LatentPersister is the write side of the on-disk latent-room store. The
// registry snapshots its latent rooms under its own lock and hands the
// snapshot to the persister outside the lock, per spec.md §5's "must not
// hold a registry lock across the disk write."
type LatentPersister interface {
	SaveLatentRooms(rooms []model.LatentRoom) error
}

// Config bundles the registry's constructor dependencies.
type Config struct {
	Logger           *zerolog.Logger
	Latent           LatentPersister
	MaxLatentRooms   int
	LatentRoomMaxAge time.Duration
}

// Registry owns every Room, Participant, and WaitingParticipant for the
// process. A single mutex linearizes all operations; there are no
// cross-room operations in this spec, so a coarse lock is sufficient
// (spec.md §5).
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*model.Room

	latent           LatentPersister
	maxLatentRooms   int
	latentRoomMaxAge time.Duration

	peakParticipants int64

	logger zerolog.Logger
}

// New constructs an empty registry.
func New(cfg Config) *Registry {
	r := &Registry{
		rooms:            make(map[string]*model.Room),
		latent:           cfg.Latent,
		maxLatentRooms:   cfg.MaxLatentRooms,
		latentRoomMaxAge: cfg.LatentRoomMaxAge,
	}
	if cfg.Logger != nil {
		r.logger = cfg.Logger.With().Str("component", "registry").Logger()
	}
	return r
}

// SeedLatentRooms installs previously-persisted latent rooms at startup.
// Callers pass in only rooms that survived the age filter.
func (r *Registry) SeedLatentRooms(rooms []model.LatentRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lr := range rooms {
		room := model.NewRoom(lr.RoomID, model.RoomConfig{
			MaxParticipants: lr.MaxParticipants,
			Password:        lr.Password,
		}, lr.CreatedAt)
		room.IsPreCreated = true
		room.CreatorToken = lr.CreatorToken
		r.rooms[lr.RoomID] = room
	}
}

// GetOrCreateRoom returns the existing room for id, or inserts a new one
// with defaults applied from cfg. It never populates participants.
func (r *Registry) GetOrCreateRoom(id string, cfg model.RoomConfig) *model.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateRoomLocked(id, cfg)
}

func (r *Registry) getOrCreateRoomLocked(id string, cfg model.RoomConfig) *model.Room {
	if room, ok := r.rooms[id]; ok {
		return room
	}
	room := model.NewRoom(id, cfg, time.Now())
	r.rooms[id] = room
	return room
}

// GetRoom returns the room for id without creating it.
func (r *Registry) GetRoom(id string) (*model.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	return room, ok
}

// PreCreateRoomRequest is the input to PreCreateRoom.
type PreCreateRoomRequest struct {
	RoomID          string
	Password        string
	MaxParticipants int
}

// PreCreateRoomResult is returned on success.
type PreCreateRoomResult struct {
	RoomID       string
	CreatorToken string
}

// PreCreateRoom creates an empty, latent room that survives emptying until
// its age cap. Generates an id if req.RoomID is empty, rejects on id
// collision, and rejects once the latent-room cap is reached.
func (r *Registry) PreCreateRoom(req PreCreateRoomRequest) (*PreCreateRoomResult, error) {
	r.mu.Lock()

	id := req.RoomID
	if id == "" {
		id = r.generateUniqueRoomIDLocked()
	} else if _, exists := r.rooms[id]; exists {
		r.mu.Unlock()
		return nil, ErrRoomIDTaken
	}

	if r.countLatentRoomsLocked() >= r.maxLatentRooms {
		r.mu.Unlock()
		return nil, ErrLatentCapReached
	}

	token := uuid.NewString()
	room := model.NewRoom(id, model.RoomConfig{
		MaxParticipants: req.MaxParticipants,
		Password:        req.Password,
	}, time.Now())
	room.IsPreCreated = true
	room.CreatorToken = token
	r.rooms[id] = room

	snapshot := r.snapshotLatentRoomsLocked()
	r.mu.Unlock()

	r.persistLatentSnapshot(snapshot)

	return &PreCreateRoomResult{RoomID: id, CreatorToken: token}, nil
}

func (r *Registry) generateUniqueRoomIDLocked() string {
	for {
		id := generateRoomCode()
		if _, exists := r.rooms[id]; !exists {
			return id
		}
	}
}

func (r *Registry) countLatentRoomsLocked() int {
	var n int
	for _, room := range r.rooms {
		if room.IsPreCreated && len(room.Participants) == 0 {
			n++
		}
	}
	return n
}

// ValidatePassword returns true if room has no password, the candidate
// matches exactly, or the room does not exist yet (the creation-window
// behavior spec.md §4.2/§9 calls out as load-bearing: the first joiner
// defines the password for an unseen ad-hoc room).
func (r *Registry) ValidatePassword(id, candidate string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return true
	}
	return room.Password == "" || room.Password == candidate
}

// ValidateCreatorToken performs strict string equality against the room's
// stored token.
func (r *Registry) ValidateCreatorToken(id, token string) bool {
	if token == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return false
	}
	return room.CreatorToken != "" && room.CreatorToken == token
}

// IsRoomLocked reports whether id is currently locked. Unknown rooms report
// unlocked.
func (r *Registry) IsRoomLocked(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	return ok && room.IsLocked
}

// LockRoom / UnlockRoom toggle a room's lock flag. No-op on unknown rooms.
func (r *Registry) LockRoom(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[id]; ok {
		room.IsLocked = true
	}
}

func (r *Registry) UnlockRoom(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[id]; ok {
		room.IsLocked = false
	}
}

// AddToWaitingRoom inserts wp into id's waiting room. Fails if the room's
// participants are already at cap.
func (r *Registry) AddToWaitingRoom(id string, wp *model.WaitingParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if len(room.Participants) >= room.MaxParticipants {
		return ErrRoomFull
	}
	wp.RoomID = id
	room.WaitingRoom[wp.ID] = wp
	return nil
}

// AdmitFromWaitingRoom removes pid from id's waiting map and returns it, if
// present.
func (r *Registry) AdmitFromWaitingRoom(id, pid string) (*model.WaitingParticipant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, false
	}
	wp, ok := room.WaitingRoom[pid]
	if !ok {
		return nil, false
	}
	delete(room.WaitingRoom, pid)
	return wp, true
}

// RejectFromWaitingRoom removes pid from id's waiting map and returns it, if
// present.
func (r *Registry) RejectFromWaitingRoom(id, pid string) (*model.WaitingParticipant, bool) {
	return r.AdmitFromWaitingRoom(id, pid)
}

// AddParticipant inserts p into room id. p becomes host/moderator if it is
// the first participant, isHost is set, or the room is empty through a
// race. Fails if the room is already at cap.
func (r *Registry) AddParticipant(id string, p *model.Participant, isHost bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if _, exists := room.Participants[p.ID]; exists {
		return ErrParticipantExists
	}
	if len(room.Participants) >= room.MaxParticipants {
		return ErrRoomFull
	}

	p.RoomID = id
	becomesHost := len(room.Participants) == 0 || isHost
	if becomesHost {
		p.IsModerator = true
		room.HostID = p.ID
	}
	room.Participants[p.ID] = p
	room.JoinOrder = append(room.JoinOrder, p.ID)

	if n := int64(len(room.Participants)); n > atomic.LoadInt64(&r.peakParticipants) {
		atomic.StoreInt64(&r.peakParticipants, n)
	}
	return nil
}

// AdmitFromWaiting performs the WaitingParticipant -> Participant
// transition under a single lock acquisition, per spec.md §3 invariant 7's
// requirement that the transition be atomic relative to any other registry
// observer. buildParticipant is called with the popped waiting entry and
// must return the *model.Participant to insert; it runs under the registry
// lock and must not block or re-enter the registry.
//
// On success the waiting entry is gone and the participant is in place. On
// failure (room/entry not found, or the room filled up between the
// candidate being queued and being admitted) the waiting entry is left
// untouched, so the candidate is never silently dropped — the caller can
// retry or notify it.
func (r *Registry) AdmitFromWaiting(id, pid string, buildParticipant func(wp *model.WaitingParticipant) *model.Participant) (*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	wp, ok := room.WaitingRoom[pid]
	if !ok {
		return nil, ErrWaitingEntryNotFound
	}

	// Built before the capacity check (but never inserted on failure) so a
	// caller that gets ErrRoomFull still has wp's fields, via its own
	// closure, to notify the candidate instead of dropping it silently.
	p := buildParticipant(wp)
	p.RoomID = id

	if len(room.Participants) >= room.MaxParticipants {
		return nil, ErrRoomFull
	}
	if _, exists := room.Participants[p.ID]; exists {
		return nil, ErrParticipantExists
	}

	delete(room.WaitingRoom, pid)

	becomesHost := len(room.Participants) == 0
	if becomesHost {
		p.IsModerator = true
		room.HostID = p.ID
	}
	room.Participants[p.ID] = p
	room.JoinOrder = append(room.JoinOrder, p.ID)

	if n := int64(len(room.Participants)); n > atomic.LoadInt64(&r.peakParticipants) {
		atomic.StoreInt64(&r.peakParticipants, n)
	}
	return p, nil
}

// RemoveResult describes the side effects RemoveParticipant performed, so
// the dispatcher knows what to announce.
type RemoveResult struct {
	Removed       bool
	RoomDeleted   bool
	NewHostID     string // set if host promotion happened
}

// RemoveParticipant removes pid from room id. If pid was host and other
// participants remain, one is deterministically promoted (earliest
// remaining by join order). If the room becomes empty and is not
// pre-created, it is deleted outright.
func (r *Registry) RemoveParticipant(id, pid string) RemoveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return RemoveResult{}
	}
	if _, exists := room.Participants[pid]; !exists {
		return RemoveResult{}
	}
	delete(room.Participants, pid)
	room.JoinOrder = removeFromOrder(room.JoinOrder, pid)

	res := RemoveResult{Removed: true}

	if room.HostID == pid {
		room.HostID = ""
		for _, candidateID := range room.JoinOrder {
			if next, exists := room.Participants[candidateID]; exists {
				next.IsModerator = true
				room.HostID = next.ID
				res.NewHostID = next.ID
				break
			}
		}
	}

	if len(room.Participants) == 0 && !room.IsPreCreated {
		delete(r.rooms, id)
		res.RoomDeleted = true
	}
	return res
}

func removeFromOrder(order []string, id string) []string {
	out := order[:0]
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// UpdateParticipant merges patch into pid's record within room id. Returns
// the updated participant, or false if not found.
func (r *Registry) UpdateParticipant(id, pid string, patch model.ParticipantPatch) (*model.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, false
	}
	p, ok := room.Participants[pid]
	if !ok {
		return nil, false
	}
	patch.Apply(p)
	return p, true
}

// GetParticipant returns pid's record within room id.
func (r *Registry) GetParticipant(id, pid string) (*model.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, false
	}
	p, ok := room.Participants[pid]
	return p, ok
}

// KickParticipant closes pid's socket (if open) and removes it from the
// room exactly as a normal departure would.
func (r *Registry) KickParticipant(id, pid string) RemoveResult {
	r.mu.Lock()
	room, ok := r.rooms[id]
	var conn model.Conn
	if ok {
		if p, exists := room.Participants[pid]; exists {
			conn = p.Conn
		}
	}
	r.mu.Unlock()

	if conn != nil && conn.IsOpen() {
		_ = conn.Close()
	}
	return r.RemoveParticipant(id, pid)
}

// ListParticipants returns a snapshot of every participant in room id.
func (r *Registry) ListParticipants(id string) []*model.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil
	}
	out := make([]*model.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		out = append(out, p)
	}
	return out
}

// ListModerators returns a snapshot of every moderator in room id.
func (r *Registry) ListModerators(id string) []*model.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil
	}
	out := make([]*model.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		if p.IsModerator {
			out = append(out, p)
		}
	}
	return out
}

// PeakParticipants returns the highest concurrent participant count any
// single room has reached.
func (r *Registry) PeakParticipants() int64 {
	return atomic.LoadInt64(&r.peakParticipants)
}

// Stats is a point-in-time snapshot for the HTTP health endpoint.
type Stats struct {
	TotalRooms        int
	TotalParticipants int
	PeakParticipants  int64
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int
	for _, room := range r.rooms {
		total += len(room.Participants)
	}
	return Stats{
		TotalRooms:        len(r.rooms),
		TotalParticipants: total,
		PeakParticipants:  atomic.LoadInt64(&r.peakParticipants),
	}
}

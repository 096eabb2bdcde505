// Package dispatcher implements the Connection Dispatcher: the
// per-connection state machine of spec.md §4.3. It owns only per-socket
// binding (which participant or waiting-participant a socket currently
// represents); all room state lives in internal/registry. Grounded on the
// teacher's backend/server/websocket.Server.handleWSConn session shape,
// generalized from a single forward-everything relay into the full
// message-type routing table.
package dispatcher

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adwski/meetsignal/internal/codec"
	"github.com/adwski/meetsignal/internal/model"
	"github.com/adwski/meetsignal/internal/registry"
)

// State is a connection's position in the UNBOUND -> WAITING/ACTIVE ->
// CLOSED state machine of spec.md §4.3.
type State int32

const (
	StateUnbound State = iota
	StateWaiting
	StateActive
	StateClosed
)

// Dispatcher is shared across every connection; it holds the registry and
// tracks which Session currently owns each live participant/waiting id, so
// that one connection's action (admit, reject, kick) can reach across to
// another connection's Session.
type Dispatcher struct {
	reg *registry.Registry

	mu       sync.Mutex
	sessions map[string]*Session // keyed by participantID or waitingID

	logger zerolog.Logger
	now    func() time.Time
}

// Config bundles the dispatcher's constructor dependencies.
type Config struct {
	Registry *registry.Registry
	Logger   *zerolog.Logger
}

// New constructs a Dispatcher bound to reg.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		reg:      cfg.Registry,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	if cfg.Logger != nil {
		d.logger = cfg.Logger.With().Str("component", "dispatcher").Logger()
	}
	return d
}

// Session is one connection's view of the protocol: its current state and,
// once bound, which room/participant id it represents. wsserver creates one
// Session per upgraded socket and feeds it every inbound frame in arrival
// order, satisfying spec.md §5's per-socket ordering guarantee.
type Session struct {
	d    *Dispatcher
	conn model.Conn

	state         atomic.Int32
	participantID string // set once, stable for the session's lifetime from the point it's assigned
	roomID        string

	logger zerolog.Logger
}

// NewSession creates a fresh, UNBOUND session wrapping conn.
func (d *Dispatcher) NewSession(conn model.Conn) *Session {
	s := &Session{d: d, conn: conn, logger: d.logger}
	s.state.Store(int32(StateUnbound))
	return s
}

// State returns the session's current state.
func (s *Session) State() State { return State(s.state.Load()) }

// ParticipantID returns the bound participant or waiting-participant id, or
// "" if still UNBOUND.
func (s *Session) ParticipantID() string { return s.participantID }

func (s *Session) nowMs() int64 { return s.d.now().UnixMilli() }

func normalizeRoomID(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

// register makes s reachable by id from other sessions (e.g. a moderator's
// admit-user call reaching this candidate's session).
func (s *Session) register(id string) {
	s.participantID = id
	s.d.mu.Lock()
	s.d.sessions[id] = s
	s.d.mu.Unlock()
}

func (d *Dispatcher) lookupSession(id string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

func (d *Dispatcher) forgetSession(id string) {
	d.mu.Lock()
	delete(d.sessions, id)
	d.mu.Unlock()
}

// HandleFrame decodes and routes a single inbound frame. It never panics:
// a handler failure is recovered, logged, and surfaced as a protocol error,
// per spec.md §7's recovery policy.
func (s *Session) HandleFrame(raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("recovered from panic while handling frame")
			s.sendError(s.roomID, "Invalid message format", "")
		}
	}()

	msg, err := codec.Decode(raw)
	if err != nil {
		s.sendError(s.roomID, "Invalid message format", "")
		return
	}

	switch s.State() {
	case StateUnbound:
		if msg.Type != model.TypeJoin {
			s.sendError(msg.RoomID, "Not joined to a room", "")
			return
		}
		s.handleJoin(msg)
	case StateWaiting:
		s.sendError(msg.RoomID, "Waiting for moderator approval", "")
	case StateActive:
		s.routeActive(msg)
	case StateClosed:
		// socket is on its way out; drop anything still in flight.
	}
}

func (s *Session) routeActive(msg *model.Message) {
	switch msg.Type {
	case model.TypeLeave:
		s.handleLeave()
	case model.TypeOffer, model.TypeAnswer, model.TypeICE,
		model.TypeFileOffer, model.TypeFileAnswer, model.TypeFileChunk,
		model.TypeQualityChange:
		s.handleRelay(msg)
	case model.TypeChat:
		s.handleChat(msg)
	case model.TypeParticipantUpdated, model.TypeRaiseHand, model.TypeLowerHand:
		s.handleParticipantState(msg)
	case model.TypeModeratorAction:
		s.handleModeratorAction(msg)
	case model.TypeRoomLocked:
		s.handleLockToggle(true)
	case model.TypeRoomUnlocked:
		s.handleLockToggle(false)
	case model.TypeAdmitUser:
		s.handleAdmitUser(msg)
	case model.TypeRejectUser:
		s.handleRejectUser(msg)
	case model.TypeJoin:
		s.sendError(msg.RoomID, "Already joined to a room", "")
	default:
		s.sendError(msg.RoomID, "Not joined to a room", "")
	}
}

// sendError writes an error envelope directly to this session's own socket.
// It bypasses the registry because UNBOUND/WAITING sessions have no
// Participant record to send through.
func (s *Session) sendError(roomID, message, code string) {
	data, err := codec.Encode(model.NewError(roomID, message, code, s.nowMs()))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode error envelope")
		return
	}
	if err := s.conn.Send(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send error envelope")
	}
}

func (s *Session) sendDirect(msg *model.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode envelope")
		return
	}
	if err := s.conn.Send(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send envelope")
	}
}

// HandleClose runs when the underlying socket ends, for any reason. It
// clears this session's binding: a bound Participant is removed and
// participant-left is broadcast; a bound WaitingParticipant is dropped from
// its room's waiting map. It is idempotent with a prior "leave" message
// (spec.md §8's "idempotent leave" property): handleLeave already
// transitions the state to CLOSED and removes the participant, so a
// subsequent close only unregisters the session.
func (s *Session) HandleClose() {
	prev := State(s.state.Swap(int32(StateClosed)))
	switch prev {
	case StateActive:
		s.leaveActive()
	case StateWaiting:
		s.leaveWaiting()
	}
	if s.participantID != "" {
		s.d.forgetSession(s.participantID)
	}
}

package registry

import (
	"github.com/adwski/meetsignal/internal/codec"
	"github.com/adwski/meetsignal/internal/model"
)

// fanoutTarget is a snapshot of one recipient's id and socket, taken under
// the registry lock so the actual write can happen outside it. This is the
// registry's adaptation of the teacher's switch package: instead of a
// separate channel-based forwarding table keyed by room+endpoint, the
// registry already holds each Participant's Conn directly (spec.md §3), so
// fan-out snapshots that map rather than maintaining a second one.
type fanoutTarget struct {
	id   string
	conn model.Conn
}

// Broadcast serializes message once and sends it to every participant in
// room id whose socket is open, skipping excludeID. Socket writes happen
// outside the registry lock.
func (r *Registry) Broadcast(id string, message *model.Message, excludeID string) {
	targets := r.snapshotTargets(id, excludeID)
	if len(targets) == 0 {
		return
	}
	data, err := codec.Encode(message)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode broadcast message")
		return
	}
	for _, t := range targets {
		if !t.conn.IsOpen() {
			continue
		}
		if err := t.conn.Send(data); err != nil {
			r.logger.Error().Err(err).Str("participantId", t.id).Msg("broadcast send failed")
		}
	}
}

// SendTo delivers message to exactly one participant, if present in room id
// with an open socket.
func (r *Registry) SendTo(id, pid string, message *model.Message) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	var conn model.Conn
	if ok {
		if p, exists := room.Participants[pid]; exists {
			conn = p.Conn
		}
	}
	r.mu.Unlock()

	if conn == nil || !conn.IsOpen() {
		return
	}
	data, err := codec.Encode(message)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode targeted message")
		return
	}
	if err := conn.Send(data); err != nil {
		r.logger.Error().Err(err).Str("participantId", pid).Msg("targeted send failed")
	}
}

func (r *Registry) snapshotTargets(id, excludeID string) []fanoutTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil
	}
	targets := make([]fanoutTarget, 0, len(room.Participants))
	for pid, p := range room.Participants {
		if pid == excludeID {
			continue
		}
		targets = append(targets, fanoutTarget{id: pid, conn: p.Conn})
	}
	return targets
}

package registry

import "github.com/adwski/meetsignal/internal/model"

// snapshotLatentRoomsLocked copies every pre-created room into the
// persisted-store shape. Must be called with r.mu held; the copy itself is
// what lets the caller release the lock before writing to disk.
func (r *Registry) snapshotLatentRoomsLocked() []model.LatentRoom {
	out := make([]model.LatentRoom, 0, len(r.rooms))
	for _, room := range r.rooms {
		if !room.IsPreCreated {
			continue
		}
		out = append(out, model.LatentRoom{
			RoomID:          room.ID,
			Password:        room.Password,
			CreatorToken:    room.CreatorToken,
			CreatedAt:       room.CreatedAt,
			MaxParticipants: room.MaxParticipants,
		})
	}
	return out
}

// persistLatentSnapshot writes snapshot to disk without holding r.mu.
func (r *Registry) persistLatentSnapshot(snapshot []model.LatentRoom) {
	if r.latent == nil {
		return
	}
	if err := r.latent.SaveLatentRooms(snapshot); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist latent room store")
	}
}

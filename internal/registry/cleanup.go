package registry

import (
	"time"

	"github.com/adwski/meetsignal/internal/model"
)

// CleanupAbandonedRooms evicts every empty room whose age exceeds its
// threshold: latentRoomMaxAge for pre-created rooms, maxAge for ad-hoc ones
// (ad-hoc rooms are normally deleted the instant they empty via
// RemoveParticipant, so in practice this only ever catches latent rooms,
// but the age check is applied uniformly per spec.md §4.2). Returns the
// number of rooms removed and rewrites the latent store if any pre-created
// room was among them.
func (r *Registry) CleanupAbandonedRooms(maxAge time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	var (
		removed       int
		latentRemoved bool
	)
	for id, room := range r.rooms {
		if len(room.Participants) != 0 {
			continue
		}
		threshold := maxAge
		if room.IsPreCreated {
			threshold = r.latentRoomMaxAge
		}
		if now.Sub(room.CreatedAt) <= threshold {
			continue
		}
		delete(r.rooms, id)
		removed++
		if room.IsPreCreated {
			latentRemoved = true
		}
	}
	var snapshot []model.LatentRoom
	if latentRemoved {
		snapshot = r.snapshotLatentRoomsLocked()
	}
	r.mu.Unlock()

	if latentRemoved {
		r.persistLatentSnapshot(snapshot)
	}
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("cleaned up abandoned rooms")
	}
	return removed
}

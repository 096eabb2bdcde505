// Package janitor runs the periodic eviction sweep spec.md §2 assigns to
// the "Janitor" component: abandoned ad-hoc rooms and expired latent rooms.
// Grounded on the teacher's ticker-driven Run loop (switch.Switch.Run,
// server/websocket.Server's SendLoop). A single ticker drives one sweep that
// covers both kinds of room; latent rooms are checked against the
// registry's own latentRoomMaxAge within that sweep.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adwski/meetsignal/internal/registry"
)

const (
	defaultRoomMaxAge          = time.Hour
	defaultRoomCleanupInterval = 30 * time.Minute
)

// Config bundles the janitor's constructor dependencies.
type Config struct {
	Logger *zerolog.Logger

	Registry *registry.Registry

	// RoomMaxAge is the abandonment threshold for ad-hoc rooms (latent
	// rooms use the registry's own configured latentRoomMaxAge instead).
	RoomMaxAge time.Duration

	// CleanupInterval is how often the sweep runs.
	CleanupInterval time.Duration
}

type Janitor struct {
	logger zerolog.Logger
	reg    *registry.Registry

	roomMaxAge time.Duration
	interval   time.Duration
}

func New(cfg Config) *Janitor {
	maxAge := cfg.RoomMaxAge
	if maxAge <= 0 {
		maxAge = defaultRoomMaxAge
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = defaultRoomCleanupInterval
	}

	j := &Janitor{
		reg:        cfg.Registry,
		roomMaxAge: maxAge,
		interval:   interval,
	}
	if cfg.Logger != nil {
		j.logger = cfg.Logger.With().Str("component", "janitor").Logger()
	}
	return j
}

// Run ticks every j.interval until ctx is cancelled, sweeping abandoned
// rooms on each tick and once more immediately on shutdown so a long
// interval doesn't leave a stale room un-evicted at exit.
func (j *Janitor) Run(ctx context.Context, wg *sync.WaitGroup, _ chan<- error) {
	defer func() {
		j.logger.Debug().Msg("janitor stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("janitor started")

sweepLoop:
	for {
		select {
		case <-ctx.Done():
			break sweepLoop
		case <-ticker.C:
			j.sweep()
		}
	}
	j.sweep()
}

func (j *Janitor) sweep() {
	removed := j.reg.CleanupAbandonedRooms(j.roomMaxAge)
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("swept abandoned rooms")
	}
}

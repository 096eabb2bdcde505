// Package latent persists the set of pre-created, empty rooms to a flat
// JSON file so they survive a server restart. No teacher component does
// file persistence; this follows the teacher's general idiom (a small
// struct, an explicit constructor, a mutex, no ambient singleton — spec.md
// §9) rather than any one file.
package latent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adwski/meetsignal/internal/model"
)

const defaultFilePerm = 0o600

// Store is a constructor-injected, mutex-guarded file-backed store. It
// holds no cache of its own: every Load re-reads the file and every Save
// rewrites it whole, since the latent-room set is small (bounded by
// maxLatentRooms) and rewrites are infrequent.
type Store struct {
	mu   sync.Mutex
	path string

	logger zerolog.Logger
}

// Config bundles the store's constructor dependencies.
type Config struct {
	Path   string
	Logger *zerolog.Logger
}

// New constructs a Store writing to cfg.Path (default data/rooms.json).
func New(cfg Config) *Store {
	path := cfg.Path
	if path == "" {
		path = filepath.Join("data", "rooms.json")
	}
	s := &Store{path: path}
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str("component", "latent-store").Logger()
	}
	return s
}

// LoadFresh reads the persisted latent rooms and discards entries older
// than maxAge, per spec.md §6 "On startup, entries older than
// latentRoomMaxAge are discarded."
func (s *Store) LoadFresh(maxAge time.Duration) ([]model.LatentRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var rooms []model.LatentRoom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, err
	}

	now := time.Now()
	fresh := make([]model.LatentRoom, 0, len(rooms))
	for _, room := range rooms {
		if now.Sub(room.CreatedAt) <= maxAge {
			fresh = append(fresh, room)
		}
	}
	return fresh, nil
}

// SaveLatentRooms rewrites the store with exactly the given rooms. It
// implements registry.LatentPersister.
func (s *Store) SaveLatentRooms(rooms []model.LatentRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rooms, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, defaultFilePerm); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

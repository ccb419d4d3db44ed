package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spotfleet/spotfleet/internal/models"
)

// PositionStore persists exactly one bot's position. Each worker owns
// its own instance and is the exclusive writer of its file (spec §3
// ownership rules).
type PositionStore struct {
	mu   sync.Mutex
	path string
}

// NewPositionStore opens bot_<id>_position.json under dataDir.
func NewPositionStore(dataDir string, botID int64) *PositionStore {
	return &PositionStore{path: filepath.Join(dataDir, fmt.Sprintf("bot_%d_position.json", botID))}
}

// Load returns the persisted position, or nil if none exists.
func (s *PositionStore) Load() (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pos models.Position
	ok, err := LoadJSON(s.path, &pos)
	if err != nil || !ok {
		return nil, err
	}
	return &pos, nil
}

// Save writes the position atomically.
func (s *PositionStore) Save(pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SaveAtomic(s.path, pos)
}

// Clear deletes the position file; called whenever a position closes
// or collapses to dust.
func (s *PositionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Remove(s.path)
}

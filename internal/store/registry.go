package store

import (
	"path/filepath"
	"sync"

	"github.com/spotfleet/spotfleet/internal/models"
)

// RegistryFile is the name of the bot registry file, owned exclusively
// by the supervisor.
const RegistryFile = "active_bots.json"

// RegistryStore persists the bot registry. It has a single writer
// (the supervisor); the mutex guards concurrent reads during a save.
type RegistryStore struct {
	mu   sync.Mutex
	path string
}

type registryDoc struct {
	Bots   []*models.Bot `json:"bots"`
	NextID int64         `json:"next_id"`
}

// NewRegistryStore opens the registry file under dataDir.
func NewRegistryStore(dataDir string) *RegistryStore {
	return &RegistryStore{path: filepath.Join(dataDir, RegistryFile)}
}

// Load reads the registry. A missing file yields an empty registry
// with NextID starting at 1.
func (s *RegistryStore) Load() (bots []*models.Bot, nextID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc registryDoc
	ok, err := LoadJSON(s.path, &doc)
	if err != nil {
		return nil, 0, err
	}
	if !ok || doc.NextID == 0 {
		doc.NextID = 1
	}
	return doc.Bots, doc.NextID, nil
}

// Save rewrites the registry file atomically.
func (s *RegistryStore) Save(bots []*models.Bot, nextID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SaveAtomic(s.path, registryDoc{Bots: bots, NextID: nextID})
}

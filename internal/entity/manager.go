package entity

import (
	"sort"
	"sync"
)

// Manager maps device IDs to their media-player entities.
// All methods are thread-safe.
type Manager struct {
	mu       sync.RWMutex
	byDevice map[string]*MediaPlayer
}

// NewManager creates an empty entity manager.
func NewManager() *Manager {
	return &Manager{byDevice: make(map[string]*MediaPlayer)}
}

// Add builds and tracks an entity for a device, replacing any previous
// entity for the same device.
func (m *Manager) Add(deviceID, name string, attrs map[string]any) *MediaPlayer {
	mp := NewMediaPlayer(deviceID, name, attrs)

	m.mu.Lock()
	m.byDevice[deviceID] = mp
	m.mu.Unlock()
	return mp
}

// Remove drops the entity for a device.
func (m *Manager) Remove(deviceID string) {
	m.mu.Lock()
	delete(m.byDevice, deviceID)
	m.mu.Unlock()
}

// Get returns the entity for a device ID.
func (m *Manager) Get(deviceID string) (*MediaPlayer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.byDevice[deviceID]
	return mp, ok
}

// GetByEntityID returns the entity with the given entity ID.
func (m *Manager) GetByEntityID(entityID string) (*MediaPlayer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mp := range m.byDevice {
		if mp.ID() == entityID {
			return mp, true
		}
	}
	return nil, false
}

// All returns every tracked entity ordered by entity ID.
func (m *Manager) All() []*MediaPlayer {
	m.mu.RLock()
	entities := make([]*MediaPlayer, 0, len(m.byDevice))
	for _, mp := range m.byDevice {
		entities = append(entities, mp)
	}
	m.mu.RUnlock()

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID() < entities[j].ID()
	})
	return entities
}

// Count returns the number of tracked entities.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDevice)
}

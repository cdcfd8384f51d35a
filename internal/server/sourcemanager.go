package server

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/ermau/gablarski/internal/protocol"
)

var (
	// ErrDuplicateSourceName is returned when an owner already has a source
	// with the requested name.
	ErrDuplicateSourceName = errors.New("owner already has a source with that name")
	// ErrSourceLimit is returned when no further source ids can be assigned.
	ErrSourceLimit = errors.New("source id space exhausted")
)

// SourceManager owns the audio source catalog. The id index and the owner
// index are always mutated together under the lock so they can never drift
// apart.
type SourceManager struct {
	mu      sync.RWMutex
	byID    map[int]protocol.AudioSource
	byOwner map[int][]int

	// lastID is a high-water mark; ids are never reissued even after the
	// source that held one is removed.
	lastID int
}

func NewSourceManager() *SourceManager {
	return &SourceManager{
		byID:    make(map[int]protocol.AudioSource),
		byOwner: make(map[int][]int),
	}
}

// Create registers a new source. Ids are assigned monotonically from a
// high-water mark, so an id is never reused while the server runs.
func (m *SourceManager) Create(source protocol.AudioSource) (protocol.AudioSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.byOwner[source.OwnerID] {
		if m.byID[id].Name == source.Name {
			return protocol.AudioSource{}, ErrDuplicateSourceName
		}
	}

	if m.lastID >= math.MaxInt32 {
		return protocol.AudioSource{}, ErrSourceLimit
	}
	m.lastID++

	source.ID = m.lastID
	m.byID[source.ID] = source
	m.byOwner[source.OwnerID] = append(m.byOwner[source.OwnerID], source.ID)
	return source, nil
}

// Get returns the source registered under an id.
func (m *SourceManager) Get(id int) (protocol.AudioSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	source, ok := m.byID[id]
	return source, ok
}

// OwnedBy returns every source owned by a user, ordered by id.
func (m *SourceManager) OwnedBy(ownerID int) []protocol.AudioSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownedByLocked(ownerID)
}

func (m *SourceManager) ownedByLocked(ownerID int) []protocol.AudioSource {
	ids := m.byOwner[ownerID]
	sources := make([]protocol.AudioSource, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, m.byID[id])
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources
}

// All returns a snapshot of every registered source, ordered by id.
func (m *SourceManager) All() []protocol.AudioSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make([]protocol.AudioSource, 0, len(m.byID))
	for _, source := range m.byID {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources
}

// Remove deregisters a source from both indexes.
func (m *SourceManager) Remove(id int) (protocol.AudioSource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.byID[id]
	if !ok {
		return protocol.AudioSource{}, false
	}

	delete(m.byID, id)
	m.byOwner[source.OwnerID] = removeID(m.byOwner[source.OwnerID], id)
	if len(m.byOwner[source.OwnerID]) == 0 {
		delete(m.byOwner, source.OwnerID)
	}
	return source, true
}

// RemoveOwnedBy deregisters every source owned by a user, returning the
// removed snapshots ordered by id.
func (m *SourceManager) RemoveOwnedBy(ownerID int) []protocol.AudioSource {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.ownedByLocked(ownerID)
	for _, source := range removed {
		delete(m.byID, source.ID)
	}
	delete(m.byOwner, ownerID)
	return removed
}

// ToggleMute flips a source's mute flag, returning the new snapshot.
func (m *SourceManager) ToggleMute(id int) (protocol.AudioSource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.byID[id]
	if !ok {
		return protocol.AudioSource{}, false
	}
	source.IsMuted = !source.IsMuted
	m.byID[id] = source
	return source, true
}

func removeID(ids []int, id int) []int {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

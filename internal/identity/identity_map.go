// Package identity maps source objects to destination objects.
//
// The IdentityMap holds the (kind, source ID) -> destination ID pairs of
// one migration. The Resolver fills it from the destination snapshot; the
// executor adds the IDs of objects it creates.
package identity

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/cfgmigrate/internal/model"
)

var (
	// ErrAlreadyPinned is returned when a source object is already mapped
	// to a different destination ID.
	ErrAlreadyPinned = errors.New("source object already mapped to a different destination")

	// ErrDestinationClaimed is returned when the destination object is
	// already mapped from another source object of the same kind.
	ErrDestinationClaimed = errors.New("destination object already claimed by another source object")
)

// IdentityMap is a concurrency-safe source-to-destination ID map.
// A pinned entry never changes.
type IdentityMap struct {
	mu      sync.RWMutex
	forward map[model.Key]string
	reverse map[model.Key]string
}

// NewIdentityMap creates an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		forward: make(map[model.Key]string),
		reverse: make(map[model.Key]string),
	}
}

// Pin records that the source object src maps to destID. Pinning the same
// pair again is a no-op.
func (m *IdentityMap) Pin(src model.Key, destID string) error {
	if destID == "" {
		return fmt.Errorf("pin %s: empty destination ID", src)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.forward[src]; ok {
		if cur == destID {
			return nil
		}
		return fmt.Errorf("pin %s -> %s (have %s): %w", src, destID, cur, ErrAlreadyPinned)
	}
	destKey := model.Key{Kind: src.Kind, ID: destID}
	if owner, ok := m.reverse[destKey]; ok {
		return fmt.Errorf("pin %s -> %s (claimed by %s): %w", src, destID, owner, ErrDestinationClaimed)
	}
	m.forward[src] = destID
	m.reverse[destKey] = src.ID
	return nil
}

// Lookup returns the destination ID of a source object.
func (m *IdentityMap) Lookup(src model.Key) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.forward[src]
	return id, ok
}

// Owner returns the source ID mapped to a destination object.
func (m *IdentityMap) Owner(dest model.Key) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.reverse[dest]
	return id, ok
}

// Len returns the number of entries.
func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.forward)
}

// Snapshot returns a copy of the entries.
func (m *IdentityMap) Snapshot() map[model.Key]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.forward)
}

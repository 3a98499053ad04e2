package identity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgmigrate/internal/model"
)

// TestPin_NeverOverwrites verifies an entry cannot change once pinned.
func TestPin_NeverOverwrites(t *testing.T) {
	m := NewIdentityMap()
	src := model.Key{Kind: model.KindRule, ID: "r1"}

	require.NoError(t, m.Pin(src, "d1"))
	require.NoError(t, m.Pin(src, "d1"), "re-pinning the same pair is a no-op")
	assert.ErrorIs(t, m.Pin(src, "d2"), ErrAlreadyPinned)

	id, ok := m.Lookup(src)
	assert.True(t, ok)
	assert.Equal(t, "d1", id)
	assert.Equal(t, 1, m.Len())
}

// TestPin_DestinationClaimedOncePerKind verifies the reverse index.
func TestPin_DestinationClaimedOncePerKind(t *testing.T) {
	m := NewIdentityMap()
	require.NoError(t, m.Pin(model.Key{Kind: model.KindList, ID: "l1"}, "d1"))

	err := m.Pin(model.Key{Kind: model.KindList, ID: "l2"}, "d1")
	assert.ErrorIs(t, err, ErrDestinationClaimed)

	// Same destination ID under a different kind is a different object.
	assert.NoError(t, m.Pin(model.Key{Kind: model.KindAction, ID: "a1"}, "d1"))

	owner, ok := m.Owner(model.Key{Kind: model.KindList, ID: "d1"})
	assert.True(t, ok)
	assert.Equal(t, "l1", owner)
}

// TestPin_RejectsEmptyID verifies an empty destination ID is never stored.
func TestPin_RejectsEmptyID(t *testing.T) {
	m := NewIdentityMap()
	assert.Error(t, m.Pin(model.Key{Kind: model.KindList, ID: "l1"}, ""))
	assert.Zero(t, m.Len())
}

// TestPin_Concurrent verifies concurrent pins of one key agree on a single winner.
func TestPin_Concurrent(t *testing.T) {
	m := NewIdentityMap()
	src := model.Key{Kind: model.KindAction, ID: "a1"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Pin(src, fmt.Sprintf("d%d", i)) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, m.Len())
}

// TestSnapshot verifies the snapshot is a copy.
func TestSnapshot(t *testing.T) {
	m := NewIdentityMap()
	src := model.Key{Kind: model.KindFeed, ID: "f1"}
	require.NoError(t, m.Pin(src, "d1"))

	snap := m.Snapshot()
	snap[src] = "changed"
	id, _ := m.Lookup(src)
	assert.Equal(t, "d1", id)
}

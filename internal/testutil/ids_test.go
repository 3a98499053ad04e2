package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence_Generate(t *testing.T) {
	seq := NewSequence("dest")
	assert.Equal(t, "dest-0001", seq.Generate())
	assert.Equal(t, "dest-0002", seq.Generate())
	assert.Equal(t, 2, seq.Count())
}

func TestSequence_Reset(t *testing.T) {
	seq := NewSequence("x")
	seq.Generate()
	seq.Generate()
	seq.Reset()
	assert.Equal(t, "x-0001", seq.Generate())
}

func TestSequence_ThreadSafe(t *testing.T) {
	seq := NewSequence("id")
	const goroutines = 50
	const perGoroutine = 20

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				id := seq.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine, "IDs must be unique")
}

func TestFixedID(t *testing.T) {
	assert.Equal(t, "run-1", FixedID("run-1").Generate())
	assert.Equal(t, "test-run", FixedID("").Generate())
}

package testutil

import (
	"fmt"
	"sync"
)

// Sequence generates predictable IDs: "<prefix>-0001", "<prefix>-0002", ...
//
// Memory stores built with a Sequence assign the same destination IDs on
// every run, which keeps golden reports stable.
//
// Thread-safety: all methods are safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a sequence. The first call to Generate returns prefix-0001.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Generate returns the next ID.
func (s *Sequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", s.prefix, s.n)
}

// Count returns how many IDs have been generated.
func (s *Sequence) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset restarts the sequence at 1.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}

// FixedID returns the same ID on every call.
//
// Used for run IDs in scenarios, where every run of a scenario should
// produce the same report.
type FixedID string

// Generate returns the fixed ID, or "test-run" when empty.
func (f FixedID) Generate() string {
	if f == "" {
		return "test-run"
	}
	return string(f)
}

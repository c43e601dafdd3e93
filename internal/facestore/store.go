// Package facestore holds the most recently published tracking result. The
// worker publishes whole frames; readers on any goroutine see either the
// previous frame or the new one, never a mix.
package facestore

import (
	"sync"

	"github.com/dudu/facetrack/internal/landmark"
)

// DefaultCapacity is the number of face slots when none is given
const DefaultCapacity = 8

// Frame is one tracking result handed to Publish
type Frame struct {
	Orientation landmark.Orientation
	NeedFlip    bool
	Faces       []landmark.Face
}

// Snapshot is a consistent copy of the store
type Snapshot struct {
	Sequence    uint64
	Orientation landmark.Orientation
	NeedFlip    bool
	Faces       []landmark.Face
}

// Store is a fixed set of face slots. Slots at or beyond Count are stale.
type Store struct {
	mu          sync.RWMutex
	slots       []landmark.Face
	count       int
	orientation landmark.Orientation
	needFlip    bool
	sequence    uint64
}

// New creates a store with capacity slots
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{slots: make([]landmark.Face, capacity)}
}

// Capacity returns the number of slots
func (s *Store) Capacity() int {
	return len(s.slots)
}

// Publish replaces the current frame. Faces beyond capacity are dropped and
// their number returned. Slot vertex arrays are reused when the landmark
// count is unchanged.
func (s *Store) Publish(f Frame) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(f.Faces)
	if n > len(s.slots) {
		dropped = n - len(s.slots)
		n = len(s.slots)
	}
	for i := 0; i < n; i++ {
		s.slots[i].CopyFrom(&f.Faces[i])
		s.slots[i].Index = i
	}
	s.count = n
	s.orientation = f.Orientation
	s.needFlip = f.NeedFlip
	s.sequence++
	return dropped
}

// Face returns a copy of slot, or false when the slot holds no current face.
func (s *Store) Face(slot int) (landmark.Face, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if slot < 0 || slot >= s.count {
		return landmark.Face{}, false
	}
	var f landmark.Face
	f.CopyFrom(&s.slots[slot])
	return f, true
}

// Count returns the number of faces in the current frame
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) Orientation() landmark.Orientation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orientation
}

func (s *Store) NeedFlip() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needFlip
}

// Sequence returns the number of frames published so far
func (s *Store) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

// Snapshot copies every valid slot together with the frame metadata
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Sequence:    s.sequence,
		Orientation: s.orientation,
		NeedFlip:    s.needFlip,
		Faces:       make([]landmark.Face, s.count),
	}
	for i := 0; i < s.count; i++ {
		snap.Faces[i].CopyFrom(&s.slots[i])
	}
	return snap
}

// Package frame holds the registry of solved frames for a session. A frame
// pairs an immutable WCS transform with the image dimensions it was solved
// against; the registry is the single owner of transform lifetimes.
package frame

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AstroAir/skymap-wcs/internal/metrics"
	"github.com/AstroAir/skymap-wcs/internal/wcs"
)

// Frame is one registered solved image.
type Frame struct {
	ID           string
	Transform    *wcs.Transform
	WidthPx      float64
	HeightPx     float64
	RegisteredAt time.Time
}

// AgeSeconds returns how long ago the frame was registered.
func (f *Frame) AgeSeconds() float64 {
	return time.Since(f.RegisteredAt).Seconds()
}

// Store provides thread-safe access to the registered frames.
type Store struct {
	mu     sync.RWMutex
	frames map[string]*Frame
	nextID uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{frames: make(map[string]*Frame)}
}

// NextID reserves a generated frame id for callers that did not supply one.
func (s *Store) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("frame-%d", s.nextID)
}

// Put registers or replaces a frame.
func (s *Store) Put(f *Frame) {
	s.mu.Lock()
	s.frames[f.ID] = f
	n := len(s.frames)
	s.mu.Unlock()

	metrics.SetFramesRegistered(n)
}

// Get returns the frame with the given id, or nil if none is registered.
func (s *Store) Get(id string) *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames[id]
}

// Remove deletes a frame. Reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.frames[id]
	delete(s.frames, id)
	n := len(s.frames)
	s.mu.Unlock()

	if ok {
		metrics.SetFramesRegistered(n)
	}
	return ok
}

// List returns all registered frames ordered by id.
func (s *Store) List() []*Frame {
	s.mu.RLock()
	out := make([]*Frame, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered frames.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

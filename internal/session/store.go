// Package session keeps the live scenes of a server process, one per participant.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"auditorium/internal/scene"
)

// DefaultMaxSessions caps concurrent scenes per process.
const DefaultMaxSessions = 500

var (
	ErrTooManySessions = errors.New("session: too many active sessions")
	ErrClosed          = errors.New("session: store closed")
)

// DepsFactory builds the collaborators for one new scene.
type DepsFactory func() scene.Deps

// Store is an in-memory map of running scenes keyed by uuid.
type Store struct {
	cfg     scene.Config
	newDeps DepsFactory
	max     int

	mu       sync.RWMutex
	sessions map[string]*scene.Scene
	pending  int
	closed   bool
}

// NewStore creates a store that builds scenes from cfg. maxSessions <= 0
// uses DefaultMaxSessions.
func NewStore(cfg scene.Config, newDeps DepsFactory, maxSessions int) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if newDeps == nil {
		newDeps = func() scene.Deps { return scene.Deps{} }
	}
	return &Store{
		cfg:      cfg,
		newDeps:  newDeps,
		max:      maxSessions,
		sessions: make(map[string]*scene.Scene),
	}
}

// Create enters and starts a new scene for p. On failure nothing is stored.
func (s *Store) Create(ctx context.Context, p scene.Params) (*scene.Scene, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if len(s.sessions)+s.pending >= s.max {
		s.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s.pending++
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}

	cfg := s.cfg
	cfg.SessionID = uuid.NewString()
	sc := scene.New(cfg, s.newDeps())

	if err := sc.Enter(ctx, p); err != nil {
		sc.Teardown()
		release()
		return nil, err
	}
	if err := sc.Start(); err != nil {
		sc.Teardown()
		release()
		return nil, err
	}

	s.mu.Lock()
	s.pending--
	if s.closed {
		s.mu.Unlock()
		sc.Teardown()
		return nil, ErrClosed
	}
	s.sessions[cfg.SessionID] = sc
	s.mu.Unlock()

	return sc, nil
}

// Get returns the scene for id.
func (s *Store) Get(id string) (*scene.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.sessions[id]
	return sc, ok
}

// Delete tears the scene down and forgets it. Reports whether id existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	sc, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sc.Teardown()
	}
	return ok
}

// Len returns the number of live scenes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the live session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Stats summarizes the live scenes.
type Stats struct {
	Sessions      int    `json:"sessions"`
	Events        uint64 `json:"events"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

// Stats adds up the event log counters of every live scene.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	scenes := make([]*scene.Scene, 0, len(s.sessions))
	for _, sc := range s.sessions {
		scenes = append(scenes, sc)
	}
	s.mu.RUnlock()

	st := Stats{Sessions: len(scenes)}
	for _, sc := range scenes {
		ev := sc.EventStats()
		st.Events += ev.Total
		st.DroppedEvents += ev.Dropped
	}
	return st
}

// CloseAll tears down every scene and rejects later creates.
func (s *Store) CloseAll() {
	s.mu.Lock()
	s.closed = true
	scenes := s.sessions
	s.sessions = make(map[string]*scene.Scene)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sc := range scenes {
		wg.Add(1)
		go func(sc *scene.Scene) {
			defer wg.Done()
			sc.Teardown()
		}(sc)
	}
	wg.Wait()

	if len(scenes) > 0 {
		log.Printf("🛑 Closed %d sessions", len(scenes))
	}
}

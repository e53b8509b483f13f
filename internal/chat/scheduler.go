package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"auditorium/internal/clock"
)

// DefaultTTL is how long a chat bubble stays above its seat.
const DefaultTTL = 5 * time.Second

// Scheduler keeps at most one live bubble per seat and expires each one
// TTL after it was sent. A newer message for the same seat replaces the
// older one and resets the expiry.
type Scheduler struct {
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	entries  map[int]Entry
	timers   map[int]clock.Timer
	closed   bool
	onChange func(Change)
}

// NewScheduler creates a scheduler driven by c. A non-positive ttl uses DefaultTTL.
func NewScheduler(c clock.Clock, ttl time.Duration) *Scheduler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Scheduler{
		clock:   c,
		ttl:     ttl,
		entries: make(map[int]Entry),
		timers:  make(map[int]clock.Timer),
	}
}

// OnChange registers a callback invoked after every send and expiry.
// It runs outside the scheduler lock.
func (s *Scheduler) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Send shows text above seat. Blank input is ignored and reported as false.
func (s *Scheduler) Send(seat int, raw string) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	entry := Entry{Seat: seat, Text: text, ExpiresAt: s.clock.Now().Add(s.ttl)}
	s.entries[seat] = entry

	if old, ok := s.timers[seat]; ok {
		old.Stop()
	}
	expiresAt := entry.ExpiresAt
	s.timers[seat] = s.clock.AfterFunc(s.ttl, func() {
		s.expire(seat, expiresAt)
	})
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(Change{Kind: ChangeSent, Entry: entry})
	}
	return true
}

// expire removes the bubble for seat only if it is still the one scheduled
// for expiresAt; a newer message for the same seat survives.
func (s *Scheduler) expire(seat int, expiresAt time.Time) {
	s.mu.Lock()
	entry, ok := s.entries[seat]
	if !ok || !entry.ExpiresAt.Equal(expiresAt) {
		s.mu.Unlock()
		return
	}
	delete(s.entries, seat)
	delete(s.timers, seat)
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(Change{Kind: ChangeExpired, Entry: entry})
	}
}

// Get returns the live bubble text for seat.
func (s *Scheduler) Get(seat int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[seat]
	if !ok || !s.clock.Now().Before(entry.ExpiresAt) {
		return "", false
	}
	return entry.Text, true
}

// Entries returns the live bubbles ordered by seat.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if now.Before(e.ExpiresAt) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Close cancels every pending expiry and drops all bubbles.
// Later sends are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for seat, t := range s.timers {
		t.Stop()
		delete(s.timers, seat)
	}
	s.entries = make(map[int]Entry)
}

// Pending returns the number of scheduled expiries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

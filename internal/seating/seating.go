// Package seating assigns auditorium seats to the local participant and to
// simulated guests, and picks a guest avatar for every remaining seat.
package seating

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Precondition violations. Both are fatal to scene construction.
var (
	ErrNoSeats   = errors.New("seating: no seat slots")
	ErrNoAvatars = errors.New("seating: empty avatar catalog")
)

// Vec3 is a seat position in scene units.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Slot is a fixed spatial position where one avatar may sit.
type Slot struct {
	Index    int  `json:"index" yaml:"index"`
	Position Vec3 `json:"position" yaml:"position"`
}

// AvatarID identifies an avatar model asset (e.g. "Stanley.glb").
type AvatarID string

// Participant is the local viewer entering the scene.
type Participant struct {
	Avatar AvatarID
	Label  string // display pseudonym
}

// Assignment is the immutable seating for one scene mount.
type Assignment struct {
	LocalSeat    int
	LocalAvatar  AvatarID
	GuestSeats   []int            // slot iteration order
	GuestAvatars map[int]AvatarID // keyed by seat index
	Labels       map[int]string   // pseudonym for the local seat, "Guest N" otherwise
	Positions    map[int]Vec3     // copy of the slot positions
}

// Occupant is one seated avatar, local or guest.
type Occupant struct {
	Seat     int
	Avatar   AvatarID
	Label    string
	Position Vec3
	Local    bool
}

// Assign picks the local seat uniformly at random, gives every other slot to a
// guest, and fills guest seats from a shuffled copy of the catalog. When the
// catalog is smaller than the guest count the shuffled order wraps, so repeats
// are accepted but every guest seat gets an avatar.
func Assign(rng *rand.Rand, slots []Slot, catalog []AvatarID, local Participant) (*Assignment, error) {
	if len(slots) == 0 {
		return nil, ErrNoSeats
	}
	if len(catalog) == 0 {
		return nil, ErrNoAvatars
	}
	if err := validateSlots(slots); err != nil {
		return nil, err
	}

	localPos := rng.Intn(len(slots))

	shuffled := make([]AvatarID, len(catalog))
	copy(shuffled, catalog)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	a := &Assignment{
		LocalSeat:    slots[localPos].Index,
		LocalAvatar:  local.Avatar,
		GuestSeats:   make([]int, 0, len(slots)-1),
		GuestAvatars: make(map[int]AvatarID, len(slots)-1),
		Labels:       make(map[int]string, len(slots)),
		Positions:    make(map[int]Vec3, len(slots)),
	}
	a.Labels[a.LocalSeat] = local.Label

	guest := 0
	for i, slot := range slots {
		a.Positions[slot.Index] = slot.Position
		if i == localPos {
			continue
		}
		a.GuestSeats = append(a.GuestSeats, slot.Index)
		a.GuestAvatars[slot.Index] = shuffled[guest%len(shuffled)]
		guest++
		a.Labels[slot.Index] = fmt.Sprintf("Guest %d", guest)
	}

	return a, nil
}

func validateSlots(slots []Slot) error {
	seen := make(map[int]struct{}, len(slots))
	for _, s := range slots {
		if _, dup := seen[s.Index]; dup {
			return fmt.Errorf("seating: duplicate slot index %d", s.Index)
		}
		seen[s.Index] = struct{}{}
	}
	return nil
}

// Occupants lists every seated avatar, local seat first, then guests in slot order.
func (a *Assignment) Occupants() []Occupant {
	out := make([]Occupant, 0, len(a.GuestSeats)+1)
	out = append(out, Occupant{
		Seat:     a.LocalSeat,
		Avatar:   a.LocalAvatar,
		Label:    a.Labels[a.LocalSeat],
		Position: a.Positions[a.LocalSeat],
		Local:    true,
	})
	for _, seat := range a.GuestSeats {
		out = append(out, Occupant{
			Seat:     seat,
			Avatar:   a.GuestAvatars[seat],
			Label:    a.Labels[seat],
			Position: a.Positions[seat],
		})
	}
	return out
}

// AllSeats returns every seat index in ascending order.
func (a *Assignment) AllSeats() []int {
	seats := append([]int{a.LocalSeat}, a.GuestSeats...)
	sort.Ints(seats)
	return seats
}

// IsGuest reports whether seat belongs to a simulated guest.
func (a *Assignment) IsGuest(seat int) bool {
	_, ok := a.GuestAvatars[seat]
	return ok
}

// NewRand returns a seeded pseudo-random source for one scene mount.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewSeed draws a seed from crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

package seating

import (
	"errors"
	"fmt"
	"testing"
)

func slotsN(n int) []Slot {
	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = Slot{Index: i, Position: Vec3{X: float64(i)}}
	}
	return slots
}

// TestAssignSeatUniqueness checks the local seat never doubles as a guest seat
// and that every slot is used exactly once, across many seeds.
func TestAssignSeatUniqueness(t *testing.T) {
	slots := DefaultSlots()

	for seed := int64(0); seed < 200; seed++ {
		a, err := Assign(NewRand(seed), slots, DefaultCatalog(), Participant{Avatar: "woman.glb", Label: "Ada"})
		if err != nil {
			t.Fatalf("seed %d: unexpected error: %v", seed, err)
		}

		counts := make(map[int]int)
		counts[a.LocalSeat]++
		for _, g := range a.GuestSeats {
			if g == a.LocalSeat {
				t.Fatalf("seed %d: local seat %d also a guest seat", seed, g)
			}
			counts[g]++
		}

		if len(counts) != len(slots) {
			t.Fatalf("seed %d: expected %d distinct seats, got %d", seed, len(slots), len(counts))
		}
		for _, s := range slots {
			if counts[s.Index] != 1 {
				t.Errorf("seed %d: seat %d used %d times", seed, s.Index, counts[s.Index])
			}
		}
	}
}

// TestAssignAvatarWrap checks the cyclic fill when the catalog is smaller than the guest count.
func TestAssignAvatarWrap(t *testing.T) {
	catalog := []AvatarID{"a.glb", "b.glb"}

	for seed := int64(0); seed < 50; seed++ {
		a, err := Assign(NewRand(seed), slotsN(6), catalog, Participant{Label: "me"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(a.GuestSeats) != 5 {
			t.Fatalf("expected 5 guest seats, got %d", len(a.GuestSeats))
		}

		freq := make(map[AvatarID]int)
		for _, seat := range a.GuestSeats {
			id, ok := a.GuestAvatars[seat]
			if !ok || id == "" {
				t.Fatalf("guest seat %d has no avatar", seat)
			}
			freq[id]++
		}
		if diff := freq["a.glb"] - freq["b.glb"]; diff > 1 || diff < -1 {
			t.Errorf("seed %d: unbalanced fill %v", seed, freq)
		}
	}
}

func TestAssignNoRepeatWhenCatalogLargeEnough(t *testing.T) {
	a, err := Assign(NewRand(7), slotsN(4), DefaultCatalog(), Participant{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := make(map[AvatarID]bool)
	for _, seat := range a.GuestSeats {
		id := a.GuestAvatars[seat]
		if seen[id] {
			t.Errorf("avatar %s repeated with a catalog larger than the guest count", id)
		}
		seen[id] = true
	}
}

func TestAssignGuestLabels(t *testing.T) {
	a, err := Assign(NewRand(3), DefaultSlots(), DefaultCatalog(), Participant{Avatar: "manTest.glb", Label: "Zoe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := a.Labels[a.LocalSeat]; got != "Zoe" {
		t.Errorf("local label: got %q, want %q", got, "Zoe")
	}
	for i, seat := range a.GuestSeats {
		want := fmt.Sprintf("Guest %d", i+1)
		if got := a.Labels[seat]; got != want {
			t.Errorf("seat %d: got label %q, want %q", seat, got, want)
		}
	}
}

func TestAssignDeterministicForSeed(t *testing.T) {
	first, _ := Assign(NewRand(42), DefaultSlots(), DefaultCatalog(), Participant{})
	second, _ := Assign(NewRand(42), DefaultSlots(), DefaultCatalog(), Participant{})

	if first.LocalSeat != second.LocalSeat {
		t.Fatalf("local seat differs for the same seed: %d vs %d", first.LocalSeat, second.LocalSeat)
	}
	for _, seat := range first.GuestSeats {
		if first.GuestAvatars[seat] != second.GuestAvatars[seat] {
			t.Errorf("seat %d avatar differs for the same seed", seat)
		}
	}
}

func TestAssignPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		slots   []Slot
		catalog []AvatarID
		want    error
	}{
		{"no seats", nil, DefaultCatalog(), ErrNoSeats},
		{"no avatars", DefaultSlots(), nil, ErrNoAvatars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Assign(NewRand(1), tt.slots, tt.catalog, Participant{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if a != nil {
				t.Error("expected no assignment on precondition failure")
			}
		})
	}
}

func TestAssignDuplicateSlotIndex(t *testing.T) {
	slots := []Slot{{Index: 1}, {Index: 1}}
	if _, err := Assign(NewRand(1), slots, DefaultCatalog(), Participant{}); err == nil {
		t.Fatal("expected an error for duplicate slot indices")
	}
}

func TestSingleSlotHasNoGuests(t *testing.T) {
	a, err := Assign(NewRand(9), slotsN(1), DefaultCatalog(), Participant{Label: "solo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.LocalSeat != 0 || len(a.GuestSeats) != 0 {
		t.Errorf("expected only the local seat, got local=%d guests=%v", a.LocalSeat, a.GuestSeats)
	}
}

func TestOccupantsLocalFirst(t *testing.T) {
	a, _ := Assign(NewRand(5), DefaultSlots(), DefaultCatalog(), Participant{Avatar: "woman.glb", Label: "Ada"})
	occ := a.Occupants()

	if len(occ) != len(DefaultSlots()) {
		t.Fatalf("expected %d occupants, got %d", len(DefaultSlots()), len(occ))
	}
	if !occ[0].Local || occ[0].Avatar != "woman.glb" || occ[0].Label != "Ada" {
		t.Errorf("first occupant should be the local participant, got %+v", occ[0])
	}
	for _, o := range occ[1:] {
		if o.Local {
			t.Errorf("seat %d marked local", o.Seat)
		}
		if !a.IsGuest(o.Seat) {
			t.Errorf("seat %d should be a guest seat", o.Seat)
		}
	}
	if got := a.AllSeats(); len(got) != len(occ) {
		t.Errorf("AllSeats returned %d seats, want %d", len(got), len(occ))
	}
}

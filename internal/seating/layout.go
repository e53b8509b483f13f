package seating

// DefaultSlots returns the seat positions of the canonical auditorium model.
func DefaultSlots() []Slot {
	positions := []Vec3{
		{-0.86, 0.22, 0.24},
		{-1.5, 0.22, 0.35},
		{0.45, 0.35, -0.45},
		{1.07, 0.22, 0.25},
		{-1.73, 0.25, 0.34},
		{1.5, 0.70, -2},
		{-1.5, 0.68, -1.98},
		{-1.5, 0.4, -0.66},
	}
	slots := make([]Slot, len(positions))
	for i, p := range positions {
		slots[i] = Slot{Index: i, Position: p}
	}
	return slots
}

// DefaultCatalog is the guest avatar catalog.
func DefaultCatalog() []AvatarID {
	return []AvatarID{
		"Stanley.glb",
		"Belly.glb",
		"Louise.glb",
		"clea.glb",
		"Lucas.glb",
	}
}

// SelectableAvatar is an avatar the local participant may pick in the preview.
type SelectableAvatar struct {
	Name string   `json:"name" yaml:"name"`
	ID   AvatarID `json:"id" yaml:"id"`
}

// DefaultSelectable lists the avatars offered to the local participant.
func DefaultSelectable() []SelectableAvatar {
	return []SelectableAvatar{
		{Name: "Femme", ID: "woman.glb"},
		{Name: "Homme", ID: "manTest.glb"},
	}
}

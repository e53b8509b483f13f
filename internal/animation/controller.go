// Package animation drives one avatar's clip playback for the lifetime of its mount.
package animation

import (
	"log"
	"math"
	"strings"
	"sync"

	"auditorium/internal/assets"
)

// FadeInDuration is the cross-fade from silence when playback starts (seconds).
const FadeInDuration = 0.5

// Phase is the playback lifecycle stage of a controller.
type Phase int

const (
	PhaseIdle     Phase = iota // No clip available - rest pose
	PhaseFadingIn              // Weight ramping 0 -> 1
	PhaseLooping               // Full weight, looping forever
	PhaseStopped               // Torn down - binding released
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFadingIn:
		return "fading_in"
	case PhaseLooping:
		return "looping"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Binding is the rendering-side clip action for one model instance.
type Binding interface {
	// Apply poses the model at clip-local time t with blend weight.
	Apply(clip string, t, weight float64)
	// Release stops every action and drops the clip binding.
	Release()
}

// NopBinding discards poses. Used when no renderer is attached.
type NopBinding struct{}

func (NopBinding) Apply(string, float64, float64) {}
func (NopBinding) Release()                       {}

// PlaybackState is the per-seat playback record owned by a Controller.
type PlaybackState struct {
	OwnerSeat int
	Clips     []assets.Clip
	Active    *assets.Clip
	Elapsed   float64
	Weight    float64
	Phase     Phase
}

// LocalTime returns the looped position inside the active clip.
func (s PlaybackState) LocalTime() float64 {
	if s.Active == nil || s.Active.Duration <= 0 {
		return 0
	}
	return math.Mod(s.Elapsed, s.Active.Duration)
}

// Controller plays exactly one clip for its entire lifetime.
type Controller struct {
	mu      sync.Mutex
	state   PlaybackState
	binding Binding
}

// SelectClip returns the index of the first clip whose name contains "sit"
// (case-insensitive) and true, or 0 and false to fall back to the first clip.
// It returns -1 for an empty catalog.
func SelectClip(clips []assets.Clip) (int, bool) {
	if len(clips) == 0 {
		return -1, false
	}
	for i, c := range clips {
		if strings.Contains(strings.ToLower(c.Name), "sit") {
			return i, true
		}
	}
	return 0, false
}

// New builds the controller for the avatar on seat and starts playback.
func New(seat int, clips []assets.Clip, binding Binding) *Controller {
	if binding == nil {
		binding = NopBinding{}
	}
	owned := make([]assets.Clip, len(clips))
	copy(owned, clips)

	c := &Controller{
		state:   PlaybackState{OwnerSeat: seat, Clips: owned, Phase: PhaseIdle},
		binding: binding,
	}

	idx, matched := SelectClip(owned)
	if idx < 0 {
		log.Printf("⚠️ Seat %d: model has no animation clips, holding rest pose", seat)
		return c
	}
	if !matched {
		log.Printf("⚠️ Seat %d: no \"sit\" clip found, playing %q instead", seat, owned[idx].Name)
	}

	c.state.Active = &owned[idx]
	c.state.Phase = PhaseFadingIn
	c.binding.Apply(c.state.Active.Name, 0, 0)
	return c
}

// Update advances playback by delta seconds of frame time.
func (c *Controller) Update(delta float64) {
	if delta <= 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active == nil || c.state.Phase == PhaseStopped {
		return
	}

	c.state.Elapsed += delta
	c.state.Weight = math.Min(1, c.state.Elapsed/FadeInDuration)
	if c.state.Weight >= 1 {
		c.state.Phase = PhaseLooping
	}
	c.binding.Apply(c.state.Active.Name, c.state.LocalTime(), c.state.Weight)
}

// Teardown stops playback and releases the binding. Safe to call repeatedly.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == PhaseStopped {
		return
	}
	c.state.Phase = PhaseStopped
	c.state.Weight = 0
	if c.binding != nil {
		c.binding.Release()
		c.binding = nil
	}
}

// Playing reports whether a clip is currently bound and advancing.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == PhaseFadingIn || c.state.Phase == PhaseLooping
}

// State returns a copy of the playback record.
func (c *Controller) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Clips = append([]assets.Clip(nil), c.state.Clips...)
	if c.state.Active != nil {
		active := *c.state.Active
		s.Active = &active
	}
	return s
}

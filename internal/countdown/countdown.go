// Package countdown counts down to a wall-clock instant and flips a one-way
// "started" flag when it arrives.
package countdown

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"auditorium/internal/clock"
)

// TickInterval is how often a running trigger recomputes the remaining time.
const TickInterval = time.Second

// TimeOfDay is a local wall-clock time.
type TimeOfDay struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
	Second int `json:"second" yaml:"second"`
}

// DefaultTimeOfDay is 11:00:00.
var DefaultTimeOfDay = TimeOfDay{Hour: 11}

// DefaultDaysAhead schedules the presentation for tomorrow.
const DefaultDaysAhead = 1

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// NextOccurrence returns tod on the calendar day daysAhead after now, in now's
// location. Whether today's occurrence already passed does not matter.
func NextOccurrence(now time.Time, tod TimeOfDay, daysAhead int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+daysAhead,
		tod.Hour, tod.Minute, tod.Second, 0, now.Location())
}

// State of a trigger.
type State int

const (
	Counting  State = iota // Remaining > 0, video paused behind the placeholder
	Triggered              // Terminal - the presentation has started
)

func (s State) String() string {
	switch s {
	case Counting:
		return "counting"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Trigger tracks the whole seconds left until target.
type Trigger struct {
	clock  clock.Clock
	target time.Time

	mu        sync.Mutex
	remaining int
	state     State
	ticker    clock.Ticker
	callbacks []func()

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTrigger targets tod, daysAhead days after the current clock time.
func NewTrigger(c clock.Clock, tod TimeOfDay, daysAhead int) *Trigger {
	return NewTriggerAt(c, NextOccurrence(c.Now(), tod, daysAhead))
}

// NewTriggerAt targets an explicit instant.
func NewTriggerAt(c clock.Clock, target time.Time) *Trigger {
	t := &Trigger{
		clock:    c,
		target:   target,
		stopChan: make(chan struct{}),
	}
	t.remaining = t.secondsLeft(c.Now())
	if t.remaining < 0 {
		t.remaining = 0
	}
	return t
}

func (t *Trigger) secondsLeft(now time.Time) int {
	d := t.target.Sub(now)
	secs := int(d / time.Second)
	if d < 0 && d%time.Second != 0 {
		secs-- // floor, not truncation
	}
	return secs
}

// OnTrigger registers fn to run once when the countdown reaches zero.
// Registering after the trigger fired does nothing.
func (t *Trigger) OnTrigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Triggered {
		return
	}
	t.callbacks = append(t.callbacks, fn)
}

// Tick recomputes the remaining seconds from the clock. The first tick at or
// past the target moves the trigger to Triggered and runs the callbacks.
func (t *Trigger) Tick() {
	t.mu.Lock()
	if t.state == Triggered {
		t.mu.Unlock()
		return
	}

	left := t.secondsLeft(t.clock.Now())
	if left > 0 {
		t.remaining = left
		t.mu.Unlock()
		return
	}

	t.remaining = 0
	t.state = Triggered
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	log.Printf("🎬 Countdown reached %s, starting presentation", t.target.Format(time.RFC3339))
	for _, fn := range callbacks {
		fn()
	}
}

// Run ticks once immediately and then every TickInterval until the trigger
// fires, Stop is called or ctx is cancelled.
func (t *Trigger) Run(ctx context.Context) error {
	t.Tick()
	if t.Started() {
		return nil
	}

	ticker := t.clock.NewTicker(TickInterval)
	t.mu.Lock()
	if t.state == Triggered {
		t.mu.Unlock()
		ticker.Stop()
		return nil
	}
	t.ticker = ticker
	t.mu.Unlock()

	defer t.stopTicker()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopChan:
			return nil
		case <-ticker.C():
			t.Tick()
			if t.Started() {
				return nil
			}
		}
	}
}

func (t *Trigger) stopTicker() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

// Stop cancels the periodic update. The trigger keeps its current state.
func (t *Trigger) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
	t.stopTicker()
}

// Target is the instant the presentation starts.
func (t *Trigger) Target() time.Time { return t.target }

// Remaining is the whole seconds left as of the last tick. Never negative.
func (t *Trigger) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Started reports whether the trigger fired.
func (t *Trigger) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Triggered
}

// State returns the lifecycle state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Formatted renders Remaining as HH:MM:SS.
func (t *Trigger) Formatted() string {
	return FormatHMS(t.Remaining())
}

// FormatHMS zero-pads each field to two digits. Hours are not wrapped at 24.
func FormatHMS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

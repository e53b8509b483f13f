// Package scene assembles one participant's auditorium: seating, per-seat
// animation, chat bubbles, the countdown and the presentation screen.
package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"auditorium/internal/animation"
	"auditorium/internal/assets"
	"auditorium/internal/chat"
	"auditorium/internal/clock"
	"auditorium/internal/countdown"
	"auditorium/internal/presentation"
	"auditorium/internal/seating"
)

var (
	ErrInvalidParams  = errors.New("scene: invalid entry parameters")
	ErrAlreadyEntered = errors.New("scene: already entered")
	ErrNotEntered     = errors.New("scene: not entered")
	ErrTornDown       = errors.New("scene: torn down")
	ErrNotGuestSeat   = errors.New("scene: not a guest seat")
)

const (
	DefaultFPS          = 30
	DefaultMaxPseudonym = 32
)

// Config is the static description of an auditorium.
type Config struct {
	SessionID     string
	Slots         []seating.Slot
	Catalog       []seating.AvatarID
	Selectable    []seating.SelectableAvatar
	ChatTTL       time.Duration
	Countdown     countdown.TimeOfDay
	DaysAhead     int
	Target        time.Time // overrides Countdown/DaysAhead when set
	FPS           int
	VideoURL      string
	AuditoriumURL string
	MaxPseudonym  int
}

// DefaultConfig is the canonical auditorium.
func DefaultConfig() Config {
	return Config{
		Slots:         seating.DefaultSlots(),
		Catalog:       seating.DefaultCatalog(),
		Selectable:    seating.DefaultSelectable(),
		ChatTTL:       chat.DefaultTTL,
		Countdown:     countdown.DefaultTimeOfDay,
		DaysAhead:     countdown.DefaultDaysAhead,
		FPS:           DefaultFPS,
		VideoURL:      "/video.mp4",
		AuditoriumURL: "/scene/auditorium.glb",
		MaxPseudonym:  DefaultMaxPseudonym,
	}
}

// Hooks observe scene activity. Every field is optional.
type Hooks struct {
	OnFrame        func(d time.Duration)
	OnChat         func(seat int, local bool)
	OnPresentation func()
}

// Deps are the collaborators of a scene.
type Deps struct {
	Clock      clock.Clock
	Loader     assets.Loader
	NewDecoder func() presentation.Decoder
	NewBinding func(seat int, model *assets.Model) animation.Binding
	Rand       *rand.Rand
	EventSink  io.Writer
	Hooks      Hooks
}

// Params are the local participant's choices from the avatar preview.
type Params struct {
	AvatarID  string `json:"avatar"`
	Pseudonym string `json:"pseudonym"`
}

type status int

const (
	statusCreated status = iota
	statusEntered
	statusRunning
	statusTornDown
)

func (s status) String() string {
	switch s {
	case statusCreated:
		return "created"
	case statusEntered:
		return "entered"
	case statusRunning:
		return "running"
	case statusTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Scene is one participant's auditorium.
type Scene struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	status      status
	params      Params
	assignment  *seating.Assignment
	models      map[int]*assets.Model
	controllers map[int]*animation.Controller
	chat        *chat.Scheduler
	trigger     *countdown.Trigger
	surface     *presentation.Surface

	events    *EventLog
	frame     atomic.Uint64
	localSeat atomic.Int64

	loopStop     chan struct{}
	loopDone     chan struct{}
	cancelCount  context.CancelFunc
	countDone    chan struct{}
	teardownOnce sync.Once
}

// New creates an empty scene. Nothing is loaded until Enter.
func New(cfg Config, deps Deps) *Scene {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.MaxPseudonym <= 0 {
		cfg.MaxPseudonym = DefaultMaxPseudonym
	}
	if cfg.ChatTTL <= 0 {
		cfg.ChatTTL = chat.DefaultTTL
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Loader == nil {
		deps.Loader = assets.NewManifestLoader(assets.DefaultManifest())
	}
	if deps.NewDecoder == nil {
		deps.NewDecoder = func() presentation.Decoder { return presentation.NewMirror() }
	}
	if deps.Rand == nil {
		seed, err := seating.NewSeed()
		if err != nil {
			seed = time.Now().UnixNano()
		}
		deps.Rand = seating.NewRand(seed)
	}

	s := &Scene{
		cfg:    cfg,
		deps:   deps,
		events: NewEventLog(),
	}
	s.events.Start(deps.EventSink)
	return s
}

// ID returns the session id the scene was created for.
func (s *Scene) ID() string { return s.cfg.SessionID }

func (s *Scene) validate(p Params) (Params, error) {
	p.Pseudonym = strings.TrimSpace(p.Pseudonym)
	if p.Pseudonym == "" {
		return p, fmt.Errorf("%w: pseudonym is required", ErrInvalidParams)
	}
	if utf8.RuneCountInString(p.Pseudonym) > s.cfg.MaxPseudonym {
		return p, fmt.Errorf("%w: pseudonym longer than %d characters", ErrInvalidParams, s.cfg.MaxPseudonym)
	}
	for _, a := range s.cfg.Selectable {
		if string(a.ID) == p.AvatarID {
			return p, nil
		}
	}
	return p, fmt.Errorf("%w: unknown avatar %q", ErrInvalidParams, p.AvatarID)
}

// Enter validates the participant, seats everyone, loads one model copy per
// seat and builds the per-seat controllers, the chat scheduler, the countdown
// and the screen. On any error everything built so far is released.
func (s *Scene) Enter(ctx context.Context, p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case statusTornDown:
		return ErrTornDown
	case statusCreated:
	default:
		return ErrAlreadyEntered
	}

	p, err := s.validate(p)
	if err != nil {
		return err
	}

	assignment, err := seating.Assign(s.deps.Rand, s.cfg.Slots, s.cfg.Catalog,
		seating.Participant{Avatar: seating.AvatarID(p.AvatarID), Label: p.Pseudonym})
	if err != nil {
		return fmt.Errorf("assign seats: %w", err)
	}

	occupants := assignment.Occupants()
	models, err := s.loadModels(ctx, occupants)
	if err != nil {
		return err
	}

	controllers := make(map[int]*animation.Controller, len(occupants))
	for _, o := range occupants {
		m := models[o.Seat]
		var binding animation.Binding
		if s.deps.NewBinding != nil {
			binding = s.deps.NewBinding(o.Seat, m)
		}
		controllers[o.Seat] = animation.New(o.Seat, m.Clips, binding)
	}

	surface := presentation.NewSurface(s.cfg.VideoURL, s.deps.NewDecoder())
	if err := surface.Open(); err != nil {
		_ = surface.Close()
		for _, c := range controllers {
			c.Teardown()
		}
		return fmt.Errorf("open presentation surface: %w", err)
	}

	var trigger *countdown.Trigger
	if !s.cfg.Target.IsZero() {
		trigger = countdown.NewTriggerAt(s.deps.Clock, s.cfg.Target)
	} else {
		trigger = countdown.NewTrigger(s.deps.Clock, s.cfg.Countdown, s.cfg.DaysAhead)
	}
	trigger.OnTrigger(s.startPresentation)

	scheduler := chat.NewScheduler(s.deps.Clock, s.cfg.ChatTTL)
	scheduler.OnChange(s.chatChanged)

	s.params = p
	s.assignment = assignment
	s.localSeat.Store(int64(assignment.LocalSeat))
	s.models = models
	s.controllers = controllers
	s.surface = surface
	s.trigger = trigger
	s.chat = scheduler
	s.status = statusEntered

	_ = surface.Sync(trigger.Started(), trigger.Formatted())

	s.emit(EventTypeEnter, "", EnterPayload{
		Pseudonym: p.Pseudonym,
		Avatar:    p.AvatarID,
		LocalSeat: assignment.LocalSeat,
		Seats:     len(occupants),
		Target:    trigger.Target().Format(time.RFC3339),
	})
	for _, o := range occupants {
		var clip string
		if st := controllers[o.Seat].State(); st.Active != nil {
			clip = st.Active.Name
		}
		s.emit(EventTypeSeatAssigned, seatSource(o.Seat), SeatPayload{
			Seat: o.Seat, Avatar: string(o.Avatar), Label: o.Label, Clip: clip,
		})
	}

	log.Printf("✅ Scene %s entered: %s on seat %d with %d guests", s.cfg.SessionID, p.Pseudonym, assignment.LocalSeat, len(assignment.GuestSeats))
	return nil
}

// loadModels fetches one independent model copy per occupied seat.
func (s *Scene) loadModels(ctx context.Context, occupants []seating.Occupant) (map[int]*assets.Model, error) {
	loaded := make([]*assets.Model, len(occupants))

	g, gctx := errgroup.WithContext(ctx)
	for i, o := range occupants {
		g.Go(func() error {
			m, err := s.deps.Loader.Load(gctx, string(o.Avatar))
			if err != nil {
				return fmt.Errorf("load avatar %s for seat %d: %w", o.Avatar, o.Seat, err)
			}
			loaded[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	models := make(map[int]*assets.Model, len(occupants))
	for i, o := range occupants {
		models[o.Seat] = loaded[i]
	}
	return models, nil
}

// Start runs the frame loop and the countdown.
func (s *Scene) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case statusCreated:
		return ErrNotEntered
	case statusTornDown:
		return ErrTornDown
	case statusRunning:
		return nil
	}
	s.status = statusRunning

	s.loopStop = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.runLoop(s.deps.Clock.NewTicker(time.Second/time.Duration(s.cfg.FPS)), s.loopStop, s.loopDone)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelCount = cancel
	s.countDone = make(chan struct{})
	go func(t *countdown.Trigger, done chan struct{}) {
		defer close(done)
		_ = t.Run(ctx)
	}(s.trigger, s.countDone)

	log.Printf("🎮 Scene %s running at %d FPS", s.cfg.SessionID, s.cfg.FPS)
	return nil
}

func (s *Scene) runLoop(ticker clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	last := s.deps.Clock.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			now := s.deps.Clock.Now()
			delta := now.Sub(last).Seconds()
			last = now

			began := time.Now()
			s.Frame(delta)
			if h := s.deps.Hooks.OnFrame; h != nil {
				h(time.Since(began))
			}
		}
	}
}

// Frame advances every seat's animation by delta seconds and refreshes the
// screen overlay. Seats are independent, so their order does not matter.
func (s *Scene) Frame(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != statusEntered && s.status != statusRunning {
		return
	}
	s.frame.Add(1)
	for _, c := range s.controllers {
		c.Update(delta)
	}
	_ = s.surface.Sync(s.trigger.Started(), s.trigger.Formatted())
}

// SendChat shows text above the local participant's seat. Blank text is
// ignored and reported as false.
func (s *Scene) SendChat(text string) (bool, error) {
	s.mu.Lock()
	if err := s.activeErr(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	seat, scheduler := s.assignment.LocalSeat, s.chat
	s.mu.Unlock()

	return send(scheduler, seat, text), nil
}

// SendGuestChat shows text above a guest seat.
func (s *Scene) SendGuestChat(seat int, text string) (bool, error) {
	s.mu.Lock()
	if err := s.activeErr(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if !s.assignment.IsGuest(seat) {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrNotGuestSeat, seat)
	}
	scheduler := s.chat
	s.mu.Unlock()

	return send(scheduler, seat, text), nil
}

func send(scheduler *chat.Scheduler, seat int, text string) bool {
	clean, ok := chat.Sanitize(text)
	if !ok {
		return false
	}
	return scheduler.Send(seat, clean)
}

func (s *Scene) activeErr() error {
	switch s.status {
	case statusCreated:
		return ErrNotEntered
	case statusTornDown:
		return ErrTornDown
	}
	return nil
}

func (s *Scene) chatChanged(c chat.Change) {
	payload := ChatPayload{Seat: c.Entry.Seat, Text: c.Entry.Text}
	switch c.Kind {
	case chat.ChangeSent:
		s.emit(EventTypeChatSent, seatSource(c.Entry.Seat), payload)
		if h := s.deps.Hooks.OnChat; h != nil {
			h(c.Entry.Seat, int64(c.Entry.Seat) == s.localSeat.Load())
		}
	case chat.ChangeExpired:
		s.emit(EventTypeChatExpired, seatSource(c.Entry.Seat), payload)
	}
}

// startPresentation runs once from the countdown when it reaches zero.
func (s *Scene) startPresentation() {
	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()
	if surface == nil {
		return
	}

	payload := PresentationPayload{VideoURL: s.cfg.VideoURL}
	if err := surface.Sync(true, ""); err != nil {
		payload.Error = err.Error()
	}
	s.emit(EventTypePresentationStarted, "", payload)
	if h := s.deps.Hooks.OnPresentation; h != nil {
		h()
	}
}

// Countdown returns the current countdown state.
func (s *Scene) Countdown() (CountdownSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeErr(); err != nil {
		return CountdownSnapshot{}, err
	}
	return s.countdownSnapshot(), nil
}

func (s *Scene) countdownSnapshot() CountdownSnapshot {
	return CountdownSnapshot{
		Remaining: s.trigger.Remaining(),
		Formatted: s.trigger.Formatted(),
		Started:   s.trigger.Started(),
		Target:    s.trigger.Target(),
	}
}

// Snapshot returns an immutable copy of the scene.
func (s *Scene) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:     s.cfg.SessionID,
		Status:        s.status.String(),
		Frame:         s.frame.Load(),
		AuditoriumURL: s.cfg.AuditoriumURL,
		Pseudonym:     s.params.Pseudonym,
		LocalSeat:     -1,
	}
	if s.assignment == nil || s.status == statusTornDown {
		return snap
	}
	snap.LocalSeat = s.assignment.LocalSeat
	snap.Countdown = s.countdownSnapshot()
	snap.Screen = s.surface.View()

	bubbles := make(map[int]chat.Entry)
	for _, e := range s.chat.Entries() {
		bubbles[e.Seat] = e
	}

	for _, o := range s.assignment.Occupants() {
		ss := SeatSnapshot{
			Seat:     o.Seat,
			Avatar:   string(o.Avatar),
			Label:    o.Label,
			Local:    o.Local,
			Position: o.Position,
		}
		if m := s.models[o.Seat]; m != nil {
			ss.ModelURL = m.URL
		}
		if e, ok := bubbles[o.Seat]; ok {
			ss.Chat = &ChatSnapshot{Text: e.Text, ExpiresAt: e.ExpiresAt}
		}
		if c := s.controllers[o.Seat]; c != nil {
			st := c.State()
			ss.Animation = AnimationSnapshot{
				Phase:  st.Phase.String(),
				Weight: st.Weight,
				Time:   st.LocalTime(),
			}
			if st.Active != nil {
				ss.Animation.Clip = st.Active.Name
			}
		}
		snap.Seats = append(snap.Seats, ss)
	}
	return snap
}

// Teardown stops the frame loop and the countdown, cancels pending chat
// expiries, stops every controller, then releases the models, closes the
// screen and flushes the event log. Safe to call repeatedly.
func (s *Scene) Teardown() {
	s.teardownOnce.Do(s.teardown)
}

func (s *Scene) teardown() {
	s.mu.Lock()
	prev := s.status
	s.status = statusTornDown
	loopStop, loopDone := s.loopStop, s.loopDone
	cancel, countDone := s.cancelCount, s.countDone
	s.mu.Unlock()

	if loopStop != nil {
		close(loopStop)
		<-loopDone
	}
	if cancel != nil {
		cancel()
		<-countDone
	}
	if s.trigger != nil {
		s.trigger.Stop()
	}

	s.mu.Lock()
	if s.chat != nil {
		s.chat.Close()
	}
	for _, c := range s.controllers {
		c.Teardown()
	}
	s.models = nil
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		if err := surface.Close(); err != nil {
			log.Printf("⚠️ Scene %s: closing screen: %v", s.cfg.SessionID, err)
		}
	}

	if prev != statusCreated {
		s.emit(EventTypeTeardown, "", nil)
	}
	s.events.Stop()
	log.Printf("🛑 Scene %s torn down", s.cfg.SessionID)
}

// EventStats reports the scene event log counters.
func (s *Scene) EventStats() EventLogStats {
	return s.events.Stats()
}

func (s *Scene) emit(t EventType, source string, payload interface{}) {
	s.events.Emit(NewEvent(t, s.deps.Clock.Now(), s.frame.Load(), s.cfg.SessionID, source, payload))
}

func seatSource(seat int) string {
	return fmt.Sprintf("seat:%d", seat)
}

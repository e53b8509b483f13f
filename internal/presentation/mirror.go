package presentation

import (
	"errors"
	"sync"
)

// Mirror is a Decoder that holds playback state for a remote renderer.
// The browser client reads it from snapshots and drives its own video element.
type Mirror struct {
	mu      sync.Mutex
	url     string
	open    bool
	playing bool
	loop    bool
	muted   bool
	rewinds int
}

// NewMirror returns a closed mirror decoder.
func NewMirror() *Mirror { return &Mirror{} }

func (m *Mirror) Open(url string) error {
	if url == "" {
		return errors.New("empty video url")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = url
	m.open = true
	return nil
}

func (m *Mirror) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return errors.New("video not open")
	}
	m.playing = true
	return nil
}

func (m *Mirror) Pause() {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
}

func (m *Mirror) Rewind() {
	m.mu.Lock()
	m.rewinds++
	m.mu.Unlock()
}

func (m *Mirror) SetLoop(loop bool) {
	m.mu.Lock()
	m.loop = loop
	m.mu.Unlock()
}

func (m *Mirror) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

func (m *Mirror) Texture() Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Texture{ID: "video:" + m.url, Ready: m.open}
}

func (m *Mirror) Close() error {
	m.mu.Lock()
	m.open = false
	m.playing = false
	m.mu.Unlock()
	return nil
}

// MirrorState is a point-in-time copy of a Mirror.
type MirrorState struct {
	URL     string
	Open    bool
	Playing bool
	Loop    bool
	Muted   bool
	Rewinds int
}

// State returns the recorded playback state.
func (m *Mirror) State() MirrorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MirrorState{
		URL:     m.url,
		Open:    m.open,
		Playing: m.playing,
		Loop:    m.loop,
		Muted:   m.muted,
		Rewinds: m.rewinds,
	}
}

// Package presentation binds the auditorium screen to a video decoder and
// swaps the countdown placeholder for the video when the presentation starts.
package presentation

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrClosed is returned when a closed surface is asked to do work.
var ErrClosed = errors.New("presentation surface closed")

// Texture identifies the frame source the renderer samples for the screen.
type Texture struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
}

// Decoder is the video element behind the screen.
type Decoder interface {
	Open(url string) error
	Play() error
	Pause()
	Rewind()
	SetLoop(loop bool)
	SetMuted(muted bool)
	Texture() Texture
	Close() error
}

// View is what the renderer draws on the screen this frame.
type View struct {
	Placeholder bool    `json:"placeholder"`
	Overlay     string  `json:"overlay,omitempty"`
	Playing     bool    `json:"playing"`
	VideoURL    string  `json:"videoUrl"`
	Texture     Texture `json:"texture"`
}

// Surface owns the decoder for one scene.
type Surface struct {
	mu      sync.Mutex
	url     string
	decoder Decoder
	opened  bool
	closed  bool
	started bool
	playing bool
	overlay string
	lastErr error
}

// NewSurface wraps decoder. The video at url is not opened until Open.
func NewSurface(url string, decoder Decoder) *Surface {
	return &Surface{url: url, decoder: decoder}
}

// Open prepares the video looped, muted and paused behind the placeholder.
func (s *Surface) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}

	s.decoder.SetLoop(true)
	s.decoder.SetMuted(true)
	if err := s.decoder.Open(s.url); err != nil {
		return fmt.Errorf("open video %s: %w", s.url, err)
	}
	s.decoder.Pause()
	s.opened = true
	return nil
}

// Sync applies the countdown state. While counting the placeholder shows
// formatted; the first started=true rewinds and plays the video. Once started
// the surface never goes back to the placeholder.
func (s *Surface) Sync(started bool, formatted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	if !started {
		s.overlay = formatted
		return nil
	}

	s.started = true
	s.overlay = ""
	if !s.opened {
		return nil
	}

	s.decoder.Rewind()
	if err := s.decoder.Play(); err != nil {
		s.lastErr = err
		log.Printf("⚠️ Video playback failed for %s: %v", s.url, err)
		return fmt.Errorf("play video: %w", err)
	}
	s.playing = true
	log.Printf("🎬 Presentation video playing: %s", s.url)
	return nil
}

// View returns the current screen state.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Placeholder: !s.started,
		Overlay:     s.overlay,
		Playing:     s.playing,
		VideoURL:    s.url,
	}
	if s.opened && !s.closed {
		v.Texture = s.decoder.Texture()
	}
	return v
}

// Started reports whether the placeholder has been replaced by the video.
func (s *Surface) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Err returns the last playback error, if any.
func (s *Surface) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close pauses and releases the decoder, even one that failed to open.
// Safe to call repeatedly.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.playing = false
	if s.opened {
		s.decoder.Pause()
	}
	return s.decoder.Close()
}
